/*
Copyright 2026 The SkyServ Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package merger

import (
	"bytes"

	"skyserv.io/skyserv/go/sky/wire"
)

// splitRows partitions rows into batches whose approximate encoded size
// stays under maxBytes. A batch always holds at least one row; maxBytes
// of zero or less disables splitting.
func splitRows(rows []wire.Row, maxBytes int64) [][]wire.Row {
	if len(rows) == 0 {
		return nil
	}
	if maxBytes <= 0 {
		return [][]wire.Row{rows}
	}
	var batches [][]wire.Row
	start, size := 0, int64(0)
	for i, row := range rows {
		rowSize := int64(1)
		for _, cell := range row {
			rowSize += int64(len(cell)) + 1
		}
		if i > start && size+rowSize > maxBytes {
			batches = append(batches, rows[start:i])
			start, size = i, 0
		}
		size += rowSize
	}
	return append(batches, rows[start:])
}

// encodeRows renders rows in the LOAD DATA default format: tab-separated
// fields, newline-terminated lines, backslash escaping, \N for NULL.
func encodeRows(rows []wire.Row) []byte {
	var buf bytes.Buffer
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				buf.WriteByte('\t')
			}
			if cell == nil {
				buf.WriteString(`\N`)
				continue
			}
			writeEscaped(&buf, cell)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeEscaped(buf *bytes.Buffer, cell []byte) {
	for _, b := range cell {
		switch b {
		case '\\':
			buf.WriteString(`\\`)
		case '\t':
			buf.WriteString(`\t`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case 0:
			buf.WriteString(`\0`)
		default:
			buf.WriteByte(b)
		}
	}
}
