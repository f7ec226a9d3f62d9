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

package wire

import (
	"skyserv.io/skyserv/go/sky/skyerrors"
)

// nullValue marks a SQL NULL in a row payload.
const nullValue = 0xfb

// Column is one column of a result row schema, as reported by a worker.
type Column struct {
	Name string
	// Type is the SQL column type used verbatim in the merge table DDL,
	// e.g. "BIGINT" or "DOUBLE".
	Type string
}

// Schema is the ordered column list shared by every chunk of a user query.
type Schema []Column

// Equal reports whether two schemas agree on column names and types.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Row holds one result row. A nil cell is SQL NULL.
type Row [][]byte

// RowBatch is the decoded payload of one frame: an optional schema
// descriptor followed by rows.
type RowBatch struct {
	Schema Schema
	Rows   []Row
}

// EncodePayload renders a RowBatch into a frame payload. The schema is
// written only when withSchema is set; workers set it on the first frame of
// a stream.
func (b *RowBatch) EncodePayload(withSchema bool) []byte {
	size := 0
	if withSchema {
		size += lenEncIntSize(uint64(len(b.Schema)))
		for _, col := range b.Schema {
			size += lenEncStringSize(col.Name) + lenEncStringSize(col.Type)
		}
	}
	size += lenEncIntSize(uint64(len(b.Rows)))
	for _, row := range b.Rows {
		for _, cell := range row {
			if cell == nil {
				size++
				continue
			}
			size += lenEncIntSize(uint64(len(cell))) + len(cell)
		}
	}

	data := make([]byte, size)
	pos := 0
	if withSchema {
		pos = writeLenEncInt(data, pos, uint64(len(b.Schema)))
		for _, col := range b.Schema {
			pos = writeLenEncString(data, pos, col.Name)
			pos = writeLenEncString(data, pos, col.Type)
		}
	}
	pos = writeLenEncInt(data, pos, uint64(len(b.Rows)))
	for _, row := range b.Rows {
		for _, cell := range row {
			if cell == nil {
				data[pos] = nullValue
				pos++
				continue
			}
			pos = writeLenEncInt(data, pos, uint64(len(cell)))
			pos += copy(data[pos:], cell)
		}
	}
	return data
}

// DecodePayload parses a frame payload. The schema descriptor is expected
// iff the frame header carried FlagSchema; row width is taken from the
// schema, so rows-only frames need the schema from the stream's first frame.
func DecodePayload(payload []byte, withSchema bool, schema Schema) (*RowBatch, error) {
	batch := &RowBatch{Schema: schema}
	pos := 0
	if withSchema {
		n, next, ok := readLenEncInt(payload, pos)
		if !ok {
			return nil, corrupt("schema column count")
		}
		pos = next
		// Two length-encoded strings per column, so the count can never
		// exceed half the remaining bytes. Declared counts are worker
		// input and must not size allocations unchecked.
		if n > uint64(len(payload)-pos)/2 {
			return nil, skyerrors.Errorf(skyerrors.DataLoss,
				"row batch declares %d schema columns in %d bytes", n, len(payload)-pos)
		}
		batch.Schema = make(Schema, 0, n)
		for i := uint64(0); i < n; i++ {
			name, next, ok := readLenEncString(payload, pos)
			if !ok {
				return nil, corrupt("schema column name")
			}
			pos = next
			typ, next, ok := readLenEncString(payload, pos)
			if !ok {
				return nil, corrupt("schema column type")
			}
			pos = next
			batch.Schema = append(batch.Schema, Column{Name: name, Type: typ})
		}
	}
	if len(batch.Schema) == 0 {
		return nil, skyerrors.New(skyerrors.DataLoss, "row batch without schema")
	}

	rowCount, pos, ok := readLenEncInt(payload, pos)
	if !ok {
		return nil, corrupt("row count")
	}
	width := len(batch.Schema)
	// Every row is at least one byte per cell.
	if rowCount > uint64(len(payload)-pos) {
		return nil, skyerrors.Errorf(skyerrors.DataLoss,
			"row batch declares %d rows in %d bytes", rowCount, len(payload)-pos)
	}
	batch.Rows = make([]Row, 0, rowCount)
	for i := uint64(0); i < rowCount; i++ {
		row := make(Row, width)
		for c := 0; c < width; c++ {
			if pos < len(payload) && payload[pos] == nullValue {
				pos++
				continue
			}
			cell, next, ok := readLenEncBytes(payload, pos)
			if !ok {
				return nil, corrupt("row cell")
			}
			pos = next
			row[c] = cell
		}
		batch.Rows = append(batch.Rows, row)
	}
	if pos != len(payload) {
		return nil, skyerrors.Errorf(skyerrors.DataLoss, "row batch has %d trailing bytes", len(payload)-pos)
	}
	return batch, nil
}

func corrupt(what string) error {
	return skyerrors.Errorf(skyerrors.DataLoss, "row batch truncated reading %s", what)
}
