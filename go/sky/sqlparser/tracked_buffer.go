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

package sqlparser

import (
	"bytes"
	"fmt"
)

// TrackedBuffer is used to rebuild a query from the AST. bindLocations
// keeps track of the placeholders written while rendering, so the result
// can be turned into a QueryTemplate without textual reparsing.
type TrackedBuffer struct {
	*bytes.Buffer
	bindLocations []bindLocation
}

type bindLocation struct {
	offset, length int
	kind           PlaceholderKind
	// hint carries the table base name for PlaceholderTable locations.
	hint string
}

// NewTrackedBuffer creates a new TrackedBuffer.
func NewTrackedBuffer() *TrackedBuffer {
	return &TrackedBuffer{Buffer: new(bytes.Buffer)}
}

// Myprintf mimics fmt.Fprintf(buf, ...), but limited to Value & Node
// formatters: %v formats an SQLNode, %s a string, %d an int, %c a byte.
func (buf *TrackedBuffer) Myprintf(format string, values ...any) {
	end := len(format)
	fieldnum := 0
	for i := 0; i < end; {
		lasti := i
		for i < end && format[i] != '%' {
			i++
		}
		if i > lasti {
			buf.WriteString(format[lasti:i])
		}
		if i >= end {
			break
		}
		i++ // '%'
		switch format[i] {
		case 'c':
			switch v := values[fieldnum].(type) {
			case byte:
				buf.WriteByte(v)
			case rune:
				buf.WriteRune(v)
			default:
				panic(fmt.Sprintf("unexpected type %T", v))
			}
		case 's':
			switch v := values[fieldnum].(type) {
			case []byte:
				buf.Write(v)
			case string:
				buf.WriteString(v)
			default:
				panic(fmt.Sprintf("unexpected type %T", v))
			}
		case 'd':
			fmt.Fprintf(buf.Buffer, "%d", values[fieldnum])
		case 'v':
			node := values[fieldnum].(SQLNode)
			node.Format(buf)
		default:
			panic("unexpected")
		}
		fieldnum++
		i++
	}
}

// WritePlaceholder writes the symbolic form of a placeholder and records
// its location. For PlaceholderTable, hint carries the concrete base table
// name so Generate can fill it without caller help.
func (buf *TrackedBuffer) WritePlaceholder(kind PlaceholderKind, hint string) {
	symbol := kind.symbol()
	buf.bindLocations = append(buf.bindLocations, bindLocation{
		offset: buf.Len(),
		length: len(symbol),
		kind:   kind,
		hint:   hint,
	})
	buf.WriteString(symbol)
}

// ParsedTemplate returns the rendered string as a QueryTemplate.
func (buf *TrackedBuffer) ParsedTemplate() *QueryTemplate {
	return &QueryTemplate{
		Query:     buf.String(),
		locations: buf.bindLocations,
	}
}

// String renders an SQLNode to its SQL text. Placeholders, if any, appear
// in symbolic form.
func String(node SQLNode) string {
	buf := NewTrackedBuffer()
	node.Format(buf)
	return buf.Buffer.String()
}
