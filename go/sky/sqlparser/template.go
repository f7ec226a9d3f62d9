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
	"strconv"

	"skyserv.io/skyserv/go/sky/skyerrors"
)

// PlaceholderKind is the type of a symbolic substitution point in a
// rendered chunk query.
type PlaceholderKind int

const (
	// PlaceholderDB substitutes the per-chunk database name.
	PlaceholderDB PlaceholderKind = iota
	// PlaceholderTable substitutes the base table name.
	PlaceholderTable
	// PlaceholderChunk substitutes the chunk number.
	PlaceholderChunk
	// PlaceholderSubChunk substitutes the sub-chunk number.
	PlaceholderSubChunk
)

func (k PlaceholderKind) symbol() string {
	switch k {
	case PlaceholderDB:
		return "{DB}"
	case PlaceholderTable:
		return "{TABLE}"
	case PlaceholderChunk:
		return "{CHUNK}"
	case PlaceholderSubChunk:
		return "{SUBCHUNK}"
	}
	return "{?}"
}

// QueryTemplate is an ordered sequence of literal fragments and typed
// placeholders, produced by rendering a rewritten AST. Substituting every
// placeholder yields one legal standalone SQL query.
type QueryTemplate struct {
	// Query is the rendered SQL with placeholders in symbolic form.
	Query     string
	locations []bindLocation
}

// Substitutions maps placeholder kinds to concrete values for one
// (db, chunk, subchunk) work unit.
type Substitutions struct {
	Db          string
	Chunk       int32
	SubChunk    int32
	HasSubChunk bool
}

// HasSubChunk reports whether the template contains a SUBCHUNK placeholder.
func (qt *QueryTemplate) HasSubChunk() bool {
	for _, loc := range qt.locations {
		if loc.kind == PlaceholderSubChunk {
			return true
		}
	}
	return false
}

// Generate substitutes every placeholder and returns the final SQL string.
// An unfilled placeholder is an error.
func (qt *QueryTemplate) Generate(sub Substitutions) (string, error) {
	if len(qt.locations) == 0 {
		return qt.Query, nil
	}
	buf := bytes.NewBuffer(make([]byte, 0, len(qt.Query)+32))
	current := 0
	for _, loc := range qt.locations {
		buf.WriteString(qt.Query[current:loc.offset])
		switch loc.kind {
		case PlaceholderDB:
			if sub.Db == "" {
				return "", skyerrors.New(skyerrors.Internal, "unfilled {DB} placeholder")
			}
			buf.WriteString(sub.Db)
		case PlaceholderTable:
			if loc.hint == "" {
				return "", skyerrors.New(skyerrors.Internal, "unfilled {TABLE} placeholder")
			}
			buf.WriteString(loc.hint)
		case PlaceholderChunk:
			buf.WriteString(strconv.FormatInt(int64(sub.Chunk), 10))
		case PlaceholderSubChunk:
			if !sub.HasSubChunk {
				return "", skyerrors.New(skyerrors.Internal, "unfilled {SUBCHUNK} placeholder")
			}
			buf.WriteString(strconv.FormatInt(int64(sub.SubChunk), 10))
		}
		current = loc.offset + loc.length
	}
	buf.WriteString(qt.Query[current:])
	return buf.String(), nil
}
