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

// Package planbuilder turns a parsed SELECT into a ChunkQuerySpec: the
// per-chunk query templates, the set of chunks to visit, and the fix-up
// plan the merger applies after all chunks have reported.
package planbuilder

import (
	"skyserv.io/skyserv/go/sky/sqlparser"
)

// DummyChunk is the chunk id used for queries that touch no partitioned
// table. Such queries run as a single sub-job on an arbitrary worker.
const DummyChunk = int32(1234567890)

// ChunkSpec names one chunk work unit and, for sub-chunked execution, the
// sub-chunks to visit inside it.
type ChunkSpec struct {
	ChunkID   int32
	SubChunks []int32
}

// FixupPlan is the SQL the merger runs over the merge table to produce the
// final result. The merger assembles:
//
//	CREATE TABLE <result> SELECT <Select> FROM <merge table> <Post> <OrderBy> <Limit>
type FixupPlan struct {
	// Select is the rendered fix-up select list.
	Select string
	// Post holds the rendered GROUP BY and HAVING clauses, if any.
	Post string
	// OrderBy is the rendered ORDER BY clause, if any.
	OrderBy string
	// Limit is the rendered LIMIT clause, if any.
	Limit string
}

// ChunkQuerySpec is the immutable output of a Build. It is a pure function
// of the input SQL and the catalog snapshot: every template, substituted
// with a concrete (db, chunk, subchunk), is a legal standalone query whose
// result schema is identical across chunks.
type ChunkQuerySpec struct {
	// Db is the database the query runs against.
	Db string
	// Templates are the per-chunk query templates. Sub-chunked
	// near-neighbor plans carry two: the plain pairing and the pairing
	// against the overlap table.
	Templates []*sqlparser.QueryTemplate
	// Chunks is the deterministic chunk enumeration.
	Chunks []ChunkSpec
	// SubChunked is set when templates must be generated per sub-chunk.
	SubChunked bool
	// OverlapDeg is the overlap halo the enumeration was padded by.
	OverlapDeg float64
	// SchemaHint names the columns every per-chunk result carries.
	SchemaHint []string
	// NeedsFixup is set when a FixupPlan must run on the merge table.
	NeedsFixup bool
	// NeedsMergeOnly is set when chunks return raw rows and the original
	// select is re-run at fix-up time.
	NeedsMergeOnly bool
	// Fixup is nil iff NeedsFixup is false.
	Fixup *FixupPlan
	// OrderBy is the rendered ORDER BY of the final result, returned to
	// the client shim so it can skip re-sorting.
	OrderBy string
}
