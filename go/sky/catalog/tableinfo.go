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

package catalog

import (
	"skyserv.io/skyserv/go/sky/skyerrors"
)

// StripingParams describes how a partitioning scheme tiles the sphere.
type StripingParams struct {
	// PartitioningID identifies the scheme. Tables joined through a match
	// table must share it.
	PartitioningID string `json:"partitioningId"`
	// Stripes is the number of latitude bands.
	Stripes int `json:"stripes"`
	// SubStripes is the number of sub-stripes per stripe, used for
	// near-neighbor sub-chunking.
	SubStripes int `json:"subStripes"`
	// OverlapDeg is the default chunk overlap halo in degrees.
	OverlapDeg float64 `json:"overlap"`
	// OverlapNearNeighborDeg is the overlap used by near-neighbor queries.
	OverlapNearNeighborDeg float64 `json:"overlapNearNeighbor"`
}

func (p *StripingParams) validate() error {
	if p.Stripes <= 0 || p.SubStripes <= 0 {
		return skyerrors.Errorf(skyerrors.FailedPrecondition,
			"partitioning %s: stripes=%d subStripes=%d must be positive", p.PartitioningID, p.Stripes, p.SubStripes)
	}
	if p.OverlapDeg < 0 || p.OverlapNearNeighborDeg < 0 {
		return skyerrors.Errorf(skyerrors.FailedPrecondition,
			"partitioning %s: negative overlap", p.PartitioningID)
	}
	return nil
}

// TableInfo is the metadata attached to one (db, table) pair. Concrete
// variants are DirTableInfo, ChildTableInfo, MatchTableInfo and
// PlainTableInfo. Entries are long-lived and shared read-only.
type TableInfo interface {
	Db() string
	Name() string
	// Partitioned reports whether queries against this table fan out
	// over chunks.
	Partitioned() bool
	// Director returns the director this table is partitioned by, or nil.
	// A match table reports its first director here.
	Director() *DirTableInfo
}

// DirTableInfo is a director table: its partitioning column is the primary
// spatial key, and child and match tables are defined relative to it.
type DirTableInfo struct {
	DbName    string
	TableName string
	// KeyCol is the object-id primary key column.
	KeyCol string
	// LonCol and LatCol are the partitioning position columns.
	LonCol string
	LatCol string
	// ChunkLevel is 1 for chunked, 2 for chunked with sub-chunks.
	ChunkLevel int
	// SubChunks is set when the table is materialized at sub-chunk level.
	SubChunks bool
	// OverlapDeg overrides the scheme default when non-zero.
	OverlapDeg float64
	Striping   StripingParams
}

func (t *DirTableInfo) Db() string              { return t.DbName }
func (t *DirTableInfo) Name() string            { return t.TableName }
func (t *DirTableInfo) Partitioned() bool       { return true }
func (t *DirTableInfo) Director() *DirTableInfo { return t }

// Overlap returns the effective overlap halo in degrees.
func (t *DirTableInfo) Overlap() float64 {
	if t.OverlapDeg > 0 {
		return t.OverlapDeg
	}
	return t.Striping.OverlapDeg
}

func (t *DirTableInfo) validate() error {
	if t.SubChunks {
		if t.KeyCol == "" || t.LonCol == "" || t.LatCol == "" ||
			t.KeyCol == t.LonCol || t.KeyCol == t.LatCol || t.LonCol == t.LatCol {
			return skyerrors.Errorf(skyerrors.FailedPrecondition,
				"director %s.%s declares sub-chunking but partition columns (%q,%q,%q) are not three distinct non-empty columns",
				t.DbName, t.TableName, t.KeyCol, t.LonCol, t.LatCol)
		}
	}
	if t.ChunkLevel < 1 || t.ChunkLevel > 2 {
		return skyerrors.Errorf(skyerrors.FailedPrecondition,
			"director %s.%s: chunk level %d out of range", t.DbName, t.TableName, t.ChunkLevel)
	}
	return t.Striping.validate()
}

// ChildTableInfo is a table partitioned by foreign key into a director.
type ChildTableInfo struct {
	DbName     string
	TableName  string
	FKCol      string
	ChunkLevel int
	Dir        *DirTableInfo
}

func (t *ChildTableInfo) Db() string              { return t.DbName }
func (t *ChildTableInfo) Name() string            { return t.TableName }
func (t *ChildTableInfo) Partitioned() bool       { return true }
func (t *ChildTableInfo) Director() *DirTableInfo { return t.Dir }

func (t *ChildTableInfo) validate() error {
	if t.Dir == nil {
		return skyerrors.Errorf(skyerrors.FailedPrecondition,
			"child %s.%s has no director", t.DbName, t.TableName)
	}
	if t.ChunkLevel > t.Dir.ChunkLevel {
		return skyerrors.Errorf(skyerrors.FailedPrecondition,
			"child %s.%s: chunk level %d exceeds director %s level %d",
			t.DbName, t.TableName, t.ChunkLevel, t.Dir.TableName, t.Dir.ChunkLevel)
	}
	return nil
}

// MatchTableInfo is a relational bridge between two director tables.
type MatchTableInfo struct {
	DbName    string
	TableName string
	Dir1      *DirTableInfo
	FK1       string
	Dir2      *DirTableInfo
	FK2       string
}

func (t *MatchTableInfo) Db() string              { return t.DbName }
func (t *MatchTableInfo) Name() string            { return t.TableName }
func (t *MatchTableInfo) Partitioned() bool       { return true }
func (t *MatchTableInfo) Director() *DirTableInfo { return t.Dir1 }

func (t *MatchTableInfo) validate() error {
	if t.Dir1 == nil || t.Dir2 == nil {
		return skyerrors.Errorf(skyerrors.FailedPrecondition,
			"match %s.%s is missing a director", t.DbName, t.TableName)
	}
	if t.Dir1.Striping.PartitioningID != t.Dir2.Striping.PartitioningID {
		return skyerrors.Errorf(skyerrors.FailedPrecondition,
			"match %s.%s joins directors with different partitionings (%s vs %s)",
			t.DbName, t.TableName, t.Dir1.Striping.PartitioningID, t.Dir2.Striping.PartitioningID)
	}
	if t.FK1 == "" || t.FK2 == "" {
		return skyerrors.Errorf(skyerrors.FailedPrecondition,
			"match %s.%s is missing a foreign key column", t.DbName, t.TableName)
	}
	return nil
}

// PlainTableInfo is an unpartitioned table, replicated on every worker.
type PlainTableInfo struct {
	DbName    string
	TableName string
}

func (t *PlainTableInfo) Db() string              { return t.DbName }
func (t *PlainTableInfo) Name() string            { return t.TableName }
func (t *PlainTableInfo) Partitioned() bool       { return false }
func (t *PlainTableInfo) Director() *DirTableInfo { return nil }
