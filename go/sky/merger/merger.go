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

// Package merger collects per-chunk result rows into a merge table in the
// result database and produces the final result table. Rows arrive as
// decoded frames from the scatter layer and are bulk-loaded with LOAD DATA
// LOCAL INFILE; after the last chunk commits, the fix-up statement turns
// merged partials into the final result.
package merger

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/go-sql-driver/mysql"

	"skyserv.io/skyserv/go/sky/log"
	"skyserv.io/skyserv/go/sky/planbuilder"
	"skyserv.io/skyserv/go/sky/scatter"
	"skyserv.io/skyserv/go/sky/skyerrors"
	"skyserv.io/skyserv/go/sky/stats"
	"skyserv.io/skyserv/go/sky/wire"
)

var (
	rowsMerged        = stats.NewCounter("MergerRowsMerged", "Result rows loaded into merge tables")
	chunksMerged      = stats.NewCounter("MergerChunksMerged", "Chunk results committed to merge tables")
	duplicatesDropped = stats.NewCounter("MergerDuplicatesDropped", "Row batches dropped for already-merged chunks")
	loadsInFlight     = stats.NewGauge("MergerLoadsInFlight", "LOAD DATA statements currently executing")
)

// errTableFull is the mysql error for a table that hit its size limit.
const errTableFull = 1114

// Execer runs statements against the result database. *sql.DB and
// *sql.Conn both satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// InfileMerger merges one user query's chunk results. It implements
// scatter.Sink: Merge stages decoded rows per attempt, Commit loads a
// complete chunk result into the merge table. A chunk commits at most
// once; rows staged by an attempt that never commits are discarded.
type InfileMerger struct {
	db          Execer
	userQueryID uint64
	database    string
	resultTable string
	mergeTable  string
	fixup       *planbuilder.FixupPlan
	handler     string
	bufferBytes int64

	mu        sync.Mutex
	schema    wire.Schema
	poison    error
	staged    map[scatter.JobKey][]wire.Row
	committed map[int32]bool

	// loadMu serializes DDL and LOAD DATA on the shared connection.
	loadMu     sync.Mutex
	created    bool
	rowsLoaded int64
	bytesSent  int64
}

// NewInfileMerger builds the merger for one user query. When fixup is nil
// the chunk rows are final and are merged directly into the result table;
// otherwise they go to an intermediate merge table that Finalize consumes.
// bufferBytes caps the encoded size of one LOAD DATA statement; zero means
// one statement per commit.
func NewInfileMerger(db Execer, userQueryID uint64, database, resultTable string,
	fixup *planbuilder.FixupPlan, bufferBytes int64) *InfileMerger {
	mergeTable := resultTable
	if fixup != nil {
		mergeTable = fmt.Sprintf("%s_m%d", resultTable, userQueryID)
	}
	return &InfileMerger{
		db:          db,
		userQueryID: userQueryID,
		database:    database,
		resultTable: resultTable,
		mergeTable:  mergeTable,
		fixup:       fixup,
		handler:     fmt.Sprintf("skymerge-%d", userQueryID),
		bufferBytes: bufferBytes,
		staged:      make(map[scatter.JobKey][]wire.Row),
		committed:   make(map[int32]bool),
	}
}

// MergeTable returns the qualified table chunk rows are loaded into.
func (m *InfileMerger) MergeTable() string {
	return fmt.Sprintf("`%s`.`%s`", m.database, m.mergeTable)
}

// ResultTable returns the qualified final result table.
func (m *InfileMerger) ResultTable() string {
	return fmt.Sprintf("`%s`.`%s`", m.database, m.resultTable)
}

// Merge stages a decoded row batch for the attempt identified by key. The
// first schema seen becomes the merge table schema; any chunk reporting a
// different one poisons the merger.
func (m *InfileMerger) Merge(ctx context.Context, key scatter.JobKey, batch *wire.RowBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poison != nil {
		return m.poison
	}
	if batch.Schema != nil {
		if m.schema == nil {
			m.schema = batch.Schema
		} else if !m.schema.Equal(batch.Schema) {
			return m.poisonLocked(skyerrors.Errorf(skyerrors.DataLoss,
				"chunk %d result schema differs from the merge table schema", key.ChunkID))
		}
	}
	if m.committed[key.ChunkID] {
		duplicatesDropped.Add(1)
		return nil
	}
	if len(batch.Rows) > 0 {
		m.staged[key] = append(m.staged[key], batch.Rows...)
	}
	return nil
}

// Commit makes the chunk's staged rows durable in the merge table. Later
// commits for the same chunk are dropped, so a retried job contributes at
// most once.
func (m *InfileMerger) Commit(ctx context.Context, key scatter.JobKey) error {
	m.mu.Lock()
	if m.poison != nil {
		err := m.poison
		m.mu.Unlock()
		return err
	}
	rows := m.staged[key]
	schema := m.schema
	dup := m.committed[key.ChunkID]
	if !dup {
		m.committed[key.ChunkID] = true
	}
	// Drop staging for every attempt of this chunk, committed or not.
	for k := range m.staged {
		if k.ChunkID == key.ChunkID {
			delete(m.staged, k)
		}
	}
	m.mu.Unlock()

	if dup {
		duplicatesDropped.Add(1)
		return nil
	}
	if err := m.ensureCreated(ctx, schema); err != nil {
		return m.poisonWith(err)
	}
	for _, batch := range splitRows(rows, m.bufferBytes) {
		if err := m.load(ctx, batch); err != nil {
			return m.poisonWith(err)
		}
	}
	chunksMerged.Add(1)
	return nil
}

// ensureCreated creates the merge table from the first committed schema.
func (m *InfileMerger) ensureCreated(ctx context.Context, schema wire.Schema) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if m.created {
		return nil
	}
	if schema == nil {
		return skyerrors.Errorf(skyerrors.Internal,
			"query %d committed a chunk before any schema arrived", m.userQueryID)
	}
	var cols strings.Builder
	for i, col := range schema {
		if i > 0 {
			cols.WriteString(", ")
		}
		fmt.Fprintf(&cols, "`%s` %s", col.Name, col.Type)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE=MyISAM", m.MergeTable(), cols.String())
	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return skyerrors.Wrap(mapMysqlError(err), "creating merge table")
	}
	m.created = true
	return nil
}

// load bulk-loads rows through a registered reader handler.
func (m *InfileMerger) load(ctx context.Context, rows []wire.Row) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	buf := encodeRows(rows)
	mysql.RegisterReaderHandler(m.handler, func() io.Reader { return bytes.NewReader(buf) })
	defer mysql.DeregisterReaderHandler(m.handler)

	loadsInFlight.Add(1)
	defer loadsInFlight.Add(-1)
	query := fmt.Sprintf("LOAD DATA LOCAL INFILE 'Reader::%s' INTO TABLE %s", m.handler, m.MergeTable())
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return skyerrors.Wrap(mapMysqlError(err), "loading chunk rows")
	}
	rowsMerged.Add(int64(len(rows)))
	m.rowsLoaded += int64(len(rows))
	m.bytesSent += int64(len(buf))
	return nil
}

// Finalize runs the fix-up statement over the merge table and leaves the
// final rows in the result table. It must be called only after every chunk
// job succeeded.
func (m *InfileMerger) Finalize(ctx context.Context) error {
	m.mu.Lock()
	poison, schema := m.poison, m.schema
	m.mu.Unlock()
	if poison != nil {
		return poison
	}
	// An all-empty result still needs its table.
	if err := m.ensureCreated(ctx, schema); err != nil {
		return m.poisonWith(err)
	}
	if m.fixup != nil {
		var stmt strings.Builder
		fmt.Fprintf(&stmt, "CREATE TABLE %s SELECT %s FROM %s", m.ResultTable(), m.fixup.Select, m.MergeTable())
		for _, clause := range []string{m.fixup.Post, m.fixup.OrderBy, m.fixup.Limit} {
			if clause != "" {
				stmt.WriteByte(' ')
				stmt.WriteString(clause)
			}
		}
		if _, err := m.db.ExecContext(ctx, stmt.String()); err != nil {
			return m.poisonWith(skyerrors.Wrap(mapMysqlError(err), "finalizing result table"))
		}
		if _, err := m.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", m.MergeTable())); err != nil {
			log.Warningf("query %d: dropping merge table: %v", m.userQueryID, err)
		}
	}
	m.loadMu.Lock()
	rows, bytes := m.rowsLoaded, m.bytesSent
	m.loadMu.Unlock()
	log.Infof("query %d: finalized %s rows (%s) into %s",
		m.userQueryID, humanize.Comma(rows), humanize.Bytes(uint64(bytes)), m.ResultTable())
	return nil
}

// Cleanup drops whatever tables the query left behind. Called on failure
// or cancellation; errors are logged, not returned.
func (m *InfileMerger) Cleanup(ctx context.Context) {
	for _, table := range []string{m.MergeTable(), m.ResultTable()} {
		if _, err := m.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			log.Warningf("query %d: dropping %s: %v", m.userQueryID, table, err)
		}
	}
}

// poisonWith latches the first fatal error; every later call fails fast.
func (m *InfileMerger) poisonWith(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poisonLocked(err)
}

func (m *InfileMerger) poisonLocked(err error) error {
	if m.poison == nil {
		m.poison = err
	}
	return m.poison
}

// mapMysqlError translates server errors the merger must distinguish. A
// full result table surfaces as ResourceExhausted so the caller reports a
// too-large result instead of an internal failure.
func mapMysqlError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errTableFull {
		return skyerrors.Errorf(skyerrors.ResourceExhausted, "result too large: %v", err)
	}
	return err
}
