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
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyserv.io/skyserv/go/sky/planbuilder"
	"skyserv.io/skyserv/go/sky/scatter"
	"skyserv.io/skyserv/go/sky/skyerrors"
	"skyserv.io/skyserv/go/sky/wire"
)

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 0, nil }

type fakeExecer struct {
	mu      sync.Mutex
	queries []string
	// fail returns a non-nil error for queries that should fail.
	fail func(query string) error
}

func (f *fakeExecer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(query); err != nil {
			return nil, err
		}
	}
	return fakeResult{}, nil
}

func (f *fakeExecer) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *fakeExecer) loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.queries {
		if strings.HasPrefix(q, "LOAD DATA") {
			n++
		}
	}
	return n
}

func key(chunk int32, attempt uint32) scatter.JobKey {
	return scatter.JobKey{UserQueryID: 42, ChunkID: chunk, Attempt: attempt}
}

var countSchema = wire.Schema{{Name: "QS1_COUNT", Type: "BIGINT"}}

func batchOf(schema wire.Schema, cells ...string) *wire.RowBatch {
	b := &wire.RowBatch{Schema: schema}
	for _, c := range cells {
		b.Rows = append(b.Rows, wire.Row{[]byte(c)})
	}
	return b
}

func TestMergeAndFinalize(t *testing.T) {
	db := &fakeExecer{}
	fixup := &planbuilder.FixupPlan{
		Select:  "sum(QS1_COUNT) as n",
		Post:    "group by filterId",
		OrderBy: "order by n desc",
		Limit:   "limit 5",
	}
	m := NewInfileMerger(db, 42, "Results", "qr_1", fixup, 0)
	ctx := context.Background()

	require.NoError(t, m.Merge(ctx, key(100, 1), batchOf(countSchema, "3")))
	require.NoError(t, m.Commit(ctx, key(100, 1)))
	require.NoError(t, m.Merge(ctx, key(101, 1), batchOf(countSchema, "7")))
	require.NoError(t, m.Commit(ctx, key(101, 1)))
	require.NoError(t, m.Finalize(ctx))

	queries := db.log()
	require.Len(t, queries, 5)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS `Results`.`qr_1_m42` (`QS1_COUNT` BIGINT) ENGINE=MyISAM", queries[0])
	assert.Equal(t, "LOAD DATA LOCAL INFILE 'Reader::skymerge-42' INTO TABLE `Results`.`qr_1_m42`", queries[1])
	assert.Equal(t, queries[1], queries[2])
	assert.Equal(t,
		"CREATE TABLE `Results`.`qr_1` SELECT sum(QS1_COUNT) as n FROM `Results`.`qr_1_m42` "+
			"group by filterId order by n desc limit 5",
		queries[3])
	assert.Equal(t, "DROP TABLE IF EXISTS `Results`.`qr_1_m42`", queries[4])
}

func TestNoFixupMergesIntoResultTable(t *testing.T) {
	db := &fakeExecer{}
	m := NewInfileMerger(db, 42, "Results", "qr_1", nil, 0)
	ctx := context.Background()

	require.NoError(t, m.Merge(ctx, key(100, 1), batchOf(countSchema, "3")))
	require.NoError(t, m.Commit(ctx, key(100, 1)))
	require.NoError(t, m.Finalize(ctx))

	queries := db.log()
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], "CREATE TABLE IF NOT EXISTS `Results`.`qr_1` ")
	assert.Contains(t, queries[1], "INTO TABLE `Results`.`qr_1`")
}

func TestSchemaMismatchPoisons(t *testing.T) {
	db := &fakeExecer{}
	m := NewInfileMerger(db, 42, "Results", "qr_1", nil, 0)
	ctx := context.Background()

	require.NoError(t, m.Merge(ctx, key(100, 1), batchOf(countSchema, "3")))
	other := wire.Schema{{Name: "QS1_COUNT", Type: "DOUBLE"}}
	err := m.Merge(ctx, key(101, 1), batchOf(other, "7"))
	require.Error(t, err)
	assert.Equal(t, skyerrors.DataLoss, skyerrors.CodeOf(err))

	// Everything after the poison fails fast with the same error.
	assert.Equal(t, err, m.Merge(ctx, key(102, 1), batchOf(countSchema, "1")))
	assert.Equal(t, err, m.Commit(ctx, key(100, 1)))
	assert.Equal(t, err, m.Finalize(ctx))
	assert.Empty(t, db.log())
}

func TestDuplicateChunkDropped(t *testing.T) {
	db := &fakeExecer{}
	m := NewInfileMerger(db, 42, "Results", "qr_1", nil, 0)
	ctx := context.Background()

	require.NoError(t, m.Merge(ctx, key(100, 1), batchOf(countSchema, "3")))
	require.NoError(t, m.Commit(ctx, key(100, 1)))
	require.NoError(t, m.Merge(ctx, key(100, 2), batchOf(countSchema, "3")))
	require.NoError(t, m.Commit(ctx, key(100, 2)))

	assert.Equal(t, 1, db.loads())
}

func TestUncommittedAttemptDiscarded(t *testing.T) {
	db := &fakeExecer{}
	m := NewInfileMerger(db, 42, "Results", "qr_1", nil, 0)
	ctx := context.Background()

	// Attempt 1 staged rows but never reached end of stream.
	require.NoError(t, m.Merge(ctx, key(100, 1), batchOf(countSchema, "1", "2")))
	require.NoError(t, m.Merge(ctx, key(100, 2), batchOf(countSchema, "3")))
	require.NoError(t, m.Commit(ctx, key(100, 2)))

	assert.Equal(t, 1, db.loads())
	m.mu.Lock()
	assert.Empty(t, m.staged)
	m.mu.Unlock()
}

func TestConcurrentCommitsCreateOnce(t *testing.T) {
	db := &fakeExecer{}
	m := NewInfileMerger(db, 42, "Results", "qr_1", nil, 0)
	ctx := context.Background()

	const chunks = 32
	var wg sync.WaitGroup
	for i := 0; i < chunks; i++ {
		chunk := int32(100 + i)
		require.NoError(t, m.Merge(ctx, key(chunk, 1), batchOf(countSchema, "1")))
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Commit(ctx, key(chunk, 1)))
		}()
	}
	wg.Wait()

	creates := 0
	for _, q := range db.log() {
		if strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS") {
			creates++
		}
	}
	assert.Equal(t, 1, creates)
	assert.Equal(t, chunks, db.loads())
}

func TestTableFullMapsToResourceExhausted(t *testing.T) {
	db := &fakeExecer{fail: func(query string) error {
		if strings.HasPrefix(query, "LOAD DATA") {
			return &mysql.MySQLError{Number: 1114, Message: "The table is full"}
		}
		return nil
	}}
	m := NewInfileMerger(db, 42, "Results", "qr_1", nil, 0)
	ctx := context.Background()

	require.NoError(t, m.Merge(ctx, key(100, 1), batchOf(countSchema, "3")))
	err := m.Commit(ctx, key(100, 1))
	require.Error(t, err)
	assert.Equal(t, skyerrors.ResourceExhausted, skyerrors.CodeOf(err))
	assert.Equal(t, err, m.Finalize(ctx))
}

func TestFinalizeEmptyResult(t *testing.T) {
	db := &fakeExecer{}
	m := NewInfileMerger(db, 42, "Results", "qr_1", nil, 0)
	ctx := context.Background()

	// A chunk with zero rows still carries a schema and commits.
	require.NoError(t, m.Merge(ctx, key(100, 1), batchOf(countSchema)))
	require.NoError(t, m.Commit(ctx, key(100, 1)))
	require.NoError(t, m.Finalize(ctx))

	queries := db.log()
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "CREATE TABLE IF NOT EXISTS")
}

func TestCleanup(t *testing.T) {
	db := &fakeExecer{}
	fixup := &planbuilder.FixupPlan{Select: "*"}
	m := NewInfileMerger(db, 42, "Results", "qr_1", fixup, 0)
	m.Cleanup(context.Background())

	queries := db.log()
	require.Len(t, queries, 2)
	assert.Equal(t, "DROP TABLE IF EXISTS `Results`.`qr_1_m42`", queries[0])
	assert.Equal(t, "DROP TABLE IF EXISTS `Results`.`qr_1`", queries[1])
}

func TestLoadSplitsByBufferSize(t *testing.T) {
	db := &fakeExecer{}
	// Each row is sized at 3 bytes, so a 7-byte buffer fits two rows and
	// 5 rows need 3 loads.
	m := NewInfileMerger(db, 42, "Results", "qr_1", nil, 7)
	ctx := context.Background()

	require.NoError(t, m.Merge(ctx, key(100, 1), batchOf(countSchema, "1", "2", "3", "4", "5")))
	require.NoError(t, m.Commit(ctx, key(100, 1)))

	assert.Equal(t, 3, db.loads())
}

func TestSplitRows(t *testing.T) {
	rows := []wire.Row{
		{[]byte("aaaa")},
		{[]byte("bbbb")},
		{[]byte("cccc")},
	}
	assert.Len(t, splitRows(rows, 0), 1)
	assert.Len(t, splitRows(rows, 6), 3)
	assert.Len(t, splitRows(rows, 12), 2)
	// A single oversized row still goes out alone.
	assert.Len(t, splitRows(rows[:1], 1), 1)
	assert.Nil(t, splitRows(nil, 8))
}

func TestEncodeRows(t *testing.T) {
	rows := []wire.Row{
		{[]byte("1"), []byte("a\tb"), nil},
		{[]byte("2"), []byte(`back\slash`), []byte("line\nbreak")},
	}
	got := string(encodeRows(rows))
	want := "1\ta\\tb\t\\N\n" +
		"2\tback\\\\slash\tline\\nbreak\n"
	assert.Equal(t, want, got)
}
