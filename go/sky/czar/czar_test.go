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

package czar

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"skyserv.io/skyserv/go/sky/catalog"
	"skyserv.io/skyserv/go/sky/scatter"
	"skyserv.io/skyserv/go/sky/skyerrors"
	"skyserv.io/skyserv/go/sky/wire"
)

func TestMain(m *testing.M) {
	// glog and go-cache run library-owned daemons with no shutdown hook.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"),
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

func testCatalog(t *testing.T) *catalog.Cache {
	t.Helper()
	ms := catalog.NewMemStore()
	ms.Put("/PARTITIONING/pt1", []byte(`{"stripes":18,"subStripes":10,"overlap":0.01667,"overlapNearNeighbor":0.025}`))
	ms.Put("/DBS/LSST", []byte(`{"partitioningId":"pt1"}`))
	ms.Put("/DBS/LSST/TABLES/Object", []byte(`{"kind":"director","keyCol":"objectId","lonCol":"ra_PS","latCol":"decl_PS","chunkLevel":2,"subChunks":true}`))
	ms.Put("/DBS/LSST/TABLES/Filter", []byte(`{"kind":"plain"}`))
	return catalog.NewCache(ms)
}

type execCall struct {
	query string
	args  []interface{}
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 0, nil }

type fakeDB struct {
	mu    sync.Mutex
	calls []execCall
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{query: query, args: args})
	return fakeResult{}, nil
}

func (f *fakeDB) log() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]execCall(nil), f.calls...)
}

func (f *fakeDB) queriesMatching(substr string) []execCall {
	var out []execCall
	for _, call := range f.log() {
		if strings.Contains(call.query, substr) {
			out = append(out, call)
		}
	}
	return out
}

type transportFunc func(ctx context.Context, req *scatter.WorkerRequest, send func([]byte) error) error

func (f transportFunc) StreamExecute(ctx context.Context, req *scatter.WorkerRequest, send func([]byte) error) error {
	return f(ctx, req, send)
}

// countStream answers every sub-job with one QS1_COUNT row.
func countStream(ctx context.Context, req *scatter.WorkerRequest, send func([]byte) error) error {
	batch := &wire.RowBatch{
		Schema: wire.Schema{{Name: "QS1_COUNT", Type: "BIGINT"}},
		Rows:   []wire.Row{{[]byte("5")}},
	}
	frame := wire.EncodeFrame(wire.Header{
		Flags:       wire.FlagSchema | wire.FlagEndOfStream,
		UserQueryID: req.UserQueryID,
		ChunkID:     uint32(req.ChunkID),
		Attempt:     req.Attempt,
		SessionID:   req.SessionID,
	}, batch.EncodePayload(true))
	return send(frame)
}

func testConfig() Config {
	return Config{
		DefaultDb:           "LSST",
		ResultDb:            "Results",
		MaxInFlightPerQuery: 4,
		MaxAttempts:         2,
		JobTimeout:          5 * time.Second,
		RetryBackoff:        time.Millisecond,
	}
}

func TestSubmitCompletes(t *testing.T) {
	db := &fakeDB{}
	c := New(testConfig(), testCatalog(t), transportFunc(countStream), nil, db)

	res := c.SubmitQuery(context.Background(),
		"select count(*) from Object where qserv_areaspec_box(0, 0, 1, 1)", nil)
	require.Empty(t, res.ErrorMsg)
	assert.Equal(t, "result_1", res.ResultTable)
	assert.Equal(t, "message_1", res.MessageTable)
	assert.Empty(t, res.OrderBy)

	uq, ok := c.Query(1)
	require.True(t, ok)
	<-uq.Done()
	assert.Equal(t, StateComplete, uq.State())
	assert.Empty(t, uq.ErrorMsg())

	// Message table lifecycle: created and locked before any merge work,
	// completion row written, lock released last.
	calls := db.log()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[0].query, "CREATE TABLE IF NOT EXISTS `Results`.`message_1`")
	assert.Equal(t, "LOCK TABLES `Results`.`message_1` WRITE", calls[1].query)
	assert.Equal(t, "UNLOCK TABLES", calls[len(calls)-1].query)

	inserts := db.queriesMatching("INSERT INTO `Results`.`message_1`")
	require.Len(t, inserts, 1)
	require.Len(t, inserts[0].args, 4)
	assert.Equal(t, SeverityInfo, inserts[0].args[1])
	assert.Equal(t, "COMPLETE", inserts[0].args[3])

	// The aggregate was merged through an intermediate table and fixed up.
	assert.Len(t, db.queriesMatching("LOAD DATA LOCAL INFILE"), 1)
	fixups := db.queriesMatching("CREATE TABLE `Results`.`result_1` SELECT sum(QS1_COUNT)")
	require.Len(t, fixups, 1)
	assert.Contains(t, fixups[0].query, "FROM `Results`.`result_1_m1`")

	c.Release(1)
	_, ok = c.Query(1)
	assert.False(t, ok)
}

func TestSubmitRejected(t *testing.T) {
	db := &fakeDB{}
	c := New(testConfig(), testCatalog(t), transportFunc(countStream), nil, db)

	res := c.SubmitQuery(context.Background(), "select * from Nope", nil)
	assert.Contains(t, res.ErrorMsg, "Nope")
	assert.Empty(t, db.log())

	res = c.SubmitQuery(context.Background(), "select count(distinct x) from Object", nil)
	assert.Contains(t, res.ErrorMsg, "unsupported query")
}

func TestSubmitHints(t *testing.T) {
	db := &fakeDB{}
	c := New(testConfig(), testCatalog(t), transportFunc(countStream), nil, db)

	res := c.SubmitQuery(context.Background(), "select count(*) from LSST.Filter", map[string]string{
		"db":          "LSST",
		"resultTable": "mine",
		"msgTable":    "mine_msg",
		"clientId":    "shim-7",
	})
	require.Empty(t, res.ErrorMsg)
	assert.Equal(t, "mine", res.ResultTable)
	assert.Equal(t, "mine_msg", res.MessageTable)

	uq, ok := c.Query(1)
	require.True(t, ok)
	<-uq.Done()
	assert.Equal(t, "shim-7", uq.ClientID)
	assert.Equal(t, StateComplete, uq.State())
}

func TestKillQuery(t *testing.T) {
	db := &fakeDB{}
	started := make(chan struct{}, 4)
	blocking := transportFunc(func(ctx context.Context, req *scatter.WorkerRequest, send func([]byte) error) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	})
	c := New(testConfig(), testCatalog(t), blocking, nil, db)

	res := c.SubmitQuery(context.Background(), "select * from Object where chunkId in (324, 325)", nil)
	require.Empty(t, res.ErrorMsg)
	<-started

	require.NoError(t, c.KillQuery("KILL 1", "shim-7"))
	uq, ok := c.Query(1)
	require.True(t, ok)
	<-uq.Done()
	assert.Equal(t, StateCancelled, uq.State())

	// One CANCELLED message row, and the partial result dropped.
	inserts := db.queriesMatching("INSERT INTO `Results`.`message_1`")
	require.Len(t, inserts, 1)
	assert.Equal(t, SeverityInfo, inserts[0].args[1])
	assert.Equal(t, "CANCELLED", inserts[0].args[3])
	assert.NotEmpty(t, db.queriesMatching("DROP TABLE IF EXISTS `Results`.`result_1`"))
}

func TestKillQueryErrors(t *testing.T) {
	db := &fakeDB{}
	c := New(testConfig(), testCatalog(t), transportFunc(countStream), nil, db)

	err := c.KillQuery("KILL 99", "shim-7")
	assert.Equal(t, skyerrors.NotFound, skyerrors.CodeOf(err))

	err = c.KillQuery("DROP 1", "shim-7")
	assert.Equal(t, skyerrors.InvalidArgument, skyerrors.CodeOf(err))

	err = c.KillQuery("KILL QUERY", "shim-7")
	assert.Equal(t, skyerrors.InvalidArgument, skyerrors.CodeOf(err))
}

func TestParseKillToken(t *testing.T) {
	id, err := parseKillToken("KILL 5")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), id)

	id, err = parseKillToken("kill query 12")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), id)

	_, err = parseKillToken("KILL five")
	assert.Equal(t, skyerrors.InvalidArgument, skyerrors.CodeOf(err))
}

func TestSubmitFailurePropagates(t *testing.T) {
	db := &fakeDB{}
	failing := transportFunc(func(ctx context.Context, req *scatter.WorkerRequest, send func([]byte) error) error {
		return skyerrors.New(skyerrors.Internal, "worker bug")
	})
	c := New(testConfig(), testCatalog(t), failing, nil, db)

	res := c.SubmitQuery(context.Background(), "select * from Object where chunkId = 324", nil)
	require.Empty(t, res.ErrorMsg)
	uq, ok := c.Query(1)
	require.True(t, ok)
	<-uq.Done()

	assert.Equal(t, StateFailed, uq.State())
	assert.Contains(t, uq.ErrorMsg(), "worker bug")
	inserts := db.queriesMatching("INSERT INTO `Results`.`message_1`")
	require.Len(t, inserts, 1)
	assert.Equal(t, SeverityError, inserts[0].args[1])
}
