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

// Package czar is the user-query controller: it accepts SQL from the
// client shim, plans it against the catalog, scatters chunk jobs, merges
// their results and signals completion through the query's message table.
package czar

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"skyserv.io/skyserv/go/sky/catalog"
	"skyserv.io/skyserv/go/sky/log"
	"skyserv.io/skyserv/go/sky/merger"
	"skyserv.io/skyserv/go/sky/planbuilder"
	"skyserv.io/skyserv/go/sky/scatter"
	"skyserv.io/skyserv/go/sky/skyerrors"
	"skyserv.io/skyserv/go/sky/stats"
)

var (
	queriesSubmitted = stats.NewCounter("CzarQueriesSubmitted", "User queries accepted for execution")
	queriesRejected  = stats.NewCounter("CzarQueriesRejected", "User queries rejected at submit time")
	queriesKilled    = stats.NewCounter("CzarQueriesKilled", "User queries cancelled by a kill request")
	terminalStates   = stats.NewCounters("CzarQueryOutcomes", "Terminal states of finished user queries",
		"COMPLETE", "FAILED", "CANCELLED")
)

// Config carries the czar's runtime settings.
type Config struct {
	// DefaultDb resolves unqualified table references when the submit
	// hints carry no db.
	DefaultDb string
	// ResultDb is the database holding result and message tables.
	ResultDb string
	// MaxInFlightPerQuery bounds concurrent chunk jobs of one query.
	MaxInFlightPerQuery int
	// MaxInFlightGlobal bounds concurrent chunk jobs across all queries;
	// zero means unbounded.
	MaxInFlightGlobal int
	// MaxAttempts is the per-chunk attempt cap, including the first.
	MaxAttempts int
	// JobTimeout bounds one chunk job attempt.
	JobTimeout time.Duration
	// RetryBackoff is the base of the chunk retry backoff.
	RetryBackoff time.Duration
	// MergeBufferBytes caps the encoded size of one LOAD DATA statement;
	// zero means one statement per chunk commit.
	MergeBufferBytes int64
	// SpatialOverlapDeg is the near-neighbor overlap used when the
	// partitioning metadata does not carry one.
	SpatialOverlapDeg float64
}

// SubmitResult is the synchronous response to a submit. A non-empty
// ErrorMsg means the query was rejected and nothing was started.
type SubmitResult struct {
	ErrorMsg     string
	ResultTable  string
	MessageTable string
	// OrderBy is the final ORDER BY clause, returned so the shim can
	// present rows in order without re-sorting.
	OrderBy string
}

// UserQuery tracks one submitted query from acceptance to drain.
type UserQuery struct {
	ID        uint64
	SQL       string
	ClientID  string
	SessionID uint64

	resultTable string
	msgTable    string
	exec        *scatter.Executive
	merge       *merger.InfileMerger
	msgs        *messageTable

	mu     sync.Mutex
	state  QueryState
	errMsg string
	done   chan struct{}
}

// State returns the query's current lifecycle state.
func (q *UserQuery) State() QueryState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// ErrorMsg returns the recorded failure cause, empty unless FAILED.
func (q *UserQuery) ErrorMsg() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.errMsg
}

// Done is closed once the query reaches a terminal state and its message
// table has been unlocked.
func (q *UserQuery) Done() <-chan struct{} {
	return q.done
}

func (q *UserQuery) setState(s QueryState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.Terminal() {
		return
	}
	q.state = s
}

func (q *UserQuery) setError(msg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.errMsg = msg
}

// Czar coordinates all live user queries of one front end.
type Czar struct {
	cfg       Config
	catalog   *catalog.Cache
	transport scatter.Transport
	resolver  *scatter.Resolver
	resultDB  merger.Execer
	global    *semaphore.Weighted

	mu      sync.Mutex
	queries map[uint64]*UserQuery
	nextID  uint64
}

// New builds a Czar. resolver may be nil when the transport routes by
// chunk itself.
func New(cfg Config, cat *catalog.Cache, transport scatter.Transport, resolver *scatter.Resolver,
	resultDB merger.Execer) *Czar {
	var global *semaphore.Weighted
	if cfg.MaxInFlightGlobal > 0 {
		global = semaphore.NewWeighted(int64(cfg.MaxInFlightGlobal))
	}
	return &Czar{
		cfg:       cfg,
		catalog:   cat,
		transport: transport,
		resolver:  resolver,
		resultDB:  resultDB,
		global:    global,
		queries:   make(map[uint64]*UserQuery),
	}
}

func newSessionID() uint64 {
	u := uuid.New()
	return binary.BigEndian.Uint64(u[:8])
}

// SubmitQuery plans and starts sql. Recognized hints: db, resultTable,
// msgTable, clientId. It returns as soon as dispatch has begun; the shim
// learns completion when the message table unlocks.
func (c *Czar) SubmitQuery(ctx context.Context, sql string, hints map[string]string) SubmitResult {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	db := hints["db"]
	if db == "" {
		db = c.cfg.DefaultDb
	}
	resultTable := hints["resultTable"]
	if resultTable == "" {
		resultTable = fmt.Sprintf("result_%d", id)
	}
	msgTable := hints["msgTable"]
	if msgTable == "" {
		msgTable = fmt.Sprintf("message_%d", id)
	}

	builder := planbuilder.NewBuilder(c.catalog, db)
	builder.DefaultOverlapDeg = c.cfg.SpatialOverlapDeg
	spec, err := builder.Build(ctx, sql)
	if err != nil {
		queriesRejected.Add(1)
		log.Warningf("query %d rejected: %v", id, err)
		return SubmitResult{ErrorMsg: err.Error()}
	}

	session := newSessionID()
	msgs := newMessageTable(c.resultDB, c.cfg.ResultDb, msgTable, session)
	if err := msgs.create(ctx); err != nil {
		queriesRejected.Add(1)
		return SubmitResult{ErrorMsg: fmt.Sprintf("creating message table: %v", err)}
	}

	uq := &UserQuery{
		ID:          id,
		SQL:         sql,
		ClientID:    hints["clientId"],
		SessionID:   session,
		resultTable: resultTable,
		msgTable:    msgTable,
		merge: merger.NewInfileMerger(c.resultDB, id, c.cfg.ResultDb, resultTable,
			spec.Fixup, c.cfg.MergeBufferBytes),
		msgs:        msgs,
		state:       StatePending,
		done:        make(chan struct{}),
	}
	uq.exec = scatter.NewExecutive(id, session, c.transport, c.resolver, uq.merge, c.global, scatter.Config{
		MaxAttempts:   c.cfg.MaxAttempts,
		MaxConcurrent: c.cfg.MaxInFlightPerQuery,
		RetryBackoff:  c.cfg.RetryBackoff,
		JobTimeout:    c.cfg.JobTimeout,
	})

	c.mu.Lock()
	c.queries[id] = uq
	c.mu.Unlock()

	uq.setState(StateDispatching)
	if err := uq.exec.Submit(spec); err != nil {
		uq.setError(err.Error())
		uq.setState(StateFailed)
		msgs.add(SeverityError, int(skyerrors.CodeOf(err)), err.Error())
		if cerr := msgs.complete(ctx); cerr != nil {
			log.Errorf("query %d: completing message table: %v", id, cerr)
		}
		close(uq.done)
		queriesRejected.Add(1)
		return SubmitResult{ErrorMsg: err.Error()}
	}
	uq.setState(StateExecuting)
	queriesSubmitted.Add(1)
	log.Infof("query %d submitted: %d chunks, db %s, result %s", id, len(spec.Chunks), db, resultTable)

	go c.finish(uq)
	return SubmitResult{ResultTable: resultTable, MessageTable: msgTable, OrderBy: spec.OrderBy}
}

// finish waits the scatter out, finalizes the result and releases the
// message table.
func (c *Czar) finish(uq *UserQuery) {
	ctx := context.Background()
	err := uq.exec.Join(ctx)
	if err == nil {
		uq.setState(StateMerging)
		uq.setState(StateFixup)
		err = uq.merge.Finalize(ctx)
	}

	switch {
	case err == nil:
		uq.msgs.add(SeverityInfo, 0, "COMPLETE")
		uq.setState(StateComplete)
	case skyerrors.CodeOf(err) == skyerrors.Canceled:
		uq.msgs.add(SeverityInfo, int(skyerrors.Canceled), "CANCELLED")
		uq.setState(StateCancelled)
		uq.merge.Cleanup(ctx)
	default:
		uq.setError(err.Error())
		uq.msgs.add(SeverityError, int(skyerrors.CodeOf(err)), err.Error())
		uq.setState(StateFailed)
		uq.merge.Cleanup(ctx)
	}
	if cerr := uq.msgs.complete(ctx); cerr != nil {
		log.Errorf("query %d: completing message table: %v", uq.ID, cerr)
	}
	terminalStates.Add(uq.State().String(), 1)
	log.Infof("query %d finished: %s", uq.ID, uq.State())
	close(uq.done)
}

// KillQuery cancels the query named by a "KILL N" or "KILL QUERY N"
// token. The partial merge table is dropped once the scatter drains.
func (c *Czar) KillQuery(token, clientID string) error {
	id, err := parseKillToken(token)
	if err != nil {
		return err
	}
	c.mu.Lock()
	uq, ok := c.queries[id]
	c.mu.Unlock()
	if !ok {
		return skyerrors.Errorf(skyerrors.NotFound, "no such query: %d", id)
	}
	queriesKilled.Add(1)
	log.Infof("query %d killed by client %q", id, clientID)
	uq.exec.Cancel()
	return nil
}

// Query returns the live query with the given id.
func (c *Czar) Query(id uint64) (*UserQuery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	uq, ok := c.queries[id]
	return uq, ok
}

// Release forgets a drained query. Safe to call once the client has read
// the result table.
func (c *Czar) Release(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.queries, id)
}

func parseKillToken(token string) (uint64, error) {
	fields := strings.Fields(token)
	var num string
	switch {
	case len(fields) == 2 && strings.EqualFold(fields[0], "KILL"):
		num = fields[1]
	case len(fields) == 3 && strings.EqualFold(fields[0], "KILL") && strings.EqualFold(fields[1], "QUERY"):
		num = fields[2]
	default:
		return 0, skyerrors.Errorf(skyerrors.InvalidArgument, "malformed kill token: %q", token)
	}
	id, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, skyerrors.Errorf(skyerrors.InvalidArgument, "malformed kill token: %q", token)
	}
	return id, nil
}
