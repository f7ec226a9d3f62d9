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

// Package scatter dispatches a user query's chunk sub-jobs to workers and
// streams their results back to the merger. Each user query owns one
// Executive; the Executive owns its ChunkJobs exclusively.
package scatter

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"golang.org/x/sync/semaphore"

	"skyserv.io/skyserv/go/sky/log"
	"skyserv.io/skyserv/go/sky/planbuilder"
	"skyserv.io/skyserv/go/sky/skyerrors"
	"skyserv.io/skyserv/go/sky/sqlparser"
	"skyserv.io/skyserv/go/sky/stats"
	"skyserv.io/skyserv/go/sky/wire"
)

var (
	jobsDispatched = stats.NewCounter("ScatterJobsDispatched", "Chunk sub-jobs handed to the transport")
	jobsRetried    = stats.NewCounter("ScatterJobsRetried", "Chunk sub-job retry attempts")
	jobsFailed     = stats.NewCounter("ScatterJobsFailed", "Chunk sub-jobs that exhausted retries")
	framesDropped  = stats.NewCounter("ScatterFramesDropped", "Result frames dropped as stale or duplicate")
	resolverHits   = stats.NewCounter("ScatterResolverHits", "Chunk placement cache hits")
	resolverMisses = stats.NewCounter("ScatterResolverMisses", "Chunk placement cache misses")
)

// Sink consumes decoded row batches. The merger implements it; acceptance
// is keyed by (UserQueryID, ChunkID) so a retried job contributes at most
// once. Merged rows stay invisible until Commit; rows of an attempt that
// never commits are discarded.
type Sink interface {
	Merge(ctx context.Context, key JobKey, batch *wire.RowBatch) error
	Commit(ctx context.Context, key JobKey) error
}

// Config bounds one Executive.
type Config struct {
	// MaxAttempts is the attempt cap per chunk job, including the first.
	MaxAttempts int
	// MaxConcurrent bounds in-flight sub-jobs of this query.
	MaxConcurrent int
	// RetryBackoff is the base of the exponential retry backoff.
	RetryBackoff time.Duration
	// JobTimeout bounds one attempt end to end.
	JobTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 10 * time.Minute
	}
	return c
}

// Executive coordinates the chunk sub-jobs of one user query.
type Executive struct {
	userQueryID uint64
	sessionID   uint64
	transport   Transport
	resolver    *Resolver
	sink        Sink
	// global bounds in-flight sub-jobs across all queries; nil means
	// unbounded.
	global *semaphore.Weighted
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	cond      *sync.Cond
	jobs      []*ChunkJob
	pending   deque.Deque[*ChunkJob]
	terminal  int
	firstErr  error
	cancelled bool
	submitted bool
	wg        sync.WaitGroup
}

// NewExecutive builds the Executive for one user query. resolver and
// global may be nil.
func NewExecutive(userQueryID, sessionID uint64, transport Transport, resolver *Resolver,
	sink Sink, global *semaphore.Weighted, cfg Config) *Executive {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executive{
		userQueryID: userQueryID,
		sessionID:   sessionID,
		transport:   transport,
		resolver:    resolver,
		sink:        sink,
		global:      global,
		cfg:         cfg.withDefaults(),
		ctx:         ctx,
		cancel:      cancel,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Submit builds one job per chunk of the spec and begins dispatching.
// It returns immediately; Join waits for the outcome.
func (e *Executive) Submit(spec *planbuilder.ChunkQuerySpec) error {
	e.mu.Lock()
	if e.submitted {
		e.mu.Unlock()
		return skyerrors.New(skyerrors.FailedPrecondition, "executive already submitted")
	}
	e.submitted = true
	e.mu.Unlock()

	jobs, err := buildJobs(spec)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.jobs = jobs
	for _, job := range jobs {
		e.pending.PushBack(job)
	}
	workers := e.cfg.MaxConcurrent
	if workers > len(jobs) {
		workers = len(jobs)
	}
	e.mu.Unlock()

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.dispatchLoop()
	}
	return nil
}

// buildJobs substitutes every (chunk, subchunk, template) combination.
func buildJobs(spec *planbuilder.ChunkQuerySpec) ([]*ChunkJob, error) {
	jobs := make([]*ChunkJob, 0, len(spec.Chunks))
	for _, cs := range spec.Chunks {
		var stmts []string
		for _, tmpl := range spec.Templates {
			if spec.SubChunked && tmpl.HasSubChunk() {
				for _, sub := range cs.SubChunks {
					sql, err := tmpl.Generate(sqlparser.Substitutions{
						Db:          spec.Db,
						Chunk:       cs.ChunkID,
						SubChunk:    sub,
						HasSubChunk: true,
					})
					if err != nil {
						return nil, err
					}
					stmts = append(stmts, sql)
				}
				continue
			}
			sql, err := tmpl.Generate(sqlparser.Substitutions{Db: spec.Db, Chunk: cs.ChunkID})
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, sql)
		}
		jobs = append(jobs, &ChunkJob{ChunkID: cs.ChunkID, SQL: stmts})
	}
	return jobs, nil
}

// dispatchLoop pops pending jobs until the queue drains or the query is
// cancelled.
func (e *Executive) dispatchLoop() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		if e.pending.Len() == 0 {
			e.mu.Unlock()
			return
		}
		job := e.pending.PopFront()
		skip := e.cancelled || e.firstErr != nil
		e.mu.Unlock()

		if skip {
			job.setState(StateCancelled)
			e.jobTerminated()
			continue
		}
		e.runJob(job)
		e.jobTerminated()
	}
}

func (e *Executive) jobTerminated() {
	e.mu.Lock()
	e.terminal++
	e.cond.Broadcast()
	e.mu.Unlock()
}

// runJob drives one job through its attempts. Only Unavailable errors are
// retried; the first permanent error latches and cancels the remaining
// jobs.
func (e *Executive) runJob(job *ChunkJob) {
	if e.global != nil {
		if err := e.global.Acquire(e.ctx, 1); err != nil {
			job.setState(StateCancelled)
			return
		}
		defer e.global.Release(1)
	}
	for {
		attempt := job.startAttempt()
		jobsDispatched.Add(1)
		err := e.streamAttempt(job, attempt)
		if err == nil {
			job.setState(StateDone)
			return
		}
		if e.ctx.Err() != nil {
			job.setState(StateCancelled)
			return
		}
		code := skyerrors.CodeOf(err)
		if code.Retryable() && int(attempt) < e.cfg.MaxAttempts {
			jobsRetried.Add(1)
			if e.resolver != nil {
				e.resolver.Invalidate(job.ChunkID)
			}
			log.Warningf("chunk %d attempt %d failed, retrying: %v", job.ChunkID, attempt, err)
			if !e.backoff(attempt) {
				job.setState(StateCancelled)
				return
			}
			continue
		}
		jobsFailed.Add(1)
		log.Errorf("chunk %d failed permanently after %d attempts: %v", job.ChunkID, attempt, err)
		job.fail(err)
		e.latch(err)
		return
	}
}

// backoff sleeps the exponential delay for the given attempt. Returns
// false when the query was cancelled while waiting.
func (e *Executive) backoff(attempt uint32) bool {
	delay := e.cfg.RetryBackoff << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// latch records the first permanent error and aborts the remaining work.
func (e *Executive) latch(err error) {
	e.mu.Lock()
	if e.firstErr == nil {
		e.firstErr = err
	}
	e.mu.Unlock()
	e.cancel()
}

// Cancel aborts the query: in-flight streams are torn down and pending
// jobs are skipped.
func (e *Executive) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()
	e.cancel()
}

// Join blocks until every job reaches a terminal state, then reports the
// outcome: nil on success, the latched error on failure, Canceled after
// Cancel.
func (e *Executive) Join(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer stop()

	e.mu.Lock()
	for e.terminal < len(e.jobs) && ctx.Err() == nil {
		e.cond.Wait()
	}
	firstErr, cancelled := e.firstErr, e.cancelled
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return skyerrors.Wrap(err, "waiting for chunk jobs")
	}
	e.wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	if cancelled {
		return skyerrors.New(skyerrors.Canceled, "user query cancelled")
	}
	return nil
}

// Jobs returns the query's jobs for inspection.
func (e *Executive) Jobs() []*ChunkJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jobs
}

// Progress returns terminal and total job counts.
func (e *Executive) Progress() (terminal, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal, len(e.jobs)
}
