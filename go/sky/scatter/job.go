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

package scatter

import (
	"sync"
)

// JobState is the lifecycle state of one chunk sub-job.
type JobState int32

// Chunk job states. Transitions only move forward; DONE, FAILED and
// CANCELLED are terminal.
const (
	StateNew JobState = iota
	StateDispatched
	StateStreaming
	StateDone
	StateFailed
	StateCancelled
)

func (s JobState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateDispatched:
		return "DISPATCHED"
	case StateStreaming:
		return "STREAMING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// JobKey identifies one attempt of one chunk sub-job. The merger uses the
// (UserQueryID, ChunkID) pair for keyed acceptance; Attempt disambiguates
// racing retries.
type JobKey struct {
	UserQueryID uint64
	ChunkID     int32
	Attempt     uint32
}

// ChunkJob is one per-chunk sub-job, owned by its Executive.
type ChunkJob struct {
	ChunkID int32
	// SQL holds the substituted statements to run against the chunk. Sub-
	// chunked plans carry one statement per (template, sub-chunk) pair.
	SQL []string

	mu      sync.Mutex
	state   JobState
	attempt uint32
	lastErr error
}

// State returns the job's current state.
func (j *ChunkJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Attempt returns the current attempt number, starting at 1 once
// dispatched.
func (j *ChunkJob) Attempt() uint32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempt
}

// Err returns the last error observed by the job.
func (j *ChunkJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastErr
}

func (j *ChunkJob) startAttempt() uint32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempt++
	j.state = StateDispatched
	return j.attempt
}

func (j *ChunkJob) setState(s JobState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	j.state = s
}

func (j *ChunkJob) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastErr = err
	if !j.state.Terminal() {
		j.state = StateFailed
	}
}
