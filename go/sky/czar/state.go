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

// QueryState is the lifecycle state of one user query.
type QueryState int32

// User query states. Transitions only move forward; COMPLETE, FAILED and
// CANCELLED are terminal.
const (
	StatePending QueryState = iota
	StateDispatching
	StateExecuting
	StateMerging
	StateFixup
	StateComplete
	StateFailed
	StateCancelled
)

func (s QueryState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateDispatching:
		return "DISPATCHING"
	case StateExecuting:
		return "EXECUTING"
	case StateMerging:
		return "MERGING"
	case StateFixup:
		return "FIXUP"
	case StateComplete:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// Terminal reports whether the state is final.
func (s QueryState) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}
