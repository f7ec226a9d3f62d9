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

package skyerrors

// Code classifies an error for retry and reporting policy. The codes follow
// the canonical RPC set, restricted to what the czar actually distinguishes.
type Code int

const (
	// OK means no error.
	OK Code = iota

	// Canceled is returned after a cooperative cancellation. It is never
	// surfaced to the client as a failure.
	Canceled

	// InvalidArgument covers malformed SQL and bad client input.
	InvalidArgument

	// NotFound covers unknown databases and tables.
	NotFound

	// FailedPrecondition covers invalid catalog metadata.
	FailedPrecondition

	// ResourceExhausted covers the result database running out of room
	// (mysql "table is full").
	ResourceExhausted

	// Unavailable covers transient transport failures: connection loss,
	// worker restart, per-job timeout. Only this code is retried.
	Unavailable

	// Internal covers fatal merger and worker failures.
	Internal

	// DataLoss covers result-stream corruption: md5 or size mismatch,
	// schema disagreement between chunks.
	DataLoss

	// Unimplemented covers queries the rewriter does not support.
	Unimplemented
)

var codeNames = map[Code]string{
	OK:                 "ok",
	Canceled:           "canceled",
	InvalidArgument:    "invalid argument",
	NotFound:           "not found",
	FailedPrecondition: "failed precondition",
	ResourceExhausted:  "resource exhausted",
	Unavailable:        "unavailable",
	Internal:           "internal",
	DataLoss:           "data loss",
	Unimplemented:      "unimplemented",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

// Retryable reports whether an error with this code may be retried.
// Corruption is deliberately not retryable: it is not a transport issue.
func (c Code) Retryable() bool {
	return c == Unavailable
}
