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

import (
	"strings"
	"sync"
)

// Aggregate reduces a list of errors to a single error. The first
// non-retryable error wins; when every error is retryable the result keeps
// the Unavailable code so callers may still retry the whole operation.
func Aggregate(errs []error) error {
	errs = withoutNil(errs)
	if len(errs) == 0 {
		return nil
	}
	cause := errs[0]
	for _, err := range errs {
		if !CodeOf(err).Retryable() {
			cause = err
			break
		}
	}
	if len(errs) == 1 {
		return cause
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return Errorf(CodeOf(cause), "%v", strings.Join(msgs, "\n"))
}

func withoutNil(in []error) []error {
	out := in[:0:len(in)]
	for _, err := range in {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// Recorder collects errors from concurrent operations. The zero value is
// ready to use.
type Recorder struct {
	mu   sync.Mutex
	errs []error
}

// RecordError records an error if it is not nil.
func (rec *Recorder) RecordError(err error) {
	if err == nil {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.errs = append(rec.errs, err)
}

// HasErrors reports whether any error was recorded.
func (rec *Recorder) HasErrors() bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.errs) > 0
}

// Error returns the aggregate of all recorded errors, or nil.
func (rec *Recorder) Error() error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return Aggregate(rec.errs)
}
