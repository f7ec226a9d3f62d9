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
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "no error"))
	assert.NoError(t, Wrapf(nil, "no error %d", 1))
}

func TestWrapKeepsCode(t *testing.T) {
	tests := []struct {
		err         error
		message     string
		wantMessage string
		wantCode    Code
	}{
		{io.EOF, "read error", "read error: EOF", Internal},
		{New(Unavailable, "worker gone"), "dispatch", "dispatch: worker gone", Unavailable},
		{Wrap(New(DataLoss, "md5 mismatch"), "frame 3"), "job 12", "job 12: frame 3: md5 mismatch", DataLoss},
	}
	for _, tt := range tests {
		got := Wrap(tt.err, tt.message)
		assert.Equal(t, tt.wantMessage, got.Error())
		assert.Equal(t, tt.wantCode, CodeOf(got))
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, Internal, CodeOf(io.EOF))
	assert.Equal(t, Canceled, CodeOf(New(Canceled, "killed")))
}

func TestRootCause(t *testing.T) {
	assert.Equal(t, io.EOF, RootCause(Wrap(Wrap(io.EOF, "inner"), "outer")))
	assert.Equal(t, io.EOF, RootCause(io.EOF))
	assert.NoError(t, RootCause(nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Unavailable.Retryable())
	for _, c := range []Code{OK, Canceled, InvalidArgument, NotFound, FailedPrecondition, ResourceExhausted, Internal, DataLoss, Unimplemented} {
		assert.False(t, c.Retryable(), c.String())
	}
}

func TestAggregate(t *testing.T) {
	assert.NoError(t, Aggregate(nil))
	assert.NoError(t, Aggregate([]error{nil, nil}))

	// A lone retryable error stays retryable.
	err := Aggregate([]error{New(Unavailable, "timeout")})
	assert.Equal(t, Unavailable, CodeOf(err))

	// The first permanent error decides the code.
	err = Aggregate([]error{
		New(Unavailable, "timeout"),
		New(DataLoss, "md5 mismatch"),
		New(Internal, "load failed"),
	})
	require.Error(t, err)
	assert.Equal(t, DataLoss, CodeOf(err))
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "md5 mismatch")
}

func TestRecorder(t *testing.T) {
	var rec Recorder
	assert.False(t, rec.HasErrors())
	rec.RecordError(nil)
	assert.False(t, rec.HasErrors())
	rec.RecordError(New(Unavailable, "a"))
	rec.RecordError(New(Internal, "b"))
	assert.True(t, rec.HasErrors())
	assert.Equal(t, Internal, CodeOf(rec.Error()))
}
