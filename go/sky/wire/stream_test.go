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

package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyserv.io/skyserv/go/sky/skyerrors"
)

func TestReadFrameRoundTrip(t *testing.T) {
	first := EncodeFrame(Header{Flags: FlagSchema, UserQueryID: 7, ChunkID: 324, Attempt: 1},
		[]byte("payload one"))
	second := EncodeFrame(Header{Flags: FlagEndOfStream, UserQueryID: 7, ChunkID: 324, Attempt: 1},
		[]byte("payload two"))
	r := bytes.NewReader(append(append([]byte(nil), first...), second...))

	got, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, first, got)
	h, payload, err := DecodeFrame(got)
	require.NoError(t, err)
	assert.True(t, h.HasSchema())
	assert.Equal(t, []byte("payload one"), payload)

	got, err = ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	// Clean boundary: plain EOF.
	_, err = ReadFrame(r)
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameEmptyPayload(t *testing.T) {
	frame := EncodeFrame(Header{Flags: FlagSchema | FlagEndOfStream, UserQueryID: 7}, nil)
	got, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestReadFrameTruncated(t *testing.T) {
	frame := EncodeFrame(Header{UserQueryID: 7}, []byte("payload"))

	for _, cut := range []int{2, 10, len(frame) - 1} {
		_, err := ReadFrame(bytes.NewReader(frame[:cut]))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF, "cut at %d", cut)
	}
}

func TestReadFrameBadPrefix(t *testing.T) {
	data := make([]byte, 8)
	writeUint32(data, 0, 9999)
	_, err := ReadFrame(bytes.NewReader(data))
	require.Error(t, err)
	assert.Equal(t, skyerrors.DataLoss, skyerrors.CodeOf(err))
}
