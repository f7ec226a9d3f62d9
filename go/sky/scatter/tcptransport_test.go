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
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyserv.io/skyserv/go/sky/skyerrors"
	"skyserv.io/skyserv/go/sky/wire"
)

// fakeWorker accepts one connection, echoes the request's identity back in
// a single schema frame and closes.
func fakeWorker(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req WorkerRequest
		if json.NewDecoder(conn).Decode(&req) != nil {
			return
		}
		batch := &wire.RowBatch{
			Schema: wire.Schema{{Name: "objectId", Type: "BIGINT"}},
			Rows:   []wire.Row{{[]byte("17")}},
		}
		frame := wire.EncodeFrame(wire.Header{
			Flags:       wire.FlagSchema | wire.FlagEndOfStream,
			UserQueryID: req.UserQueryID,
			ChunkID:     uint32(req.ChunkID),
			Attempt:     req.Attempt,
			SessionID:   req.SessionID,
		}, batch.EncodePayload(true))
		conn.Write(frame)
	}()
	return l
}

func TestDialTransport(t *testing.T) {
	l := fakeWorker(t)
	defer l.Close()

	tr := NewDialTransport(time.Second)
	req := &WorkerRequest{
		UserQueryID: 42,
		ChunkID:     324,
		Attempt:     1,
		SessionID:   7,
		Worker:      l.Addr().String(),
		SQL:         []string{"select objectId from LSST.Object_324"},
	}
	var frames [][]byte
	err := tr.StreamExecute(context.Background(), req, func(frame []byte) error {
		frames = append(frames, append([]byte(nil), frame...))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	h, payload, err := wire.DecodeFrame(frames[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h.UserQueryID)
	assert.Equal(t, uint32(324), h.ChunkID)
	assert.True(t, h.EndOfStream())

	batch, err := wire.DecodePayload(payload, true, nil)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, wire.Row{[]byte("17")}, batch.Rows[0])
}

func TestDialTransportRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	tr := NewDialTransport(100 * time.Millisecond)
	err = tr.StreamExecute(context.Background(), &WorkerRequest{ChunkID: 1, Worker: addr},
		func([]byte) error { return nil })
	require.Error(t, err)
	assert.Equal(t, skyerrors.Unavailable, skyerrors.CodeOf(err))
}

func TestDialTransportNoWorker(t *testing.T) {
	tr := NewDialTransport(time.Second)
	err := tr.StreamExecute(context.Background(), &WorkerRequest{ChunkID: 1},
		func([]byte) error { return nil })
	assert.Equal(t, skyerrors.FailedPrecondition, skyerrors.CodeOf(err))
}
