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
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"time"

	"skyserv.io/skyserv/go/sky/skyerrors"
	"skyserv.io/skyserv/go/sky/wire"
)

// DialTransport speaks the worker protocol over plain TCP: one connection
// per sub-job, the request as a JSON line, then result frames until the
// worker closes the stream. Connection-level failures surface as
// Unavailable so the executive retries them on a fresh placement.
type DialTransport struct {
	dialer net.Dialer
}

// NewDialTransport returns a transport with the given connect timeout.
func NewDialTransport(connectTimeout time.Duration) *DialTransport {
	return &DialTransport{dialer: net.Dialer{Timeout: connectTimeout}}
}

// StreamExecute implements Transport.
func (t *DialTransport) StreamExecute(ctx context.Context, req *WorkerRequest, send func(frame []byte) error) error {
	if req.Worker == "" {
		return skyerrors.Errorf(skyerrors.FailedPrecondition,
			"chunk %d has no resolved worker", req.ChunkID)
	}
	conn, err := t.dialer.DialContext(ctx, "tcp", req.Worker)
	if err != nil {
		return skyerrors.Errorf(skyerrors.Unavailable, "dial %s: %v", req.Worker, err)
	}
	defer conn.Close()
	// Kill blocked reads and writes when the attempt is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return t.streamErr(ctx, req, err)
	}
	r := bufio.NewReader(conn)
	for {
		frame, err := wire.ReadFrame(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return t.streamErr(ctx, req, err)
		}
		if err := send(frame); err != nil {
			return err
		}
	}
}

// streamErr classifies a failed read or write: cancellation wins, frame
// corruption stays DataLoss, everything else is a transport fault.
func (t *DialTransport) streamErr(ctx context.Context, req *WorkerRequest, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if skyerrors.CodeOf(err) == skyerrors.DataLoss {
		return err
	}
	return skyerrors.Errorf(skyerrors.Unavailable, "worker %s stream: %v", req.Worker, err)
}
