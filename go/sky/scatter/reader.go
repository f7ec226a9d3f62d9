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

	"skyserv.io/skyserv/go/sky/skyerrors"
	"skyserv.io/skyserv/go/sky/wire"
)

// frameBacklog bounds the frames buffered per job between the transport
// and the merger. A slow merge stalls the stream instead of growing
// memory.
const frameBacklog = 4

// streamAttempt runs one attempt of a job: dispatch, stream, decode,
// forward to the sink. It returns nil only for a complete, valid stream.
func (e *Executive) streamAttempt(job *ChunkJob, attempt uint32) error {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.JobTimeout)
	defer cancel()

	req := &WorkerRequest{
		UserQueryID: e.userQueryID,
		ChunkID:     job.ChunkID,
		Attempt:     attempt,
		SessionID:   e.sessionID,
		SQL:         job.SQL,
	}
	if e.resolver != nil {
		worker, err := e.resolver.Resolve(ctx, job.ChunkID)
		if err != nil {
			return err
		}
		req.Worker = worker
	}

	frames := make(chan []byte, frameBacklog)
	var consumeErr error
	var sawEOS bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		sawEOS, consumeErr = e.consumeFrames(ctx, job, attempt, frames)
		if consumeErr != nil {
			// Tear the stream down; the transport sees the context die.
			cancel()
		}
	}()

	transportErr := e.transport.StreamExecute(ctx, req, func(frame []byte) error {
		// The transport may reuse the frame buffer after send returns.
		buf := append([]byte(nil), frame...)
		select {
		case frames <- buf:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	close(frames)
	<-done

	// A decode or merge failure explains any transport abort it caused.
	if consumeErr != nil {
		return consumeErr
	}
	// An attempt timeout is a transport fault: the worker is presumed
	// dead and the job retried on a fresh placement.
	if ctx.Err() == context.DeadlineExceeded && e.ctx.Err() == nil {
		return skyerrors.Errorf(skyerrors.Unavailable,
			"chunk %d attempt timed out after %v", job.ChunkID, e.cfg.JobTimeout)
	}
	if transportErr != nil {
		return transportErr
	}
	if !sawEOS {
		return skyerrors.Errorf(skyerrors.DataLoss,
			"chunk %d stream ended without end-of-stream frame", job.ChunkID)
	}
	return nil
}

// consumeFrames validates and decodes the frame stream, forwarding row
// batches to the sink. Frames from other attempts of the same job are
// dropped: at most one attempt contributes rows.
func (e *Executive) consumeFrames(ctx context.Context, job *ChunkJob, attempt uint32,
	frames <-chan []byte) (bool, error) {
	var schema wire.Schema
	sawEOS := false
	for frame := range frames {
		if sawEOS {
			return true, skyerrors.Errorf(skyerrors.DataLoss,
				"chunk %d sent a frame after end of stream", job.ChunkID)
		}
		h, payload, err := wire.DecodeFrame(frame)
		if err != nil {
			return false, err
		}
		if h.UserQueryID != e.userQueryID || int32(h.ChunkID) != job.ChunkID {
			return false, skyerrors.Errorf(skyerrors.DataLoss,
				"frame for query %d chunk %d on stream of query %d chunk %d",
				h.UserQueryID, h.ChunkID, e.userQueryID, job.ChunkID)
		}
		if h.Attempt != attempt {
			framesDropped.Add(1)
			continue
		}
		if schema == nil && !h.HasSchema() {
			return false, skyerrors.Errorf(skyerrors.DataLoss,
				"chunk %d first frame carries no schema", job.ChunkID)
		}
		job.setState(StateStreaming)

		batch, err := wire.DecodePayload(payload, h.HasSchema(), schema)
		if err != nil {
			return false, err
		}
		if schema == nil {
			schema = batch.Schema
		} else if h.HasSchema() && !schema.Equal(batch.Schema) {
			return false, skyerrors.Errorf(skyerrors.DataLoss,
				"chunk %d changed its schema mid-stream", job.ChunkID)
		}

		key := JobKey{UserQueryID: e.userQueryID, ChunkID: job.ChunkID, Attempt: attempt}
		if err := e.sink.Merge(ctx, key, batch); err != nil {
			return false, err
		}
		if h.EndOfStream() {
			if err := e.sink.Commit(ctx, key); err != nil {
				return false, err
			}
			sawEOS = true
		}
	}
	return sawEOS, nil
}
