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
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// WorkerRequest is one dispatched sub-job request.
type WorkerRequest struct {
	UserQueryID uint64
	ChunkID     int32
	Attempt     uint32
	SessionID   uint64
	// Worker is the resolved endpoint, empty when the transport routes by
	// chunk itself.
	Worker string
	SQL    []string
}

// Transport delivers a sub-job to the worker owning its chunk and streams
// result frames back through send. StreamExecute returns after the final
// frame has been delivered or the stream failed; send must not be called
// after it returns. A send error aborts the stream.
type Transport interface {
	StreamExecute(ctx context.Context, req *WorkerRequest, send func(frame []byte) error) error
}

// ResolveFunc looks up the worker endpoint owning a chunk.
type ResolveFunc func(ctx context.Context, chunkID int32) (string, error)

// Resolver caches chunk-to-worker lookups. Chunk placement changes rarely,
// so entries live for a TTL and failures are never cached.
type Resolver struct {
	lookup ResolveFunc
	cache  *cache.Cache
}

// NewResolver wraps lookup with a TTL cache.
func NewResolver(lookup ResolveFunc, ttl time.Duration) *Resolver {
	return &Resolver{
		lookup: lookup,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// Resolve returns the worker endpoint owning chunkID.
func (r *Resolver) Resolve(ctx context.Context, chunkID int32) (string, error) {
	key := strconv.FormatInt(int64(chunkID), 10)
	if worker, ok := r.cache.Get(key); ok {
		resolverHits.Add(1)
		return worker.(string), nil
	}
	resolverMisses.Add(1)
	worker, err := r.lookup(ctx, chunkID)
	if err != nil {
		return "", err
	}
	r.cache.Set(key, worker, cache.DefaultExpiration)
	return worker, nil
}

// Invalidate drops a cached placement, typically after a dispatch to the
// cached worker failed.
func (r *Resolver) Invalidate(chunkID int32) {
	r.cache.Delete(strconv.FormatInt(int64(chunkID), 10))
}
