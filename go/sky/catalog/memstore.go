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

package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"skyserv.io/skyserv/go/sky/skyerrors"
)

// MemStore is an in-memory Store used by tests and by the local single
// process setup.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[string][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{nodes: make(map[string][]byte)}
}

// Put creates or replaces a node.
func (ms *MemStore) Put(key string, contents []byte) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.nodes[key] = contents
}

// Get is part of the Store interface.
func (ms *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	contents, ok := ms.nodes[key]
	if !ok {
		return nil, skyerrors.Errorf(skyerrors.NotFound, "node %q does not exist", key)
	}
	return contents, nil
}

// Children is part of the Store interface.
func (ms *MemStore) Children(ctx context.Context, key string) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	prefix := key + "/"
	seen := make(map[string]bool)
	for k := range ms.nodes {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		seen[rest] = true
	}
	children := make([]string, 0, len(seen))
	for name := range seen {
		children = append(children, name)
	}
	sort.Strings(children)
	return children, nil
}

// Exists is part of the Store interface.
func (ms *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, ok := ms.nodes[key]
	return ok, nil
}

// Close is part of the Store interface.
func (ms *MemStore) Close() {}
