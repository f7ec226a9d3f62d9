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

// Package catalog maintains the czar's view of databases, tables and their
// partitioning parameters.
//
// Metadata lives in an external key/value store under a fixed hierarchy:
//
//	<root>/DBS/<db>                  JSON: {"partitioningId": "..."}
//	<root>/DBS/<db>/TABLES/<table>   JSON: table descriptor (see tableJSON)
//	<root>/PARTITIONING/<id>         JSON: StripingParams
//
// The Cache performs a two-level lookup: an in-memory pool first, then the
// store. Lookup failures are reported to the caller and never cached.
package catalog

import (
	"context"

	"skyserv.io/skyserv/go/sky/skyerrors"
)

// Key hierarchy below the store root.
const (
	dbsPrefix          = "/DBS"
	tablesComponent    = "/TABLES"
	partitioningPrefix = "/PARTITIONING"
)

// Store is a read-only key/value hierarchy holding catalog metadata.
// Implementations: ZKStore (ZooKeeper) and MemStore (tests).
type Store interface {
	// Get returns the contents of the node at key. A missing node is a
	// NotFound error.
	Get(ctx context.Context, key string) ([]byte, error)
	// Children lists the child node names of key, sorted.
	Children(ctx context.Context, key string) ([]string, error)
	// Exists reports whether the node at key exists.
	Exists(ctx context.Context, key string) (bool, error)
	// Close releases the backing connection.
	Close()
}

// IsNotFound reports whether err means a missing store key.
func IsNotFound(err error) bool {
	return skyerrors.CodeOf(err) == skyerrors.NotFound
}
