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
	"path"
	"sort"
	"time"

	"context"

	"github.com/z-division/go-zookeeper/zk"

	"skyserv.io/skyserv/go/sky/log"
	"skyserv.io/skyserv/go/sky/skyerrors"
)

// zkSessionTimeout is the ZooKeeper session timeout. Metadata reads are
// small; a short session keeps failover fast.
const zkSessionTimeout = 10 * time.Second

// ZKStore is the ZooKeeper-backed Store.
type ZKStore struct {
	conn *zk.Conn
	root string
}

// NewZKStore connects to the given ensemble and roots all keys at root.
func NewZKStore(servers []string, root string) (*ZKStore, error) {
	conn, events, err := zk.Connect(servers, zkSessionTimeout)
	if err != nil {
		return nil, convertZkError(err)
	}
	go func() {
		for e := range events {
			if e.State == zk.StateDisconnected {
				log.Warningf("catalog: zookeeper disconnected: %v", e)
			}
		}
	}()
	return &ZKStore{conn: conn, root: root}, nil
}

// Get is part of the Store interface.
func (s *ZKStore) Get(ctx context.Context, key string) ([]byte, error) {
	contents, _, err := s.conn.Get(path.Join(s.root, key))
	if err != nil {
		return nil, convertZkError(err)
	}
	return contents, nil
}

// Children is part of the Store interface.
func (s *ZKStore) Children(ctx context.Context, key string) ([]string, error) {
	children, _, err := s.conn.Children(path.Join(s.root, key))
	if err != nil {
		return nil, convertZkError(err)
	}
	sort.Strings(children)
	return children, nil
}

// Exists is part of the Store interface.
func (s *ZKStore) Exists(ctx context.Context, key string) (bool, error) {
	exists, _, err := s.conn.Exists(path.Join(s.root, key))
	if err != nil {
		return false, convertZkError(err)
	}
	return exists, nil
}

// Close is part of the Store interface.
func (s *ZKStore) Close() {
	s.conn.Close()
}

// convertZkError maps a zookeeper error to a coded error.
func convertZkError(err error) error {
	switch err {
	case nil:
		return nil
	case zk.ErrNoNode:
		return skyerrors.Wrap(skyerrors.New(skyerrors.NotFound, "node doesn't exist"), "zookeeper")
	case zk.ErrNoServer, zk.ErrConnectionClosed, zk.ErrSessionExpired:
		return skyerrors.Wrap(skyerrors.New(skyerrors.Unavailable, err.Error()), "zookeeper")
	}
	return skyerrors.Wrap(err, "zookeeper")
}
