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
	"encoding/json"
	"sync"

	"skyserv.io/skyserv/go/sky/skyerrors"
	"skyserv.io/skyserv/go/sky/stats"
)

var (
	cacheHits   = stats.NewCounter("CatalogCacheHits", "catalog pool lookups served from memory")
	cacheMisses = stats.NewCounter("CatalogCacheMisses", "catalog pool lookups that went to the store")
)

// tableJSON is the stored descriptor of one table.
type tableJSON struct {
	Kind string `json:"kind"` // director, child, match or plain

	// director
	KeyCol     string  `json:"keyCol,omitempty"`
	LonCol     string  `json:"lonCol,omitempty"`
	LatCol     string  `json:"latCol,omitempty"`
	ChunkLevel int     `json:"chunkLevel,omitempty"`
	SubChunks  bool    `json:"subChunks,omitempty"`
	Overlap    float64 `json:"overlap,omitempty"`

	// child
	DirTable string `json:"director,omitempty"`
	FKCol    string `json:"fk,omitempty"`

	// match
	Dir1 string `json:"dir1,omitempty"`
	FK1  string `json:"fk1,omitempty"`
	Dir2 string `json:"dir2,omitempty"`
	FK2  string `json:"fk2,omitempty"`
}

type dbJSON struct {
	PartitioningID string `json:"partitioningId"`
}

type tableKey struct {
	db, table string
}

// Cache is the process-wide (db, table) → TableInfo mapping. Entries are
// materialized lazily from the backing store and inserted under a mutex.
// Directors are always inserted before any dependent child or match entry.
type Cache struct {
	store Store

	mu       sync.RWMutex
	pool     map[tableKey]TableInfo
	striping map[string]*StripingParams
}

// NewCache returns a Cache over the given store.
func NewCache(store Store) *Cache {
	return &Cache{
		store:    store,
		pool:     make(map[tableKey]TableInfo),
		striping: make(map[string]*StripingParams),
	}
}

// TableInfo resolves metadata for db.table. Misses go to the store; the
// materialized entry is validated before insertion. UnknownTable and
// InvalidMetadata failures are returned to the caller and never cached.
func (c *Cache) TableInfo(ctx context.Context, db, table string) (TableInfo, error) {
	key := tableKey{db, table}

	c.mu.RLock()
	info, ok := c.pool[key]
	c.mu.RUnlock()
	if ok {
		cacheHits.Add(1)
		return info, nil
	}
	cacheMisses.Add(1)

	info, err := c.materialize(ctx, db, table, 0)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	// A concurrent materialization may have won; keep the first entry so
	// shared references stay stable.
	if existing, ok := c.pool[key]; ok {
		info = existing
	} else {
		c.pool[key] = info
	}
	c.mu.Unlock()
	return info, nil
}

// DbStriping returns the striping parameters of a database, or an error if
// the database is not partitioned.
func (c *Cache) DbStriping(ctx context.Context, db string) (StripingParams, error) {
	var descr dbJSON
	if err := c.getJSON(ctx, dbsPrefix+"/"+db, &descr); err != nil {
		if IsNotFound(err) {
			return StripingParams{}, skyerrors.Errorf(skyerrors.NotFound, "unknown database %q", db)
		}
		return StripingParams{}, err
	}
	if descr.PartitioningID == "" {
		return StripingParams{}, skyerrors.Errorf(skyerrors.FailedPrecondition, "database %q is not partitioned", db)
	}
	p, err := c.stripingParams(ctx, descr.PartitioningID)
	if err != nil {
		return StripingParams{}, err
	}
	return *p, nil
}

// Tables lists the tables of a database known to the store.
func (c *Cache) Tables(ctx context.Context, db string) ([]string, error) {
	return c.store.Children(ctx, dbsPrefix+"/"+db+tablesComponent)
}

// maxDirectorDepth bounds recursion while resolving directors so cyclic
// store contents cannot wedge the cache.
const maxDirectorDepth = 2

func (c *Cache) materialize(ctx context.Context, db, table string, depth int) (TableInfo, error) {
	if depth > maxDirectorDepth {
		return nil, skyerrors.Errorf(skyerrors.FailedPrecondition,
			"table %s.%s: director chain too deep", db, table)
	}

	var descr tableJSON
	err := c.getJSON(ctx, dbsPrefix+"/"+db+tablesComponent+"/"+table, &descr)
	if err != nil {
		if IsNotFound(err) {
			return nil, skyerrors.Errorf(skyerrors.NotFound, "unknown table %s.%s", db, table)
		}
		return nil, err
	}

	switch descr.Kind {
	case "plain", "":
		return &PlainTableInfo{DbName: db, TableName: table}, nil

	case "director":
		striping, err := c.dbStripingRef(ctx, db)
		if err != nil {
			return nil, err
		}
		info := &DirTableInfo{
			DbName:     db,
			TableName:  table,
			KeyCol:     descr.KeyCol,
			LonCol:     descr.LonCol,
			LatCol:     descr.LatCol,
			ChunkLevel: descr.ChunkLevel,
			SubChunks:  descr.SubChunks,
			OverlapDeg: descr.Overlap,
			Striping:   *striping,
		}
		if info.ChunkLevel == 0 {
			info.ChunkLevel = 1
		}
		if err := info.validate(); err != nil {
			return nil, err
		}
		return info, nil

	case "child":
		dir, err := c.director(ctx, db, descr.DirTable, depth)
		if err != nil {
			return nil, err
		}
		info := &ChildTableInfo{
			DbName:     db,
			TableName:  table,
			FKCol:      descr.FKCol,
			ChunkLevel: descr.ChunkLevel,
			Dir:        dir,
		}
		if info.ChunkLevel == 0 {
			info.ChunkLevel = dir.ChunkLevel
		}
		if err := info.validate(); err != nil {
			return nil, err
		}
		return info, nil

	case "match":
		dir1, err := c.director(ctx, db, descr.Dir1, depth)
		if err != nil {
			return nil, err
		}
		dir2, err := c.director(ctx, db, descr.Dir2, depth)
		if err != nil {
			return nil, err
		}
		info := &MatchTableInfo{
			DbName:    db,
			TableName: table,
			Dir1:      dir1,
			FK1:       descr.FK1,
			Dir2:      dir2,
			FK2:       descr.FK2,
		}
		if err := info.validate(); err != nil {
			return nil, err
		}
		return info, nil
	}
	return nil, skyerrors.Errorf(skyerrors.FailedPrecondition,
		"table %s.%s: unknown kind %q", db, table, descr.Kind)
}

// director resolves a director dependency through the cache so the shared
// *DirTableInfo is the pooled one.
func (c *Cache) director(ctx context.Context, db, table string, depth int) (*DirTableInfo, error) {
	if table == "" {
		return nil, skyerrors.Errorf(skyerrors.FailedPrecondition,
			"table in %s references an empty director name", db)
	}
	key := tableKey{db, table}
	c.mu.RLock()
	info, ok := c.pool[key]
	c.mu.RUnlock()
	if !ok {
		var err error
		info, err = c.materialize(ctx, db, table, depth+1)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if existing, ok := c.pool[key]; ok {
			info = existing
		} else {
			c.pool[key] = info
		}
		c.mu.Unlock()
	}
	dir, ok := info.(*DirTableInfo)
	if !ok {
		return nil, skyerrors.Errorf(skyerrors.FailedPrecondition,
			"table %s.%s is referenced as a director but is not one", db, table)
	}
	return dir, nil
}

func (c *Cache) dbStripingRef(ctx context.Context, db string) (*StripingParams, error) {
	var descr dbJSON
	if err := c.getJSON(ctx, dbsPrefix+"/"+db, &descr); err != nil {
		if IsNotFound(err) {
			return nil, skyerrors.Errorf(skyerrors.NotFound, "unknown database %q", db)
		}
		return nil, err
	}
	if descr.PartitioningID == "" {
		return nil, skyerrors.Errorf(skyerrors.FailedPrecondition,
			"database %q has partitioned tables but no partitioning id", db)
	}
	return c.stripingParams(ctx, descr.PartitioningID)
}

func (c *Cache) stripingParams(ctx context.Context, id string) (*StripingParams, error) {
	c.mu.RLock()
	p, ok := c.striping[id]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}
	p = &StripingParams{}
	if err := c.getJSON(ctx, partitioningPrefix+"/"+id, p); err != nil {
		if IsNotFound(err) {
			return nil, skyerrors.Errorf(skyerrors.FailedPrecondition, "partitioning %q does not exist", id)
		}
		return nil, err
	}
	p.PartitioningID = id
	if err := p.validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if existing, ok := c.striping[id]; ok {
		p = existing
	} else {
		c.striping[id] = p
	}
	c.mu.Unlock()
	return p, nil
}

func (c *Cache) getJSON(ctx context.Context, key string, out any) error {
	contents, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if len(contents) == 0 {
		return nil
	}
	if err := json.Unmarshal(contents, out); err != nil {
		return skyerrors.Wrapf(skyerrors.New(skyerrors.FailedPrecondition, err.Error()), "invalid metadata at %s", key)
	}
	return nil
}
