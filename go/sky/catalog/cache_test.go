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
	"testing"

	"context"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyserv.io/skyserv/go/sky/skyerrors"
)

// testStore seeds the layout used throughout the czar tests: one partitioned
// database with a director, a child, a match and a plain table.
func testStore(t *testing.T) *MemStore {
	t.Helper()
	ms := NewMemStore()
	ms.Put("/PARTITIONING/pt1", []byte(`{"stripes":18,"subStripes":10,"overlap":0.01667,"overlapNearNeighbor":0.025}`))
	ms.Put("/DBS/LSST", []byte(`{"partitioningId":"pt1"}`))
	ms.Put("/DBS/LSST/TABLES/Object", []byte(`{"kind":"director","keyCol":"objectId","lonCol":"ra_PS","latCol":"decl_PS","chunkLevel":2,"subChunks":true}`))
	ms.Put("/DBS/LSST/TABLES/Source", []byte(`{"kind":"child","director":"Object","fk":"objectId","chunkLevel":1}`))
	ms.Put("/DBS/LSST/TABLES/RefMatch", []byte(`{"kind":"match","dir1":"Object","fk1":"objectId1","dir2":"Object","fk2":"objectId2"}`))
	ms.Put("/DBS/LSST/TABLES/Filter", []byte(`{"kind":"plain"}`))
	return ms
}

func TestCacheDirector(t *testing.T) {
	c := NewCache(testStore(t))
	ctx := context.Background()

	info, err := c.TableInfo(ctx, "LSST", "Object")
	require.NoError(t, err)
	dir, ok := info.(*DirTableInfo)
	require.True(t, ok)
	assert.Equal(t, "objectId", dir.KeyCol)
	assert.Equal(t, 2, dir.ChunkLevel)
	assert.True(t, dir.SubChunks)
	assert.Equal(t, 18, dir.Striping.Stripes)
	assert.InDelta(t, 0.01667, dir.Overlap(), 1e-9)

	// Second lookup is a pool hit returning the identical entry.
	again, err := c.TableInfo(ctx, "LSST", "Object")
	require.NoError(t, err)
	assert.Same(t, info, again)
}

func TestCacheChildSharesDirector(t *testing.T) {
	c := NewCache(testStore(t))
	ctx := context.Background()

	info, err := c.TableInfo(ctx, "LSST", "Source")
	require.NoError(t, err)
	child, ok := info.(*ChildTableInfo)
	require.True(t, ok)

	dir, err := c.TableInfo(ctx, "LSST", "Object")
	require.NoError(t, err)
	assert.Same(t, dir, TableInfo(child.Dir))
}

func TestCacheMatch(t *testing.T) {
	c := NewCache(testStore(t))
	info, err := c.TableInfo(context.Background(), "LSST", "RefMatch")
	require.NoError(t, err)
	match, ok := info.(*MatchTableInfo)
	require.True(t, ok)
	assert.Equal(t, "objectId1", match.FK1)
	assert.Same(t, match.Dir1, match.Dir2)
}

func TestCacheUnknownTable(t *testing.T) {
	c := NewCache(testStore(t))
	_, err := c.TableInfo(context.Background(), "LSST", "Nope")
	require.Error(t, err)
	assert.Equal(t, skyerrors.NotFound, skyerrors.CodeOf(err))

	_, err = c.TableInfo(context.Background(), "NoDb", "Object")
	require.Error(t, err)
	assert.Equal(t, skyerrors.NotFound, skyerrors.CodeOf(err))
}

func TestCacheInvalidMetadataNotCached(t *testing.T) {
	ms := testStore(t)
	// Sub-chunked director whose partition columns collide.
	ms.Put("/DBS/LSST/TABLES/Broken", []byte(`{"kind":"director","keyCol":"a","lonCol":"a","latCol":"b","chunkLevel":2,"subChunks":true}`))
	c := NewCache(ms)

	_, err := c.TableInfo(context.Background(), "LSST", "Broken")
	require.Error(t, err)
	assert.Equal(t, skyerrors.FailedPrecondition, skyerrors.CodeOf(err))

	// Fixing the store entry must fix the lookup: the failure was not cached.
	ms.Put("/DBS/LSST/TABLES/Broken", []byte(`{"kind":"director","keyCol":"id","lonCol":"ra","latCol":"decl","chunkLevel":2,"subChunks":true}`))
	_, err = c.TableInfo(context.Background(), "LSST", "Broken")
	assert.NoError(t, err)
}

func TestCacheChildDeeperThanDirector(t *testing.T) {
	ms := testStore(t)
	ms.Put("/DBS/LSST/TABLES/DeepChild", []byte(`{"kind":"child","director":"Object","fk":"objectId","chunkLevel":3}`))
	c := NewCache(ms)
	_, err := c.TableInfo(context.Background(), "LSST", "DeepChild")
	require.Error(t, err)
	assert.Equal(t, skyerrors.FailedPrecondition, skyerrors.CodeOf(err))
}

func TestDbStriping(t *testing.T) {
	c := NewCache(testStore(t))
	p, err := c.DbStriping(context.Background(), "LSST")
	require.NoError(t, err)
	assert.Equal(t, 18, p.Stripes)
	assert.Equal(t, 10, p.SubStripes)

	_, err = c.DbStriping(context.Background(), "NoDb")
	assert.Equal(t, skyerrors.NotFound, skyerrors.CodeOf(err))
}

func TestMemStoreChildren(t *testing.T) {
	ms := testStore(t)
	tables, err := ms.Children(context.Background(), "/DBS/LSST/TABLES")
	require.NoError(t, err)
	assert.Equal(t, []string{"Filter", "Object", "RefMatch", "Source"}, tables)
}
