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

package sqlparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyserv.io/skyserv/go/sky/skyerrors"
)

// templateFor parses sql, replaces every table reference with a ChunkTable
// at the given level, and renders the result to a template.
func templateFor(t *testing.T, sql string, level ChunkLevel) *QueryTemplate {
	t.Helper()
	tree, err := ParseSelect(sql)
	require.NoError(t, err)
	err = Walk(func(node SQLNode) (bool, error) {
		if aliased, ok := node.(*AliasedTableExpr); ok {
			if name, ok := aliased.Expr.(TableName); ok {
				aliased.Expr = &ChunkTable{Db: name.Qualifier, Table: name.Name, Level: level}
			}
		}
		return true, nil
	}, tree)
	require.NoError(t, err)
	buf := NewTrackedBuffer()
	tree.Format(buf)
	return buf.ParsedTemplate()
}

func TestTemplateGenerate(t *testing.T) {
	qt := templateFor(t, "select ra, decl from LSST.Object where ra > 1", Chunked)
	assert.Equal(t, "select ra, decl from {DB}.{TABLE}_{CHUNK} where ra > 1", qt.Query)
	assert.False(t, qt.HasSubChunk())

	got, err := qt.Generate(Substitutions{Db: "LSST", Chunk: 1234})
	require.NoError(t, err)
	assert.Equal(t, "select ra, decl from LSST.Object_1234 where ra > 1", got)
}

func TestTemplateSubChunk(t *testing.T) {
	qt := templateFor(t, "select objectId from LSST.Object", SubChunked)
	assert.Equal(t, "select objectId from {DB}.{TABLE}_{CHUNK}_{SUBCHUNK}", qt.Query)
	assert.True(t, qt.HasSubChunk())

	got, err := qt.Generate(Substitutions{Db: "Subchunks_LSST_77", Chunk: 77, SubChunk: 3, HasSubChunk: true})
	require.NoError(t, err)
	assert.Equal(t, "select objectId from Subchunks_LSST_77.Object_77_3", got)

	// A SUBCHUNK placeholder with no sub-chunk to fill is an internal error.
	_, err = qt.Generate(Substitutions{Db: "LSST", Chunk: 77})
	require.Error(t, err)
	assert.Equal(t, skyerrors.Internal, skyerrors.CodeOf(err))
}

func TestTemplateOverlap(t *testing.T) {
	qt := templateFor(t, "select objectId from LSST.Object", SubChunkedOverlap)
	assert.Equal(t, "select objectId from {DB}.{TABLE}_{CHUNK}_{SUBCHUNK}", qt.Query)

	got, err := qt.Generate(Substitutions{Db: "Subchunks_LSST_77", Chunk: 77, SubChunk: 3, HasSubChunk: true})
	require.NoError(t, err)
	assert.Equal(t, "select objectId from Subchunks_LSST_77.ObjectFullOverlap_77_3", got)
}

func TestTemplateMultipleTables(t *testing.T) {
	qt := templateFor(t, "select a from LSST.Object as o join LSST.Source as s on o.objectId = s.objectId", Chunked)

	got, err := qt.Generate(Substitutions{Db: "LSST", Chunk: 9})
	require.NoError(t, err)
	assert.Equal(t, "select a from LSST.Object_9 as o join LSST.Source_9 as s on o.objectId = s.objectId", got)
}

func TestTemplateUnfilledDb(t *testing.T) {
	qt := templateFor(t, "select a from LSST.Object", Chunked)
	_, err := qt.Generate(Substitutions{Chunk: 1})
	require.Error(t, err)
	assert.Equal(t, skyerrors.Internal, skyerrors.CodeOf(err))
}

func TestTemplateNoPlaceholders(t *testing.T) {
	tree, err := ParseSelect("select a from t where b = 1")
	require.NoError(t, err)
	buf := NewTrackedBuffer()
	tree.Format(buf)
	qt := buf.ParsedTemplate()

	got, err := qt.Generate(Substitutions{})
	require.NoError(t, err)
	assert.Equal(t, "select a from t where b = 1", got)
}
