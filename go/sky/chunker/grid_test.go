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

package chunker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyserv.io/skyserv/go/sky/catalog"
	"skyserv.io/skyserv/go/sky/skyerrors"
)

func testGrid(t *testing.T, stripes, subStripes int) *Grid {
	t.Helper()
	g, err := NewGrid(catalog.StripingParams{Stripes: stripes, SubStripes: subStripes})
	require.NoError(t, err)
	return g
}

func TestNewGridInvalid(t *testing.T) {
	_, err := NewGrid(catalog.StripingParams{Stripes: 0, SubStripes: 3})
	require.Error(t, err)
	assert.Equal(t, skyerrors.FailedPrecondition, skyerrors.CodeOf(err))
}

func TestChunkIDInvertible(t *testing.T) {
	g := testGrid(t, 18, 5)
	for stripe := 0; stripe < g.Stripes; stripe++ {
		for c := 0; c < 2*g.Stripes; c++ {
			id := g.ChunkID(stripe, c)
			bounds, err := g.ChunkBounds(id)
			require.NoError(t, err)
			assert.InDelta(t, -90+float64(stripe)*10, bounds.LatMin, 1e-9)
			assert.InDelta(t, float64(c)*10, bounds.LonMin, 1e-9)
		}
	}
}

func TestChunkBoundsOutsideGrid(t *testing.T) {
	g := testGrid(t, 18, 5)
	_, err := g.ChunkBounds(int32(18 * 36))
	require.Error(t, err)
	_, err = g.ChunkBounds(-1)
	require.Error(t, err)
}

func TestChunksFullScan(t *testing.T) {
	g := testGrid(t, 4, 2)
	chunks := g.Chunks(nil)
	assert.Len(t, chunks, 4*8)
	assert.Equal(t, int32(0), chunks[0])
	assert.Equal(t, int32(31), chunks[len(chunks)-1])
}

func TestChunksBox(t *testing.T) {
	// 18 stripes: 10 degree stripes, 10 degree chunks, 36 per stripe.
	g := testGrid(t, 18, 5)

	// A box inside a single cell.
	chunks := g.Chunks(Box{LonMin: 1, LatMin: 1, LonMax: 2, LatMax: 2})
	// lat 1..2 is stripe 9, lon 1..2 is column 0.
	assert.Equal(t, []int32{g.ChunkID(9, 0)}, chunks)

	// A box spanning two stripes and two columns.
	chunks = g.Chunks(Box{LonMin: 5, LatMin: 5, LonMax: 15, LatMax: 15})
	want := []int32{
		g.ChunkID(9, 0), g.ChunkID(9, 1),
		g.ChunkID(10, 0), g.ChunkID(10, 1),
	}
	assert.Equal(t, want, chunks)
}

func TestChunksDeterministic(t *testing.T) {
	g := testGrid(t, 18, 5)
	region := Circle{Lon: 30, Lat: 10, Radius: 12}
	first := g.Chunks(region)
	second := g.Chunks(region)
	assert.Empty(t, cmp.Diff(first, second))

	// Row-major: ids strictly increase.
	for i := 1; i < len(first); i++ {
		assert.Greater(t, first[i], first[i-1])
	}
}

func TestChunksWrapAroundMeridian(t *testing.T) {
	g := testGrid(t, 18, 5)
	chunks := g.Chunks(Box{LonMin: 355, LatMin: 1, LonMax: 5, LatMax: 2})
	want := []int32{g.ChunkID(9, 0), g.ChunkID(9, 35)}
	assert.Equal(t, want, chunks)
}

func TestChunksPolarCircle(t *testing.T) {
	g := testGrid(t, 18, 5)
	chunks := g.Chunks(Circle{Lon: 10, Lat: 89, Radius: 2})
	// The cap straddles the pole, so every column of the top stripe shows up.
	assert.Len(t, chunks, 36)
	assert.Equal(t, g.ChunkID(17, 0), chunks[0])
}

func TestSubChunks(t *testing.T) {
	g := testGrid(t, 18, 5)
	id := g.ChunkID(9, 0) // lon 0..10, lat 0..10

	all, err := g.SubChunks(id, nil)
	require.NoError(t, err)
	assert.Len(t, all, 25)

	// A region covering only the chunk's lower-left 2x2 degree corner hits
	// exactly the first sub-cell (each sub-cell is 2x2 degrees).
	some, err := g.SubChunks(id, Box{LonMin: 0.1, LatMin: 0.1, LonMax: 1.9, LatMax: 1.9})
	require.NoError(t, err)
	assert.Equal(t, []int32{0}, some)

	// A lat band across the middle hits one full row.
	row, err := g.SubChunks(id, Box{LonMin: 0, LatMin: 4.5, LonMax: 10, LatMax: 5.5})
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 11, 12, 13, 14}, row)
}

func TestRegionParams(t *testing.T) {
	_, err := BoxFromParams([]float64{0, 0, 1})
	assert.Equal(t, skyerrors.InvalidArgument, skyerrors.CodeOf(err))

	_, err = CircleFromParams([]float64{0, 0, 1, 2})
	assert.Equal(t, skyerrors.InvalidArgument, skyerrors.CodeOf(err))

	_, err = CircleFromParams([]float64{0, 0, -1})
	assert.Equal(t, skyerrors.InvalidArgument, skyerrors.CodeOf(err))

	_, err = EllipseFromParams([]float64{0, 0, 1, 2, 0})
	assert.Equal(t, skyerrors.InvalidArgument, skyerrors.CodeOf(err))

	// Polygons need at least four vertices and an even parameter count.
	_, err = PolygonFromParams([]float64{0, 0, 1, 0, 1, 1})
	assert.Equal(t, skyerrors.InvalidArgument, skyerrors.CodeOf(err))
	_, err = PolygonFromParams([]float64{0, 0, 1, 0, 1, 1, 0, 1, 5})
	assert.Equal(t, skyerrors.InvalidArgument, skyerrors.CodeOf(err))

	poly, err := PolygonFromParams([]float64{0, 0, 1, 0, 1, 1, 0, 1})
	require.NoError(t, err)
	bounds := poly.Bounds()
	assert.Equal(t, Box{LonMin: 0, LatMin: 0, LonMax: 1, LatMax: 1}, bounds)
}

func TestEllipseBoundingCircle(t *testing.T) {
	e, err := EllipseFromParams([]float64{20, 10, 2, 1, 45})
	require.NoError(t, err)
	circleBounds := Circle{Lon: 20, Lat: 10, Radius: 2}.Bounds()
	assert.Equal(t, circleBounds, e.Bounds())
}

func TestPadded(t *testing.T) {
	r := Padded(Box{LonMin: 10, LatMin: 10, LonMax: 20, LatMax: 20}, 1)
	assert.Equal(t, Box{LonMin: 9, LatMin: 9, LonMax: 21, LatMax: 21}, r.Bounds())

	// Padding past a pole clamps.
	r = Padded(Box{LonMin: 10, LatMin: 88, LonMax: 20, LatMax: 89}, 5)
	assert.Equal(t, 90.0, r.Bounds().LatMax)
}
