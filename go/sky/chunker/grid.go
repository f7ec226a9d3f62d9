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
	"math"

	"skyserv.io/skyserv/go/sky/catalog"
	"skyserv.io/skyserv/go/sky/skyerrors"
)

// Grid is the equal-angle chunking grid of one partitioning scheme. The
// sphere is cut into Stripes latitude bands of 180/Stripes degrees each, and
// every stripe into 2*Stripes longitude cells of 360/(2*Stripes) degrees.
//
//	chunkId = stripe*(2*Stripes) + chunkInStripe
//
// The formula is invertible: stripe = chunkId / (2*Stripes), chunkInStripe =
// chunkId % (2*Stripes). Sub-chunks subdivide a chunk into SubStripes
// latitude rows by SubStripes longitude columns, subChunkId = row*SubStripes
// + col.
type Grid struct {
	Stripes    int
	SubStripes int
}

// NewGrid builds the grid for the given striping parameters.
func NewGrid(params catalog.StripingParams) (*Grid, error) {
	if params.Stripes <= 0 || params.SubStripes <= 0 {
		return nil, skyerrors.Errorf(skyerrors.FailedPrecondition,
			"invalid striping: stripes=%d subStripes=%d", params.Stripes, params.SubStripes)
	}
	return &Grid{Stripes: params.Stripes, SubStripes: params.SubStripes}, nil
}

func (g *Grid) chunksPerStripe() int { return 2 * g.Stripes }

func (g *Grid) stripeHeight() float64 { return 180 / float64(g.Stripes) }

func (g *Grid) chunkWidth() float64 { return 360 / float64(g.chunksPerStripe()) }

// ChunkID returns the chunk id of the given stripe and in-stripe position.
func (g *Grid) ChunkID(stripe, chunkInStripe int) int32 {
	return int32(stripe*g.chunksPerStripe() + chunkInStripe)
}

// ChunkBounds returns the lon/lat box covered by a chunk.
func (g *Grid) ChunkBounds(chunkID int32) (Box, error) {
	stripe := int(chunkID) / g.chunksPerStripe()
	chunkInStripe := int(chunkID) % g.chunksPerStripe()
	if chunkID < 0 || stripe >= g.Stripes {
		return Box{}, skyerrors.Errorf(skyerrors.InvalidArgument, "chunk %d outside grid", chunkID)
	}
	return Box{
		LonMin: float64(chunkInStripe) * g.chunkWidth(),
		LatMin: -90 + float64(stripe)*g.stripeHeight(),
		LonMax: float64(chunkInStripe+1) * g.chunkWidth(),
		LatMax: -90 + float64(stripe+1)*g.stripeHeight(),
	}, nil
}

// AllChunks enumerates every chunk id, row-major by stripe then longitude.
func (g *Grid) AllChunks() []int32 {
	out := make([]int32, 0, g.Stripes*g.chunksPerStripe())
	for stripe := 0; stripe < g.Stripes; stripe++ {
		for c := 0; c < g.chunksPerStripe(); c++ {
			out = append(out, g.ChunkID(stripe, c))
		}
	}
	return out
}

// Chunks enumerates the chunks whose cells intersect the region's bounding
// box. A nil region means a full scan. Emission is row-major by stripe then
// longitude, so the result is deterministic for a given region.
func (g *Grid) Chunks(region Region) []int32 {
	if region == nil {
		return g.AllChunks()
	}
	bounds := region.Bounds()
	minStripe, maxStripe := g.stripeRange(bounds)
	cols := g.columnRange(bounds)

	var out []int32
	for stripe := minStripe; stripe <= maxStripe; stripe++ {
		for _, c := range cols {
			out = append(out, g.ChunkID(stripe, c))
		}
	}
	return out
}

// SubChunks enumerates the sub-chunks of one chunk whose cells intersect the
// region's bounding box. A nil region selects every sub-chunk.
func (g *Grid) SubChunks(chunkID int32, region Region) ([]int32, error) {
	chunk, err := g.ChunkBounds(chunkID)
	if err != nil {
		return nil, err
	}
	n := g.SubStripes
	out := make([]int32, 0, n*n)
	if region == nil {
		for i := 0; i < n*n; i++ {
			out = append(out, int32(i))
		}
		return out, nil
	}
	bounds := region.Bounds()
	rowHeight := (chunk.LatMax - chunk.LatMin) / float64(n)
	colWidth := (chunk.LonMax - chunk.LonMin) / float64(n)
	for row := 0; row < n; row++ {
		latMin := chunk.LatMin + float64(row)*rowHeight
		if latMin > bounds.LatMax || latMin+rowHeight < bounds.LatMin {
			continue
		}
		for col := 0; col < n; col++ {
			lonMin := chunk.LonMin + float64(col)*colWidth
			if lonOverlaps(bounds, lonMin, lonMin+colWidth) {
				out = append(out, int32(row*n+col))
			}
		}
	}
	return out, nil
}

// stripeRange clamps the bounding box latitudes to stripe indexes.
func (g *Grid) stripeRange(bounds Box) (int, int) {
	h := g.stripeHeight()
	minStripe := int(math.Floor((bounds.LatMin + 90) / h))
	maxStripe := int(math.Floor((bounds.LatMax + 90) / h))
	if minStripe < 0 {
		minStripe = 0
	}
	if maxStripe >= g.Stripes {
		maxStripe = g.Stripes - 1
	}
	return minStripe, maxStripe
}

// columnRange returns the in-stripe chunk columns covered by the bounding
// box longitudes, in ascending order. A wrapping box yields two runs.
func (g *Grid) columnRange(bounds Box) []int {
	w := g.chunkWidth()
	last := g.chunksPerStripe() - 1
	colOf := func(lon float64) int {
		c := int(math.Floor(lon / w))
		if c < 0 {
			c = 0
		}
		if c > last {
			c = last
		}
		return c
	}
	var cols []int
	if bounds.Wraps() {
		for c := 0; c <= colOf(bounds.LonMax); c++ {
			cols = append(cols, c)
		}
		for c := colOf(bounds.LonMin); c <= last; c++ {
			if len(cols) > 0 && c <= cols[len(cols)-1] {
				continue
			}
			cols = append(cols, c)
		}
		return cols
	}
	for c := colOf(bounds.LonMin); c <= colOf(bounds.LonMax); c++ {
		cols = append(cols, c)
	}
	return cols
}

// lonOverlaps reports whether the box's longitude extent intersects the
// [lonMin, lonMax] interval, accounting for wrap.
func lonOverlaps(bounds Box, lonMin, lonMax float64) bool {
	if bounds.Wraps() {
		return lonMax >= bounds.LonMin || lonMin <= bounds.LonMax
	}
	return lonMax >= bounds.LonMin && lonMin <= bounds.LonMax
}
