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

// Package chunker maps spherical regions to the chunk and sub-chunk grid of
// a partitioned catalog. Regions come from spatial restrictor predicates;
// the grid comes from the catalog's striping parameters.
package chunker

import (
	"math"

	"skyserv.io/skyserv/go/sky/skyerrors"
)

// Region is a spherical-coordinate search area. All angles are degrees.
// Regions only need to expose a bounding box: chunk enumeration is
// conservative, a chunk overlapping the bounding box is emitted even if the
// exact region misses it. Workers re-apply the exact predicate.
type Region interface {
	// Bounds returns the bounding box in degrees. LonMin may exceed
	// LonMax, which means the box wraps across the 0/360 meridian.
	Bounds() Box
}

// Box is an axis-aligned lon/lat box, and is itself a Region.
type Box struct {
	LonMin, LatMin float64
	LonMax, LatMax float64
}

// Bounds implements Region.
func (b Box) Bounds() Box { return b }

// Wraps reports whether the box crosses the 0/360 meridian.
func (b Box) Wraps() bool { return b.LonMin > b.LonMax }

// Circle is a spherical cap: center plus opening radius.
type Circle struct {
	Lon, Lat float64
	Radius   float64
}

// Bounds implements Region.
func (c Circle) Bounds() Box {
	latMin := math.Max(c.Lat-c.Radius, -90)
	latMax := math.Min(c.Lat+c.Radius, 90)
	// Near the poles the longitude extent of a cap diverges.
	if latMin <= -90+c.Radius || latMax >= 90-c.Radius {
		return Box{LonMin: 0, LatMin: latMin, LonMax: 360, LatMax: latMax}
	}
	maxAbsLat := math.Max(math.Abs(latMin), math.Abs(latMax))
	dLon := c.Radius / math.Cos(maxAbsLat*math.Pi/180)
	return Box{
		LonMin: normalizeLon(c.Lon - dLon),
		LatMin: latMin,
		LonMax: normalizeLon(c.Lon + dLon),
		LatMax: latMax,
	}
}

// Ellipse is a spherical ellipse. Chunk enumeration approximates it by its
// bounding circle with the semi-major axis as radius.
type Ellipse struct {
	Lon, Lat             float64
	SemiMajor, SemiMinor float64
	PositionAngle        float64
}

// Bounds implements Region.
func (e Ellipse) Bounds() Box {
	return Circle{Lon: e.Lon, Lat: e.Lat, Radius: e.SemiMajor}.Bounds()
}

// Polygon is a convex spherical polygon given by its vertices. Chunk
// enumeration uses the vertex bounding box.
type Polygon struct {
	// Vertices holds lon/lat pairs in order.
	Vertices []float64
}

// Bounds implements Region.
func (p Polygon) Bounds() Box {
	box := Box{LonMin: 360, LatMin: 90, LonMax: 0, LatMax: -90}
	for i := 0; i+1 < len(p.Vertices); i += 2 {
		lon := normalizeLon(p.Vertices[i])
		lat := p.Vertices[i+1]
		box.LonMin = math.Min(box.LonMin, lon)
		box.LonMax = math.Max(box.LonMax, lon)
		box.LatMin = math.Min(box.LatMin, lat)
		box.LatMax = math.Max(box.LatMax, lat)
	}
	return box
}

// BoxFromParams builds a Box region from restrictor parameters
// (lonMin, latMin, lonMax, latMax).
func BoxFromParams(params []float64) (Region, error) {
	if len(params) != 4 {
		return nil, skyerrors.Errorf(skyerrors.InvalidArgument,
			"box region expects 4 parameters, got %d", len(params))
	}
	return Box{
		LonMin: normalizeLon(params[0]),
		LatMin: params[1],
		LonMax: normalizeLon(params[2]),
		LatMax: params[3],
	}, nil
}

// CircleFromParams builds a Circle region from restrictor parameters
// (lon, lat, radius).
func CircleFromParams(params []float64) (Region, error) {
	if len(params) != 3 {
		return nil, skyerrors.Errorf(skyerrors.InvalidArgument,
			"circle region expects 3 parameters, got %d", len(params))
	}
	if params[2] < 0 {
		return nil, skyerrors.New(skyerrors.InvalidArgument, "circle radius must be non-negative")
	}
	return Circle{Lon: normalizeLon(params[0]), Lat: params[1], Radius: params[2]}, nil
}

// EllipseFromParams builds an Ellipse region from restrictor parameters
// (lon, lat, semiMajor, semiMinor, positionAngle).
func EllipseFromParams(params []float64) (Region, error) {
	if len(params) != 5 {
		return nil, skyerrors.Errorf(skyerrors.InvalidArgument,
			"ellipse region expects 5 parameters, got %d", len(params))
	}
	if params[2] < params[3] || params[3] < 0 {
		return nil, skyerrors.New(skyerrors.InvalidArgument,
			"ellipse axes must satisfy semiMajor >= semiMinor >= 0")
	}
	return Ellipse{
		Lon:           normalizeLon(params[0]),
		Lat:           params[1],
		SemiMajor:     params[2],
		SemiMinor:     params[3],
		PositionAngle: params[4],
	}, nil
}

// PolygonFromParams builds a Polygon region from restrictor parameters:
// lon/lat pairs, at least four vertices.
func PolygonFromParams(params []float64) (Region, error) {
	if len(params) <= 6 || len(params)%2 != 0 {
		return nil, skyerrors.Errorf(skyerrors.InvalidArgument,
			"polygon region expects an even number of parameters, at least 8, got %d", len(params))
	}
	return Polygon{Vertices: append([]float64(nil), params...)}, nil
}

// Padded expands a region's bounding box by margin degrees on every side.
// Used to pull in overlap chunks for near-neighbor queries.
func Padded(r Region, margin float64) Region {
	b := r.Bounds()
	latMin := math.Max(b.LatMin-margin, -90)
	latMax := math.Min(b.LatMax+margin, 90)
	if !b.Wraps() && b.LonMax-b.LonMin+2*margin >= 360 {
		return Box{LonMin: 0, LatMin: latMin, LonMax: 360, LatMax: latMax}
	}
	return Box{
		LonMin: normalizeLon(b.LonMin - margin),
		LatMin: latMin,
		LonMax: normalizeLon(b.LonMax + margin),
		LatMax: latMax,
	}
}

// normalizeLon maps a longitude into [0, 360). 360 itself is preserved so a
// full-sky box keeps its extent.
func normalizeLon(lon float64) float64 {
	if lon == 360 {
		return lon
	}
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}
