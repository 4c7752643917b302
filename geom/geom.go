// Package geom holds the geometric selections used by the analysis: the
// fiducial volume, boundary crossing of tracks, proximity to dead
// channels and optical detector lookups.
//
// Coordinates are in cm in the detector frame: x along the drift
// direction (anode at x=0), y vertical and centred on the TPC, z along the
// beam.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Volume is a box aligned with the TPC, shrunk by a border on every side.
type Volume struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Z       float64 `yaml:"z"`
	BorderX float64 `yaml:"border_x"`
	BorderY float64 `yaml:"border_y"`
	BorderZ float64 `yaml:"border_z"`
}

// DefaultFiducial is the fiducial volume of the selection.
var DefaultFiducial = Volume{
	X:       256.35,
	Y:       233,
	Z:       1036.8,
	BorderX: 10,
	BorderY: 20,
	BorderZ: 10,
}

// Contains reports whether p lies strictly inside the volume. Points on a
// face are outside.
func (v Volume) Contains(p r3.Vec) bool {
	return p.X > v.BorderX && p.X < v.X-v.BorderX &&
		p.Y > -v.Y/2+v.BorderY && p.Y < v.Y/2-v.BorderY &&
		p.Z > v.BorderZ && p.Z < v.Z-v.BorderZ
}

// TopY is the y coordinate of the top face.
func (v Volume) TopY() float64 { return v.Y/2 - v.BorderY }

// InFV is DefaultFiducial.Contains.
func InFV(p r3.Vec) bool { return DefaultFiducial.Contains(p) }

// Which end of a crossing track is contained.
const (
	NotCrossing  = -1
	VertexInside = 0
	EndInside    = 1
)

// CrossingBoundary reports whether exactly one of the two track ends is
// contained, and which one.
func (v Volume) CrossingBoundary(vtx, end r3.Vec) (bool, int) {
	vin, ein := v.Contains(vtx), v.Contains(end)
	switch {
	case vin && !ein:
		return true, VertexInside
	case !vin && ein:
		return true, EndInside
	}
	return false, NotCrossing
}

// CrossingTopBoundary is CrossingBoundary restricted to tracks whose
// outside end is above the top face.
func (v Volume) CrossingTopBoundary(vtx, end r3.Vec) (bool, int) {
	vin, ein := v.Contains(vtx), v.Contains(end)
	switch {
	case vin && !ein && end.Y > v.TopY():
		return true, VertexInside
	case !vin && ein && vtx.Y > v.TopY():
		return true, EndInside
	}
	return false, NotCrossing
}

// ClosestPMT returns the index of the optical detector whose centre is
// nearest to p, or -1 when pmts is empty.
func ClosestPMT(p r3.Vec, pmts []r3.Vec) int {
	id := -1
	min := 1e9
	for i, c := range pmts {
		d := r3.Norm(r3.Sub(p, c))
		if d < min {
			min = d
			id = i
		}
	}
	return id
}

// FlashZCenter returns the PE-weighted z position of a flash, where pe[i]
// is the light seen by the optical detector at pmts[i]. It returns false
// when no light was recorded.
func FlashZCenter(pe []float64, pmts []r3.Vec) (float64, bool) {
	var sumz, total float64
	for i, q := range pe {
		if i >= len(pmts) {
			break
		}
		sumz += q * pmts[i].Z
		total += q
	}
	if total == 0 {
		return math.NaN(), false
	}
	return sumz / total, true
}
