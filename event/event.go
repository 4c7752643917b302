// Package event holds the reconstructed and simulated data products of a
// single LArTPC readout, as written by the upstream reconstruction, and
// streams them from disk.
//
// Associations between products are carried as owner ids on the owned
// product (a Track knows its PFParticle, a SpacePoint knows its hits).
// Collections are keyed by the label of the producer that made them.
package event

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// NoParent marks a primary PFParticle or MCParticle.
const NoParent = -1

var ErrProductNotFound = errors.New("event: product not found")

type ID struct {
	Run    int `json:"run"`
	SubRun int `json:"subrun"`
	Event  int `json:"event"`
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d:%d", id.Run, id.SubRun, id.Event)
}

// View of a hit: the wire plane it was read out on.
type View int

const (
	ViewU View = iota
	ViewV
	ViewW
)

type Hit struct {
	ID       int     `json:"id"`
	View     View    `json:"view"`
	Channel  uint32  `json:"channel"`
	PeakTime float64 `json:"peak_time"`
	Integral float64 `json:"integral"`
}

type PFParticle struct {
	ID        int   `json:"id"`
	PdgCode   int   `json:"pdg"`
	Parent    int   `json:"parent"`
	Daughters []int `json:"daughters,omitempty"`
}

func (p PFParticle) IsPrimary() bool { return p.Parent == NoParent }

// IsNeutrino reports whether the particle flow hypothesis is a neutrino of
// any flavour.
func (p PFParticle) IsNeutrino() bool {
	switch abs(p.PdgCode) {
	case 12, 14, 16:
		return true
	}
	return false
}

type Track struct {
	ID         int      `json:"id"`
	PFParticle int      `json:"pfparticle"`
	Points     []r3.Vec `json:"points"`
	Hits       []int    `json:"hits,omitempty"`
}

func (t Track) Start() r3.Vec { return t.Points[0] }
func (t Track) End() r3.Vec   { return t.Points[len(t.Points)-1] }

// Length is the sum of the distances between consecutive trajectory
// points.
func (t Track) Length() float64 {
	var l float64
	for i := 1; i < len(t.Points); i++ {
		l += r3.Norm(r3.Sub(t.Points[i], t.Points[i-1]))
	}
	return l
}

type Shower struct {
	ID         int    `json:"id"`
	PFParticle int    `json:"pfparticle"`
	Start      r3.Vec `json:"start"`
	Hits       []int  `json:"hits,omitempty"`
}

type Vertex struct {
	ID         int    `json:"id"`
	PFParticle int    `json:"pfparticle"`
	Position   r3.Vec `json:"position"`
}

type SpacePoint struct {
	ID         int    `json:"id"`
	PFParticle int    `json:"pfparticle"`
	Position   r3.Vec `json:"position"`
	Hits       []int  `json:"hits,omitempty"`
}

// OpFlash is a reconstructed optical flash. Times are in µs relative to
// the trigger, positions in cm.
type OpFlash struct {
	Time    float64   `json:"time"`
	TotalPE float64   `json:"total_pe"`
	YCenter float64   `json:"y_center"`
	YWidth  float64   `json:"y_width"`
	ZCenter float64   `json:"z_center"`
	ZWidth  float64   `json:"z_width"`
	PEs     []float64 `json:"pes,omitempty"`
}

// Generator origin of a simulated particle.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginBeamNeutrino
	OriginCosmic
)

type MCParticle struct {
	TrackID int    `json:"track_id"`
	PdgCode int    `json:"pdg"`
	Mother  int    `json:"mother"`
	Process string `json:"process,omitempty"`
	Origin  Origin `json:"origin"`
}

// TrackIDE is the energy a true particle deposited in the charge read out
// by one hit.
type TrackIDE struct {
	TrackID int     `json:"track_id"`
	Energy  float64 `json:"energy"`
}

type HitTruth struct {
	Hit  int        `json:"hit"`
	IDEs []TrackIDE `json:"ides"`
}

type SWTrigger struct {
	Algorithms []string `json:"algorithms"`
	Passed     []string `json:"passed,omitempty"`
}

// PassedAlgo reports whether the named trigger algorithm fired.
func (t *SWTrigger) PassedAlgo(name string) bool {
	for _, p := range t.Passed {
		if p == name {
			return true
		}
	}
	return false
}

// Record is one event.
type Record struct {
	ID       ID   `json:"id"`
	RealData bool `json:"real_data,omitempty"`

	Hits        map[string][]Hit        `json:"hits,omitempty"`
	PFParticles map[string][]PFParticle `json:"pfparticles,omitempty"`
	Tracks      map[string][]Track      `json:"tracks,omitempty"`
	Showers     map[string][]Shower     `json:"showers,omitempty"`
	Vertices    map[string][]Vertex     `json:"vertices,omitempty"`
	SpacePoints map[string][]SpacePoint `json:"spacepoints,omitempty"`
	Flashes     map[string][]OpFlash    `json:"flashes,omitempty"`
	MCParticles map[string][]MCParticle `json:"mcparticles,omitempty"`
	HitTruth    map[string][]HitTruth   `json:"hit_truth,omitempty"`
	SWTriggers  map[string]*SWTrigger   `json:"swtriggers,omitempty"`

	// SimEnergy is the total simulated energy deposited by each true
	// particle, keyed by track id.
	SimEnergy map[int]float64 `json:"sim_energy,omitempty"`
}

func missing(kind, label string) error {
	return fmt.Errorf("%w: %s with label %q", ErrProductNotFound, kind, label)
}

func (r *Record) PFParticlesByLabel(label string) ([]PFParticle, error) {
	v, ok := r.PFParticles[label]
	if !ok {
		return nil, missing("pfparticles", label)
	}
	return v, nil
}

func (r *Record) FlashesByLabel(label string) ([]OpFlash, error) {
	v, ok := r.Flashes[label]
	if !ok {
		return nil, missing("flashes", label)
	}
	return v, nil
}

func (r *Record) HitsByLabel(label string) ([]Hit, error) {
	v, ok := r.Hits[label]
	if !ok {
		return nil, missing("hits", label)
	}
	return v, nil
}

func (r *Record) MCParticlesByLabel(label string) ([]MCParticle, error) {
	v, ok := r.MCParticles[label]
	if !ok {
		return nil, missing("mcparticles", label)
	}
	return v, nil
}

func (r *Record) SWTrigger(label string) (*SWTrigger, error) {
	v, ok := r.SWTriggers[label]
	if !ok || v == nil {
		return nil, missing("software trigger", label)
	}
	return v, nil
}

// TracksByPFParticle groups the tracks made by trackLabel by the id of the
// PFParticle they belong to. Track order within a PFParticle follows the
// product order.
func (r *Record) TracksByPFParticle(trackLabel string) (map[int][]Track, error) {
	tracks, ok := r.Tracks[trackLabel]
	if !ok {
		return nil, missing("tracks", trackLabel)
	}
	return groupBy(tracks, func(t Track) int { return t.PFParticle }), nil
}

func (r *Record) ShowersByPFParticle(showerLabel string) (map[int][]Shower, error) {
	showers, ok := r.Showers[showerLabel]
	if !ok {
		return nil, missing("showers", showerLabel)
	}
	return groupBy(showers, func(s Shower) int { return s.PFParticle }), nil
}

func (r *Record) VerticesByPFParticle(label string) (map[int][]Vertex, error) {
	vertices, ok := r.Vertices[label]
	if !ok {
		return nil, missing("vertices", label)
	}
	return groupBy(vertices, func(v Vertex) int { return v.PFParticle }), nil
}

// HitsByPFParticle resolves the hits of every PFParticle through its space
// points. A hit shared by several space points of the same PFParticle is
// listed once, at its first appearance.
func (r *Record) HitsByPFParticle(spacePointLabel string) (map[int][]int, error) {
	sps, ok := r.SpacePoints[spacePointLabel]
	if !ok {
		return nil, missing("spacepoints", spacePointLabel)
	}

	out := make(map[int][]int)
	seen := make(map[int]map[int]bool)
	for _, sp := range sps {
		s := seen[sp.PFParticle]
		if s == nil {
			s = make(map[int]bool)
			seen[sp.PFParticle] = s
		}
		for _, h := range sp.Hits {
			if s[h] {
				continue
			}
			s[h] = true
			out[sp.PFParticle] = append(out[sp.PFParticle], h)
		}
	}
	return out, nil
}

func groupBy[T any](items []T, key func(T) int) map[int][]T {
	out := make(map[int][]T)
	for _, it := range items {
		k := key(it)
		out[k] = append(out[k], it)
	}
	return out
}

// Sentinel is the placeholder position used when no vertex or endpoint is
// available.
var Sentinel = r3.Vec{X: -9999, Y: -9999, Z: -9999}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Finite reports whether all coordinates are finite numbers.
func Finite(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
