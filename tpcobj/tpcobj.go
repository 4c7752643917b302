// Package tpcobj groups reconstructed particles into TPC objects: the
// neutrino candidate PFParticle of a slice together with every particle,
// track and shower below it.
package tpcobj

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/decibelcooper/ubxsec/event"
)

var ErrMissingDaughter = errors.New("tpcobj: daughter pfparticle not found")

// Object is one TPC object.
type Object struct {
	PFParticles []event.PFParticle
	Tracks      []event.Track
	Showers     []event.Shower

	// Vertices of every PFParticle in the object that has one.
	Vertices map[int][]event.Vertex
}

// Input bundles the products Build needs.
type Input struct {
	PFParticles []event.PFParticle
	Tracks      map[int][]event.Track
	Showers     map[int][]event.Shower
	Vertices    map[int][]event.Vertex
}

// Build makes one Object per neutrino PFParticle of in, in product order.
func Build(in Input, log *zap.Logger) ([]Object, error) {
	if log == nil {
		log = zap.NewNop()
	}

	byID := make(map[int]event.PFParticle, len(in.PFParticles))
	for _, p := range in.PFParticles {
		byID[p.ID] = p
	}

	var objs []Object
	for _, p := range in.PFParticles {
		if !p.IsNeutrino() {
			continue
		}
		if len(in.Vertices[p.ID]) == 0 {
			log.Warn("neutrino pfparticle without vertex", zap.Int("pfp", p.ID))
		}

		obj := Object{Vertices: make(map[int][]event.Vertex)}
		if err := collect(byID, p, in, &obj, 0); err != nil {
			return nil, err
		}
		objs = append(objs, obj)

		log.Debug("created tpc object",
			zap.Int("index", len(objs)-1),
			zap.Int("pfps", len(obj.PFParticles)),
			zap.Int("tracks", len(obj.Tracks)),
			zap.Int("showers", len(obj.Showers)),
		)
	}
	return objs, nil
}

// collect appends p, then its tracks and showers, then each daughter
// hierarchy in turn.
func collect(byID map[int]event.PFParticle, p event.PFParticle, in Input, obj *Object, depth int) error {
	if depth > len(byID) {
		return fmt.Errorf("tpcobj: pfparticle hierarchy below %d is cyclic", p.ID)
	}

	obj.PFParticles = append(obj.PFParticles, p)
	obj.Tracks = append(obj.Tracks, in.Tracks[p.ID]...)
	obj.Showers = append(obj.Showers, in.Showers[p.ID]...)
	if v := in.Vertices[p.ID]; len(v) > 0 {
		obj.Vertices[p.ID] = v
	}

	for _, id := range p.Daughters {
		d, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: %d (daughter of %d)", ErrMissingDaughter, id, p.ID)
		}
		if err := collect(byID, d, in, obj, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// IDs lists the PFParticle ids of the object.
func (o Object) IDs() []int {
	ids := make([]int, len(o.PFParticles))
	for i, p := range o.PFParticles {
		ids[i] = p.ID
	}
	return ids
}

// NuPFP returns the neutrino PFParticle of the object.
func (o Object) NuPFP() (event.PFParticle, bool) {
	for _, p := range o.PFParticles {
		if p.IsNeutrino() {
			return p, true
		}
	}
	return event.PFParticle{}, false
}

// NuVertex returns the vertex of the first neutrino PFParticle that has
// exactly one. Otherwise it returns event.Sentinel and false.
func (o Object) NuVertex() (r3.Vec, bool) {
	for _, p := range o.PFParticles {
		if !p.IsNeutrino() {
			continue
		}
		if v := o.Vertices[p.ID]; len(v) == 1 {
			return v[0].Position, true
		}
	}
	return event.Sentinel, false
}

// LongestTrack returns the first of the longest tracks.
func LongestTrack(tracks []event.Track) (event.Track, bool) {
	best := -1
	length := -1.0
	for i, t := range tracks {
		if l := t.Length(); l > length {
			length = l
			best = i
		}
	}
	if best < 0 {
		return event.Track{}, false
	}
	return tracks[best], true
}

// PlaneHits counts hits per wire plane.
type PlaneHits struct {
	U, V, W int
}

func (n *PlaneHits) add(h event.Hit) {
	switch h.View {
	case event.ViewU:
		n.U++
	case event.ViewV:
		n.V++
	case event.ViewW:
		n.W++
	}
}

// Max returns the largest of the three counts.
func (n PlaneHits) Max() int {
	return max(n.U, n.V, n.W)
}

func countHits(ids []int, hits map[int]event.Hit, n *PlaneHits) error {
	for _, id := range ids {
		h, ok := hits[id]
		if !ok {
			return fmt.Errorf("tpcobj: unknown hit %d", id)
		}
		n.add(h)
	}
	return nil
}

// HitsPerPlane counts the hits of all tracks and showers given.
func HitsPerPlane(tracks []event.Track, showers []event.Shower, hits map[int]event.Hit) (PlaneHits, error) {
	var n PlaneHits
	for _, t := range tracks {
		if err := countHits(t.Hits, hits, &n); err != nil {
			return n, fmt.Errorf("track %d: %w", t.ID, err)
		}
	}
	for _, s := range showers {
		if err := countHits(s.Hits, hits, &n); err != nil {
			return n, fmt.Errorf("shower %d: %w", s.ID, err)
		}
	}
	return n, nil
}

// TrackPassesHitRequirement reports whether any plane has more than
// nHitsReq hits of the track.
func TrackPassesHitRequirement(t event.Track, hits map[int]event.Hit, nHitsReq int) (bool, error) {
	n, err := HitsPerPlane([]event.Track{t}, nil, hits)
	if err != nil {
		return false, err
	}
	return n.Max() > nHitsReq, nil
}

func ShowerPassesHitRequirement(s event.Shower, hits map[int]event.Hit, nHitsReq int) (bool, error) {
	n, err := HitsPerPlane(nil, []event.Shower{s}, hits)
	if err != nil {
		return false, err
	}
	return n.Max() > nHitsReq, nil
}

// HitIndex maps hits by id.
func HitIndex(hits []event.Hit) map[int]event.Hit {
	idx := make(map[int]event.Hit, len(hits))
	for _, h := range hits {
		idx[h.ID] = h
	}
	return idx
}
