package geom

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/decibelcooper/ubxsec/event"
)

var ErrNoChannel = errors.New("geom: no channel found")

// SpacePointChannels is a Geometry built from reconstructed space points:
// the channel nearest to a point on a plane is the channel of the hit, on
// that plane, of the closest space point having one.
type SpacePointChannels struct {
	sps  []event.SpacePoint
	hits map[int]event.Hit
}

func NewSpacePointChannels(sps []event.SpacePoint, hits []event.Hit) *SpacePointChannels {
	g := &SpacePointChannels{sps: sps, hits: make(map[int]event.Hit, len(hits))}
	for _, h := range hits {
		g.hits[h.ID] = h
	}
	return g
}

func (g *SpacePointChannels) NearestChannel(p r3.Vec, plane int) (uint32, error) {
	var (
		ch    uint32
		found bool
		min   = math.Inf(1)
	)
	for _, sp := range g.sps {
		d := r3.Norm(r3.Sub(p, sp.Position))
		if d >= min {
			continue
		}
		for _, id := range sp.Hits {
			h, ok := g.hits[id]
			if !ok || int(h.View) != plane {
				continue
			}
			ch, found, min = h.Channel, true, d
			break
		}
	}
	if !found {
		return 0, ErrNoChannel
	}
	return ch, nil
}
