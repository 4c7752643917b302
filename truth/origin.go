package truth

import (
	"sort"

	"github.com/decibelcooper/ubxsec/event"
)

// SliceOrigin classifies a TPC object by where its matched particles came
// from.
type SliceOrigin int

const (
	Unknown SliceOrigin = iota - 1
	BeamNeutrino
	CosmicRay
	Mixed
)

func (o SliceOrigin) String() string {
	switch o {
	case BeamNeutrino:
		return "beam-neutrino"
	case CosmicRay:
		return "cosmic"
	case Mixed:
		return "mixed"
	}
	return "unknown"
}

// Classify counts how many PFParticles of slice are in nuPFPs and in
// cosmicPFPs.
func Classify(nuPFPs, cosmicPFPs, slice []int) SliceOrigin {
	nu, cosmic := 0, 0
	for _, p := range slice {
		for _, n := range nuPFPs {
			if n == p {
				nu++
			}
		}
		for _, c := range cosmicPFPs {
			if c == p {
				cosmic++
			}
		}
	}

	switch {
	case nu > 0 && cosmic > 0:
		return Mixed
	case nu > 0:
		return BeamNeutrino
	case cosmic > 0:
		return CosmicRay
	}
	return Unknown
}

// OriginLists splits the reconstructed particles of a match by the
// generator origin of their true partner. Both lists are sorted.
func OriginLists(res Result, mcps []event.MCParticle) (nu, cosmic []int) {
	origin := make(map[int]event.Origin, len(mcps))
	for _, p := range mcps {
		origin[p.TrackID] = p.Origin
	}
	for t, p := range res.Particles {
		switch origin[t] {
		case event.OriginBeamNeutrino:
			nu = append(nu, p)
		case event.OriginCosmic:
			cosmic = append(cosmic, p)
		}
	}
	sort.Ints(nu)
	sort.Ints(cosmic)
	return nu, cosmic
}
