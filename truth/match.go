// Package truth associates reconstructed PFParticles with the simulated
// particles that produced their hits.
package truth

import (
	"sort"
)

// Options steer Match.
type Options struct {
	// Recursive repeats the greedy assignment over the particles left
	// unmatched until a pass finds nothing new.
	Recursive bool

	// Particles listed here are never matched. Match adds every matched
	// particle to them when recursing.
	RecoVeto map[int]bool
	TrueVeto map[int]bool
}

// Result maps true particle ids to the reconstructed particle matched to
// them and to the hits they share.
type Result struct {
	Particles map[int]int
	Hits      map[int][]int
}

// True returns the matched true particle ids in ascending order.
func (r Result) True() []int {
	ids := make([]int, 0, len(r.Particles))
	for id := range r.Particles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// RecoToTrue inverts Particles.
func (r Result) RecoToTrue() map[int]int {
	out := make(map[int]int, len(r.Particles))
	for t, p := range r.Particles {
		out[p] = t
	}
	return out
}

// Match assigns reconstructed particles to true particles by shared hits.
//
// recoToHits lists the hits of every reconstructed particle; hitToTrue
// gives, for every hit with simulated charge, the true particle that
// deposited most of it. Each reconstructed particle votes for the true
// particle sharing the most of its hits; a true particle keeps the
// reconstructed particle with the largest share. Ties go to the lower id.
// The assignment is greedy, not a maximum-weight matching.
func Match(recoToHits map[int][]int, hitToTrue map[int]int, opts Options) Result {
	res := Result{
		Particles: make(map[int]int),
		Hits:      make(map[int][]int),
	}

	recoVeto := copySet(opts.RecoVeto)
	trueVeto := copySet(opts.TrueVeto)

	reco := make([]int, 0, len(recoToHits))
	for id := range recoToHits {
		reco = append(reco, id)
	}
	sort.Ints(reco)

	for {
		if !matchPass(reco, recoToHits, hitToTrue, recoVeto, trueVeto, res) {
			return res
		}
		for t, p := range res.Particles {
			trueVeto[t] = true
			recoVeto[p] = true
		}
		if !opts.Recursive {
			return res
		}
	}
}

func matchPass(reco []int, recoToHits map[int][]int, hitToTrue map[int]int, recoVeto, trueVeto map[int]bool, res Result) bool {
	found := false

	for _, recoID := range reco {
		if recoVeto[recoID] {
			continue
		}

		contrib := make(map[int][]int)
		for _, hit := range recoToHits[recoID] {
			trueID, ok := hitToTrue[hit]
			if !ok || trueVeto[trueID] {
				continue
			}
			contrib[trueID] = append(contrib[trueID], hit)
		}
		if len(contrib) == 0 {
			continue
		}

		candidates := make([]int, 0, len(contrib))
		for id := range contrib {
			candidates = append(candidates, id)
		}
		sort.Ints(candidates)

		best := candidates[0]
		for _, id := range candidates[1:] {
			if len(contrib[id]) > len(contrib[best]) {
				best = id
			}
		}

		prev, matched := res.Hits[best]
		if !matched || len(contrib[best]) > len(prev) {
			res.Particles[best] = recoID
			res.Hits[best] = contrib[best]
			found = true
		}
	}
	return found
}

func copySet(s map[int]bool) map[int]bool {
	out := make(map[int]bool, len(s))
	for k, v := range s {
		if v {
			out[k] = true
		}
	}
	return out
}
