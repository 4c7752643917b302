// Package proioin builds truth matching inputs from proio files written
// with the eic data model.
//
// Reconstructed tracks play the role of the reconstructed particles, the
// energy depositions they observe play the role of hits, and each
// deposition is attributed to the simulated particle that made most of
// its SimHit sources.
package proioin

import (
	"fmt"
	"io"
	"sort"

	"github.com/proio-org/go-proio"
	"github.com/proio-org/go-proio-pb/model/eic"

	"github.com/decibelcooper/ubxsec/truth"
)

// Default entry tags.
const (
	TagReconstructed = "Reconstructed"
	TagGenStable     = "GenStable"
)

// Event is what Scan hands over for every proio event.
type Event struct {
	Index int
	Maps  truth.Maps
	// PDG codes of the particles referenced by Maps.HitToTrue.
	PDG map[int]int
}

type entries struct {
	tagged func(tag string) []uint64
	get    func(id uint64) any
}

func fromEvent(ev *proio.Event) entries {
	return entries{
		tagged: ev.TaggedEntries,
		get:    func(id uint64) any { return ev.GetEntry(id) },
	}
}

// Scan reads the proio file at path and calls fn for every event in file
// order. Tracks are taken from the entries tagged recoTag.
func Scan(path, recoTag string, fn func(Event) error) error {
	reader, err := proio.Open(path)
	if err != nil {
		return fmt.Errorf("proioin: could not open %q: %w", path, err)
	}
	defer reader.Close()

	i := 0
	for ev := range reader.ScanEvents() {
		if err := fn(build(i, fromEvent(ev), recoTag)); err != nil {
			return err
		}
		i++
	}

	for {
		select {
		case err := <-reader.Err:
			if err != io.EOF {
				return fmt.Errorf("proioin: could not read %q: %w", path, err)
			}
		default:
			return nil
		}
	}
}

func build(index int, ents entries, recoTag string) Event {
	out := Event{
		Index: index,
		Maps: truth.Maps{
			RecoToHits: make(map[int][]int),
			HitToTrue:  make(map[int]int),
		},
		PDG: make(map[int]int),
	}

	ids := append([]uint64(nil), ents.tagged(recoTag)...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		track, ok := ents.get(id).(*eic.Track)
		if !ok {
			continue
		}

		var hits []int
		for _, obsID := range track.Observation {
			eDep, ok := ents.get(obsID).(*eic.EnergyDep)
			if !ok {
				continue
			}
			hits = append(hits, int(obsID))

			if _, done := out.Maps.HitToTrue[int(obsID)]; done {
				continue
			}
			if part, ok := dominant(eDep, ents); ok {
				out.Maps.HitToTrue[int(obsID)] = part
			}
		}
		if len(hits) > 0 {
			out.Maps.RecoToHits[int(id)] = hits
		}
	}

	for _, part := range out.Maps.HitToTrue {
		if _, done := out.PDG[part]; done {
			continue
		}
		if p, ok := ents.get(uint64(part)).(*eic.Particle); ok {
			out.PDG[part] = int(p.GetPdg())
		}
	}
	return out
}

// dominant returns the particle with most SimHit sources in eDep, the
// lowest id on ties.
func dominant(eDep *eic.EnergyDep, ents entries) (int, bool) {
	count := make(map[uint64]int)
	for _, srcID := range eDep.Source {
		simHit, ok := ents.get(srcID).(*eic.SimHit)
		if !ok {
			continue
		}
		count[simHit.GetParticle()]++
	}

	var (
		best  uint64
		nBest int
	)
	for id, n := range count {
		if n > nBest || (n == nBest && id < best) {
			best, nBest = id, n
		}
	}
	return int(best), nBest > 0
}
