package truth

import (
	"errors"
	"fmt"
	"sort"

	"github.com/decibelcooper/ubxsec/event"
)

var ErrNoTruth = errors.New("truth: no simulated energy")

// Labels name the products HitMaps reads.
type Labels struct {
	PFParticle string `yaml:"pfparticle"`
	SpacePoint string `yaml:"spacepoint"`
	Hit        string `yaml:"hit"`
	MCParticle string `yaml:"mcparticle"`
	HitTruth   string `yaml:"hit_truth"`
}

// Maps are the inputs of Match built from one event.
type Maps struct {
	RecoToHits map[int][]int
	HitToTrue  map[int]int
}

// HitMaps builds the reconstructed-particle hit lists and the hit to
// dominant true particle table of rec.
//
// With foldDaughters, hits of daughter PFParticles are credited to their
// final-state ancestor (a primary, or a child of the neutrino) and true
// particles are replaced by their primary ancestor. Real data has no
// truth, so HitToTrue is empty.
func HitMaps(rec *event.Record, labels Labels, foldDaughters bool) (Maps, error) {
	m := Maps{
		RecoToHits: make(map[int][]int),
		HitToTrue:  make(map[int]int),
	}

	pfps, err := rec.PFParticlesByLabel(labels.PFParticle)
	if err != nil {
		return m, err
	}
	byID := make(map[int]event.PFParticle, len(pfps))
	for _, p := range pfps {
		byID[p.ID] = p
	}

	pfpHits, err := rec.HitsByPFParticle(labels.SpacePoint)
	if err != nil {
		return m, err
	}

	ids := make([]int, 0, len(pfpHits))
	for id := range pfpHits {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	seen := make(map[int]map[int]bool)
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return m, fmt.Errorf("truth: space points refer to unknown pfparticle %d", id)
		}
		if p.IsNeutrino() {
			continue
		}
		owner := id
		if foldDaughters {
			fs, err := finalState(byID, p)
			if err != nil {
				return m, err
			}
			owner = fs.ID
		}
		if seen[owner] == nil {
			seen[owner] = make(map[int]bool)
		}
		for _, h := range pfpHits[id] {
			if seen[owner][h] {
				continue
			}
			seen[owner][h] = true
			m.RecoToHits[owner] = append(m.RecoToHits[owner], h)
		}
	}

	if rec.RealData {
		return m, nil
	}

	mcps, err := rec.MCParticlesByLabel(labels.MCParticle)
	if err != nil {
		return m, err
	}
	mothers := make(map[int]int, len(mcps))
	for _, p := range mcps {
		mothers[p.TrackID] = p.Mother
	}

	truths, ok := rec.HitTruth[labels.HitTruth]
	if !ok {
		return m, fmt.Errorf("%w: hit truth with label %q", event.ErrProductNotFound, labels.HitTruth)
	}
	for _, ht := range truths {
		id, ok := dominant(ht.IDEs)
		if !ok {
			continue
		}
		if foldDaughters {
			id = primary(mothers, id)
		}
		m.HitToTrue[ht.Hit] = id
	}
	return m, nil
}

// finalState walks up the hierarchy until it reaches a primary particle or
// a direct daughter of a primary neutrino.
func finalState(byID map[int]event.PFParticle, p event.PFParticle) (event.PFParticle, error) {
	start := p.ID
	for i := 0; !p.IsPrimary(); i++ {
		if i > len(byID) {
			return p, fmt.Errorf("truth: parent cycle through pfparticle %d", start)
		}
		parent, ok := byID[p.Parent]
		if !ok {
			return p, nil
		}
		if parent.IsPrimary() && parent.IsNeutrino() {
			return p, nil
		}
		p = parent
	}
	return p, nil
}

// primary follows the mother chain of a simulated particle up to the
// particle whose mother was not simulated.
func primary(mothers map[int]int, id int) int {
	for i := 0; i < len(mothers); i++ {
		m, ok := mothers[id]
		if !ok {
			return id
		}
		if _, ok := mothers[m]; !ok {
			return id
		}
		id = m
	}
	return id
}

// dominant returns the true particle that deposited the most energy. EM
// shower daughters carry the negated id of the particle they belong to.
func dominant(ides []event.TrackIDE) (int, bool) {
	best, bestE := 0, -1.0
	for _, ide := range ides {
		id := ide.TrackID
		if id < 0 {
			id = -id
		}
		if ide.Energy > bestE || (ide.Energy == bestE && id < best) {
			best, bestE = id, ide.Energy
		}
	}
	return best, bestE >= 0
}

// BackTracker reports the simulated energy behind reconstructed hits.
type BackTracker interface {
	HitIDEs(hit int) []event.TrackIDE
	TrackEnergy(trackID int) float64
}

type recordBackTracker struct {
	ides   map[int][]event.TrackIDE
	energy map[int]float64
}

// NewBackTracker serves the back-tracking information stored in rec under
// label.
func NewBackTracker(rec *event.Record, label string) BackTracker {
	bt := recordBackTracker{
		ides:   make(map[int][]event.TrackIDE),
		energy: rec.SimEnergy,
	}
	for _, ht := range rec.HitTruth[label] {
		bt.ides[ht.Hit] = append(bt.ides[ht.Hit], ht.IDEs...)
	}
	return bt
}

func (bt recordBackTracker) HitIDEs(hit int) []event.TrackIDE { return bt.ides[hit] }
func (bt recordBackTracker) TrackEnergy(id int) float64       { return bt.energy[id] }

// PurityEfficiency measures how well a set of hits reconstructs the true
// particle that dominates it. Purity is the fraction of the deposited
// energy in the hits coming from that particle, efficiency the fraction of
// that particle's total deposited energy found in the hits.
func PurityEfficiency(hits []int, bt BackTracker) (purity, efficiency float64, trackID int, err error) {
	energy := make(map[int]float64)
	for _, h := range hits {
		for _, ide := range bt.HitIDEs(h) {
			energy[ide.TrackID] += ide.Energy
		}
	}
	if len(energy) == 0 {
		return 0, 0, 0, ErrNoTruth
	}

	ids := make([]int, 0, len(energy))
	for id := range energy {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	maxe, tote := -1.0, 0.0
	for _, id := range ids {
		tote += energy[id]
		if energy[id] > maxe {
			maxe = energy[id]
			trackID = id
		}
	}
	if tote > 0 {
		purity = maxe / tote
	}

	total := bt.TrackEnergy(trackID)
	if total <= 0 {
		return purity, 0, trackID, fmt.Errorf("%w: track %d", ErrNoTruth, trackID)
	}
	return purity, maxe / total, trackID, nil
}
