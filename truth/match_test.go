package truth

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/decibelcooper/ubxsec/event"
)

func TestMatchSimple(t *testing.T) {
	recoToHits := map[int][]int{
		1: {10, 11, 12, 13},
		2: {20, 21, 22},
	}
	hitToTrue := map[int]int{
		10: 100, 11: 100, 12: 100, 13: 200,
		20: 200, 21: 200, 22: 100,
	}

	res := Match(recoToHits, hitToTrue, Options{})
	want := Result{
		Particles: map[int]int{100: 1, 200: 2},
		Hits:      map[int][]int{100: {10, 11, 12}, 200: {20, 21}},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("match mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{100, 200}, res.True())
	assert.Equal(t, map[int]int{1: 100, 2: 200}, res.RecoToTrue())
}

func TestMatchLargerShareDisplaces(t *testing.T) {
	// Both reco particles prefer true 100; reco 2 shares more hits and
	// takes it, leaving reco 1 unmatched in a single pass.
	recoToHits := map[int][]int{
		1: {1, 2, 3},
		2: {4, 5, 6, 7, 8},
	}
	hitToTrue := map[int]int{1: 100, 2: 100, 3: 200, 4: 100, 5: 100, 6: 100, 7: 100, 8: 300}

	res := Match(recoToHits, hitToTrue, Options{})
	assert.Equal(t, map[int]int{100: 2}, res.Particles)
	assert.Equal(t, []int{4, 5, 6, 7}, res.Hits[100])

	// Recursion gives reco 1 its next best partner.
	res = Match(recoToHits, hitToTrue, Options{Recursive: true})
	assert.Equal(t, map[int]int{100: 2, 200: 1}, res.Particles)
	assert.Equal(t, []int{3}, res.Hits[200])
}

func TestMatchEqualShareKeepsFirst(t *testing.T) {
	recoToHits := map[int][]int{
		1: {1, 2},
		2: {3, 4},
	}
	hitToTrue := map[int]int{1: 100, 2: 100, 3: 100, 4: 100}

	res := Match(recoToHits, hitToTrue, Options{})
	assert.Equal(t, map[int]int{100: 1}, res.Particles)
}

func TestMatchTieBreakLowestTrueID(t *testing.T) {
	recoToHits := map[int][]int{1: {1, 2, 3, 4}}
	hitToTrue := map[int]int{1: 300, 2: 300, 3: 200, 4: 200}

	res := Match(recoToHits, hitToTrue, Options{})
	assert.Equal(t, map[int]int{200: 1}, res.Particles)
}

func TestMatchVeto(t *testing.T) {
	recoToHits := map[int][]int{
		1: {1, 2, 3},
		2: {4, 5},
	}
	hitToTrue := map[int]int{1: 100, 2: 100, 3: 200, 4: 200, 5: 300}

	trueVeto := map[int]bool{100: true}
	res := Match(recoToHits, hitToTrue, Options{
		RecoVeto: map[int]bool{2: true},
		TrueVeto: trueVeto,
	})
	assert.Equal(t, map[int]int{200: 1}, res.Particles)
	assert.Equal(t, map[int]bool{100: true}, trueVeto, "caller veto set untouched")
}

func TestMatchNoTruth(t *testing.T) {
	res := Match(map[int][]int{1: {1, 2}}, map[int]int{}, Options{Recursive: true})
	assert.Empty(t, res.Particles)
	assert.Empty(t, res.Hits)

	res = Match(nil, nil, Options{})
	assert.Empty(t, res.Particles)
}

func randomInput(rng *rand.Rand) (map[int][]int, map[int]int) {
	nReco := 1 + rng.Intn(8)
	nTrue := 1 + rng.Intn(6)
	recoToHits := make(map[int][]int)
	hitToTrue := make(map[int]int)
	hit := 0
	for r := 0; r < nReco; r++ {
		n := rng.Intn(12)
		for i := 0; i < n; i++ {
			recoToHits[r] = append(recoToHits[r], hit)
			if rng.Intn(10) > 0 {
				hitToTrue[hit] = rng.Intn(nTrue)
			}
			hit++
		}
	}
	return recoToHits, hitToTrue
}

func TestMatchProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		recoToHits, hitToTrue := randomInput(rng)
		for _, recursive := range []bool{false, true} {
			opts := Options{Recursive: recursive}
			res := Match(recoToHits, hitToTrue, opts)

			// At most one reco particle per true particle, and each reco
			// particle matched at most once.
			used := make(map[int]int)
			for tid, rid := range res.Particles {
				if prev, dup := used[rid]; dup {
					t.Fatalf("reco %d matched to both %d and %d", rid, prev, tid)
				}
				used[rid] = tid
				require.Contains(t, res.Hits, tid)
				for _, h := range res.Hits[tid] {
					require.Equal(t, tid, hitToTrue[h])
				}
			}

			// Deterministic.
			again := Match(recoToHits, hitToTrue, opts)
			if diff := cmp.Diff(res, again); diff != "" {
				t.Fatalf("non-deterministic match:\n%s", diff)
			}
		}

		// Recursion keeps every first-pass match.
		first := Match(recoToHits, hitToTrue, Options{})
		all := Match(recoToHits, hitToTrue, Options{Recursive: true})
		for tid, rid := range first.Particles {
			require.Equal(t, rid, all.Particles[tid])
			require.Equal(t, first.Hits[tid], all.Hits[tid])
		}
	}
}

func hitMapRecord() *event.Record {
	return &event.Record{
		PFParticles: map[string][]event.PFParticle{
			"pandoraNu": {
				{ID: 0, PdgCode: 14, Parent: event.NoParent, Daughters: []int{1, 2}},
				{ID: 1, PdgCode: 13, Parent: 0, Daughters: []int{3}},
				{ID: 2, PdgCode: 2212, Parent: 0},
				{ID: 3, PdgCode: 11, Parent: 1},
			},
		},
		SpacePoints: map[string][]event.SpacePoint{
			"pandoraNu": {
				{ID: 0, PFParticle: 1, Position: r3.Vec{}, Hits: []int{1, 2}},
				{ID: 1, PFParticle: 2, Hits: []int{3}},
				{ID: 2, PFParticle: 3, Hits: []int{4, 2}},
			},
		},
		MCParticles: map[string][]event.MCParticle{
			"largeant": {
				{TrackID: 1, PdgCode: 13, Mother: 0, Origin: event.OriginBeamNeutrino},
				{TrackID: 2, PdgCode: 2212, Mother: 0, Origin: event.OriginBeamNeutrino},
				{TrackID: 5, PdgCode: 11, Mother: 1, Origin: event.OriginBeamNeutrino},
			},
		},
		HitTruth: map[string][]event.HitTruth{
			"gaushitTruthMatch": {
				{Hit: 1, IDEs: []event.TrackIDE{{TrackID: 1, Energy: 2}, {TrackID: 2, Energy: 0.1}}},
				{Hit: 2, IDEs: []event.TrackIDE{{TrackID: 1, Energy: 1}}},
				{Hit: 3, IDEs: []event.TrackIDE{{TrackID: 2, Energy: 3}}},
				{Hit: 4, IDEs: []event.TrackIDE{{TrackID: -5, Energy: 0.5}}},
			},
		},
		SimEnergy: map[int]float64{1: 6, 2: 3, 5: 1},
	}
}

var testLabels = Labels{
	PFParticle: "pandoraNu",
	SpacePoint: "pandoraNu",
	Hit:        "gaushit",
	MCParticle: "largeant",
	HitTruth:   "gaushitTruthMatch",
}

func TestHitMapsFolded(t *testing.T) {
	m, err := HitMaps(hitMapRecord(), testLabels, true)
	require.NoError(t, err)

	wantReco := map[int][]int{1: {1, 2, 4}, 2: {3}}
	if diff := cmp.Diff(wantReco, m.RecoToHits); diff != "" {
		t.Errorf("reco hits (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 2, 4: 1}, m.HitToTrue)

	res := Match(m.RecoToHits, m.HitToTrue, Options{Recursive: true})
	assert.Equal(t, map[int]int{1: 1, 2: 2}, res.Particles)
}

func TestHitMapsParentCycle(t *testing.T) {
	rec := hitMapRecord()
	rec.PFParticles["pandoraNu"] = []event.PFParticle{
		{ID: 1, PdgCode: 13, Parent: 2, Daughters: []int{2}},
		{ID: 2, PdgCode: 2212, Parent: 1, Daughters: []int{1}},
	}
	rec.SpacePoints["pandoraNu"] = []event.SpacePoint{{ID: 0, PFParticle: 1, Hits: []int{1}}}

	_, err := HitMaps(rec, testLabels, true)
	assert.ErrorContains(t, err, "parent cycle")

	m, err := HitMaps(rec, testLabels, false)
	require.NoError(t, err)
	assert.Equal(t, map[int][]int{1: {1}}, m.RecoToHits)
}

func TestHitMapsUnfolded(t *testing.T) {
	m, err := HitMaps(hitMapRecord(), testLabels, false)
	require.NoError(t, err)

	wantReco := map[int][]int{1: {1, 2}, 2: {3}, 3: {4, 2}}
	if diff := cmp.Diff(wantReco, m.RecoToHits); diff != "" {
		t.Errorf("reco hits (-want +got):\n%s", diff)
	}
	assert.Equal(t, 5, m.HitToTrue[4])
}

func TestHitMapsRealData(t *testing.T) {
	rec := hitMapRecord()
	rec.RealData = true
	m, err := HitMaps(rec, testLabels, true)
	require.NoError(t, err)
	assert.NotEmpty(t, m.RecoToHits)
	assert.Empty(t, m.HitToTrue)
}

func TestHitMapsMissingProduct(t *testing.T) {
	labels := testLabels
	labels.HitTruth = "nope"
	_, err := HitMaps(hitMapRecord(), labels, true)
	assert.True(t, errors.Is(err, event.ErrProductNotFound))
}

func TestPurityEfficiency(t *testing.T) {
	rec := hitMapRecord()
	bt := NewBackTracker(rec, testLabels.HitTruth)

	purity, eff, id, err := PurityEfficiency([]int{1, 2, 3}, bt)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	// track 1: 3, track 2: 3.1
	assert.InDelta(t, 3.1/6.1, purity, 1e-12)
	assert.InDelta(t, 3.1/3, eff, 1e-12)

	purity, eff, id, err = PurityEfficiency([]int{1, 2}, bt)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.InDelta(t, 3/3.1, purity, 1e-12)
	assert.InDelta(t, 0.5, eff, 1e-12)

	_, _, _, err = PurityEfficiency([]int{99}, bt)
	assert.ErrorIs(t, err, ErrNoTruth)
}

func TestClassify(t *testing.T) {
	nu := []int{1, 2}
	cosmic := []int{7}
	assert.Equal(t, BeamNeutrino, Classify(nu, cosmic, []int{0, 1, 2}))
	assert.Equal(t, CosmicRay, Classify(nu, cosmic, []int{6, 7}))
	assert.Equal(t, Mixed, Classify(nu, cosmic, []int{1, 7}))
	assert.Equal(t, Unknown, Classify(nu, cosmic, []int{3, 4}))
	assert.Equal(t, "mixed", Mixed.String())
}

func TestOriginLists(t *testing.T) {
	res := Result{Particles: map[int]int{1: 10, 2: 11, 3: 12}}
	mcps := []event.MCParticle{
		{TrackID: 1, Origin: event.OriginBeamNeutrino},
		{TrackID: 2, Origin: event.OriginCosmic},
		{TrackID: 3, Origin: event.OriginUnknown},
	}
	nu, cosmic := OriginLists(res, mcps)
	assert.Equal(t, []int{10}, nu)
	assert.Equal(t, []int{11}, cosmic)
}
