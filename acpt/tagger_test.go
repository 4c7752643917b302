package acpt

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/decibelcooper/ubxsec/event"
)

const vDrift = 0.1 // cm/µs

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DriftVelocity = vDrift
	return cfg
}

func newTagger(t *testing.T) *Tagger {
	tg, err := New(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return tg
}

func cosmicRecord() *event.Record {
	return &event.Record{
		ID: event.ID{Run: 7, SubRun: 1, Event: 42},
		Flashes: map[string][]event.OpFlash{
			"simpleFlashCosmic": {
				{Time: 10, TotalPE: 200, ZCenter: 500, ZWidth: 40},
				{Time: 300, TotalPE: 0, ZCenter: 100, ZWidth: 40}, // below threshold
				{Time: 500, TotalPE: 80, ZCenter: 900, ZWidth: 60},
			},
		},
		PFParticles: map[string][]event.PFParticle{
			"pandoraCosmic": {
				{ID: 0, PdgCode: 13, Parent: event.NoParent},
				{ID: 1, PdgCode: 13, Parent: event.NoParent},
				{ID: 2, PdgCode: 13, Parent: event.NoParent},
				{ID: 3, PdgCode: 13, Parent: event.NoParent},
			},
		},
		Tracks: map[string][]event.Track{
			"pandoraCosmic": {
				// Enters through the anode at the time of flash 0, stored
				// bottom-up.
				{ID: 10, PFParticle: 0, Points: []r3.Vec{
					{X: 50, Y: -100, Z: 520},
					{X: 25, Y: 0, Z: 500},
					{X: 1.053, Y: 100, Z: 480},
				}},
				// Leaves through the cathode 2291 µs after flash 2.
				{ID: 11, PFParticle: 1, Points: []r3.Vec{
					{X: 200, Y: 110, Z: 880},
					{X: 279.1, Y: -50, Z: 900},
				}},
				// In the middle of the drift volume, no match.
				{ID: 12, PFParticle: 2, Points: []r3.Vec{
					{X: 100, Y: 90, Z: 300},
					{X: 120, Y: -90, Z: 320},
				}},
				// Right time for flash 0 at the anode, but far in z.
				{ID: 13, PFParticle: 3, Points: []r3.Vec{
					{X: 1.053, Y: 100, Z: 50},
					{X: 40, Y: -80, Z: 60},
				}},
				{ID: 14, PFParticle: 0, Points: []r3.Vec{
					{X: 100, Y: 90, Z: 300},
					{X: 120, Y: -90, Z: 320},
				}},
			},
		},
		SWTriggers: map[string]*event.SWTrigger{
			"swtrigger": {Algorithms: []string{"EXT_unbiased", "BNB"}, Passed: []string{"EXT_unbiased"}},
		},
	}
}

func TestSortPoints(t *testing.T) {
	down := []r3.Vec{{Y: 10}, {Y: 5}, {Y: -3}}
	assert.Equal(t, down, SortPoints(down))

	up := []r3.Vec{{X: 1, Y: -3}, {X: 2, Y: 5}, {X: 3, Y: 10}}
	assert.Equal(t, []r3.Vec{{X: 3, Y: 10}, {X: 2, Y: 5}, {X: 1, Y: -3}}, SortPoints(up))

	flat := []r3.Vec{{X: 1}, {X: 2}}
	assert.Equal(t, []r3.Vec{{X: 2}, {X: 1}}, SortPoints(flat), "equal heights are flipped")

	assert.Empty(t, SortPoints(nil))

	// input untouched
	assert.Equal(t, 1.0, up[0].X)
}

func TestClosest(t *testing.T) {
	res := Closest(2, 0, 100, vDrift, nil)
	assert.False(t, res.Found)
	assert.Equal(t, -1, res.Flash)

	flashes := []Flash{{Time: 18, ZCenter: 50}, {Time: 22, ZCenter: 70}, {Time: 5, ZCenter: 0}}

	// x/v = 20: residuals 2, -2, 15 against offset 0; the first of the
	// two equally close flashes wins.
	res = Closest(2, 0, 100, vDrift, flashes)
	require.True(t, res.Found)
	assert.Equal(t, 0, res.Flash)
	assert.InDelta(t, 2, res.Dt, 1e-9)
	assert.InDelta(t, 50, res.Dz, 1e-9)

	// With an offset of 14 the third flash is closest.
	res = Closest(2, 14, 100, vDrift, flashes)
	assert.Equal(t, 2, res.Flash)
	assert.InDelta(t, 15, res.Dt, 1e-9)
	assert.InDelta(t, 100, res.Dz, 1e-9)
}

func TestClosestIsGlobalMinimum(t *testing.T) {
	flashes := []Flash{{Time: -400}, {Time: 3}, {Time: 1200}, {Time: 2.5}, {Time: 900}}
	for _, x := range []float64{0, 0.3, 12, 99, 180, 256} {
		for _, off := range []float64{0.53, 2291} {
			res := Closest(x, off, 0, vDrift, flashes)
			require.True(t, res.Found)
			best := res.Dt - off
			if best < 0 {
				best = -best
			}
			for _, f := range flashes {
				d := x/vDrift - f.Time - off
				if d < 0 {
					d = -d
				}
				assert.LessOrEqual(t, best, d)
			}
		}
	}
}

func TestProduce(t *testing.T) {
	tg := newTagger(t)
	out, err := tg.Produce(cosmicRecord())
	require.NoError(t, err)

	require.Len(t, out.Tags, 2)
	assert.Equal(t, 0, out.Tags[0].PFParticle)
	assert.Equal(t, []int{10, 14}, out.Tags[0].Tracks)
	assert.Equal(t, 1, out.Tags[1].PFParticle)
	assert.Equal(t, []int{11}, out.Tags[1].Tracks)
	for _, tag := range out.Tags {
		assert.Equal(t, event.Sentinel, tag.EndPt1)
		assert.Equal(t, event.Sentinel, tag.EndPt2)
		assert.Equal(t, 1.0, tag.Score)
		assert.Equal(t, TagGeometryXY, tag.Type)
	}

	row := out.Row
	assert.Equal(t, int64(7), row.Run)
	assert.Equal(t, int64(42), row.Event)
	assert.True(t, row.SWTrigger)
	assert.Equal(t, vDrift, row.DriftVel)
	assert.Equal(t, int32(2), row.NFlash)
	assert.Equal(t, []float64{10, 500}, row.FlashTimes)

	// Tracks are visited PFParticle by PFParticle.
	assert.Equal(t, int32(5), row.NTrk)
	require.Len(t, row.DtUAnode, 5)
	assert.InDelta(t, 1.053, row.TrkXUp[0], 1e-12)
	assert.InDelta(t, 50, row.TrkXDown[0], 1e-12)
	assert.InDelta(t, 500, row.TrkZCenter[0], 1e-12)
	assert.InDelta(t, 0.53, row.DtUAnode[0], 1e-9)
	assert.InDelta(t, 0, row.DzUAnode[0], 1e-9)

	// Second entry is track 14, the second track of PFParticle 0.
	assert.InDelta(t, 100, row.TrkXUp[1], 1e-12)

	// Track 11 down end against the cathode.
	assert.InDelta(t, 2291, row.DtDCathode[2], 1e-9)
	assert.InDelta(t, -10, row.DzDCathode[2], 1e-9)
}

func TestProduceNoFlashes(t *testing.T) {
	rec := cosmicRecord()
	rec.Flashes["simpleFlashCosmic"] = nil

	out, err := newTagger(t).Produce(rec)
	require.NoError(t, err)
	assert.Empty(t, out.Tags)
	assert.Equal(t, int32(0), out.Row.NFlash)
	for _, v := range out.Row.DtUAnode {
		assert.Equal(t, float64(NotFound), v)
	}
}

func TestProducePEThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.PEMin = 100
	tg, err := New(cfg, nil)
	require.NoError(t, err)

	out, err := tg.Produce(cosmicRecord())
	require.NoError(t, err)
	// Flash 2 (80 PE) is gone, so the cathode crosser is no longer tagged.
	require.Len(t, out.Tags, 1)
	assert.Equal(t, 0, out.Tags[0].PFParticle)
}

func TestProduceMissingProducts(t *testing.T) {
	tg := newTagger(t)

	rec := cosmicRecord()
	delete(rec.Flashes, "simpleFlashCosmic")
	_, err := tg.Produce(rec)
	assert.True(t, errors.Is(err, event.ErrProductNotFound))

	rec = cosmicRecord()
	delete(rec.PFParticles, "pandoraCosmic")
	_, err = tg.Produce(rec)
	assert.True(t, errors.Is(err, event.ErrProductNotFound))

	rec = cosmicRecord()
	rec.SWTriggers = nil
	out, err := tg.Produce(rec)
	require.NoError(t, err)
	assert.False(t, out.Row.SWTrigger)
	assert.Len(t, out.Tags, 2)
}

func TestTaggedWindowsAreOpen(t *testing.T) {
	tg := newTagger(t)
	cfg := tg.Config()

	edge := TrackResult{UpAnode: Residual{Found: true, Dt: cfg.AnodeTime + cfg.DtResolutionAnode, Dz: 0}}
	assert.False(t, tg.Tagged(edge))

	edge = TrackResult{UpAnode: Residual{Found: true, Dt: cfg.AnodeTime, Dz: cfg.DzResolutionAnode}}
	assert.False(t, tg.Tagged(edge))

	inside := TrackResult{DownCathode: Residual{Found: true, Dt: cfg.CathodeTime + 4.9, Dz: -79.9}}
	assert.True(t, tg.Tagged(inside))

	notFound := TrackResult{UpAnode: Residual{Found: false, Dt: cfg.AnodeTime}}
	assert.False(t, tg.Tagged(notFound))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.DriftVelocity = 0
	_, err := New(cfg, nil)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.DzResolutionCathode = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.TrackProducer = ""
	assert.Error(t, cfg.Validate())
}

func TestHistograms(t *testing.T) {
	tg := newTagger(t)
	out, err := tg.Produce(cosmicRecord())
	require.NoError(t, err)

	h := NewHistograms(tg.Config())
	h.Fill(out.Row)
	// Two anode and two cathode residuals per track, all found.
	assert.Equal(t, int64(10), h.DtAnode.Entries())
	assert.Equal(t, int64(10), h.DzCathode.Entries())
	assert.Equal(t, int64(10), h.DtDzAnode.Entries())

	assert.Same(t, h.DzCathode, h.H1D("dz_cathode"))
	assert.Nil(t, h.H1D("dt_dz_anode"))
}

func TestTreeRoundTrip(t *testing.T) {
	tg := newTagger(t)
	out, err := tg.Produce(cosmicRecord())
	require.NoError(t, err)

	empty := cosmicRecord()
	empty.ID.Run = 1<<32 + 7
	empty.ID.Event = 43
	empty.Tracks["pandoraCosmic"] = nil
	out2, err := tg.Produce(empty)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<32+7), out2.Row.Run)

	path := filepath.Join(t.TempDir(), "acpt.root")
	tw, err := CreateTree(path)
	require.NoError(t, err)
	require.NoError(t, tw.Fill(out.Row))
	require.NoError(t, tw.Fill(out2.Row))

	h := NewHistograms(tg.Config())
	h.Fill(out.Row)
	require.NoError(t, tw.PutHistograms(h))
	require.NoError(t, tw.Close())

	rows, err := ReadRows(path)
	require.NoError(t, err)
	want := []Row{out.Row, out2.Row}
	if diff := cmp.Diff(want, rows, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}
