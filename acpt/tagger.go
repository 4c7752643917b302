// Package acpt tags anode- and cathode-piercing cosmic tracks.
//
// A cosmic muon crossing the anode (or the cathode) deposits charge at
// the drift coordinate matching the time of its flash (plus the drift
// time across the full TPC for the cathode). For every track the top and
// bottom endpoints are converted to a time with the drift velocity and
// compared with the closest selected flash; a track whose endpoint lines
// up with a flash in both time and z is tagged as cosmic.
package acpt

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/decibelcooper/ubxsec/event"
)

// Config holds the tagger parameters. Times are in µs, distances in cm.
type Config struct {
	FlashProducer     string `yaml:"flash_producer"`
	PFPartProducer    string `yaml:"pfpart_producer"`
	TrackProducer     string `yaml:"track_producer"`
	SWTriggerProducer string `yaml:"swtrigger_producer"`

	AnodeTime   float64 `yaml:"anode_time"`
	CathodeTime float64 `yaml:"cathode_time"`

	DtResolutionAnode   float64 `yaml:"dt_resolution_anode"`
	DzResolutionAnode   float64 `yaml:"dz_resolution_anode"`
	DtResolutionCathode float64 `yaml:"dt_resolution_cathode"`
	DzResolutionCathode float64 `yaml:"dz_resolution_cathode"`

	PEMin         float64 `yaml:"pe_min"`
	DriftVelocity float64 `yaml:"drift_velocity"`
	Debug         bool    `yaml:"debug"`
}

// DefaultConfig returns the standard cosmic tagging configuration.
func DefaultConfig() Config {
	return Config{
		FlashProducer:       "simpleFlashCosmic",
		PFPartProducer:      "pandoraCosmic",
		TrackProducer:       "pandoraCosmic",
		SWTriggerProducer:   "swtrigger",
		AnodeTime:           0.53,
		CathodeTime:         2291,
		DtResolutionAnode:   5,
		DzResolutionAnode:   80,
		DtResolutionCathode: 5,
		DzResolutionCathode: 80,
		PEMin:               0,
		DriftVelocity:       0.1114,
		Debug:               true,
	}
}

func (c Config) Validate() error {
	if c.DriftVelocity <= 0 {
		return fmt.Errorf("acpt: drift velocity must be positive, got %g", c.DriftVelocity)
	}
	for _, r := range []float64{c.DtResolutionAnode, c.DzResolutionAnode, c.DtResolutionCathode, c.DzResolutionCathode} {
		if r < 0 {
			return fmt.Errorf("acpt: resolutions must not be negative, got %g", r)
		}
	}
	if c.FlashProducer == "" || c.PFPartProducer == "" || c.TrackProducer == "" {
		return fmt.Errorf("acpt: flash, pfparticle and track producers are required")
	}
	return nil
}

// TagType is the algorithm that produced a cosmic tag.
type TagType int

const (
	TagUnknown    TagType = -1
	TagGeometryYZ TagType = 1
	TagGeometryXY TagType = 2
)

// CosmicTag marks a PFParticle and its tracks as cosmic.
type CosmicTag struct {
	EndPt1 r3.Vec  `json:"end_pt1"`
	EndPt2 r3.Vec  `json:"end_pt2"`
	Score  float64 `json:"score"`
	Type   TagType `json:"type"`

	PFParticle int   `json:"pfparticle"`
	Tracks     []int `json:"tracks"`
}

// Products is everything the tagger makes for one event.
type Products struct {
	Event event.ID
	Tags  []CosmicTag
	Row   Row
}

// Flash is a selected flash.
type Flash struct {
	Index   int
	Time    float64
	ZCenter float64
	ZWidth  float64
}

// Residual is the match between one track endpoint and its closest flash
// for a given plane offset.
type Residual struct {
	Found bool
	Flash int
	Dt    float64
	Dz    float64
}

// Tagger runs the cosmic tagging on events.
type Tagger struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Tagger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tagger{cfg: cfg, log: log.Named("acpt")}, nil
}

func (t *Tagger) Config() Config { return t.cfg }

// SelectFlashes keeps the flashes above the PE threshold, in product
// order.
func (t *Tagger) SelectFlashes(flashes []event.OpFlash) []Flash {
	var sel []Flash
	for i, f := range flashes {
		if f.TotalPE <= t.cfg.PEMin {
			continue
		}
		sel = append(sel, Flash{Index: i, Time: f.Time, ZCenter: f.ZCenter, ZWidth: f.ZWidth})
		if t.cfg.Debug {
			t.log.Debug("flash",
				zap.Float64("time", f.Time),
				zap.Float64("pe", f.TotalPE),
				zap.Float64("zcenter", f.ZCenter),
				zap.Float64("zwidth", f.ZWidth),
			)
		}
	}
	return sel
}

// Closest finds the flash whose time best matches the endpoint at drift
// coordinate x for a plane at time offset. The residual time is
// x/v - t_flash; the flash minimising |residual - offset| wins, the
// earliest one on ties. Dz is zCenter minus the flash z centre. No flash
// means no match.
func Closest(x, offset, zCenter, driftVel float64, flashes []Flash) Residual {
	res := Residual{Flash: -1}
	min := math.Inf(1)
	for i, f := range flashes {
		diff := x/driftVel - f.Time
		if d := math.Abs(diff - offset); d < min {
			min = d
			res.Found = true
			res.Flash = i
			res.Dt = diff
			res.Dz = zCenter - f.ZCenter
		}
	}
	return res
}

// SortPoints returns the trajectory ordered from the top: unchanged when
// the first point is higher than the last, reversed otherwise.
func SortPoints(points []r3.Vec) []r3.Vec {
	n := len(points)
	out := make([]r3.Vec, n)
	if n == 0 {
		return out
	}
	if points[0].Y > points[n-1].Y {
		copy(out, points)
		return out
	}
	for i := range points {
		out[i] = points[n-1-i]
	}
	return out
}

// TrackResult holds the endpoint residuals of one track.
type TrackResult struct {
	Track   int
	Length  float64
	XUp     float64
	XDown   float64
	ZCenter float64

	UpAnode, DownAnode, UpCathode, DownCathode Residual
}

func within(v, centre, res float64) bool {
	return v > centre-res && v < centre+res
}

// Tagged reports whether any of the four endpoint combinations is
// compatible with crossing the anode or the cathode at flash time.
func (t *Tagger) Tagged(tr TrackResult) bool {
	c := t.cfg
	anode := func(r Residual) bool {
		return r.Found && within(r.Dt, c.AnodeTime, c.DtResolutionAnode) && within(r.Dz, 0, c.DzResolutionAnode)
	}
	cathode := func(r Residual) bool {
		return r.Found && within(r.Dt, c.CathodeTime, c.DtResolutionCathode) && within(r.Dz, 0, c.DzResolutionCathode)
	}
	return anode(tr.UpAnode) || anode(tr.DownAnode) || cathode(tr.UpCathode) || cathode(tr.DownCathode)
}

// Track computes the residuals of a single track against flashes.
func (t *Tagger) Track(trk event.Track, flashes []Flash) TrackResult {
	pts := SortPoints(trk.Points)
	if len(pts) == 0 {
		none := Residual{Flash: -1}
		return TrackResult{Track: trk.ID, UpAnode: none, DownAnode: none, UpCathode: none, DownCathode: none}
	}
	up, down := pts[0], pts[len(pts)-1]
	zc := (up.Z + down.Z) / 2
	v := t.cfg.DriftVelocity

	return TrackResult{
		Track:       trk.ID,
		Length:      trk.Length(),
		XUp:         up.X,
		XDown:       down.X,
		ZCenter:     zc,
		UpAnode:     Closest(up.X, t.cfg.AnodeTime, zc, v, flashes),
		DownAnode:   Closest(down.X, t.cfg.AnodeTime, zc, v, flashes),
		UpCathode:   Closest(up.X, t.cfg.CathodeTime, zc, v, flashes),
		DownCathode: Closest(down.X, t.cfg.CathodeTime, zc, v, flashes),
	}
}

// Produce tags the PFParticles of rec.
//
// The flash and PFParticle products are required; a missing software
// trigger is only logged.
func (t *Tagger) Produce(rec *event.Record) (*Products, error) {
	c := t.cfg
	log := t.log.With(zap.Stringer("event", rec.ID))

	out := &Products{Event: rec.ID}
	out.Row.Run, out.Row.SubRun, out.Row.Event = int64(rec.ID.Run), int64(rec.ID.SubRun), int64(rec.ID.Event)
	out.Row.DriftVel = c.DriftVelocity

	if trig, err := rec.SWTrigger(c.SWTriggerProducer); err != nil {
		log.Warn("failed to get software trigger", zap.String("label", c.SWTriggerProducer), zap.Error(err))
	} else if len(trig.Algorithms) > 0 {
		out.Row.SWTrigger = trig.PassedAlgo(trig.Algorithms[0])
	}

	allFlashes, err := rec.FlashesByLabel(c.FlashProducer)
	if err != nil {
		return nil, fmt.Errorf("acpt: could not locate flashes: %w", err)
	}
	pfps, err := rec.PFParticlesByLabel(c.PFPartProducer)
	if err != nil {
		return nil, fmt.Errorf("acpt: could not locate pfparticles: %w", err)
	}
	tracks, err := rec.TracksByPFParticle(c.TrackProducer)
	if err != nil {
		return nil, fmt.Errorf("acpt: could not locate tracks: %w", err)
	}

	flashes := t.SelectFlashes(allFlashes)
	if c.Debug {
		log.Debug("selected flashes", zap.Int("total", len(allFlashes)), zap.Int("selected", len(flashes)))
	}
	out.Row.addFlashes(flashes)

	for _, pfp := range pfps {
		cosmic := false
		trks := tracks[pfp.ID]
		for _, trk := range trks {
			tr := t.Track(trk, flashes)
			out.Row.addTrack(tr)
			if t.Tagged(tr) {
				cosmic = true
			}
		}
		if !cosmic {
			continue
		}

		tag := CosmicTag{
			EndPt1:     event.Sentinel,
			EndPt2:     event.Sentinel,
			Score:      1,
			Type:       TagGeometryXY,
			PFParticle: pfp.ID,
		}
		for _, trk := range trks {
			tag.Tracks = append(tag.Tracks, trk.ID)
		}
		out.Tags = append(out.Tags, tag)
		if c.Debug {
			log.Debug("tagged cosmic", zap.Int("pfp", pfp.ID), zap.Ints("tracks", tag.Tracks))
		}
	}
	return out, nil
}
