package acpt

import (
	"fmt"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rhist"
	"go-hep.org/x/hep/groot/rtree"
)

// NotFound fills residual branches of endpoints without a flash.
const NotFound = -9999

// TreeName is the name of the diagnostic tree in the output file.
const TreeName = "tree"

// Row is one entry of the diagnostic tree: the event, the selected
// flashes and, for every track looked at, its endpoints and the residuals
// to the closest flash.
type Row struct {
	Run       int64
	SubRun    int64
	Event     int64
	SWTrigger bool
	DriftVel  float64

	NTrk       int32
	TrkXUp     []float64
	TrkXDown   []float64
	TrkLen     []float64
	TrkZCenter []float64

	NFlash       int32
	FlashTimes   []float64
	FlashZCenter []float64
	FlashZWidth  []float64

	DtUAnode   []float64
	DzUAnode   []float64
	DtDAnode   []float64
	DzDAnode   []float64
	DtUCathode []float64
	DzUCathode []float64
	DtDCathode []float64
	DzDCathode []float64
}

func (r *Row) addFlashes(flashes []Flash) {
	for _, f := range flashes {
		r.FlashTimes = append(r.FlashTimes, f.Time)
		r.FlashZCenter = append(r.FlashZCenter, f.ZCenter)
		r.FlashZWidth = append(r.FlashZWidth, f.ZWidth)
	}
	r.NFlash = int32(len(r.FlashTimes))
}

func appendResidual(dt, dz *[]float64, res Residual) {
	if !res.Found {
		*dt = append(*dt, NotFound)
		*dz = append(*dz, NotFound)
		return
	}
	*dt = append(*dt, res.Dt)
	*dz = append(*dz, res.Dz)
}

func (r *Row) addTrack(tr TrackResult) {
	r.TrkXUp = append(r.TrkXUp, tr.XUp)
	r.TrkXDown = append(r.TrkXDown, tr.XDown)
	r.TrkLen = append(r.TrkLen, tr.Length)
	r.TrkZCenter = append(r.TrkZCenter, tr.ZCenter)
	appendResidual(&r.DtUAnode, &r.DzUAnode, tr.UpAnode)
	appendResidual(&r.DtDAnode, &r.DzDAnode, tr.DownAnode)
	appendResidual(&r.DtUCathode, &r.DzUCathode, tr.UpCathode)
	appendResidual(&r.DtDCathode, &r.DzDCathode, tr.DownCathode)
	r.NTrk = int32(len(r.TrkXUp))
}

// TreeWriter writes diagnostic rows, and optionally histograms, to a ROOT
// file.
type TreeWriter struct {
	f   *groot.File
	w   rtree.Writer
	row Row
}

func (tw *TreeWriter) vars() []rtree.WriteVar {
	r := &tw.row
	return []rtree.WriteVar{
		{Name: "run", Value: &r.Run},
		{Name: "subrun", Value: &r.SubRun},
		{Name: "event", Value: &r.Event},
		{Name: "sw_trigger", Value: &r.SWTrigger},
		{Name: "drift_vel", Value: &r.DriftVel},
		{Name: "ntrk", Value: &r.NTrk},
		{Name: "trk_x_up", Value: &r.TrkXUp, Count: "ntrk"},
		{Name: "trk_x_down", Value: &r.TrkXDown, Count: "ntrk"},
		{Name: "trk_len", Value: &r.TrkLen, Count: "ntrk"},
		{Name: "trk_z_center", Value: &r.TrkZCenter, Count: "ntrk"},
		{Name: "nflash", Value: &r.NFlash},
		{Name: "flash_times", Value: &r.FlashTimes, Count: "nflash"},
		{Name: "flash_zcenter", Value: &r.FlashZCenter, Count: "nflash"},
		{Name: "flash_zwidth", Value: &r.FlashZWidth, Count: "nflash"},
		{Name: "dt_u_anode", Value: &r.DtUAnode, Count: "ntrk"},
		{Name: "dz_u_anode", Value: &r.DzUAnode, Count: "ntrk"},
		{Name: "dt_d_anode", Value: &r.DtDAnode, Count: "ntrk"},
		{Name: "dz_d_anode", Value: &r.DzDAnode, Count: "ntrk"},
		{Name: "dt_u_cathode", Value: &r.DtUCathode, Count: "ntrk"},
		{Name: "dz_u_cathode", Value: &r.DzUCathode, Count: "ntrk"},
		{Name: "dt_d_cathode", Value: &r.DtDCathode, Count: "ntrk"},
		{Name: "dz_d_cathode", Value: &r.DzDCathode, Count: "ntrk"},
	}
}

// CreateTree creates a ROOT file at path holding an empty diagnostic
// tree.
func CreateTree(path string) (*TreeWriter, error) {
	f, err := groot.Create(path)
	if err != nil {
		return nil, fmt.Errorf("acpt: could not create %q: %w", path, err)
	}
	tw := &TreeWriter{f: f}
	tw.w, err = rtree.NewWriter(f, TreeName, tw.vars())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("acpt: could not create tree: %w", err)
	}
	return tw, nil
}

func (tw *TreeWriter) Fill(r Row) error {
	tw.row = r
	if _, err := tw.w.Write(); err != nil {
		return fmt.Errorf("acpt: could not write event %d:%d:%d: %w", r.Run, r.SubRun, r.Event, err)
	}
	return nil
}

// PutHistograms stores the residual histograms next to the tree.
func (tw *TreeWriter) PutHistograms(h *Histograms) error {
	for name, h1 := range h.h1s() {
		if err := tw.f.Put(name, rhist.NewH1DFrom(h1)); err != nil {
			return fmt.Errorf("acpt: could not write histogram %q: %w", name, err)
		}
	}
	if err := tw.f.Put("dt_dz_anode", rhist.NewH2DFrom(h.DtDzAnode)); err != nil {
		return fmt.Errorf("acpt: could not write histogram %q: %w", "dt_dz_anode", err)
	}
	return nil
}

// Close flushes the tree and closes the file.
func (tw *TreeWriter) Close() error {
	if err := tw.w.Close(); err != nil {
		tw.f.Close()
		return fmt.Errorf("acpt: could not close tree: %w", err)
	}
	return tw.f.Close()
}

// ReadRows reads back the diagnostic tree written by a TreeWriter.
func ReadRows(path string) ([]Row, error) {
	f, err := groot.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	obj, err := f.Get(TreeName)
	if err != nil {
		return nil, fmt.Errorf("acpt: could not find tree in %q: %w", path, err)
	}
	tree, ok := obj.(rtree.Tree)
	if !ok {
		return nil, fmt.Errorf("acpt: %q in %q is not a tree", TreeName, path)
	}

	var tw TreeWriter
	wvars := tw.vars()
	rvars := make([]rtree.ReadVar, len(wvars))
	for i, wv := range wvars {
		rvars[i] = rtree.ReadVar{Name: wv.Name, Value: wv.Value}
	}

	r, err := rtree.NewReader(tree, rvars)
	if err != nil {
		return nil, fmt.Errorf("acpt: could not read tree: %w", err)
	}
	defer r.Close()

	var rows []Row
	err = r.Read(func(ctx rtree.RCtx) error {
		rows = append(rows, cloneRow(tw.row))
		return nil
	})
	return rows, err
}

func cloneRow(r Row) Row {
	c := r
	for _, s := range []*[]float64{
		&c.TrkXUp, &c.TrkXDown, &c.TrkLen, &c.TrkZCenter,
		&c.FlashTimes, &c.FlashZCenter, &c.FlashZWidth,
		&c.DtUAnode, &c.DzUAnode, &c.DtDAnode, &c.DzDAnode,
		&c.DtUCathode, &c.DzUCathode, &c.DtDCathode, &c.DzDCathode,
	} {
		*s = append([]float64(nil), (*s)...)
	}
	return c
}
