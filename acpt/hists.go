package acpt

import (
	"go-hep.org/x/hep/hbook"
)

const (
	nDtBins  = 100
	dtWindow = 50.
	nDzBins  = 80
	dzWindow = 400.
)

// Histograms accumulate the endpoint residuals of many events. Up and down
// endpoints go to the same histograms.
type Histograms struct {
	DtAnode   *hbook.H1D
	DzAnode   *hbook.H1D
	DtCathode *hbook.H1D
	DzCathode *hbook.H1D

	// Anode dt vs dz.
	DtDzAnode *hbook.H2D
}

// NewHistograms books residual histograms centred on the anode and
// cathode offsets of cfg.
func NewHistograms(cfg Config) *Histograms {
	return &Histograms{
		DtAnode:   hbook.NewH1D(nDtBins, cfg.AnodeTime-dtWindow, cfg.AnodeTime+dtWindow),
		DzAnode:   hbook.NewH1D(nDzBins, -dzWindow, dzWindow),
		DtCathode: hbook.NewH1D(nDtBins, cfg.CathodeTime-dtWindow, cfg.CathodeTime+dtWindow),
		DzCathode: hbook.NewH1D(nDzBins, -dzWindow, dzWindow),
		DtDzAnode: hbook.NewH2D(nDtBins, cfg.AnodeTime-dtWindow, cfg.AnodeTime+dtWindow, nDzBins, -dzWindow, dzWindow),
	}
}

func (h *Histograms) h1s() map[string]*hbook.H1D {
	return map[string]*hbook.H1D{
		"dt_anode":   h.DtAnode,
		"dz_anode":   h.DzAnode,
		"dt_cathode": h.DtCathode,
		"dz_cathode": h.DzCathode,
	}
}

// H1D returns the 1D histogram stored under name in the output file, nil
// if there is none.
func (h *Histograms) H1D(name string) *hbook.H1D { return h.h1s()[name] }

// Fill adds the residuals of one diagnostic row. Endpoints without a flash
// are skipped.
func (h *Histograms) Fill(r Row) {
	fill := func(dt, dz []float64, hdt, hdz *hbook.H1D, h2 *hbook.H2D) {
		for i := range dt {
			if dt[i] == NotFound {
				continue
			}
			hdt.Fill(dt[i], 1)
			hdz.Fill(dz[i], 1)
			if h2 != nil {
				h2.Fill(dt[i], dz[i], 1)
			}
		}
	}
	fill(r.DtUAnode, r.DzUAnode, h.DtAnode, h.DzAnode, h.DtDzAnode)
	fill(r.DtDAnode, r.DzDAnode, h.DtAnode, h.DzAnode, h.DtDzAnode)
	fill(r.DtUCathode, r.DzUCathode, h.DtCathode, h.DzCathode, nil)
	fill(r.DtDCathode, r.DzDCathode, h.DtCathode, h.DzCathode, nil)
}
