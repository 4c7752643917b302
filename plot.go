// Package ubxsec holds the plotting helpers shared by the ubxsec
// commands.
package ubxsec

import (
	"image/color"
	"path/filepath"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// NewPlot returns a plot with the house tick style on both axes.
func NewPlot(title, xLabel, yLabel string) *hplot.Plot {
	p := hplot.New()
	p.Title.Text = title
	p.Title.Padding = 2 * vg.Millimeter
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.X.Tick.Marker = PreciseTicks{NSuggestedTicks: 5}
	p.Y.Tick.Marker = PreciseTicks{NSuggestedTicks: 5}
	return p
}

// H1DPlot draws h and a dashed vertical line at each of marks.
func H1DPlot(h *hbook.H1D, title, xLabel string, marks []float64) (*hplot.Plot, error) {
	p := NewPlot(title, xLabel, "entries")

	hp := hplot.NewH1D(h)
	hp.FillColor = nil
	hp.LineStyle.Color = color.RGBA{A: 255}
	hp.Infos.Style = hplot.HInfoSummary
	p.Add(hp)

	_, _, _, top := h.DataRange()
	if top <= 0 {
		top = 1
	}
	for _, m := range marks {
		l, err := plotter.NewLine(plotter.XYs{{X: m, Y: 0}, {X: m, Y: top}})
		if err != nil {
			return nil, err
		}
		l.LineStyle.Color = color.RGBA{R: 255, A: 255}
		l.LineStyle.Dashes = []vg.Length{vg.Millimeter, vg.Millimeter}
		p.Add(l)
	}
	return p, nil
}

// H2DPlot draws h as a heat map.
func H2DPlot(h *hbook.H2D, title, xLabel, yLabel string) *hplot.Plot {
	p := NewPlot(title, xLabel, yLabel)
	cm := moreland.ExtendedBlackBody()
	cm.SetMin(0)
	cm.SetMax(1)
	p.Add(hplot.NewH2D(h, cm.Palette(255)))
	return p
}

// SavePlot writes p next to prefix as PDF and PNG.
func SavePlot(p *hplot.Plot, prefix string) error {
	for _, ext := range []string{".pdf", ".png"} {
		if err := p.Save(6*vg.Inch, 4*vg.Inch, filepath.Clean(prefix+ext)); err != nil {
			return err
		}
	}
	return nil
}
