// Command acptplot plots the endpoint to flash residuals stored in the
// diagnostic tree written by acpttag.
package main

import (
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/decibelcooper/ubxsec"
	"github.com/decibelcooper/ubxsec/acpt"
	"github.com/decibelcooper/ubxsec/config"
)

var (
	cfgPath string
	prefix  string
	title   string
	verbose bool

	dtMarks ubxsec.FloatArrayFlags
	dzMarks ubxsec.FloatArrayFlags
)

var rootCmd = &cobra.Command{
	Use:   "acptplot [options] <root-files>...",
	Short: "Plot ACPT dt and dz residuals",
	Long: `Reads the "tree" of one or more acpttag ROOT files and plots the anode
and cathode time and z residuals of the track endpoints, plus the anode
dt vs dz map. Dashed lines mark the tagging windows unless --dt-mark or
--dz-mark are given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", "", "YAML configuration file (binning and windows)")
	f.StringVarP(&prefix, "prefix", "o", "acpt", "output file prefix")
	f.StringVar(&title, "title", "", "plot title")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	f.Var(&dtMarks, "dt-mark", "dt offsets from the window centre to mark, repeatable")
	f.Var(&dzMarks, "dz-mark", "dz values to mark, repeatable")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := ubxsec.NewLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	c := cfg.ACPT

	hists := acpt.NewHistograms(c)
	nRows := 0
	for _, path := range args {
		rows, err := acpt.ReadRows(path)
		if err != nil {
			return err
		}
		for _, r := range rows {
			hists.Fill(r)
		}
		nRows += len(rows)
		logger.Debug("read tree", zap.String("file", path), zap.Int("events", len(rows)))
	}
	logger.Info("filled histograms", zap.Int("events", nRows), zap.Int64("anode_entries", hists.DtAnode.Entries()))

	anodeDt := offsets(c.AnodeTime, c.DtResolutionAnode, dtMarks.Array)
	cathodeDt := offsets(c.CathodeTime, c.DtResolutionCathode, dtMarks.Array)
	anodeDz := dzMarks.Array
	cathodeDz := dzMarks.Array
	if len(anodeDz) == 0 {
		anodeDz = []float64{-c.DzResolutionAnode, c.DzResolutionAnode}
		cathodeDz = []float64{-c.DzResolutionCathode, c.DzResolutionCathode}
	}

	for _, pl := range []struct {
		name, xLabel string
		marks        []float64
	}{
		{name: "dt_anode", xLabel: "dt (µs)", marks: anodeDt},
		{name: "dz_anode", xLabel: "dz (cm)", marks: anodeDz},
		{name: "dt_cathode", xLabel: "dt (µs)", marks: cathodeDt},
		{name: "dz_cathode", xLabel: "dz (cm)", marks: cathodeDz},
	} {
		p, err := ubxsec.H1DPlot(hists.H1D(pl.name), title, pl.xLabel, pl.marks)
		if err != nil {
			return err
		}
		if err := ubxsec.SavePlot(p, prefix+"_"+pl.name); err != nil {
			return err
		}
	}

	p := ubxsec.H2DPlot(hists.DtDzAnode, title, "dt (µs)", "dz (cm)")
	return ubxsec.SavePlot(p, prefix+"_dt_dz_anode")
}

// offsets places the marks around centre. Without user marks the window
// edges are used.
func offsets(centre, res float64, marks []float64) []float64 {
	if len(marks) == 0 {
		return []float64{centre - res, centre + res}
	}
	out := make([]float64, len(marks))
	for i, m := range marks {
		out[i] = centre + m
	}
	return out
}
