// Command truthmatch matches reconstructed particles to simulated
// particles by shared hits and reports the matches, their purity and
// efficiency, and the origin of every neutrino slice.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/decibelcooper/ubxsec"
	"github.com/decibelcooper/ubxsec/config"
	"github.com/decibelcooper/ubxsec/event"
	"github.com/decibelcooper/ubxsec/pool"
	"github.com/decibelcooper/ubxsec/proioin"
	"github.com/decibelcooper/ubxsec/tpcobj"
	"github.com/decibelcooper/ubxsec/truth"
)

var (
	cfgPath   string
	recursive bool
	noFold    bool
	recoTag   string
	threads   int
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "truthmatch [options] <event-files>...",
	Short: "Match reconstructed particles to truth",
	Long: `Matches reconstructed particles to simulated particles by counting the
hits they share. Event files are JSON Lines (.jsonl, .jsonl.gz); files
ending in .proio are read with the eic data model, using the tracks
tagged --reco-tag.

One JSON object per event is written to standard output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", "", "YAML configuration file")
	f.BoolVarP(&recursive, "recursive", "r", false, "repeat matching on the unmatched particles")
	f.BoolVar(&noFold, "no-fold", false, "do not fold daughters into their ancestors")
	f.StringVar(&recoTag, "reco-tag", proioin.TagReconstructed, "proio tag of the reconstructed tracks")
	f.IntVarP(&threads, "threads", "t", 4, "number of files processed concurrently")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// Match of one reconstructed particle.
type Match struct {
	Reco       int     `json:"reco"`
	True       int     `json:"true"`
	NHits      int     `json:"nhits"`
	Purity     float64 `json:"purity,omitempty"`
	Efficiency float64 `json:"efficiency,omitempty"`
	PDG        int     `json:"pdg,omitempty"`
}

// Slice is the origin of one TPC object.
type Slice struct {
	Neutrino int    `json:"neutrino"`
	Origin   string `json:"origin"`
}

type Report struct {
	File    string    `json:"file"`
	Event   *event.ID `json:"event,omitempty"`
	Index   int       `json:"index"`
	Matches []Match   `json:"matches"`
	Slices  []Slice   `json:"slices,omitempty"`
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
	if cmd.Flags().Changed("recursive") {
		cfg.Matching.Recursive = recursive
	}
	if noFold {
		cfg.Matching.FoldDaughters = false
	}

	reports, err := pool.Map(cmd.Context(), args, threads, func(ctx context.Context, path string) ([]Report, error) {
		if strings.HasSuffix(path, ".proio") {
			return matchProio(path, cfg)
		}
		return matchEvents(ctx, path, cfg, logger)
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	n := 0
	for _, file := range reports {
		for _, r := range file {
			if err := enc.Encode(r); err != nil {
				return err
			}
			n += len(r.Matches)
		}
	}
	logger.Info("done", zap.Int("files", len(args)), zap.Int("matches", n))
	return nil
}

func matchEvents(ctx context.Context, path string, cfg *config.Config, logger *zap.Logger) ([]Report, error) {
	r, err := event.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []Report
	for i := 0; r.Next(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep, err := matchRecord(r.Record(), cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("%s: event %v: %w", path, r.Record().ID, err)
		}
		rep.File, rep.Index = path, i
		out = append(out, rep)
	}
	return out, r.Err()
}

func matchRecord(rec *event.Record, cfg *config.Config, logger *zap.Logger) (Report, error) {
	m := cfg.Matching
	id := rec.ID
	rep := Report{Event: &id, Matches: []Match{}}

	maps, err := truth.HitMaps(rec, m.Labels, m.FoldDaughters)
	if err != nil {
		return rep, err
	}
	res := truth.Match(maps.RecoToHits, maps.HitToTrue, truth.Options{Recursive: m.Recursive})

	pdg := make(map[int]int)
	var mcps []event.MCParticle
	if !rec.RealData {
		if mcps, err = rec.MCParticlesByLabel(m.Labels.MCParticle); err != nil {
			return rep, err
		}
		for _, p := range mcps {
			pdg[p.TrackID] = p.PdgCode
		}
	}

	bt := truth.NewBackTracker(rec, m.Labels.HitTruth)
	for _, t := range res.True() {
		reco := res.Particles[t]
		match := Match{Reco: reco, True: t, NHits: len(res.Hits[t]), PDG: pdg[t]}
		pur, eff, _, err := truth.PurityEfficiency(maps.RecoToHits[reco], bt)
		switch {
		case errors.Is(err, truth.ErrNoTruth):
			logger.Debug("no purity", zap.Stringer("event", id), zap.Int("reco", reco), zap.Error(err))
		case err != nil:
			return rep, err
		}
		match.Purity, match.Efficiency = pur, eff
		rep.Matches = append(rep.Matches, match)
	}
	sort.Slice(rep.Matches, func(i, j int) bool { return rep.Matches[i].Reco < rep.Matches[j].Reco })

	in, err := tpcobj.InputFromRecord(rec, cfg.TPCObjects.Labels)
	if err != nil {
		logger.Debug("no tpc objects", zap.Stringer("event", id), zap.Error(err))
		return rep, nil
	}
	objs, err := tpcobj.Build(in, logger)
	if err != nil {
		return rep, err
	}
	nu, cosmic := truth.OriginLists(res, mcps)
	for _, obj := range objs {
		nuPFP, _ := obj.NuPFP()
		rep.Slices = append(rep.Slices, Slice{
			Neutrino: nuPFP.ID,
			Origin:   truth.Classify(nu, cosmic, obj.IDs()).String(),
		})
	}
	return rep, nil
}

func matchProio(path string, cfg *config.Config) ([]Report, error) {
	var out []Report
	err := proioin.Scan(path, recoTag, func(ev proioin.Event) error {
		res := truth.Match(ev.Maps.RecoToHits, ev.Maps.HitToTrue, truth.Options{Recursive: cfg.Matching.Recursive})
		rep := Report{File: path, Index: ev.Index, Matches: []Match{}}
		for _, t := range res.True() {
			rep.Matches = append(rep.Matches, Match{
				Reco:  res.Particles[t],
				True:  t,
				NHits: len(res.Hits[t]),
				PDG:   ev.PDG[t],
			})
		}
		sort.Slice(rep.Matches, func(i, j int) bool { return rep.Matches[i].Reco < rep.Matches[j].Reco })
		out = append(out, rep)
		return nil
	})
	return out, err
}
