// Command tpcobjects groups the reconstructed particles of every event into
// neutrino candidate slices and reports the quantities the selection cuts
// on.
package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/decibelcooper/ubxsec"
	"github.com/decibelcooper/ubxsec/config"
	"github.com/decibelcooper/ubxsec/event"
	"github.com/decibelcooper/ubxsec/geom"
	"github.com/decibelcooper/ubxsec/tpcobj"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tpcobjects [options] <event-files>...",
	Short: "Build TPC objects and report their selection variables",
	Args:  cobra.MinimumNArgs(1),
	RunE:  run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", "", "YAML configuration file")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

type Summary struct {
	Event      event.ID         `json:"event"`
	Neutrino   int              `json:"neutrino"`
	PDG        int              `json:"pdg"`
	Vertex     *r3.Vec          `json:"vertex,omitempty"`
	InFV       bool             `json:"in_fv"`
	NPFP       int              `json:"npfp"`
	NTracks    int              `json:"ntracks"`
	NShowers   int              `json:"nshowers"`
	Hits       tpcobj.PlaneHits `json:"hits"`
	PassesHits bool             `json:"passes_hits"`

	LongestTrack  int     `json:"longest_track"`
	LongestLength float64 `json:"longest_length,omitempty"`
	Crossing      int     `json:"crossing"`
	CrossingTop   int     `json:"crossing_top"`
	NearDead      bool    `json:"near_dead,omitempty"`
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

	var status geom.StatusTable
	if cfg.TPCObjects.ChannelStatus != "" {
		if status, err = geom.LoadStatusTable(cfg.TPCObjects.ChannelStatus); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	n := 0
	for _, path := range args {
		r, err := event.Open(path)
		if err != nil {
			return err
		}
		for r.Next() {
			sums, err := summarise(r.Record(), cfg, status, logger)
			if err != nil {
				r.Close()
				return err
			}
			for _, s := range sums {
				if err := enc.Encode(s); err != nil {
					r.Close()
					return err
				}
			}
			n += len(sums)
		}
		if err := r.Err(); err != nil {
			r.Close()
			return err
		}
		r.Close()
	}
	logger.Info("done", zap.Int("objects", n))
	return nil
}

func summarise(rec *event.Record, cfg *config.Config, status geom.StatusTable, logger *zap.Logger) ([]Summary, error) {
	c := cfg.TPCObjects
	in, err := tpcobj.InputFromRecord(rec, c.Labels)
	if err != nil {
		return nil, err
	}
	objs, err := tpcobj.Build(in, logger.With(zap.Stringer("event", rec.ID)))
	if err != nil {
		return nil, err
	}

	hitList, err := rec.HitsByLabel(c.Hit)
	if err != nil {
		return nil, err
	}
	hits := tpcobj.HitIndex(hitList)

	var channels geom.Geometry
	if status != nil {
		channels = geom.NewSpacePointChannels(rec.SpacePoints[c.Labels.PFParticle], hitList)
	}

	var out []Summary
	for _, obj := range objs {
		nu, _ := obj.NuPFP()
		s := Summary{
			Event:        rec.ID,
			Neutrino:     nu.ID,
			PDG:          nu.PdgCode,
			NPFP:         len(obj.PFParticles),
			NTracks:      len(obj.Tracks),
			NShowers:     len(obj.Showers),
			LongestTrack: -1,
			Crossing:     geom.NotCrossing,
			CrossingTop:  geom.NotCrossing,
		}
		if vtx, ok := obj.NuVertex(); ok {
			s.Vertex = &vtx
			s.InFV = cfg.Fiducial.Contains(vtx)
		}

		if s.Hits, err = tpcobj.HitsPerPlane(obj.Tracks, obj.Showers, hits); err != nil {
			return nil, err
		}
		s.PassesHits = s.Hits.Max() > c.NHitsReq

		if trk, ok := tpcobj.LongestTrack(obj.Tracks); ok {
			s.LongestTrack = trk.ID
			s.LongestLength = trk.Length()
			_, s.Crossing = cfg.Fiducial.CrossingBoundary(trk.Start(), trk.End())
			_, s.CrossingTop = cfg.Fiducial.CrossingTopBoundary(trk.Start(), trk.End())

			if channels != nil {
				s.NearDead, err = geom.CloseToDeadRegion(trk.End(), int(event.ViewW), channels, status)
				if err != nil {
					logger.Debug("no dead region check", zap.Stringer("event", rec.ID), zap.Int("track", trk.ID), zap.Error(err))
				}
			}
		}
		out = append(out, s)
	}
	return out, nil
}
