// Command acpttag tags anode- and cathode-piercing cosmic tracks in event
// files and writes the tags, the diagnostic tree and the residual
// histograms.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/decibelcooper/ubxsec"
	"github.com/decibelcooper/ubxsec/acpt"
	"github.com/decibelcooper/ubxsec/config"
	"github.com/decibelcooper/ubxsec/event"
	"github.com/decibelcooper/ubxsec/pool"
	"github.com/decibelcooper/ubxsec/tagdb"
)

var (
	cfgPath   string
	prefix    string
	dbPath    string
	threads   int
	doProfile bool
	verbose   bool
	peMin     float64
	driftVel  float64
)

var rootCmd = &cobra.Command{
	Use:   "acpttag [options] <event-files>...",
	Short: "Tag anode/cathode piercing cosmic tracks",
	Long: `Reads JSON Lines event files (optionally gzipped), matches the top and
bottom endpoints of every track to the optical flashes and tags the
PFParticles crossing the anode or the cathode at flash time.

Outputs <prefix>.jsonl with the tags of every event and <prefix>.root with
the diagnostic tree and the residual histograms.`,
	Args: cobra.MinimumNArgs(1),
	RunE: run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", "", "YAML configuration file")
	f.StringVarP(&prefix, "prefix", "o", "acpt", "output file prefix")
	f.StringVar(&dbPath, "db", "", "SQLite file to record a summary of the job in")
	f.IntVarP(&threads, "threads", "t", 4, "number of files processed concurrently")
	f.BoolVar(&doProfile, "profile", false, "write a CPU profile")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	f.Float64Var(&peMin, "pe-min", 0, "minimum flash PE (overrides the configuration)")
	f.Float64Var(&driftVel, "drift-velocity", 0, "drift velocity in cm/µs (overrides the configuration)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if doProfile {
		defer profile.Start().Stop()
	}

	logger, err := ubxsec.NewLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("pe-min") {
		cfg.ACPT.PEMin = peMin
	}
	if cmd.Flags().Changed("drift-velocity") {
		cfg.ACPT.DriftVelocity = driftVel
	}

	tagger, err := acpt.New(cfg.ACPT, logger)
	if err != nil {
		return err
	}

	results, err := pool.Map(cmd.Context(), args, threads, func(ctx context.Context, path string) ([]*acpt.Products, error) {
		return tagFile(ctx, tagger, path, logger)
	})
	if err != nil {
		return err
	}

	var db *tagdb.DB
	var jobID string
	if dbPath != "" {
		if db, err = tagdb.Open(dbPath); err != nil {
			return err
		}
		defer db.Close()
		raw, err := yaml.Marshal(cfg.ACPT)
		if err != nil {
			return err
		}
		if jobID, err = db.NewJob(string(raw)); err != nil {
			return err
		}
	}

	return write(results, tagger.Config(), db, jobID, logger)
}

func tagFile(ctx context.Context, tagger *acpt.Tagger, path string, logger *zap.Logger) ([]*acpt.Products, error) {
	r, err := event.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []*acpt.Products
	for r.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := tagger.Produce(r.Record())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, p)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	logger.Info("tagged file", zap.String("file", path), zap.Int("events", len(out)))
	return out, nil
}

type tagLine struct {
	Event event.ID         `json:"event"`
	Tags  []acpt.CosmicTag `json:"tags"`
}

func write(results [][]*acpt.Products, cfg acpt.Config, db *tagdb.DB, jobID string, logger *zap.Logger) error {
	out, err := os.Create(prefix + ".jsonl")
	if err != nil {
		return err
	}
	defer out.Close()
	enc := json.NewEncoder(out)

	tree, err := acpt.CreateTree(prefix + ".root")
	if err != nil {
		return err
	}
	hists := acpt.NewHistograms(cfg)

	var nEvents, nTags int
	for _, file := range results {
		for _, p := range file {
			if err := enc.Encode(tagLine{Event: p.Event, Tags: p.Tags}); err != nil {
				tree.Close()
				return err
			}
			if err := tree.Fill(p.Row); err != nil {
				tree.Close()
				return err
			}
			hists.Fill(p.Row)
			if db != nil {
				if err := db.Record(jobID, p); err != nil {
					tree.Close()
					return err
				}
			}
			nEvents++
			nTags += len(p.Tags)
		}
	}

	if err := tree.PutHistograms(hists); err != nil {
		tree.Close()
		return err
	}
	if err := tree.Close(); err != nil {
		return err
	}
	logger.Info("done",
		zap.Int("events", nEvents),
		zap.Int("tags", nTags),
		zap.String("tags_file", prefix+".jsonl"),
		zap.String("tree_file", prefix+".root"),
	)
	if db != nil {
		s, err := db.Summary(jobID)
		if err != nil {
			return err
		}
		logger.Info("recorded job", zap.String("job", jobID), zap.Int("tagged_events", s.TaggedEvents))
	}
	return out.Close()
}
