// Package config loads the parameter sets of the ubxsec commands from
// YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/decibelcooper/ubxsec/acpt"
	"github.com/decibelcooper/ubxsec/geom"
	"github.com/decibelcooper/ubxsec/tpcobj"
	"github.com/decibelcooper/ubxsec/truth"
)

// Matching configures reco to truth matching.
type Matching struct {
	Labels        truth.Labels `yaml:"labels"`
	Recursive     bool         `yaml:"recursive"`
	FoldDaughters bool         `yaml:"fold_daughters"`
}

// TPCObjects configures slice building and the per-plane hit cut.
type TPCObjects struct {
	Labels   tpcobj.Labels `yaml:"labels"`
	Hit      string        `yaml:"hit"`
	NHitsReq int           `yaml:"n_hits_req"`

	// ChannelStatus is an optional YAML file of bad channels.
	ChannelStatus string `yaml:"channel_status,omitempty"`
}

type Config struct {
	ACPT       acpt.Config `yaml:"acpt"`
	Fiducial   geom.Volume `yaml:"fiducial"`
	Matching   Matching    `yaml:"matching"`
	TPCObjects TPCObjects  `yaml:"tpcobj"`
}

func Default() *Config {
	return &Config{
		ACPT:     acpt.DefaultConfig(),
		Fiducial: geom.DefaultFiducial,
		Matching: Matching{
			Labels: truth.Labels{
				PFParticle: "pandoraNu",
				SpacePoint: "pandoraNu",
				Hit:        "gaushit",
				MCParticle: "largeant",
				HitTruth:   "gaushitTruthMatch",
			},
			FoldDaughters: true,
		},
		TPCObjects: TPCObjects{
			Labels: tpcobj.Labels{
				PFParticle: "pandoraNu",
				Track:      "pandoraNu",
				Shower:     "pandoraNu",
			},
			Hit:      "gaushit",
			NHitsReq: 5,
		},
	}
}

// Load overlays the YAML file at path onto the defaults. An empty path or
// a missing file gives the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: could not read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: could not parse %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: could not create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: could not marshal: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if err := c.ACPT.Validate(); err != nil {
		return err
	}
	f := c.Fiducial
	if 2*f.BorderX >= f.X || 2*f.BorderY >= f.Y || 2*f.BorderZ >= f.Z {
		return fmt.Errorf("config: fiducial borders leave no volume: %+v", f)
	}
	if c.TPCObjects.NHitsReq < 0 {
		return fmt.Errorf("config: n_hits_req must not be negative, got %d", c.TPCObjects.NHitsReq)
	}
	return nil
}
