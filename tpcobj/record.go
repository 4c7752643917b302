package tpcobj

import (
	"github.com/decibelcooper/ubxsec/event"
)

// Labels name the producers whose products make up TPC objects. Vertices
// are read from the PFParticle producer. An empty Shower label builds
// track-only objects.
type Labels struct {
	PFParticle string `yaml:"pfparticle"`
	Track      string `yaml:"track"`
	Shower     string `yaml:"shower"`
}

// InputFromRecord collects the products named by labels.
func InputFromRecord(rec *event.Record, labels Labels) (Input, error) {
	var (
		in  Input
		err error
	)
	if in.PFParticles, err = rec.PFParticlesByLabel(labels.PFParticle); err != nil {
		return in, err
	}
	if in.Vertices, err = rec.VerticesByPFParticle(labels.PFParticle); err != nil {
		return in, err
	}
	if in.Tracks, err = rec.TracksByPFParticle(labels.Track); err != nil {
		return in, err
	}
	if labels.Shower != "" {
		if in.Showers, err = rec.ShowersByPFParticle(labels.Shower); err != nil {
			return in, err
		}
	}
	return in, nil
}
