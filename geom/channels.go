package geom

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// Channel status codes, ordered from worst to best.
const (
	StatusDisconnected = iota
	StatusDead
	StatusLowNoise
	StatusNoisy
	StatusGood
	StatusUnknown
)

// NChannels is the number of TPC readout channels.
const NChannels = 8256

// deadRegionWindow is how many channels on each side of the nearest one
// are checked.
const deadRegionWindow = 5

// Geometry maps a point to the readout channel of the nearest wire on a
// plane.
type Geometry interface {
	NearestChannel(p r3.Vec, plane int) (uint32, error)
}

// ChannelStatus reports the calibration status of a channel.
type ChannelStatus interface {
	Status(ch uint32) int
}

// CloseToDeadRegion reports whether the nearest channel to p on plane, or
// any channel within five of it, is not good.
func CloseToDeadRegion(p r3.Vec, plane int, geo Geometry, status ChannelStatus) (bool, error) {
	ch, err := geo.NearestChannel(p, plane)
	if err != nil {
		return false, fmt.Errorf("geom: no channel near %v on plane %d: %w", p, plane, err)
	}
	if status.Status(ch) < StatusGood {
		return true, nil
	}

	lo := int64(ch) - deadRegionWindow
	hi := int64(ch) + deadRegionWindow
	for c := lo; c <= hi; c++ {
		if c < 0 || c >= NChannels {
			continue
		}
		if status.Status(uint32(c)) < StatusGood {
			return true, nil
		}
	}
	return false, nil
}

// StatusTable is a ChannelStatus backed by a list of bad channels. Channels
// not listed are good.
type StatusTable map[uint32]int

func (t StatusTable) Status(ch uint32) int {
	if s, ok := t[ch]; ok {
		return s
	}
	return StatusGood
}

// LoadStatusTable reads a YAML mapping of channel number to status code.
func LoadStatusTable(path string) (StatusTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t StatusTable
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("geom: could not parse channel status %q: %w", path, err)
	}
	return t, nil
}
