package proioin

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/proio-org/go-proio-pb/model/eic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decibelcooper/ubxsec/truth"
)

func u64(v uint64) *uint64 { return &v }

func fakeEntries(tags map[string][]uint64, store map[uint64]any) entries {
	return entries{
		tagged: func(tag string) []uint64 { return tags[tag] },
		get:    func(id uint64) any { return store[id] },
	}
}

func TestBuild(t *testing.T) {
	store := map[uint64]any{
		// tracks
		1: &eic.Track{Observation: []uint64{10, 11, 12}},
		2: &eic.Track{Observation: []uint64{12, 13, 99}},
		3: &eic.EnergyDep{}, // not a track, ignored
		// energy depositions
		10: &eic.EnergyDep{Source: []uint64{20, 21}},
		11: &eic.EnergyDep{Source: []uint64{22, 23, 24}},
		12: &eic.EnergyDep{Source: []uint64{25}},
		13: &eic.EnergyDep{},
		// sim hits
		20: &eic.SimHit{Particle: u64(100)},
		21: &eic.SimHit{Particle: u64(100)},
		22: &eic.SimHit{Particle: u64(101)},
		23: &eic.SimHit{Particle: u64(100)},
		24: &eic.SimHit{Particle: u64(101)},
		25: &eic.SimHit{Particle: u64(101)},
	}
	ev := build(4, fakeEntries(map[string][]uint64{TagReconstructed: {2, 3, 1}}, store), TagReconstructed)

	assert.Equal(t, 4, ev.Index)
	assert.Equal(t, map[int][]int{1: {10, 11, 12}, 2: {12, 13}}, ev.Maps.RecoToHits)
	assert.Equal(t, map[int]int{10: 100, 11: 101, 12: 101}, ev.Maps.HitToTrue)

	res := truth.Match(ev.Maps.RecoToHits, ev.Maps.HitToTrue, truth.Options{Recursive: true})
	assert.Equal(t, map[int]int{101: 1}, res.Particles)
}

func TestDominantTie(t *testing.T) {
	store := map[uint64]any{
		1: &eic.SimHit{Particle: u64(9)},
		2: &eic.SimHit{Particle: u64(4)},
		3: &eic.SimHit{Particle: u64(9)},
		4: &eic.SimHit{Particle: u64(4)},
	}
	part, ok := dominant(&eic.EnergyDep{Source: []uint64{1, 2, 3, 4}}, fakeEntries(nil, store))
	require.True(t, ok)
	assert.Equal(t, 4, part)

	_, ok = dominant(&eic.EnergyDep{}, fakeEntries(nil, store))
	assert.False(t, ok)
}

func TestScanReadErrors(t *testing.T) {
	dir := t.TempDir()
	calls := 0
	count := func(Event) error { calls++; return nil }

	empty := filepath.Join(dir, "empty.proio")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	require.NoError(t, Scan(empty, TagReconstructed, count))
	assert.Zero(t, calls)

	// A bucket header whose size field points at a truncated message.
	var b []byte
	b = append(b, 0xe1, 0xc1)
	b = append(b, make([]byte, 14)...)
	b = binary.LittleEndian.AppendUint32(b, 1)
	b = append(b, 0xff)
	corrupt := filepath.Join(dir, "corrupt.proio")
	require.NoError(t, os.WriteFile(corrupt, b, 0o644))

	err := Scan(corrupt, TagReconstructed, count)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Zero(t, calls)
}
