package event

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Reader streams Records from a JSON Lines file, one event per line.
type Reader struct {
	f   io.Closer
	gz  *gzip.Reader
	dec *json.Decoder
	n   int
	err error
	rec *Record
}

// Open opens path for reading. Files ending in .gz are decompressed on the
// fly.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var r io.Reader = bufio.NewReader(f)
	rdr := &Reader{f: f}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("event: could not open gzip stream %q: %w", path, err)
		}
		rdr.gz = gz
		r = gz
	}
	rdr.dec = json.NewDecoder(r)
	return rdr, nil
}

// NewReader reads Records from r. Closing the returned Reader does not
// close r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: json.NewDecoder(r)}
}

// Next advances to the next event. It returns false at the end of the
// stream or on error; Err distinguishes the two.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	var rec Record
	err := r.dec.Decode(&rec)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			r.err = fmt.Errorf("event: could not decode event #%d: %w", r.n, err)
		}
		return false
	}
	if err := rec.Validate(); err != nil {
		r.err = fmt.Errorf("event: invalid event #%d (%v): %w", r.n, rec.ID, err)
		return false
	}
	r.n++
	r.rec = &rec
	return true
}

func (r *Reader) Record() *Record { return r.rec }

func (r *Reader) Err() error { return r.err }

func (r *Reader) Close() error {
	var err error
	if r.gz != nil {
		err = r.gz.Close()
	}
	if r.f != nil {
		if e := r.f.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// ReadAll loads every event of path.
func ReadAll(path string) ([]*Record, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var recs []*Record
	for r.Next() {
		recs = append(recs, r.Record())
	}
	return recs, r.Err()
}

// Writer writes Records as JSON Lines.
type Writer struct {
	f   io.Closer
	gz  *gzip.Writer
	buf *bufio.Writer
	enc *json.Encoder
}

// Create creates path, truncating it. Paths ending in .gz are compressed.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f, buf: bufio.NewWriter(f)}
	var dst io.Writer = w.buf
	if strings.HasSuffix(path, ".gz") {
		w.gz = gzip.NewWriter(w.buf)
		dst = w.gz
	}
	w.enc = json.NewEncoder(dst)
	return w, nil
}

func (w *Writer) Write(rec *Record) error {
	return w.enc.Encode(rec)
}

func (w *Writer) Close() error {
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			w.f.Close()
			return err
		}
	}
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Validate checks the invariants the analysis code relies on: tracks have
// at least one finite trajectory point and ids are unique within a
// collection.
func (r *Record) Validate() error {
	for label, tracks := range r.Tracks {
		seen := make(map[int]bool, len(tracks))
		for _, t := range tracks {
			if seen[t.ID] {
				return fmt.Errorf("tracks %q: duplicate id %d", label, t.ID)
			}
			seen[t.ID] = true
			if len(t.Points) == 0 {
				return fmt.Errorf("tracks %q: track %d has no trajectory points", label, t.ID)
			}
			for _, p := range t.Points {
				if !Finite(p) {
					return fmt.Errorf("tracks %q: track %d has a non-finite point", label, t.ID)
				}
			}
		}
	}
	for label, pfps := range r.PFParticles {
		seen := make(map[int]bool, len(pfps))
		for _, p := range pfps {
			if seen[p.ID] {
				return fmt.Errorf("pfparticles %q: duplicate id %d", label, p.ID)
			}
			seen[p.ID] = true
		}
	}
	return nil
}
