// Package tagdb keeps a SQLite summary of cosmic tagging jobs: one row
// per job, per event and per tagged PFParticle.
package tagdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/decibelcooper/ubxsec/acpt"
	"github.com/decibelcooper/ubxsec/event"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id     TEXT PRIMARY KEY,
	config     TEXT,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	job_id     TEXT NOT NULL,
	run        INTEGER NOT NULL,
	subrun     INTEGER NOT NULL,
	event      INTEGER NOT NULL,
	sw_trigger INTEGER NOT NULL,
	n_flash    INTEGER NOT NULL,
	n_trk      INTEGER NOT NULL,
	n_tag      INTEGER NOT NULL,
	FOREIGN KEY(job_id) REFERENCES jobs(job_id)
);
CREATE TABLE IF NOT EXISTS tags (
	job_id     TEXT NOT NULL,
	run        INTEGER NOT NULL,
	subrun     INTEGER NOT NULL,
	event      INTEGER NOT NULL,
	pfparticle INTEGER NOT NULL,
	tag_type   INTEGER NOT NULL,
	score      DOUBLE NOT NULL,
	tracks     TEXT NOT NULL,
	FOREIGN KEY(job_id) REFERENCES jobs(job_id)
);
`

type DB struct {
	*sql.DB
}

// Open opens, creating it if needed, the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("tagdb: could not create schema: %w", err)
	}
	return &DB{db}, nil
}

// Job is one tagging run over a set of files.
type Job struct {
	ID        string
	Config    string
	CreatedAt int64
}

// NewJob registers a job and returns its id. cfg is stored verbatim.
func (db *DB) NewJob(cfg string) (string, error) {
	id := uuid.New().String()
	_, err := db.Exec("INSERT INTO jobs (job_id, config, created_at) VALUES (?, ?, ?)",
		id, cfg, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("tagdb: could not insert job: %w", err)
	}
	return id, nil
}

// Record stores the summary of one tagged event.
func (db *DB) Record(jobID string, p *acpt.Products) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id := p.Event
	_, err = tx.Exec(`INSERT INTO events (job_id, run, subrun, event, sw_trigger, n_flash, n_trk, n_tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, id.Run, id.SubRun, id.Event, p.Row.SWTrigger, p.Row.NFlash, p.Row.NTrk, len(p.Tags))
	if err != nil {
		return fmt.Errorf("tagdb: could not insert event %v: %w", id, err)
	}

	for _, tag := range p.Tags {
		trks, err := json.Marshal(tag.Tracks)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO tags (job_id, run, subrun, event, pfparticle, tag_type, score, tracks)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			jobID, id.Run, id.SubRun, id.Event, tag.PFParticle, int(tag.Type), tag.Score, string(trks))
		if err != nil {
			return fmt.Errorf("tagdb: could not insert tag of event %v: %w", id, err)
		}
	}
	return tx.Commit()
}

// Summary counts what a job saw.
type Summary struct {
	Events       int
	TaggedEvents int
	Tags         int
}

func (db *DB) Summary(jobID string) (Summary, error) {
	var s Summary
	err := db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(n_tag > 0), 0), COALESCE(SUM(n_tag), 0)
		FROM events WHERE job_id = ?`, jobID).Scan(&s.Events, &s.TaggedEvents, &s.Tags)
	if err != nil {
		return s, fmt.Errorf("tagdb: could not summarise job %s: %w", jobID, err)
	}
	return s, nil
}

// TaggedPFParticles lists the tagged PFParticle ids of one event of a
// job, in insertion order.
func (db *DB) TaggedPFParticles(jobID string, id event.ID) ([]int, error) {
	rows, err := db.Query(`SELECT pfparticle FROM tags
		WHERE job_id = ? AND run = ? AND subrun = ? AND event = ?
		ORDER BY rowid`, jobID, id.Run, id.SubRun, id.Event)
	if err != nil {
		return nil, fmt.Errorf("tagdb: query tags: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var pfp int
		if err := rows.Scan(&pfp); err != nil {
			return nil, err
		}
		out = append(out, pfp)
	}
	return out, rows.Err()
}

// Jobs lists the registered jobs, oldest first.
func (db *DB) Jobs() ([]Job, error) {
	rows, err := db.Query("SELECT job_id, config, created_at FROM jobs ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("tagdb: query jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Config, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
