package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/cardsync/internal/models"
)

// Run is a row of the runs table.
type Run struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Target      string     `json:"target"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Created     int        `json:"created"`
	Updated     int        `json:"updated"`
	Removed     int        `json:"removed"`
	Marked      int        `json:"marked"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	Quarantined int        `json:"quarantined"`
	Error       string     `json:"error,omitempty"`
}

// Document is the last known sync state of one document.
type Document struct {
	Path      string    `json:"path"`
	RecordID  int64     `json:"record_id,omitempty"`
	Deck      string    `json:"deck"`
	Checksum  string    `json:"checksum"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	RunID     string    `json:"run_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeginRun inserts a new run and returns its id.
func (db *DB) BeginRun(kind, target string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(`INSERT INTO runs (id, kind, target, started_at) VALUES (?, ?, ?, ?)`,
		id, kind, target, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("ledger: begin run: %w", err)
	}
	return id, nil
}

// FinishRun stores the counters of r and the error that ended the run, if any.
func (db *DB) FinishRun(id string, r *models.Report, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := db.conn.Exec(`
		UPDATE runs SET
			finished_at = ?, created = ?, updated = ?, removed = ?, marked = ?,
			skipped = ?, failed = ?, quarantined = ?, error = ?
		WHERE id = ?
	`, time.Now().UTC(), r.Created, r.Updated, r.Removed, r.Marked,
		r.Skipped, r.Failed, r.Quarantined, msg, id)
	if err != nil {
		return fmt.Errorf("ledger: finish run: %w", err)
	}
	return nil
}

// RecordOutcome upserts the state of one document. A zero record id or an
// empty checksum keeps the stored value; a deletion clears both.
func (db *DB) RecordOutcome(runID string, o models.Outcome) error {
	var recordID any
	if o.RecordID > 0 {
		recordID = o.RecordID
	}
	deleted := o.Action == models.ActionDeleted

	_, err := db.conn.Exec(`
		INSERT INTO documents (path, record_id, deck, checksum, action, detail, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			record_id  = CASE WHEN ? THEN NULL ELSE COALESCE(excluded.record_id, documents.record_id) END,
			deck       = CASE WHEN excluded.deck = '' THEN documents.deck ELSE excluded.deck END,
			checksum   = CASE WHEN ? THEN '' WHEN excluded.checksum = '' THEN documents.checksum ELSE excluded.checksum END,
			action     = excluded.action,
			detail     = excluded.detail,
			run_id     = excluded.run_id,
			updated_at = excluded.updated_at
	`, o.Path, recordID, o.Group, o.Checksum, string(o.Action), o.Detail, runID, time.Now().UTC(),
		deleted, deleted)
	if err != nil {
		return fmt.Errorf("ledger: record outcome: %w", err)
	}
	return nil
}

// LastChecksum returns the checksum of the card last pushed for path, or an
// empty string when none is known.
func (db *DB) LastChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: last checksum: %w", err)
	}
	return cs, nil
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, kind, target, started_at, finished_at, created, updated, removed,
		       marked, skipped, failed, quarantined, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Kind, &r.Target, &r.StartedAt, &finished,
			&r.Created, &r.Updated, &r.Removed, &r.Marked, &r.Skipped, &r.Failed,
			&r.Quarantined, &r.Error); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Documents returns the tracked documents ordered by path.
func (db *DB) Documents() ([]Document, error) {
	rows, err := db.conn.Query(`
		SELECT path, record_id, deck, checksum, action, detail, run_id, updated_at
		FROM documents ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger: documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var recordID sql.NullInt64
		if err := rows.Scan(&d.Path, &recordID, &d.Deck, &d.Checksum, &d.Action,
			&d.Detail, &d.RunID, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.RecordID = recordID.Int64
		out = append(out, d)
	}
	return out, rows.Err()
}
