// Package outbox queues status records in a local SQLite database (WAL mode)
// until the backend has accepted them, so games played offline are not lost.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/summary"
)

// Delivery states of a queued record
const (
	statePending   = 0
	stateDelivered = 1
	stateRejected  = 2
)

// Sender delivers one record to the backend.
type Sender interface {
	PostStatus(ctx context.Context, rec summary.Record) error
}

// Entry is one queued record.
type Entry struct {
	ID         int64
	Record     summary.Record
	EnqueuedAt time.Time
	Attempts   int
	LastError  string
}

// FlushResult counts what one Flush did.
type FlushResult struct {
	Delivered int
	Rejected  int
	Remaining int
}

// Outbox wraps *sql.DB with the queue operations.
type Outbox struct {
	db     *sql.DB
	logger *logrus.Logger
	now    func() time.Time
}

// Open opens (or creates) the outbox at path and applies the schema.
func Open(path string, logger *logrus.Logger) (*Outbox, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("outbox: create directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("outbox: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("outbox: ping: %w", err)
	}
	// One writer; WAL still allows concurrent readers.
	db.SetMaxOpenConns(1)

	o := &Outbox{db: db, logger: logger, now: time.Now}
	if err := o.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return o, nil
}

// Close releases the database
func (o *Outbox) Close() error {
	return o.db.Close()
}

func (o *Outbox) migrate() error {
	for _, stmt := range []string{ddlRecords} {
		if _, err := o.db.Exec(stmt); err != nil {
			return fmt.Errorf("outbox: migrate: %w", err)
		}
	}
	return nil
}

// Enqueue validates rec and appends it to the queue.
func (o *Outbox) Enqueue(ctx context.Context, rec summary.Record) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("outbox: encode record: %w", err)
	}

	res, err := o.db.ExecContext(ctx,
		`INSERT INTO records (device_id, payload, enqueued_at) VALUES (?, ?, ?)`,
		rec.DeviceID, payload, o.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("outbox: enqueue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("outbox: enqueue: %w", err)
	}

	o.logger.WithFields(logrus.Fields{
		"id":        id,
		"device_id": rec.DeviceID,
	}).Debug("Queued status record")
	return id, nil
}

// Pending returns undelivered records oldest first. limit <= 0 means all.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, payload, enqueued_at, attempts, last_error FROM records
		 WHERE state = ? ORDER BY id ASC LIMIT ?`, statePending, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: query pending: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			payload  []byte
			queuedAt int64
		)
		if err := rows.Scan(&e.ID, &payload, &queuedAt, &e.Attempts, &e.LastError); err != nil {
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Record); err != nil {
			return nil, fmt.Errorf("outbox: decode record %d: %w", e.ID, err)
		}
		e.EnqueuedAt = time.UnixMilli(queuedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of undelivered records
func (o *Outbox) Count(ctx context.Context) (int, error) {
	var n int
	err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE state = ?`, statePending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("outbox: count: %w", err)
	}
	return n, nil
}

// MarkDelivered removes id from the pending queue.
func (o *Outbox) MarkDelivered(ctx context.Context, id int64) error {
	return o.setState(ctx, id, stateDelivered, "")
}

func (o *Outbox) setState(ctx context.Context, id int64, state int, lastErr string) error {
	res, err := o.db.ExecContext(ctx,
		`UPDATE records SET state = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		state, lastErr, o.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("outbox: update %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("outbox: record %d not found", id)
	}
	return nil
}

// Flush delivers pending records in order through sender. A permanent
// rejection (see IsPermanent) retires the record and moves on; any other
// failure stops the flush so ordering is preserved for the next attempt.
func (o *Outbox) Flush(ctx context.Context, sender Sender) (FlushResult, error) {
	var result FlushResult

	entries, err := o.Pending(ctx, 0)
	if err != nil {
		return result, err
	}

	for i, e := range entries {
		sendErr := sender.PostStatus(ctx, e.Record)
		log := o.logger.WithFields(logrus.Fields{
			"id":        e.ID,
			"device_id": e.Record.DeviceID,
		})

		switch {
		case sendErr == nil:
			if err := o.MarkDelivered(ctx, e.ID); err != nil {
				return result, err
			}
			result.Delivered++
			log.Debug("Delivered status record")

		case IsPermanent(sendErr):
			if err := o.setState(ctx, e.ID, stateRejected, sendErr.Error()); err != nil {
				return result, err
			}
			result.Rejected++
			log.WithError(sendErr).Warn("Backend rejected status record; dropping it")

		default:
			if err := o.setState(ctx, e.ID, statePending, sendErr.Error()); err != nil {
				return result, err
			}
			result.Remaining = len(entries) - i
			log.WithError(sendErr).Info("Backend unavailable; keeping records queued")
			return result, fmt.Errorf("outbox: deliver record %d: %w", e.ID, sendErr)
		}
	}
	return result, nil
}

// IsPermanent reports whether err says retrying the same record can never succeed.
func IsPermanent(err error) bool {
	var p interface{ Permanent() bool }
	if errors.As(err, &p) {
		return p.Permanent()
	}
	var verr *summary.ValidationError
	return errors.As(err, &verr)
}

// ── DDL statements ────────────────────────────────────────────────────────

const ddlRecords = `
CREATE TABLE IF NOT EXISTS records (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id   TEXT    NOT NULL,
    payload     BLOB    NOT NULL,          -- summary.Record as JSON
    enqueued_at INTEGER NOT NULL,          -- Unix milliseconds
    updated_at  INTEGER NOT NULL DEFAULT 0,
    attempts    INTEGER NOT NULL DEFAULT 0,
    last_error  TEXT    NOT NULL DEFAULT '',
    state       INTEGER NOT NULL DEFAULT 0 -- 0 = pending, 1 = delivered, 2 = rejected
);
CREATE INDEX IF NOT EXISTS idx_records_state ON records (state, id);
`
