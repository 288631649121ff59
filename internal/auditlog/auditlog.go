// Package auditlog provides an optional, SQLite-backed log of inbound and
// outbound mesh traffic (§4.11, §6 log_all_messages), used for after-the-fact
// review when a host enables it.
//
// Grounded on the teacher's server/store package: the ordered-migrations
// pattern (a []string of DDL applied once each, tracked in a
// schema_migrations table) is carried over directly, driving the same
// modernc.org/sqlite pure-Go driver rather than introducing a cgo
// dependency.
package auditlog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// migrations holds the ordered list of DDL statements that bring the audit
// database up to date. Index i corresponds to version i+1. Append only —
// never edit or reorder existing entries.
var migrations = []string{
	// v1 — one row per logged envelope.
	`CREATE TABLE IF NOT EXISTS audit_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		direction   TEXT NOT NULL,
		kind        TEXT NOT NULL,
		from_party  TEXT NOT NULL DEFAULT '',
		to_party    TEXT NOT NULL DEFAULT '',
		envelope_id TEXT NOT NULL DEFAULT '',
		raw         TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	)`,
	// v2 — query by kind/time range.
	`CREATE INDEX IF NOT EXISTS idx_audit_log_kind_created ON audit_log(kind, created_at)`,
}

// Direction distinguishes traffic received from the gateway from traffic
// sent to it.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Log wraps a SQLite database recording mesh traffic.
type Log struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return l, nil
}

// Close releases the database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := l.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := l.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
	}
	return nil
}

// Record is one logged envelope.
type Record struct {
	Direction  Direction
	Kind       string
	From       string
	To         string
	EnvelopeID string
	Raw        string
	CreatedAt  int64 // unix seconds
}

// Append inserts one audit record.
func (l *Log) Append(r Record) error {
	_, err := l.db.Exec(
		`INSERT INTO audit_log(direction, kind, from_party, to_party, envelope_id, raw, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		string(r.Direction), r.Kind, r.From, r.To, r.EnvelopeID, r.Raw, r.CreatedAt,
	)
	return err
}

// RecentByKind returns up to limit records of the given kind, newest first.
func (l *Log) RecentByKind(kind string, limit int) ([]Record, error) {
	rows, err := l.db.Query(
		`SELECT direction, kind, from_party, to_party, envelope_id, raw, created_at
		 FROM audit_log WHERE kind = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		kind, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var direction string
		if err := rows.Scan(&direction, &r.Kind, &r.From, &r.To, &r.EnvelopeID, &r.Raw, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Direction = Direction(direction)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the total number of records stored.
func (l *Log) Count() (int64, error) {
	var n int64
	err := l.db.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&n)
	return n, err
}
