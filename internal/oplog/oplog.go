// Package oplog persists the engine's operation journal to SQLite.
//
// Every host verb the engine issues is recorded as one row, keyed by
// request token and ordered by the engine's logical clock. The journal
// is the forensic record for a fleet of irreversible host mutations:
// when a request degrades or a clip ends up somewhere unexpected, the
// journal shows the exact call chain that produced it.
package oplog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tapelab/reclip/internal/arrange"
	"github.com/tapelab/reclip/internal/host"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Ops table with (request_token, seq) uniqueness
const currentSchemaVersion = 1

// Journal provides durable storage for engine operation records.
// Uses SQLite with WAL mode for concurrent read access.
type Journal struct {
	db *sql.DB
}

// Open creates or opens a journal database at the given path.
// Applies required pragmas and the schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record implements arrange.Recorder. Journal failures are logged and
// swallowed: losing a journal row must never fail a host operation
// that has already happened.
func (j *Journal) Record(ctx context.Context, e arrange.Entry) {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO ops (request_token, seq, verb, clip_id, track_index, beat, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.RequestToken, e.Seq, e.Verb, string(e.Clip), int(e.Track), e.Beat, e.Detail)
	if err != nil {
		slog.Warn("journal write failed",
			"request_token", e.RequestToken,
			"seq", e.Seq,
			"verb", e.Verb,
			"error", err)
	}
}

var _ arrange.Recorder = (*Journal)(nil)

// ReadRequest returns all entries recorded under a request token,
// ordered by sequence number.
func (j *Journal) ReadRequest(ctx context.Context, token string) ([]arrange.Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT request_token, seq, verb, clip_id, track_index, beat, detail
		FROM ops
		WHERE request_token = ?
		ORDER BY seq
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query request %s: %w", token, err)
	}
	defer rows.Close()

	var entries []arrange.Entry
	for rows.Next() {
		var e arrange.Entry
		var clip string
		var track int
		if err := rows.Scan(&e.RequestToken, &e.Seq, &e.Verb, &clip, &track, &e.Beat, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Clip = host.ClipID(clip)
		e.Track = host.TrackID(track)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RequestSummary describes one journaled request.
type RequestSummary struct {
	Token   string
	Ops     int
	First   string
	Last    string
	Started string
}

// Requests returns the most recent request tokens with op counts,
// newest first. limit <= 0 means no limit.
func (j *Journal) Requests(ctx context.Context, limit int) ([]RequestSummary, error) {
	q := `
		SELECT request_token,
		       COUNT(*),
		       MIN(verb || ' ' || clip_id),
		       MAX(verb || ' ' || clip_id),
		       MIN(created_at)
		FROM ops
		GROUP BY request_token
		ORDER BY MAX(id) DESC
	`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []RequestSummary
	for rows.Next() {
		var s RequestSummary
		if err := rows.Scan(&s.Token, &s.Ops, &s.First, &s.Last, &s.Started); err != nil {
			return nil, fmt.Errorf("scan request summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}
