// Package journal persists crawl state in a local SQLite database: one row
// per crawl run, the identifiers each run seeded, and the latest ingested
// version of every document. The stored versions are what make repeat crawls
// incremental.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Journal is a handle to the crawl journal database.
type Journal struct {
	db  *sqlx.DB
	now func() time.Time
}

// Run is one crawl run's journal row.
type Run struct {
	ID         string     `db:"id"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Status     string     `db:"status"`
	Error      string     `db:"error"`
	Seeded     int        `db:"seeded"`
	Ingested   int        `db:"ingested"`
	Scanned    int        `db:"scanned"`
	Missing    int        `db:"missing"`
	Failed     int        `db:"failed"`
}

// RunSummary carries the final counters for FinishRun.
type RunSummary struct {
	Seeded   int
	Ingested int
	Scanned  int
	Missing  int
	Failed   int
}

// DocumentRecord is the journal's view of one ingested document.
type DocumentRecord struct {
	MessageID string
	Version   string
	URI       string
	Size      int64
	Fields    map[string][]string
}

// Open opens (or creates) the journal database at path, enables WAL mode,
// and runs any pending schema migrations.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}

	// WAL keeps readers unblocked while a crawl writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	j := &Journal{db: db, now: time.Now}
	if err := j.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (j *Journal) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := j.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = j.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := j.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// BeginRun opens a new run row and returns its generated identifier.
func (j *Journal) BeginRun(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)",
		id, j.now().UTC(), RunStatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("beginning run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run row with its final counters. A non-empty runErr
// marks the run failed.
func (j *Journal) FinishRun(ctx context.Context, runID string, sum RunSummary, runErr error) error {
	status := RunStatusSucceeded
	errText := ""
	if runErr != nil {
		status = RunStatusFailed
		errText = runErr.Error()
	}

	_, err := j.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, error = ?,
		    seeded = ?, ingested = ?, scanned = ?, missing = ?, failed = ?
		WHERE id = ?`,
		j.now().UTC(), status, errText,
		sum.Seeded, sum.Ingested, sum.Scanned, sum.Missing, sum.Failed,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	return nil
}

// AddSeed records one seeded identifier for a run. Re-seeding the same
// identifier within a run is a no-op.
func (j *Journal) AddSeed(ctx context.Context, runID, messageID string) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO seeds (run_id, message_id, seeded_at) VALUES (?, ?, ?)",
		runID, messageID, j.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording seed %s: %w", messageID, err)
	}
	return nil
}

// SeededIDs returns the identifiers a run seeded, in insertion order.
func (j *Journal) SeededIDs(ctx context.Context, runID string) ([]string, error) {
	var ids []string
	err := j.db.SelectContext(ctx, &ids,
		"SELECT message_id FROM seeds WHERE run_id = ? ORDER BY rowid", runID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading seeds for run %s: %w", runID, err)
	}
	return ids, nil
}

// RecordDocument upserts the latest ingested state of a document.
func (j *Journal) RecordDocument(ctx context.Context, runID string, rec DocumentRecord) error {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshaling fields for %s: %w", rec.MessageID, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents (message_id, version, uri, size, fields, run_id, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.MessageID, rec.Version, rec.URI, rec.Size, string(fieldsJSON), runID, j.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording document %s: %w", rec.MessageID, err)
	}
	return nil
}

// DeleteDocument drops a document's record, used when versioning reports it
// gone from the mailbox.
func (j *Journal) DeleteDocument(ctx context.Context, messageID string) error {
	_, err := j.db.ExecContext(ctx, "DELETE FROM documents WHERE message_id = ?", messageID)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", messageID, err)
	}
	return nil
}

// StoredVersions returns the last ingested version token for each of the
// given identifiers. Identifiers never ingested are absent from the map.
func (j *Journal) StoredVersions(ctx context.Context, ids []string) (map[string]string, error) {
	versions := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return versions, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := j.db.QueryxContext(ctx,
		"SELECT message_id, version FROM documents WHERE message_id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stored versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, version string
		if err := rows.Scan(&id, &version); err != nil {
			return nil, fmt.Errorf("scanning version row: %w", err)
		}
		versions[id] = version
	}
	return versions, rows.Err()
}

// GetDocument reads one document record back, mainly for inspection.
func (j *Journal) GetDocument(ctx context.Context, messageID string) (*DocumentRecord, error) {
	var (
		rec        DocumentRecord
		fieldsJSON string
	)
	row := j.db.QueryRowxContext(ctx,
		"SELECT message_id, version, uri, size, fields FROM documents WHERE message_id = ?",
		messageID,
	)
	err := row.Scan(&rec.MessageID, &rec.Version, &rec.URI, &rec.Size, &fieldsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", messageID, err)
	}

	if fieldsJSON != "" {
		if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
			return nil, fmt.Errorf("unmarshaling fields for %s: %w", messageID, err)
		}
	}
	return &rec, nil
}

// RecentRuns returns the newest runs first, capped at limit.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []Run
	err := j.db.SelectContext(ctx, &runs,
		"SELECT * FROM runs ORDER BY started_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}
