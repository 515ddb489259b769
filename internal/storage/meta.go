package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// GetMeta returns the value stored under key in index_meta, or "" when the
// key is absent.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM index_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read meta %q: %w", key, err)
	}
	return value, nil
}

// SetMeta stores value under key in index_meta.
func (db *DB) SetMeta(key, value string) error {
	return db.WithTx(func(tx *sql.Tx) error {
		return setMetaTx(tx, key, value)
	})
}

func setMetaTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO index_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %q: %w", key, err)
	}
	return nil
}

// IndexRun records the outcome of one indexing run for bookkeeping.
type IndexRun struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       time.Time
	FilesIndexed     int
	FilesSkipped     int
	FilesDeleted     int
	FilesDegraded    int
	CommitsHarvested int
}

// RecordRun persists one completed indexing run.
func (db *DB) RecordRun(run *IndexRun) error {
	_, err := db.Exec(`
		INSERT INTO index_runs (id, started_at, finished_at, files_indexed, files_skipped, files_deleted, files_degraded, commits_harvested)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
		run.FilesIndexed,
		run.FilesSkipped,
		run.FilesDeleted,
		run.FilesDegraded,
		run.CommitsHarvested,
	)
	if err != nil {
		return fmt.Errorf("failed to record index run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest indexing runs, bounded by limit.
func (db *DB) RecentRuns(limit int) ([]IndexRun, error) {
	rows, err := db.Query(`
		SELECT id, started_at, finished_at, files_indexed, files_skipped, files_deleted, files_degraded, commits_harvested
		FROM index_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query index runs: %w", err)
	}
	defer rows.Close()

	var result []IndexRun
	for rows.Next() {
		var run IndexRun
		var started, finished string
		if err := rows.Scan(&run.ID, &started, &finished, &run.FilesIndexed, &run.FilesSkipped, &run.FilesDeleted, &run.FilesDegraded, &run.CommitsHarvested); err != nil {
			return nil, err
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, started)
		run.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		result = append(result, run)
	}
	return result, rows.Err()
}
