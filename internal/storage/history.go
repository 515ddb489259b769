package storage

import (
	"database/sql"
	"fmt"
	"time"

	"devmind/internal/history"
)

// lastCommitKey is the index_meta cursor for incremental harvesting.
const lastCommitKey = "last_harvested_commit"

// CommitRow is one stored commit with its file changes attached.
type CommitRow struct {
	Hash      string
	Author    string
	Timestamp string
	Message   string
	Changes   []ChangeRow
}

// ChangeRow is one row of the commit_file_changes table.
type ChangeRow struct {
	CommitHash string
	FilePath   string
	Kind       string
	Summary    string
}

// HistoryStore persists harvested commit history. Commits are append-only;
// re-harvesting the same range is a no-op.
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a history store backed by db.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// AppendCommits inserts the given commits and their file changes in one
// transaction, ignoring commits already present. The newest commit hash is
// recorded as the harvest cursor.
func (s *HistoryStore) AppendCommits(commits []history.Commit) error {
	if len(commits) == 0 {
		return nil
	}

	return s.db.WithTx(func(tx *sql.Tx) error {
		for _, c := range commits {
			_, err := tx.Exec(`
				INSERT OR IGNORE INTO commits (hash, author, timestamp, message)
				VALUES (?, ?, ?, ?)
			`, c.Hash, c.Author, utcTimestamp(c.Timestamp), c.Message)
			if err != nil {
				return fmt.Errorf("failed to insert commit %s: %w", c.Hash, err)
			}

			for _, change := range c.Changes {
				_, err := tx.Exec(`
					INSERT OR IGNORE INTO commit_file_changes (commit_hash, file_path, change_kind, summary)
					VALUES (?, ?, ?, ?)
				`, c.Hash, change.Path, change.Kind, change.Summary)
				if err != nil {
					return fmt.Errorf("failed to insert change for %s: %w", c.Hash, err)
				}
			}
		}

		// Harvest order is newest-first; commits[0] is the new cursor
		return setMetaTx(tx, lastCommitKey, commits[0].Hash)
	})
}

// utcTimestamp rewrites an RFC 3339 timestamp in UTC. Author dates carry the
// author's local offset, and mixed offsets do not sort chronologically as
// strings; normalizing at insert keeps ORDER BY timestamp strict. Unparsable
// input is stored as-is.
func utcTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format(time.RFC3339)
}

// LastHarvestedCommit returns the hash of the newest harvested commit, or ""
// when no harvest has run.
func (s *HistoryStore) LastHarvestedCommit() (string, error) {
	return s.db.GetMeta(lastCommitKey)
}

// RecentChangesForFile returns commits that touched path, newest first,
// bounded by limit.
func (s *HistoryStore) RecentChangesForFile(path string, limit int) ([]CommitRow, error) {
	rows, err := s.db.Query(`
		SELECT c.hash, c.author, c.timestamp, c.message, ch.change_kind, ch.summary
		FROM commits c
		JOIN commit_file_changes ch ON ch.commit_hash = c.hash
		WHERE ch.file_path = ?
		ORDER BY c.timestamp DESC, c.hash
		LIMIT ?
	`, path, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes for %s: %w", path, err)
	}
	defer rows.Close()

	var result []CommitRow
	for rows.Next() {
		var c CommitRow
		var change ChangeRow
		if err := rows.Scan(&c.Hash, &c.Author, &c.Timestamp, &c.Message, &change.Kind, &change.Summary); err != nil {
			return nil, err
		}
		change.CommitHash = c.Hash
		change.FilePath = path
		c.Changes = []ChangeRow{change}
		result = append(result, c)
	}
	return result, rows.Err()
}

// RecentCommits returns the newest commits with their full change lists.
func (s *HistoryStore) RecentCommits(limit int) ([]CommitRow, error) {
	rows, err := s.db.Query(`
		SELECT hash, author, timestamp, message
		FROM commits
		ORDER BY timestamp DESC, hash
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent commits: %w", err)
	}
	defer rows.Close()

	var result []CommitRow
	for rows.Next() {
		var c CommitRow
		if err := rows.Scan(&c.Hash, &c.Author, &c.Timestamp, &c.Message); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		changes, err := s.changesFor(result[i].Hash)
		if err != nil {
			return nil, err
		}
		result[i].Changes = changes
	}
	return result, nil
}

func (s *HistoryStore) changesFor(hash string) ([]ChangeRow, error) {
	rows, err := s.db.Query(`
		SELECT commit_hash, file_path, change_kind, summary
		FROM commit_file_changes
		WHERE commit_hash = ?
		ORDER BY file_path
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes for %s: %w", hash, err)
	}
	defer rows.Close()

	var result []ChangeRow
	for rows.Next() {
		var ch ChangeRow
		if err := rows.Scan(&ch.CommitHash, &ch.FilePath, &ch.Kind, &ch.Summary); err != nil {
			return nil, err
		}
		result = append(result, ch)
	}
	return result, rows.Err()
}

// CommitCount returns the number of stored commits.
func (s *HistoryStore) CommitCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM commits").Scan(&count)
	return count, err
}
