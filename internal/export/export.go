// Package export writes portable snapshots of the index as
// zstd-compressed JSON, for archiving or moving an index between machines
// without copying the raw database.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"devmind/internal/storage"
	"devmind/internal/version"
)

// Snapshot is the serialized form of a full index.
type Snapshot struct {
	GeneratedAt string                 `json:"generatedAt"`
	Tool        string                 `json:"tool"`
	Version     string                 `json:"version"`
	Stats       *storage.OverviewStats `json:"stats"`
	Files       []FileEntry            `json:"files"`
	Commits     []storage.CommitRow    `json:"commits,omitempty"`
}

// FileEntry bundles one file with all its facts.
type FileEntry struct {
	File      storage.FileRow       `json:"file"`
	Functions []storage.FunctionRow `json:"functions,omitempty"`
	Imports   []storage.EdgeRow     `json:"imports,omitempty"`
	Todos     []storage.TodoRow     `json:"todos,omitempty"`
}

// WriteSnapshot serializes the whole index to w.
func WriteSnapshot(db *storage.DB, w io.Writer) error {
	snapshot, err := buildSnapshot(db)
	if err != nil {
		return err
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}

	if err := json.NewEncoder(zw).Encode(snapshot); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return zw.Close()
}

// ReadSnapshot decodes a snapshot previously written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer zr.Close()

	var snapshot Snapshot
	if err := json.NewDecoder(zr).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

func buildSnapshot(db *storage.DB) (*Snapshot, error) {
	files := storage.NewFileStore(db)
	commits := storage.NewHistoryStore(db)

	stats, err := files.Overview()
	if err != nil {
		return nil, err
	}

	rows, err := files.ListFiles()
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Tool:        "devmind",
		Version:     version.Version,
		Stats:       stats,
	}

	for _, row := range rows {
		entry := FileEntry{File: row}
		if entry.Functions, err = files.FunctionsInFile(row.Path); err != nil {
			return nil, err
		}
		if entry.Imports, err = files.EdgesFrom(row.Path); err != nil {
			return nil, err
		}
		if entry.Todos, err = files.TodosInFile(row.Path); err != nil {
			return nil, err
		}
		snapshot.Files = append(snapshot.Files, entry)
	}

	count, err := commits.CommitCount()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		if snapshot.Commits, err = commits.RecentCommits(count); err != nil {
			return nil, err
		}
	}
	return snapshot, nil
}
