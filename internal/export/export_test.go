package export

import (
	"bytes"
	"testing"
	"time"

	"devmind/internal/history"
	"devmind/internal/imports"
	"devmind/internal/lang"
	"devmind/internal/logging"
	"devmind/internal/storage"
	"devmind/internal/symbols"
	"devmind/internal/todos"
	"devmind/internal/walker"
)

func TestSnapshotRoundTrip(t *testing.T) {
	db, err := storage.Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	files := storage.NewFileStore(db)
	err = files.ReplaceFileFacts(&storage.FileFacts{
		File: walker.FileRecord{
			Path:        "billing.py",
			LineCount:   20,
			Fingerprint: "fp",
			ModTime:     time.Now().UTC(),
			Language:    lang.LangPython,
		},
		Functions: []symbols.FunctionRecord{
			{Name: "validate_payment", Signature: "def validate_payment(req):", StartLine: 3, EndLine: 9},
		},
		Imports: []imports.Edge{{RawText: "util", Target: "util.py"}},
		Todos:   []todos.Item{{LineNumber: 5, Marker: "TODO", Text: "currencies"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = storage.NewHistoryStore(db).AppendCommits([]history.Commit{
		{Hash: "abc", Author: "Alice", Timestamp: "2026-08-20T10:00:00Z", Message: "initial",
			Changes: []history.FileChange{{Path: "billing.py", Kind: "added"}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteSnapshot(db, &buf); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	snapshot, err := ReadSnapshot(&buf)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}

	if snapshot.Tool != "devmind" || snapshot.Stats.FileCount != 1 {
		t.Errorf("snapshot header = %+v", snapshot)
	}
	if len(snapshot.Files) != 1 {
		t.Fatalf("files = %+v", snapshot.Files)
	}
	entry := snapshot.Files[0]
	if entry.File.Path != "billing.py" || len(entry.Functions) != 1 || len(entry.Imports) != 1 || len(entry.Todos) != 1 {
		t.Errorf("entry = %+v", entry)
	}
	if len(snapshot.Commits) != 1 || snapshot.Commits[0].Hash != "abc" {
		t.Errorf("commits = %+v", snapshot.Commits)
	}
}

func TestSnapshotEmptyIndex(t *testing.T) {
	db, err := storage.Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var buf bytes.Buffer
	if err := WriteSnapshot(db, &buf); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	snapshot, err := ReadSnapshot(&buf)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if snapshot.Stats.FileCount != 0 || len(snapshot.Files) != 0 {
		t.Errorf("snapshot = %+v", snapshot)
	}
}
