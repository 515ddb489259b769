package storage

import (
	"testing"
	"time"

	"devmind/internal/history"
	"devmind/internal/imports"
	"devmind/internal/lang"
	"devmind/internal/logging"
	"devmind/internal/symbols"
	"devmind/internal/todos"
	"devmind/internal/walker"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleFacts(path string) *FileFacts {
	return &FileFacts{
		File: walker.FileRecord{
			Path:        path,
			SizeBytes:   120,
			LineCount:   10,
			Fingerprint: "fp-" + path,
			ModTime:     time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
			Language:    lang.LangPython,
		},
		Functions: []symbols.FunctionRecord{
			{Name: "validate_payment", Signature: "def validate_payment(req):", Docstring: "Validate a payment request.", StartLine: 3, EndLine: 9},
		},
		Imports: []imports.Edge{
			{RawText: "util", Target: "util.py"},
			{RawText: "os", Target: ""},
		},
		Todos: []todos.Item{
			{LineNumber: 5, Marker: "TODO", Text: "handle currency codes"},
		},
	}
}

func TestOpenCreatesSchema(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, logging.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.Close()

	// Reopening must not re-initialize or fail
	db, err = Open(dir, logging.Discard())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestReplaceFileFactsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewFileStore(db)

	if err := store.ReplaceFileFacts(sampleFacts("billing.py")); err != nil {
		t.Fatalf("ReplaceFileFacts: %v", err)
	}

	file, err := store.GetFile("billing.py")
	if err != nil || file == nil {
		t.Fatalf("GetFile: %v %v", file, err)
	}
	if file.Language != "python" || file.LineCount != 10 || file.Degraded {
		t.Errorf("file row = %+v", file)
	}

	fns, err := store.FunctionsInFile("billing.py")
	if err != nil || len(fns) != 1 {
		t.Fatalf("FunctionsInFile: %v %+v", err, fns)
	}
	if fns[0].Name != "validate_payment" || fns[0].StartLine != 3 {
		t.Errorf("function row = %+v", fns[0])
	}

	edges, err := store.EdgesFrom("billing.py")
	if err != nil || len(edges) != 2 {
		t.Fatalf("EdgesFrom: %v %+v", err, edges)
	}

	items, err := store.TodosInFile("billing.py")
	if err != nil || len(items) != 1 {
		t.Fatalf("TodosInFile: %v %+v", err, items)
	}
	if items[0].Marker != "TODO" {
		t.Errorf("todo row = %+v", items[0])
	}
}

func TestReplaceFileFactsIsIdempotentReplace(t *testing.T) {
	db := openTestDB(t)
	store := NewFileStore(db)

	if err := store.ReplaceFileFacts(sampleFacts("a.py")); err != nil {
		t.Fatal(err)
	}

	// Second generation drops the todo and renames the function
	facts := sampleFacts("a.py")
	facts.Functions[0].Name = "validate_refund"
	facts.Todos = nil
	if err := store.ReplaceFileFacts(facts); err != nil {
		t.Fatal(err)
	}

	fns, _ := store.FunctionsInFile("a.py")
	if len(fns) != 1 || fns[0].Name != "validate_refund" {
		t.Errorf("stale functions survived replace: %+v", fns)
	}
	items, _ := store.TodosInFile("a.py")
	if len(items) != 0 {
		t.Errorf("stale todos survived replace: %+v", items)
	}
}

func TestDeleteFileRemovesInboundEdges(t *testing.T) {
	db := openTestDB(t)
	store := NewFileStore(db)

	a := sampleFacts("a.py")
	a.Imports = []imports.Edge{{RawText: "b", Target: "b.py"}}
	b := sampleFacts("b.py")
	b.Imports = nil
	for _, f := range []*FileFacts{a, b} {
		if err := store.ReplaceFileFacts(f); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.DeleteFile("b.py"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	if file, _ := store.GetFile("b.py"); file != nil {
		t.Errorf("deleted file still present: %+v", file)
	}
	// The edge a.py -> b.py must be gone even though a.py was untouched
	edges, _ := store.EdgesFrom("a.py")
	if len(edges) != 0 {
		t.Errorf("inbound edge survived deletion: %+v", edges)
	}
}

func TestFingerprints(t *testing.T) {
	db := openTestDB(t)
	store := NewFileStore(db)

	for _, path := range []string{"a.py", "b.py"} {
		if err := store.ReplaceFileFacts(sampleFacts(path)); err != nil {
			t.Fatal(err)
		}
	}

	fps, err := store.Fingerprints()
	if err != nil {
		t.Fatal(err)
	}
	if len(fps) != 2 || fps["a.py"] != "fp-a.py" {
		t.Errorf("Fingerprints = %+v", fps)
	}
}

func TestFunctionSearch(t *testing.T) {
	db := openTestDB(t)
	store := NewFileStore(db)
	if err := store.ReplaceFileFacts(sampleFacts("billing.py")); err != nil {
		t.Fatal(err)
	}

	exact, err := store.FunctionsByName("validate_payment")
	if err != nil || len(exact) != 1 {
		t.Fatalf("FunctionsByName: %v %+v", err, exact)
	}

	// Underscore in the term must match literally, not as a wildcard
	sub, err := store.FunctionsMatching("ate_pay")
	if err != nil || len(sub) != 1 {
		t.Fatalf("FunctionsMatching: %v %+v", err, sub)
	}
	// '%' in the term must not act as a wildcard either
	if none, _ := store.FunctionsMatching("validate%payment"); len(none) != 0 {
		t.Errorf("wildcard leak in LIKE escaping: %+v", none)
	}

	doc, err := store.FunctionsWithDocstringMatch("payment request")
	if err != nil || len(doc) != 1 {
		t.Fatalf("FunctionsWithDocstringMatch: %v %+v", err, doc)
	}

	todo, err := store.TodosMatching("currency")
	if err != nil || len(todo) != 1 {
		t.Fatalf("TodosMatching: %v %+v", err, todo)
	}
}

func TestOverview(t *testing.T) {
	db := openTestDB(t)
	store := NewFileStore(db)

	a := sampleFacts("a.py")
	b := sampleFacts("b.go")
	b.File.Language = lang.LangGo
	b.Degraded = true
	b.Functions = nil
	b.Imports = nil
	b.Todos = []todos.Item{
		{LineNumber: 2, Marker: "FIXME", Text: "leaks on error"},
		{LineNumber: 7, Marker: "TODO", Text: "rename to Close"},
	}
	for _, f := range []*FileFacts{a, b} {
		if err := store.ReplaceFileFacts(f); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := store.Overview()
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if stats.FileCount != 2 || stats.TotalLines != 20 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalSize != 240 {
		t.Errorf("total size = %d, want 240", stats.TotalSize)
	}
	if stats.FunctionCount != 1 || stats.TodoCount != 3 || stats.EdgeCount != 2 {
		t.Errorf("fact counts = %+v", stats)
	}
	if stats.DegradedCount != 1 {
		t.Errorf("degraded count = %d", stats.DegradedCount)
	}
	if stats.LanguageCounts["python"] != 1 || stats.LanguageCounts["go"] != 1 {
		t.Errorf("language counts = %+v", stats.LanguageCounts)
	}
	if stats.TodosByMarker["TODO"] != 2 || stats.TodosByMarker["FIXME"] != 1 {
		t.Errorf("todos by marker = %+v", stats.TodosByMarker)
	}
}

func sampleCommits() []history.Commit {
	return []history.Commit{
		{
			Hash: "b2", Author: "Alice", Timestamp: "2026-08-20T10:00:00Z", Message: "second",
			Changes: []history.FileChange{{Path: "a.py", Kind: "modified"}},
		},
		{
			Hash: "a1", Author: "Bob", Timestamp: "2026-08-19T10:00:00Z", Message: "first",
			Changes: []history.FileChange{
				{Path: "a.py", Kind: "added"},
				{Path: "b.py", Kind: "added"},
			},
		},
	}
}

func TestHistoryAppendAndCursor(t *testing.T) {
	db := openTestDB(t)
	store := NewHistoryStore(db)

	if err := store.AppendCommits(sampleCommits()); err != nil {
		t.Fatalf("AppendCommits: %v", err)
	}

	cursor, err := store.LastHarvestedCommit()
	if err != nil || cursor != "b2" {
		t.Errorf("cursor = %q, %v", cursor, err)
	}

	// Re-appending the same commits is a no-op
	if err := store.AppendCommits(sampleCommits()); err != nil {
		t.Fatalf("re-append: %v", err)
	}
	count, _ := store.CommitCount()
	if count != 2 {
		t.Errorf("commit count = %d, want 2", count)
	}
}

func TestRecentChangesForFile(t *testing.T) {
	db := openTestDB(t)
	store := NewHistoryStore(db)
	if err := store.AppendCommits(sampleCommits()); err != nil {
		t.Fatal(err)
	}

	commits, err := store.RecentChangesForFile("a.py", 10)
	if err != nil {
		t.Fatalf("RecentChangesForFile: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("got %d commits: %+v", len(commits), commits)
	}
	// Newest first
	if commits[0].Hash != "b2" || commits[1].Hash != "a1" {
		t.Errorf("commit order: %q, %q", commits[0].Hash, commits[1].Hash)
	}
	if commits[0].Changes[0].Kind != "modified" {
		t.Errorf("change = %+v", commits[0].Changes[0])
	}

	only, _ := store.RecentChangesForFile("a.py", 1)
	if len(only) != 1 || only[0].Hash != "b2" {
		t.Errorf("limit not applied: %+v", only)
	}
}

func TestRecentCommits(t *testing.T) {
	db := openTestDB(t)
	store := NewHistoryStore(db)
	if err := store.AppendCommits(sampleCommits()); err != nil {
		t.Fatal(err)
	}

	commits, err := store.RecentCommits(10)
	if err != nil {
		t.Fatalf("RecentCommits: %v", err)
	}
	if len(commits) != 2 || commits[0].Hash != "b2" {
		t.Fatalf("commits = %+v", commits)
	}
	if len(commits[1].Changes) != 2 {
		t.Errorf("first commit changes = %+v", commits[1].Changes)
	}
}

func TestCommitOrderAcrossTimezones(t *testing.T) {
	db := openTestDB(t)
	store := NewHistoryStore(db)

	// 23:00+09:00 is 14:00Z; sorted as raw strings it would wrongly beat 20:00Z
	err := store.AppendCommits([]history.Commit{
		{Hash: "n1", Author: "Alice", Timestamp: "2026-08-20T20:00:00Z", Message: "newer"},
		{Hash: "o1", Author: "Kenji", Timestamp: "2026-08-20T23:00:00+09:00", Message: "older"},
	})
	if err != nil {
		t.Fatal(err)
	}

	commits, err := store.RecentCommits(10)
	if err != nil {
		t.Fatalf("RecentCommits: %v", err)
	}
	if len(commits) != 2 || commits[0].Hash != "n1" || commits[1].Hash != "o1" {
		t.Errorf("commit order = %+v", commits)
	}
	if commits[1].Timestamp != "2026-08-20T14:00:00Z" {
		t.Errorf("timestamp not normalized: %q", commits[1].Timestamp)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if v, err := db.GetMeta("missing"); err != nil || v != "" {
		t.Errorf("missing key = %q, %v", v, err)
	}
	if err := db.SetMeta("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMeta("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetMeta("k"); v != "v2" {
		t.Errorf("meta = %q, want v2", v)
	}
}

func TestRecordRun(t *testing.T) {
	db := openTestDB(t)

	run := &IndexRun{
		ID:           "run-1",
		StartedAt:    time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		FinishedAt:   time.Date(2026, 8, 20, 10, 0, 5, 0, time.UTC),
		FilesIndexed: 12,
		FilesSkipped: 3,
	}
	if err := db.RecordRun(run); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := db.RecentRuns(5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("RecentRuns: %v %+v", err, runs)
	}
	if runs[0].ID != "run-1" || runs[0].FilesIndexed != 12 {
		t.Errorf("run = %+v", runs[0])
	}
}
