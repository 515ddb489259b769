package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"devmind/internal/imports"
	"devmind/internal/symbols"
	"devmind/internal/todos"
	"devmind/internal/walker"
)

// FileFacts bundles everything extracted from one file for atomic storage.
type FileFacts struct {
	File      walker.FileRecord
	Degraded  bool
	Functions []symbols.FunctionRecord
	Imports   []imports.Edge
	Todos     []todos.Item
}

// FileRow is one row of the files table.
type FileRow struct {
	Path        string
	Language    string
	SizeBytes   int64
	LineCount   int
	Fingerprint string
	ModTime     time.Time
	Degraded    bool
	IndexedAt   time.Time
}

// FunctionRow is one row of the functions table.
type FunctionRow struct {
	ID        int64
	FilePath  string
	Name      string
	Signature string
	Docstring string
	StartLine int
	EndLine   int
}

// EdgeRow is one row of the import_edges table. TargetFile is empty for
// external imports.
type EdgeRow struct {
	SourceFile string
	TargetFile string
	RawText    string
}

// TodoRow is one row of the todo_items table.
type TodoRow struct {
	FilePath   string
	LineNumber int
	Marker     string
	Text       string
}

// FileStore provides access to per-file facts.
type FileStore struct {
	db *DB
}

// NewFileStore creates a file store backed by db.
func NewFileStore(db *DB) *FileStore {
	return &FileStore{db: db}
}

// ReplaceFileFacts atomically replaces all facts for one file: the file row
// is upserted and its functions, outgoing import edges, and todo items are
// deleted and re-inserted in a single transaction. A crash before commit
// leaves the previous generation of facts intact.
func (s *FileStore) ReplaceFileFacts(facts *FileFacts) error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		rec := facts.File
		_, err := tx.Exec(`
			INSERT INTO files (path, language, size_bytes, line_count, fingerprint, mod_time, degraded, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				language = excluded.language,
				size_bytes = excluded.size_bytes,
				line_count = excluded.line_count,
				fingerprint = excluded.fingerprint,
				mod_time = excluded.mod_time,
				degraded = excluded.degraded,
				indexed_at = excluded.indexed_at
		`,
			rec.Path,
			string(rec.Language),
			rec.SizeBytes,
			rec.LineCount,
			rec.Fingerprint,
			rec.ModTime.Format(time.RFC3339),
			boolToInt(facts.Degraded),
			time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert file row: %w", err)
		}

		for _, table := range []string{"functions", "todo_items"} {
			if _, err := tx.Exec("DELETE FROM "+table+" WHERE file_path = ?", rec.Path); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		if _, err := tx.Exec("DELETE FROM import_edges WHERE source_file = ?", rec.Path); err != nil {
			return fmt.Errorf("failed to clear import edges: %w", err)
		}

		for _, fn := range facts.Functions {
			_, err := tx.Exec(`
				INSERT INTO functions (file_path, name, signature, docstring, start_line, end_line)
				VALUES (?, ?, ?, ?, ?, ?)
			`, rec.Path, fn.Name, fn.Signature, fn.Docstring, fn.StartLine, fn.EndLine)
			if err != nil {
				return fmt.Errorf("failed to insert function %q: %w", fn.Name, err)
			}
		}

		for _, edge := range facts.Imports {
			_, err := tx.Exec(`
				INSERT INTO import_edges (source_file, target_file, raw_text)
				VALUES (?, ?, ?)
			`, rec.Path, edge.Target, edge.RawText)
			if err != nil {
				return fmt.Errorf("failed to insert import edge %q: %w", edge.RawText, err)
			}
		}

		for _, item := range facts.Todos {
			_, err := tx.Exec(`
				INSERT INTO todo_items (file_path, line_number, marker, text)
				VALUES (?, ?, ?, ?)
			`, rec.Path, item.LineNumber, item.Marker, item.Text)
			if err != nil {
				return fmt.Errorf("failed to insert todo item: %w", err)
			}
		}

		return nil
	})
}

// DeleteFile removes a file and all facts referencing it, including import
// edges held by other files that pointed at it.
func (s *FileStore) DeleteFile(path string) error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		statements := []struct {
			query string
			args  []interface{}
		}{
			{"DELETE FROM files WHERE path = ?", []interface{}{path}},
			{"DELETE FROM functions WHERE file_path = ?", []interface{}{path}},
			{"DELETE FROM todo_items WHERE file_path = ?", []interface{}{path}},
			{"DELETE FROM import_edges WHERE source_file = ? OR target_file = ?", []interface{}{path, path}},
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(stmt.query, stmt.args...); err != nil {
				return fmt.Errorf("failed to delete facts for %s: %w", path, err)
			}
		}
		return nil
	})
}

// Fingerprints returns the stored content fingerprint for every indexed file.
func (s *FileStore) Fingerprints() (map[string]string, error) {
	rows, err := s.db.Query("SELECT path, fingerprint FROM files")
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprints: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var path, fp string
		if err := rows.Scan(&path, &fp); err != nil {
			return nil, err
		}
		result[path] = fp
	}
	return result, rows.Err()
}

// GetFile returns the stored row for path, or nil when the file is unknown.
func (s *FileStore) GetFile(path string) (*FileRow, error) {
	row := s.db.QueryRow(`
		SELECT path, language, size_bytes, line_count, fingerprint, mod_time, degraded, indexed_at
		FROM files WHERE path = ?
	`, path)

	var f FileRow
	var degraded int
	var modTime, indexedAt string
	err := row.Scan(&f.Path, &f.Language, &f.SizeBytes, &f.LineCount, &f.Fingerprint, &modTime, &degraded, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}

	f.Degraded = degraded != 0
	f.ModTime, _ = time.Parse(time.RFC3339, modTime)
	f.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt)
	return &f, nil
}

// ListFiles returns all indexed files ordered by path.
func (s *FileStore) ListFiles() ([]FileRow, error) {
	rows, err := s.db.Query(`
		SELECT path, language, size_bytes, line_count, fingerprint, mod_time, degraded, indexed_at
		FROM files ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var result []FileRow
	for rows.Next() {
		var f FileRow
		var degraded int
		var modTime, indexedAt string
		if err := rows.Scan(&f.Path, &f.Language, &f.SizeBytes, &f.LineCount, &f.Fingerprint, &modTime, &degraded, &indexedAt); err != nil {
			return nil, err
		}
		f.Degraded = degraded != 0
		f.ModTime, _ = time.Parse(time.RFC3339, modTime)
		f.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt)
		result = append(result, f)
	}
	return result, rows.Err()
}

// FunctionsByName returns functions with exactly the given name, ordered by
// file path then start line.
func (s *FileStore) FunctionsByName(name string) ([]FunctionRow, error) {
	return s.queryFunctions(`
		SELECT id, file_path, name, signature, docstring, start_line, end_line
		FROM functions WHERE name = ?
		ORDER BY file_path, start_line
	`, name)
}

// FunctionsMatching returns functions whose name contains term
// (case-insensitive), ordered by file path then start line.
func (s *FileStore) FunctionsMatching(term string) ([]FunctionRow, error) {
	return s.queryFunctions(`
		SELECT id, file_path, name, signature, docstring, start_line, end_line
		FROM functions WHERE name LIKE ? ESCAPE '\' COLLATE NOCASE
		ORDER BY file_path, start_line
	`, "%"+escapeLike(term)+"%")
}

// FunctionsWithDocstringMatch returns functions whose docstring contains term.
func (s *FileStore) FunctionsWithDocstringMatch(term string) ([]FunctionRow, error) {
	return s.queryFunctions(`
		SELECT id, file_path, name, signature, docstring, start_line, end_line
		FROM functions WHERE docstring LIKE ? ESCAPE '\' COLLATE NOCASE
		ORDER BY file_path, start_line
	`, "%"+escapeLike(term)+"%")
}

// FunctionsInFile returns the functions of one file ordered by start line.
func (s *FileStore) FunctionsInFile(path string) ([]FunctionRow, error) {
	return s.queryFunctions(`
		SELECT id, file_path, name, signature, docstring, start_line, end_line
		FROM functions WHERE file_path = ?
		ORDER BY start_line
	`, path)
}

func (s *FileStore) queryFunctions(query string, args ...interface{}) ([]FunctionRow, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query functions: %w", err)
	}
	defer rows.Close()

	var result []FunctionRow
	for rows.Next() {
		var fn FunctionRow
		if err := rows.Scan(&fn.ID, &fn.FilePath, &fn.Name, &fn.Signature, &fn.Docstring, &fn.StartLine, &fn.EndLine); err != nil {
			return nil, err
		}
		result = append(result, fn)
	}
	return result, rows.Err()
}

// EdgesFrom returns the outgoing import edges of a file.
func (s *FileStore) EdgesFrom(path string) ([]EdgeRow, error) {
	return s.queryEdges(`
		SELECT source_file, target_file, raw_text
		FROM import_edges WHERE source_file = ?
		ORDER BY raw_text
	`, path)
}

// EdgesTo returns the resolved edges pointing at a file.
func (s *FileStore) EdgesTo(path string) ([]EdgeRow, error) {
	return s.queryEdges(`
		SELECT source_file, target_file, raw_text
		FROM import_edges WHERE target_file = ?
		ORDER BY source_file
	`, path)
}

func (s *FileStore) queryEdges(query string, args ...interface{}) ([]EdgeRow, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import edges: %w", err)
	}
	defer rows.Close()

	var result []EdgeRow
	for rows.Next() {
		var e EdgeRow
		if err := rows.Scan(&e.SourceFile, &e.TargetFile, &e.RawText); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// TodosInFile returns the todo items of one file ordered by line number.
func (s *FileStore) TodosInFile(path string) ([]TodoRow, error) {
	return s.queryTodos(`
		SELECT file_path, line_number, marker, text
		FROM todo_items WHERE file_path = ?
		ORDER BY line_number
	`, path)
}

// TodosMatching returns todo items whose text contains term (case-insensitive).
func (s *FileStore) TodosMatching(term string) ([]TodoRow, error) {
	return s.queryTodos(`
		SELECT file_path, line_number, marker, text
		FROM todo_items WHERE text LIKE ? ESCAPE '\' COLLATE NOCASE
		ORDER BY file_path, line_number
	`, "%"+escapeLike(term)+"%")
}

func (s *FileStore) queryTodos(query string, args ...interface{}) ([]TodoRow, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query todo items: %w", err)
	}
	defer rows.Close()

	var result []TodoRow
	for rows.Next() {
		var item TodoRow
		if err := rows.Scan(&item.FilePath, &item.LineNumber, &item.Marker, &item.Text); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// OverviewStats aggregates index-wide counts for the project overview.
type OverviewStats struct {
	FileCount      int            `json:"fileCount"`
	TotalLines     int            `json:"totalLines"`
	TotalSize      int64          `json:"totalSize"`
	FunctionCount  int            `json:"functionCount"`
	TodoCount      int            `json:"todoCount"`
	EdgeCount      int            `json:"edgeCount"`
	DegradedCount  int            `json:"degradedCount"`
	LanguageCounts map[string]int `json:"languageCounts"`
	TodosByMarker  map[string]int `json:"todosByMarker"`
}

// Overview computes aggregate statistics over the whole index.
func (s *FileStore) Overview() (*OverviewStats, error) {
	stats := &OverviewStats{
		LanguageCounts: make(map[string]int),
		TodosByMarker:  make(map[string]int),
	}

	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(line_count), 0), COALESCE(SUM(size_bytes), 0), COALESCE(SUM(degraded), 0)
		FROM files
	`).Scan(&stats.FileCount, &stats.TotalLines, &stats.TotalSize, &stats.DegradedCount)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate files: %w", err)
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM functions", &stats.FunctionCount},
		{"SELECT COUNT(*) FROM todo_items", &stats.TodoCount},
		{"SELECT COUNT(*) FROM import_edges", &stats.EdgeCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to aggregate counts: %w", err)
		}
	}

	rows, err := s.db.Query("SELECT language, COUNT(*) FROM files GROUP BY language")
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate languages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var language string
		var count int
		if err := rows.Scan(&language, &count); err != nil {
			return nil, err
		}
		stats.LanguageCounts[language] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	markerRows, err := s.db.Query("SELECT marker, COUNT(*) FROM todo_items GROUP BY marker")
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate todo markers: %w", err)
	}
	defer markerRows.Close()
	for markerRows.Next() {
		var marker string
		var count int
		if err := markerRows.Scan(&marker, &count); err != nil {
			return nil, err
		}
		stats.TodosByMarker[marker] = count
	}
	return stats, markerRows.Err()
}

// escapeLike escapes LIKE wildcards in user-supplied search terms. Queries
// using it must carry an ESCAPE '\' clause; underscores are common in
// identifiers and must not act as wildcards.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
