// Package query answers read-only questions over the index: project
// overview, symbol search, function context, recent changes, and the
// import-relation neighborhood of a file.
package query

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	devminderrors "devmind/internal/errors"
	"devmind/internal/logging"
	"devmind/internal/storage"
)

const (
	// DefaultSearchLimit bounds search results when the caller passes 0.
	DefaultSearchLimit = 20
	// DefaultChangeLimit bounds recent-change results when the caller passes 0.
	DefaultChangeLimit = 10
	// DefaultRelatedDepth is the BFS depth when the caller passes 0.
	DefaultRelatedDepth = 1
	// snippetMaxLines caps function snippets read from the live file.
	snippetMaxLines = 80
)

// Engine answers queries against a previously built index. It never writes;
// a stale index simply returns stale answers until the next indexing run.
type Engine struct {
	root    string
	db      *storage.DB
	files   *storage.FileStore
	commits *storage.HistoryStore
	logger  *logging.Logger
}

// NewEngine creates a query engine over an open database. root is the
// project root used to read live file content for snippets.
func NewEngine(root string, db *storage.DB, logger *logging.Logger) *Engine {
	return &Engine{
		root:    root,
		db:      db,
		files:   storage.NewFileStore(db),
		commits: storage.NewHistoryStore(db),
		logger:  logger,
	}
}

// Overview is the index-wide summary returned by the overview query.
type Overview struct {
	Stats         *storage.OverviewStats `json:"stats"`
	LastRun       *storage.IndexRun      `json:"lastRun,omitempty"`
	RecentCommits []storage.CommitRow    `json:"recentCommits,omitempty"`
}

// ProjectOverview aggregates file, symbol, and history statistics.
func (e *Engine) ProjectOverview() (*Overview, error) {
	stats, err := e.files.Overview()
	if err != nil {
		return nil, err
	}

	overview := &Overview{Stats: stats}

	runs, err := e.db.RecentRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		overview.LastRun = &runs[0]
	}

	commits, err := e.commits.RecentCommits(5)
	if err != nil {
		return nil, err
	}
	overview.RecentCommits = commits
	return overview, nil
}

// SearchResult is one ranked hit of the search query.
type SearchResult struct {
	Kind      string `json:"kind"` // "function" | "todo"
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Name      string `json:"name,omitempty"`
	Signature string `json:"signature,omitempty"`
	Excerpt   string `json:"excerpt,omitempty"`
	Rank      int    `json:"rank"`
}

// Search finds functions and todo items matching term. Rank 0 is an exact
// function-name match, rank 1 a name substring match, rank 2 a docstring or
// todo-text match; ties order by path then line.
func (e *Engine) Search(term string, limit int) ([]SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, devminderrors.New(devminderrors.InvalidArgument,
			"search term must not be empty", nil)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var results []SearchResult
	seen := make(map[int64]bool)

	exact, err := e.files.FunctionsByName(term)
	if err != nil {
		return nil, err
	}
	for _, fn := range exact {
		seen[fn.ID] = true
		results = append(results, functionResult(fn, 0))
	}

	substr, err := e.files.FunctionsMatching(term)
	if err != nil {
		return nil, err
	}
	for _, fn := range substr {
		if seen[fn.ID] {
			continue
		}
		seen[fn.ID] = true
		results = append(results, functionResult(fn, 1))
	}

	doc, err := e.files.FunctionsWithDocstringMatch(term)
	if err != nil {
		return nil, err
	}
	for _, fn := range doc {
		if seen[fn.ID] {
			continue
		}
		seen[fn.ID] = true
		results = append(results, functionResult(fn, 2))
	}

	items, err := e.files.TodosMatching(term)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		results = append(results, SearchResult{
			Kind:    "todo",
			Path:    item.FilePath,
			Line:    item.LineNumber,
			Name:    item.Marker,
			Excerpt: item.Text,
			Rank:    2,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Rank != results[j].Rank {
			return results[i].Rank < results[j].Rank
		}
		if results[i].Path != results[j].Path {
			return results[i].Path < results[j].Path
		}
		return results[i].Line < results[j].Line
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func functionResult(fn storage.FunctionRow, rank int) SearchResult {
	return SearchResult{
		Kind:      "function",
		Path:      fn.FilePath,
		Line:      fn.StartLine,
		Name:      fn.Name,
		Signature: fn.Signature,
		Excerpt:   fn.Docstring,
		Rank:      rank,
	}
}

// FunctionContext is everything known about one function definition.
type FunctionContext struct {
	Name         string   `json:"name"`
	Path         string   `json:"path"`
	Signature    string   `json:"signature"`
	Docstring    string   `json:"docstring,omitempty"`
	StartLine    int      `json:"startLine"`
	EndLine      int      `json:"endLine"`
	Snippet      string   `json:"snippet,omitempty"`
	RelatedFiles []string `json:"relatedFiles,omitempty"`
}

// GetFunctionContext returns context for every definition matching name.
// Exact matches win; when none exist, substring matches are returned so a
// near-miss query still leads somewhere. Snippets come from the live file
// and are empty when the file has drifted past the indexed line range.
func (e *Engine) GetFunctionContext(name string) ([]FunctionContext, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, devminderrors.New(devminderrors.InvalidArgument,
			"function name must not be empty", nil)
	}

	fns, err := e.files.FunctionsByName(name)
	if err != nil {
		return nil, err
	}
	if len(fns) == 0 {
		fns, err = e.files.FunctionsMatching(name)
		if err != nil {
			return nil, err
		}
	}

	var contexts []FunctionContext
	for _, fn := range fns {
		fc := FunctionContext{
			Name:      fn.Name,
			Path:      fn.FilePath,
			Signature: fn.Signature,
			Docstring: fn.Docstring,
			StartLine: fn.StartLine,
			EndLine:   fn.EndLine,
			Snippet:   e.readSnippet(fn.FilePath, fn.StartLine, fn.EndLine),
		}

		related, err := e.fileNeighbors(fn.FilePath)
		if err != nil {
			return nil, err
		}
		fc.RelatedFiles = related
		contexts = append(contexts, fc)
	}
	return contexts, nil
}

// readSnippet reads the live file for the indexed line range. The index may
// lag the working tree; out-of-range line numbers yield an empty snippet.
func (e *Engine) readSnippet(path string, startLine, endLine int) string {
	data, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(path)))
	if err != nil {
		return ""
	}

	lines := strings.Split(string(data), "\n")
	if startLine < 1 || startLine > len(lines) {
		return ""
	}
	if endLine > len(lines) {
		return ""
	}

	end := endLine
	if end-startLine+1 > snippetMaxLines {
		end = startLine + snippetMaxLines - 1
	}
	return strings.Join(lines[startLine-1:end], "\n")
}

// fileNeighbors returns the distinct files one import hop away from path.
func (e *Engine) fileNeighbors(path string) ([]string, error) {
	var neighbors []string
	seen := map[string]bool{path: true}

	out, err := e.files.EdgesFrom(path)
	if err != nil {
		return nil, err
	}
	in, err := e.files.EdgesTo(path)
	if err != nil {
		return nil, err
	}

	for _, edge := range out {
		if edge.TargetFile != "" && !seen[edge.TargetFile] {
			seen[edge.TargetFile] = true
			neighbors = append(neighbors, edge.TargetFile)
		}
	}
	for _, edge := range in {
		if !seen[edge.SourceFile] {
			seen[edge.SourceFile] = true
			neighbors = append(neighbors, edge.SourceFile)
		}
	}
	sort.Strings(neighbors)
	return neighbors, nil
}

// ChangeReport is the answer to the recent-changes query.
type ChangeReport struct {
	Path    string              `json:"path,omitempty"`
	Commits []storage.CommitRow `json:"commits"`
}

// RecentChanges returns commits touching path, newest first. An empty path
// reports the newest commits across the whole repository. A project without
// harvested history returns an empty report rather than an error.
func (e *Engine) RecentChanges(path string, limit int) (*ChangeReport, error) {
	if limit <= 0 {
		limit = DefaultChangeLimit
	}

	var commits []storage.CommitRow
	var err error
	if path == "" {
		commits, err = e.commits.RecentCommits(limit)
	} else {
		commits, err = e.commits.RecentChangesForFile(path, limit)
	}
	if err != nil {
		return nil, err
	}
	return &ChangeReport{Path: path, Commits: commits}, nil
}

// RelatedFile is one entry of the related-files query.
type RelatedFile struct {
	Path     string `json:"path"`
	Relation string `json:"relation"` // "imports" | "imported_by"
	Depth    int    `json:"depth"`
}

// FindRelatedFiles walks the import graph breadth-first from path, up to
// depth hops in both directions, and returns each reached file once at its
// shortest distance. Results order by depth then path. A path with no edges,
// including one not in the index at all, yields an empty result.
func (e *Engine) FindRelatedFiles(path string, depth int) ([]RelatedFile, error) {
	if depth <= 0 {
		depth = DefaultRelatedDepth
	}

	type queueEntry struct {
		path  string
		depth int
	}

	visited := map[string]bool{path: true}
	queue := []queueEntry{{path: path, depth: 0}}
	results := []RelatedFile{}

	for len(queue) > 0 {
		entry := queue[0]
		queue = queue[1:]
		if entry.depth == depth {
			continue
		}

		out, err := e.files.EdgesFrom(entry.path)
		if err != nil {
			return nil, err
		}
		for _, edge := range out {
			if edge.TargetFile == "" || visited[edge.TargetFile] {
				continue
			}
			visited[edge.TargetFile] = true
			results = append(results, RelatedFile{
				Path:     edge.TargetFile,
				Relation: "imports",
				Depth:    entry.depth + 1,
			})
			queue = append(queue, queueEntry{path: edge.TargetFile, depth: entry.depth + 1})
		}

		in, err := e.files.EdgesTo(entry.path)
		if err != nil {
			return nil, err
		}
		for _, edge := range in {
			if visited[edge.SourceFile] {
				continue
			}
			visited[edge.SourceFile] = true
			results = append(results, RelatedFile{
				Path:     edge.SourceFile,
				Relation: "imported_by",
				Depth:    entry.depth + 1,
			})
			queue = append(queue, queueEntry{path: edge.SourceFile, depth: entry.depth + 1})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Depth != results[j].Depth {
			return results[i].Depth < results[j].Depth
		}
		return results[i].Path < results[j].Path
	})
	return results, nil
}
