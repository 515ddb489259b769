// Package indexer orchestrates the indexing pipeline: walk, extract,
// persist, reconcile deletions, and harvest git history.
package indexer

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"devmind/internal/config"
	devminderrors "devmind/internal/errors"
	"devmind/internal/history"
	"devmind/internal/imports"
	"devmind/internal/logging"
	"devmind/internal/storage"
	"devmind/internal/symbols"
	"devmind/internal/todos"
	"devmind/internal/walker"
)

// writeRetries is how often a busy write is retried before giving up.
const writeRetries = 3

// Stats summarizes one indexing run.
type Stats struct {
	RunID            string        `json:"runId"`
	FilesIndexed     int           `json:"filesIndexed"`
	FilesSkipped     int           `json:"filesSkipped"`
	FilesDeleted     int           `json:"filesDeleted"`
	FilesDegraded    int           `json:"filesDegraded"`
	CommitsHarvested int           `json:"commitsHarvested"`
	Duration         time.Duration `json:"duration"`
}

// Indexer runs the indexing pipeline against one project.
type Indexer struct {
	cfg       *config.Config
	db        *storage.DB
	files     *storage.FileStore
	commits   *storage.HistoryStore
	harvester *history.Harvester
	logger    *logging.Logger
}

// New creates an indexer over an open database.
func New(cfg *config.Config, db *storage.DB, logger *logging.Logger) *Indexer {
	return &Indexer{
		cfg:       cfg,
		db:        db,
		files:     storage.NewFileStore(db),
		commits:   storage.NewHistoryStore(db),
		harvester: history.NewHarvester(cfg.ProjectRoot, logger),
		logger:    logger,
	}
}

type harvestResult struct {
	commits []history.Commit
	err     error
}

// Run executes one full indexing pass. Unchanged files are skipped by
// fingerprint, vanished files are reconciled out of the index, and git
// history is harvested concurrently with extraction. Cancelling ctx stops
// dispatching new files; files already extracted are still written so the
// index stays consistent.
func (ix *Indexer) Run(ctx context.Context) (*Stats, error) {
	started := time.Now()
	stats := &Stats{RunID: uuid.NewString()}

	if _, err := os.Stat(ix.cfg.ProjectRoot); err != nil {
		return nil, devminderrors.New(devminderrors.ProjectRootMissing,
			"project root does not exist", err).WithDetails(ix.cfg.ProjectRoot)
	}

	ix.logger.Info("Starting index run", map[string]interface{}{
		"run_id": stats.RunID,
		"root":   ix.cfg.ProjectRoot,
	})

	// History harvest runs alongside extraction; both only meet at the end
	harvestCh := make(chan harvestResult, 1)
	go func() {
		commits, err := ix.harvest(ctx)
		harvestCh <- harvestResult{commits: commits, err: err}
	}()

	w := walker.New(ix.cfg.ProjectRoot, ix.cfg.Index.Excludes, ix.cfg.Index.MaxFileSizeBytes, ix.logger)
	records, err := w.Walk(ctx)
	if err != nil {
		return nil, err
	}

	stored, err := ix.files.Fingerprints()
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(records))
	for i, rec := range records {
		paths[i] = rec.Path
	}
	fileSet := imports.NewFileSet(paths)
	goModule := imports.GoModulePath(ix.cfg.ProjectRoot)

	var toIndex []walker.FileRecord
	for _, rec := range records {
		if rec.Fingerprint != "" && stored[rec.Path] == rec.Fingerprint {
			stats.FilesSkipped++
			continue
		}
		toIndex = append(toIndex, rec)
	}

	if err := ix.extractAll(ctx, toIndex, fileSet, goModule, stats); err != nil {
		return stats, err
	}

	// Reconcile files that vanished since the previous run
	present := make(map[string]bool, len(records))
	for _, rec := range records {
		present[rec.Path] = true
	}
	for path := range stored {
		if present[path] {
			continue
		}
		if err := ix.files.DeleteFile(path); err != nil {
			return stats, err
		}
		stats.FilesDeleted++
	}

	hr := <-harvestCh
	if hr.err != nil {
		ix.logger.Warn("History harvest failed", map[string]interface{}{
			"error": hr.err.Error(),
		})
	} else if len(hr.commits) > 0 {
		if err := ix.commits.AppendCommits(hr.commits); err != nil {
			return stats, err
		}
		stats.CommitsHarvested = len(hr.commits)
	}

	stats.Duration = time.Since(started)
	run := &storage.IndexRun{
		ID:               stats.RunID,
		StartedAt:        started,
		FinishedAt:       time.Now(),
		FilesIndexed:     stats.FilesIndexed,
		FilesSkipped:     stats.FilesSkipped,
		FilesDeleted:     stats.FilesDeleted,
		FilesDegraded:    stats.FilesDegraded,
		CommitsHarvested: stats.CommitsHarvested,
	}
	if err := ix.db.RecordRun(run); err != nil {
		ix.logger.Warn("Failed to record index run", map[string]interface{}{
			"error": err.Error(),
		})
	}

	ix.logger.Info("Index run finished", map[string]interface{}{
		"run_id":            stats.RunID,
		"files_indexed":     stats.FilesIndexed,
		"files_skipped":     stats.FilesSkipped,
		"files_deleted":     stats.FilesDeleted,
		"files_degraded":    stats.FilesDegraded,
		"commits_harvested": stats.CommitsHarvested,
		"duration_ms":       stats.Duration.Milliseconds(),
	})
	return stats, ctx.Err()
}

// extractAll fans records out to a worker pool and writes results from a
// single goroutine, one transaction per file. Tree-sitter parsers are not
// safe for concurrent use, so each worker owns its own extractors.
func (ix *Indexer) extractAll(ctx context.Context, records []walker.FileRecord, fileSet imports.FileSet, goModule string, stats *Stats) error {
	if len(records) == 0 {
		return nil
	}

	workers := ix.cfg.Index.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(records) {
		workers = len(records)
	}

	jobs := make(chan walker.FileRecord)
	results := make(chan *storage.FileFacts)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			symbolExt := symbols.NewExtractor()
			importExt := imports.NewExtractor(goModule)
			for rec := range jobs {
				results <- ix.extractOne(ctx, symbolExt, importExt, rec, fileSet)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, rec := range records {
			select {
			case jobs <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var writeErr error
	for facts := range results {
		if writeErr != nil {
			continue // drain remaining workers
		}
		if err := ix.writeWithRetry(facts); err != nil {
			writeErr = err
			continue
		}
		stats.FilesIndexed++
		if facts.Degraded {
			stats.FilesDegraded++
		}
	}
	return writeErr
}

// extractOne reads and parses one file. Parse failures degrade the file to
// metadata plus todo items rather than failing the run.
func (ix *Indexer) extractOne(ctx context.Context, symbolExt *symbols.Extractor, importExt *imports.Extractor, rec walker.FileRecord, fileSet imports.FileSet) *storage.FileFacts {
	facts := &storage.FileFacts{File: rec}

	if rec.Unreadable {
		facts.Degraded = true
		return facts
	}

	data, err := os.ReadFile(rec.AbsPath)
	if err != nil {
		ix.logger.Warn("File vanished during indexing", map[string]interface{}{
			"path":  rec.Path,
			"error": err.Error(),
		})
		facts.Degraded = true
		return facts
	}

	fns, err := symbolExt.Extract(ctx, data, rec.Language)
	switch {
	case errors.Is(err, symbols.ErrUnparsable):
		ix.logger.Debug("File not parsable, indexing metadata only", map[string]interface{}{
			"path": rec.Path,
		})
		facts.Degraded = true
	case err != nil:
		facts.Degraded = true
	default:
		facts.Functions = fns
	}

	if !facts.Degraded {
		edges, err := importExt.Extract(ctx, rec.Path, data, rec.Language, fileSet)
		if err != nil {
			facts.Degraded = true
		} else {
			facts.Imports = edges
		}
	}

	// Todo scanning is line-based and works even when parsing failed
	facts.Todos = todos.Scan(data, rec.Language)
	return facts
}

// writeWithRetry retries writes that lose a lock race, then surfaces
// IndexBusy so callers can distinguish contention from corruption.
func (ix *Indexer) writeWithRetry(facts *storage.FileFacts) error {
	var err error
	for attempt := 0; attempt < writeRetries; attempt++ {
		err = ix.files.ReplaceFileFacts(facts)
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return devminderrors.New(devminderrors.IndexBusy,
		"storage kept conflicting after retries", err).WithDetails(facts.File.Path)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// harvest reads new commits since the stored cursor. A project without git
// is not an error; history-backed queries just stay empty.
func (ix *Indexer) harvest(ctx context.Context) ([]history.Commit, error) {
	if !ix.cfg.Git.Enabled {
		return nil, nil
	}
	if !ix.harvester.Available() {
		ix.logger.Debug("Not a git repository, skipping history harvest", map[string]interface{}{
			"root": ix.cfg.ProjectRoot,
		})
		return nil, nil
	}

	since, err := ix.commits.LastHarvestedCommit()
	if err != nil {
		return nil, err
	}
	return ix.harvester.HarvestSince(ctx, since, ix.cfg.Git.HarvestLimit)
}
