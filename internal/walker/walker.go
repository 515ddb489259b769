// Package walker enumerates and classifies project files for indexing.
package walker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"devmind/internal/lang"
	"devmind/internal/logging"
)

// Directories never descended into, regardless of config excludes.
var skipDirs = map[string]bool{
	".git":         true,
	".devmind":     true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"out":          true,
	".venv":        true,
	"venv":         true,
	".cache":       true,
}

// sniffLen is how many leading bytes are checked for binary content.
const sniffLen = 8192

// FileRecord describes one candidate source file.
type FileRecord struct {
	// Path is project-relative with forward slashes.
	Path        string
	AbsPath     string
	SizeBytes   int64
	LineCount   int
	Fingerprint string
	ModTime     time.Time
	Language    lang.Language
	// Unreadable marks files that exist but could not be read or decoded.
	// They are indexed for metadata only and flagged degraded.
	Unreadable bool
}

// Walker walks a project tree and emits FileRecords for supported source files.
type Walker struct {
	root     string
	excludes []string
	maxSize  int64
	logger   *logging.Logger
}

// New creates a Walker rooted at root. excludes are glob patterns or
// directory prefixes relative to root. maxSize caps readable file size;
// 0 means no cap.
func New(root string, excludes []string, maxSize int64, logger *logging.Logger) *Walker {
	return &Walker{
		root:     root,
		excludes: excludes,
		maxSize:  maxSize,
		logger:   logger,
	}
}

// Walk enumerates the tree and returns records sorted by path. Two walks
// over an unchanged tree return identical records, fingerprints included.
func (w *Walker) Walk(ctx context.Context) ([]FileRecord, error) {
	var records []FileRecord

	err := filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			w.logger.Warn("Skipping inaccessible path", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			return nil
		}

		relPath, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if path == w.root {
				return nil
			}
			base := filepath.Base(path)
			if skipDirs[base] || strings.HasPrefix(base, ".") || w.isExcluded(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		language, ok := lang.FromExtension(strings.ToLower(filepath.Ext(path)))
		if !ok {
			return nil
		}

		if w.isExcluded(relPath) {
			return nil
		}

		rec, ok := w.classify(relPath, path, info, language)
		if ok {
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk project tree: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}

// classify reads a file and computes its metadata. Unreadable or undecodable
// files come back with Unreadable set so the caller can record them as
// degraded rather than dropping them silently.
func (w *Walker) classify(relPath, absPath string, info os.FileInfo, language lang.Language) (FileRecord, bool) {
	rec := FileRecord{
		Path:      relPath,
		AbsPath:   absPath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime().UTC(),
		Language:  language,
	}

	if w.maxSize > 0 && info.Size() > w.maxSize {
		w.logger.Debug("Skipping oversized file", map[string]interface{}{
			"path": relPath,
			"size": info.Size(),
		})
		return rec, false
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		w.logger.Warn("File unreadable, indexing metadata only", map[string]interface{}{
			"path":  relPath,
			"error": err.Error(),
		})
		rec.Unreadable = true
		return rec, true
	}

	if isBinary(data) {
		w.logger.Debug("Skipping binary file", map[string]interface{}{
			"path": relPath,
		})
		return rec, false
	}

	if !utf8.Valid(data) {
		w.logger.Warn("File is not valid UTF-8, indexing metadata only", map[string]interface{}{
			"path": relPath,
		})
		rec.Unreadable = true
		rec.Fingerprint = fingerprint(data)
		return rec, true
	}

	rec.LineCount = countLines(data)
	rec.Fingerprint = fingerprint(data)
	return rec, true
}

func (w *Walker) isExcluded(relPath string) bool {
	normalized := filepath.ToSlash(relPath)

	for _, pattern := range w.excludes {
		p := filepath.ToSlash(pattern)

		if matched, _ := filepath.Match(p, normalized); matched {
			return true
		}

		// Directory exclude: "generated" matches "generated/a/b.py"
		dirPrefix := strings.TrimSuffix(p, "/") + "/"
		if strings.HasPrefix(normalized, dirPrefix) {
			return true
		}
		if normalized == strings.TrimSuffix(p, "/") {
			return true
		}
	}
	return false
}

// fingerprint returns the content hash used for change detection.
func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

func isBinary(data []byte) bool {
	sniff := data
	if len(sniff) > sniffLen {
		sniff = sniff[:sniffLen]
	}
	return bytes.IndexByte(sniff, 0) >= 0
}
