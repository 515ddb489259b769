// Package history reads version-control history into harvestable records.
//
// The harvester shells out to git the way the rest of the toolchain does;
// it never links a git library. Commits are read newest-first and persisted
// append-only by the caller.
package history

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"devmind/internal/logging"
)

// DefaultTimeout bounds a single git invocation.
const DefaultTimeout = 10 * time.Second

// FileChange is one changed file within a commit.
type FileChange struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"` // "added" | "modified" | "deleted"
	Summary string `json:"summary,omitempty"`
}

// Commit is one harvested commit, newest-first in harvest order.
type Commit struct {
	Hash      string       `json:"hash"`
	Author    string       `json:"author"`
	Timestamp string       `json:"timestamp"` // ISO 8601 author date
	Message   string       `json:"message"`   // subject line
	Changes   []FileChange `json:"changes"`
}

// Harvester reads the commit log of a repository.
type Harvester struct {
	repoRoot string
	timeout  time.Duration
	logger   *logging.Logger
}

// NewHarvester creates a harvester for the repository at repoRoot.
func NewHarvester(repoRoot string, logger *logging.Logger) *Harvester {
	return &Harvester{
		repoRoot: repoRoot,
		timeout:  DefaultTimeout,
		logger:   logger,
	}
}

// Available reports whether repoRoot is inside a git repository. When false
// the harvester is disabled and commit-dependent queries stay empty.
func (h *Harvester) Available() bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = h.repoRoot
	return cmd.Run() == nil
}

// HarvestSince returns commits newer than sinceHash, newest first, with
// their changed-file lists. An empty sinceHash harvests the full history
// (bounded by limit when limit > 0). A sinceHash no longer reachable (for
// example after a history rewrite) falls back to a full harvest; the caller
// deduplicates on insert.
func (h *Harvester) HarvestSince(ctx context.Context, sinceHash string, limit int) ([]Commit, error) {
	if sinceHash != "" {
		commits, err := h.runLog(ctx, sinceHash+"..HEAD", 0)
		if err == nil {
			return commits, nil
		}
		h.logger.Warn("Incremental harvest failed, falling back to full history", map[string]interface{}{
			"since": sinceHash,
			"error": err.Error(),
		})
	}
	return h.runLog(ctx, "", limit)
}

func (h *Harvester) runLog(ctx context.Context, revRange string, limit int) ([]Commit, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	args := []string{"log", "--name-status", "--format=%H|%an|%aI|%s"}
	if limit > 0 {
		args = append(args, fmt.Sprintf("-n%d", limit))
	}
	if revRange != "" {
		args = append(args, revRange)
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = h.repoRoot
	output, err := cmd.Output()
	if err != nil {
		// A repository with no commits yet is an empty history, not an error
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr := string(exitErr.Stderr)
			if strings.Contains(stderr, "does not have any commits") {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("git log failed: %w", err)
	}

	return parseLog(output), nil
}

// parseLog parses `git log --name-status --format=%H|%an|%aI|%s` output.
// Header lines start with a 40-hex hash; the lines that follow until the
// next header are tab-separated name-status entries.
func parseLog(output []byte) []Commit {
	var commits []Commit
	var current *Commit

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		if isHeaderLine(line) {
			if current != nil {
				commits = append(commits, *current)
			}
			parts := strings.SplitN(line, "|", 4)
			current = &Commit{
				Hash:      parts[0],
				Author:    parts[1],
				Timestamp: parts[2],
				Message:   parts[3],
			}
			continue
		}

		if current == nil {
			continue
		}
		if change, ok := parseNameStatus(line); ok {
			current.Changes = append(current.Changes, change...)
		}
	}
	if current != nil {
		commits = append(commits, *current)
	}
	return commits
}

func isHeaderLine(line string) bool {
	if len(line) < 41 || line[40] != '|' {
		return false
	}
	return isHex(line[:40]) && strings.Count(line, "|") >= 3
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// parseNameStatus parses one name-status line. Renames expand into a delete
// of the old path and an add of the new path so change kinds stay within
// added/modified/deleted.
func parseNameStatus(line string) ([]FileChange, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return nil, false
	}

	status := fields[0]
	switch {
	case status == "A":
		return []FileChange{{Path: fields[1], Kind: "added"}}, true
	case status == "M":
		return []FileChange{{Path: fields[1], Kind: "modified"}}, true
	case status == "D":
		return []FileChange{{Path: fields[1], Kind: "deleted"}}, true
	case strings.HasPrefix(status, "R") && len(fields) >= 3:
		return []FileChange{
			{Path: fields[1], Kind: "deleted", Summary: "renamed to " + fields[2]},
			{Path: fields[2], Kind: "added", Summary: "renamed from " + fields[1]},
		}, true
	case strings.HasPrefix(status, "C") && len(fields) >= 3:
		return []FileChange{{Path: fields[2], Kind: "added", Summary: "copied from " + fields[1]}}, true
	default:
		return []FileChange{{Path: fields[len(fields)-1], Kind: "modified"}}, true
	}
}
