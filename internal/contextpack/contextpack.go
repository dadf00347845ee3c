// Package contextpack is the Context Builder: assembles the bounded
// textual repository bundle (spec.md glossary "context pack") handed
// to the judge alongside the candidate, grounded on
// pkg/prefetch/rules.go's git-subprocess pattern
// (BranchDiffRule/RecentCommitRule), generalized from event-triggered
// prefetch rules to an on-demand scope-driven collector.
package contextpack

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/DRCubix/gansauditor-codex/internal/secrets"
	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

// DefaultMaxBytes bounds the assembled pack before judge submission.
const DefaultMaxBytes = 64 * 1024

// Collector gathers repository information for a scope. The default
// implementation shells out to git; tests may supply a fake.
type Collector interface {
	Diff(ctx context.Context, workDir string) (string, error)
	FileTree(ctx context.Context, workDir string) (string, error)
	FileContents(ctx context.Context, workDir string, paths []string) (string, error)
}

// GitCollector is the default Collector, grounded on
// pkg/prefetch/rules.go's exec.CommandContext + timeout pattern.
type GitCollector struct {
	Timeout time.Duration
}

// NewGitCollector returns a GitCollector with a sane default timeout.
func NewGitCollector() *GitCollector {
	return &GitCollector{Timeout: 5 * time.Second}
}

func (g *GitCollector) run(ctx context.Context, workDir string, args ...string) (string, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, "git", args...)
	cmd.Dir = workDir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if callCtx.Err() != nil {
			return "", fmt.Errorf("git %s timed out after %v", strings.Join(args, " "), timeout)
		}
		return "", fmt.Errorf("git %s failed: %w (%s)", strings.Join(args, " "), err, out.String())
	}
	return out.String(), nil
}

// Diff returns `git diff HEAD` for the working directory.
func (g *GitCollector) Diff(ctx context.Context, workDir string) (string, error) {
	return g.run(ctx, workDir, "diff", "HEAD")
}

// FileTree returns a tracked-file listing via `git ls-files`.
func (g *GitCollector) FileTree(ctx context.Context, workDir string) (string, error) {
	return g.run(ctx, workDir, "ls-files")
}

// FileContents concatenates `git show HEAD:path` for each requested
// path, skipping any that fail to resolve (e.g. untracked or deleted).
func (g *GitCollector) FileContents(ctx context.Context, workDir string, paths []string) (string, error) {
	var buf strings.Builder
	for _, p := range paths {
		content, err := g.run(ctx, workDir, "show", "HEAD:"+p)
		if err != nil {
			continue
		}
		fmt.Fprintf(&buf, "--- %s ---\n%s\n", p, content)
	}
	return buf.String(), nil
}

// Builder assembles a context pack for a given scope, truncating from
// the tail while keeping the git header and file tree intact (spec.md
// §9 "bounded textual bundle"). Before returning, the pack is scrubbed
// through a secrets.Scrubber: a repository diff can carry committed or
// staged credentials, and the judge is an external process the pack
// text is handed to verbatim, so scrubbing here is the one place that
// protects every judge invocation regardless of scope.
type Builder struct {
	Collector Collector
	MaxBytes  int
	Scrubber  secrets.Scrubber
}

// New creates a Builder with the default git collector, byte bound,
// and secret scrubber.
func New() *Builder {
	scrubber, err := secrets.New(nil)
	if err != nil {
		// DefaultConfig() always validates; this path is unreachable
		// outside of a corrupted build, so fail loud rather than run
		// with scrubbing silently disabled.
		panic(fmt.Sprintf("contextpack: default scrubber config invalid: %v", err))
	}
	return &Builder{Collector: NewGitCollector(), MaxBytes: DefaultMaxBytes, Scrubber: scrubber}
}

// Build assembles the pack for cfg.Scope against workDir. A degraded
// (partial or empty) pack is never an error by itself: filesystem
// faults here only degrade context quality (spec.md §7).
func (b *Builder) Build(ctx context.Context, workDir string, cfg thought.SessionConfig) (string, []string) {
	var warnings []string
	var sections []string

	tree, err := b.Collector.FileTree(ctx, workDir)
	if err != nil {
		warnings = append(warnings, "file tree unavailable: "+err.Error())
	} else {
		sections = append(sections, "## File tree\n"+tree)
	}

	scope := cfg.Scope
	paths := cfg.Paths
	if scope == thought.ScopePaths && len(paths) == 0 {
		warnings = append(warnings, "scope=paths requested with no paths; falling back to workspace")
		scope = thought.ScopeWorkspace
	}

	switch scope {
	case thought.ScopeDiff:
		diff, err := b.Collector.Diff(ctx, workDir)
		if err != nil {
			warnings = append(warnings, "diff unavailable: "+err.Error())
		} else {
			sections = append(sections, "## Diff (HEAD)\n"+diff)
		}
	case thought.ScopePaths:
		content, err := b.Collector.FileContents(ctx, workDir, paths)
		if err != nil {
			warnings = append(warnings, "file contents unavailable: "+err.Error())
		} else {
			sections = append(sections, "## Requested files\n"+content)
		}
	case thought.ScopeWorkspace:
		diff, err := b.Collector.Diff(ctx, workDir)
		if err == nil && strings.TrimSpace(diff) != "" {
			sections = append(sections, "## Diff (HEAD)\n"+diff)
		}
	}

	pack := strings.Join(sections, "\n\n")
	if b.Scrubber != nil && b.Scrubber.IsEnabled() {
		result := b.Scrubber.Scrub(pack)
		pack = result.Scrubbed
		if result.TotalFindings > 0 {
			warnings = append(warnings, fmt.Sprintf("redacted %d potential secret(s) from context pack", result.TotalFindings))
		}
	}
	return truncate(pack, b.maxBytes()), warnings
}

func (b *Builder) maxBytes() int {
	if b.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return b.MaxBytes
}

// truncate keeps the leading "## File tree" section intact and trims
// excess from the tail of whatever follows, per spec.md §9's
// "keeping git header and file tree intact" truncation rule.
func truncate(pack string, maxBytes int) string {
	if len(pack) <= maxBytes {
		return pack
	}

	const treeHeader = "## File tree\n"
	idx := strings.Index(pack, treeHeader)
	if idx == -1 {
		return pack[:maxBytes] + "\n...[truncated]"
	}

	nextSection := strings.Index(pack[idx+len(treeHeader):], "\n## ")
	var head string
	if nextSection == -1 {
		head = pack
	} else {
		head = pack[:idx+len(treeHeader)+nextSection]
	}
	if len(head) >= maxBytes {
		return head[:maxBytes] + "\n...[truncated]"
	}

	rest := pack[len(head):]
	budget := maxBytes - len(head)
	if len(rest) > budget {
		rest = rest[:budget] + "\n...[truncated]"
	}
	return head + rest
}
