// Package judgeruntime is the Judge Runtime (spec.md §4.3): translates
// an AuditRequest into a judge invocation over the Process Manager and
// normalizes the result into a Verdict. It never substitutes a
// synthetic verdict for a real judge call — a missing or invalid judge
// surfaces as ErrJudgeUnavailable, never a silently fabricated pass.
package judgeruntime

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrJudgeUnavailable is returned when no executable can be resolved,
// or a configuration flag would allow a synthetic substitute (which
// this runtime always rejects per spec.md §4.3's production policy).
var ErrJudgeUnavailable = errors.New("judgeruntime: judge executable unavailable")

// allowedEnvVars is the minimum ambient-environment allow-list
// (spec.md §4.3 step 2).
var allowedEnvVars = []string{"PATH", "HOME", "USER", "SHELL", "LANG"}

// Discovery locates the judge executable and prepares its environment.
type Discovery struct {
	// Executable, if set, short-circuits PATH/extra-dir scanning.
	Executable string
	// ExtraSearchDirs are scanned after PATH, in order.
	ExtraSearchDirs []string
	// ExtraEnv overlays additional environment variables onto the
	// allow-listed ambient set.
	ExtraEnv map[string]string
}

// ResolveWorkingDir implements spec.md §4.3 step 1: explicit override
// wins; otherwise walk up from start looking for a .git entry, bounded
// to maxDepth levels; otherwise cwd; otherwise fallback.
func ResolveWorkingDir(override, start, fallback string) string {
	if override != "" {
		if isDir(override) {
			return override
		}
	}

	if start == "" {
		start = "."
	}
	if root, ok := findRepoRoot(start, 10); ok {
		return root
	}

	if cwd, err := os.Getwd(); err == nil && isDir(cwd) {
		return cwd
	}

	return fallback
}

func findRepoRoot(start string, maxDepth int) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for i := 0; i < maxDepth; i++ {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// PrepareEnv implements spec.md §4.3 step 2: copy the allow-listed
// ambient variables, overlay extra configured variables, and fail if
// PATH ends up absent.
func (d Discovery) PrepareEnv() ([]string, error) {
	env := make(map[string]string, len(allowedEnvVars)+len(d.ExtraEnv))
	for _, key := range allowedEnvVars {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	for k, v := range d.ExtraEnv {
		env[k] = v
	}

	if env["PATH"] == "" {
		return nil, errors.New("judgeruntime: PATH is absent from the prepared environment")
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// Resolve implements spec.md §4.3 step 3: an explicit Executable wins;
// otherwise scan PATH entries in order, then ExtraSearchDirs, requiring
// read+execute permission; the first match wins.
func (d Discovery) Resolve() (string, error) {
	if d.Executable != "" {
		if isExecutable(d.Executable) {
			return d.Executable, nil
		}
		if resolved, err := exists(d.Executable); err == nil {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: configured executable %q is not runnable", ErrJudgeUnavailable, d.Executable)
	}

	const name = "codex"

	pathDirs := strings.Split(os.Getenv("PATH"), string(os.PathListSeparator))
	for _, dir := range pathDirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	for _, dir := range d.ExtraSearchDirs {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %q not found on PATH or in configured search directories", ErrJudgeUnavailable, name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

func exists(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}
