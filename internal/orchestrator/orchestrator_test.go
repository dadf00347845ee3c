package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DRCubix/gansauditor-codex/internal/config"
	"github.com/DRCubix/gansauditor-codex/internal/contextpack"
	"github.com/DRCubix/gansauditor-codex/internal/judgeruntime"
	"github.com/DRCubix/gansauditor-codex/internal/procmgr"
	"github.com/DRCubix/gansauditor-codex/internal/secrets"
	"github.com/DRCubix/gansauditor-codex/internal/sessionstore"
	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

type fakeCollector struct{}

func (fakeCollector) Diff(ctx context.Context, workDir string) (string, error) {
	return "+ fake diff line", nil
}
func (fakeCollector) FileTree(ctx context.Context, workDir string) (string, error) {
	return "main.go", nil
}
func (fakeCollector) FileContents(ctx context.Context, workDir string, paths []string) (string, error) {
	return "", nil
}

func writeFakeJudge(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "codex")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func newTestOrchestrator(t *testing.T, judgeScript string, enabled bool) *Orchestrator {
	t.Helper()
	judgePath := writeFakeJudge(t, judgeScript)

	pm := procmgr.New(procmgr.DefaultConfig(), nil)
	runtime := judgeruntime.New(judgeruntime.Config{
		Discovery:  judgeruntime.Discovery{Executable: judgePath},
		Timeout:    2 * time.Second,
		RetryDelay: 5 * time.Millisecond,
		WorkDir:    t.TempDir(),
	}, pm, nil)

	scrubber, err := secrets.New(nil)
	require.NoError(t, err)
	builder := &contextpack.Builder{Collector: fakeCollector{}, MaxBytes: contextpack.DefaultMaxBytes, Scrubber: scrubber}

	store, err := sessionstore.New(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		Auditing: config.AuditingConfig{Enabled: enabled},
		Tiers:    config.DefaultTiers(),
	}
	return New(cfg, store, runtime, builder, nil)
}

func passingJudgeScript(score int) string {
	s := strconv.Itoa(score)
	return `#!/bin/sh
cat <<'EOF'
{"overall":` + s + `,"verdict":"pass","dimensions":[{"name":"correctness","score":` + s + `}],"review":{"summary":"looks fine"},"iterations":1,"judge_cards":[{"model":"codex","score":` + s + `}]}
EOF
`
}

func baseThought(body string) thought.Thought {
	return thought.Thought{
		Body:              body,
		ThoughtNumber:     1,
		TotalThoughts:     1,
		NextThoughtNeeded: true,
	}
}

func TestProcessNoTriggerReturnsBaselineOnly(t *testing.T) {
	o := newTestOrchestrator(t, passingJudgeScript(96), true)
	resp, errResp := o.Process(context.Background(), baseThought("just some plain prose, nothing code-like here"), "/repo", "alice")
	require.Nil(t, errResp)
	require.NotNil(t, resp)
	assert.Empty(t, resp.SessionID)
	assert.Nil(t, resp.Verdict)
}

func TestProcessAuditingDisabledReturnsBaselineOnly(t *testing.T) {
	o := newTestOrchestrator(t, passingJudgeScript(96), false)
	resp, errResp := o.Process(context.Background(), baseThought("```go\nfunc main() {}\n```"), "/repo", "alice")
	require.Nil(t, errResp)
	assert.Empty(t, resp.SessionID)
}

func TestProcessTriggeredAuditRunsAndCompletesAtTier1(t *testing.T) {
	o := newTestOrchestrator(t, passingJudgeScript(97), true)
	resp, errResp := o.Process(context.Background(), baseThought("```go\nfunc main() {}\n```"), "/repo", "alice")
	require.Nil(t, errResp)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Verdict)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, 1, resp.ThoughtHistoryLength)
	assert.False(t, resp.NextThoughtNeeded, "tier-1 pass should force completion")
}

func TestProcessReviseVerdictForcesNextThoughtNeeded(t *testing.T) {
	script := `#!/bin/sh
echo '{"overall":40,"verdict":"revise","iterations":1}'
`
	o := newTestOrchestrator(t, script, true)
	resp, errResp := o.Process(context.Background(), thought.Thought{
		Body: "```go\nfunc main() {}\n```", ThoughtNumber: 1, TotalThoughts: 1, NextThoughtNeeded: false,
	}, "/repo", "alice")
	require.Nil(t, errResp)
	assert.True(t, resp.NextThoughtNeeded, "revise verdict must force more steps")
}

func TestProcessExplicitBranchIDIsSessionKey(t *testing.T) {
	o := newTestOrchestrator(t, passingJudgeScript(60), true)
	th := baseThought("```go\nfunc main() {}\n```")
	th.BranchID = "branch-xyz"
	resp, errResp := o.Process(context.Background(), th, "/repo", "alice")
	require.Nil(t, errResp)
	assert.Equal(t, "branch-xyz", resp.SessionID)
	assert.Contains(t, resp.Branches, "branch-xyz")
}

func TestProcessSameSessionAccumulatesHistory(t *testing.T) {
	o := newTestOrchestrator(t, passingJudgeScript(40), true)
	th := baseThought("```go\nfunc main() {}\n```")
	th.BranchID = "same-session"

	resp1, errResp := o.Process(context.Background(), th, "/repo", "alice")
	require.Nil(t, errResp)
	assert.Equal(t, 1, resp1.ThoughtHistoryLength)

	resp2, errResp := o.Process(context.Background(), th, "/repo", "alice")
	require.Nil(t, errResp)
	assert.Equal(t, 2, resp2.ThoughtHistoryLength)
}

func TestProcessJudgeUnavailableSurfacesStructuredError(t *testing.T) {
	pm := procmgr.New(procmgr.DefaultConfig(), nil)
	runtime := judgeruntime.New(judgeruntime.Config{
		Discovery: judgeruntime.Discovery{ExtraSearchDirs: []string{t.TempDir()}},
	}, pm, nil)
	t.Setenv("PATH", t.TempDir())

	scrubber, err := secrets.New(nil)
	require.NoError(t, err)
	builder := &contextpack.Builder{Collector: fakeCollector{}, MaxBytes: contextpack.DefaultMaxBytes, Scrubber: scrubber}
	store, err := sessionstore.New(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{Auditing: config.AuditingConfig{Enabled: true}, Tiers: config.DefaultTiers()}
	o := New(cfg, store, runtime, builder, nil)

	resp, errResp := o.Process(context.Background(), baseThought("```go\nfunc main() {}\n```"), "/repo", "alice")
	assert.Nil(t, resp)
	require.NotNil(t, errResp)
	assert.Equal(t, "judge", errResp.Details.Category)
	assert.False(t, errResp.Details.Recoverable)
}

func TestProcessInlineGanConfigOverridesSessionConfig(t *testing.T) {
	o := newTestOrchestrator(t, passingJudgeScript(96), true)
	body := "```go\nfunc main() {}\n```\n```gan-config\n{\"threshold\": 50}\n```"
	th := baseThought(body)
	th.BranchID = "cfg-session"

	resp, errResp := o.Process(context.Background(), th, "/repo", "alice")
	require.Nil(t, errResp)
	require.NotNil(t, resp)
}
