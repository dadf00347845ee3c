package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DRCubix/gansauditor-codex/internal/config"
	"github.com/DRCubix/gansauditor-codex/internal/contextpack"
	"github.com/DRCubix/gansauditor-codex/internal/judgeruntime"
	"github.com/DRCubix/gansauditor-codex/internal/orchestrator"
	"github.com/DRCubix/gansauditor-codex/internal/procmgr"
	"github.com/DRCubix/gansauditor-codex/internal/secrets"
	"github.com/DRCubix/gansauditor-codex/internal/sessionstore"
	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

type noopCollector struct{}

func (noopCollector) Diff(ctx context.Context, workDir string) (string, error) { return "", nil }
func (noopCollector) FileTree(ctx context.Context, workDir string) (string, error) {
	return "", nil
}
func (noopCollector) FileContents(ctx context.Context, workDir string, paths []string) (string, error) {
	return "", nil
}

func newTestServer(t *testing.T, judgeScript string) *Server {
	t.Helper()
	judgePath := filepath.Join(t.TempDir(), "codex")
	require.NoError(t, os.WriteFile(judgePath, []byte(judgeScript), 0755))

	pm := procmgr.New(procmgr.DefaultConfig(), nil)
	runtime := judgeruntime.New(judgeruntime.Config{
		Discovery:  judgeruntime.Discovery{Executable: judgePath},
		Timeout:    2 * time.Second,
		RetryDelay: 5 * time.Millisecond,
		WorkDir:    t.TempDir(),
	}, pm, nil)

	scrubber, err := secrets.New(nil)
	require.NoError(t, err)
	builder := &contextpack.Builder{Collector: noopCollector{}, MaxBytes: contextpack.DefaultMaxBytes, Scrubber: scrubber}

	store, err := sessionstore.New(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{Auditing: config.AuditingConfig{Enabled: true}, Tiers: config.DefaultTiers()}
	orch := orchestrator.New(cfg, store, runtime, builder, nil)

	return NewServer(orch, "/repo", "alice")
}

func textOf(c mcpsdk.Content) string {
	tc, ok := c.(*mcpsdk.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func TestHandleAuditThoughtNoTriggerReturnsBaseline(t *testing.T) {
	s := newTestServer(t, `#!/bin/sh
echo '{"overall":90,"verdict":"pass","iterations":1}'
`)
	result, raw, err := s.handleAuditThought(context.Background(), nil, &ThoughtParams{
		Thought:           "just ordinary prose with no code in it",
		ThoughtNumber:     1,
		TotalThoughts:     1,
		NextThoughtNeeded: true,
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, textOf(result.Content[0]), "no audit triggered")

	resp, ok := raw.(*thought.CombinedResponse)
	require.True(t, ok)
	assert.Nil(t, resp.Verdict)
}

func TestHandleAuditThoughtTriggeredAuditProducesVerdict(t *testing.T) {
	s := newTestServer(t, `#!/bin/sh
echo '{"overall":96,"verdict":"pass","iterations":1}'
`)
	result, raw, err := s.handleAuditThought(context.Background(), nil, &ThoughtParams{
		Thought:           "```go\nfunc main() {}\n```",
		ThoughtNumber:     1,
		TotalThoughts:     1,
		NextThoughtNeeded: true,
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, textOf(result.Content[0]), "audited")

	resp, ok := raw.(*thought.CombinedResponse)
	require.True(t, ok)
	require.NotNil(t, resp.Verdict)
	assert.NotEmpty(t, resp.SessionID)
}

func TestHandleAuditThoughtJudgeErrorSurfacesAsToolError(t *testing.T) {
	pm := procmgr.New(procmgr.DefaultConfig(), nil)
	runtime := judgeruntime.New(judgeruntime.Config{
		Discovery: judgeruntime.Discovery{ExtraSearchDirs: []string{t.TempDir()}},
	}, pm, nil)
	t.Setenv("PATH", t.TempDir())

	scrubber, err := secrets.New(nil)
	require.NoError(t, err)
	builder := &contextpack.Builder{Collector: noopCollector{}, MaxBytes: contextpack.DefaultMaxBytes, Scrubber: scrubber}
	store, err := sessionstore.New(t.TempDir())
	require.NoError(t, err)
	cfg := &config.Config{Auditing: config.AuditingConfig{Enabled: true}, Tiers: config.DefaultTiers()}
	orch := orchestrator.New(cfg, store, runtime, builder, nil)
	s := NewServer(orch, "/repo", "alice")

	result, raw, callErr := s.handleAuditThought(context.Background(), nil, &ThoughtParams{
		Thought:           "```go\nfunc main() {}\n```",
		ThoughtNumber:     1,
		TotalThoughts:     1,
		NextThoughtNeeded: true,
	})
	require.Error(t, callErr)
	assert.Nil(t, result)

	errResp, ok := raw.(*thought.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, "failed", errResp.Status)
}

func TestSummarizeNoVerdict(t *testing.T) {
	msg := summarize(&thought.CombinedResponse{ThoughtNumber: 2, TotalThoughts: 5})
	assert.Equal(t, "step 2/5 recorded, no audit triggered", msg)
}

func TestSummarizeWithVerdict(t *testing.T) {
	msg := summarize(&thought.CombinedResponse{
		ThoughtNumber: 1, TotalThoughts: 1,
		Verdict: &thought.Verdict{Overall: 97, VerdictTag: thought.VerdictPass},
	})
	assert.Equal(t, "step 1/1 audited: overall=97 verdict=pass", msg)
}

func TestSummarizeWithTerminationReason(t *testing.T) {
	msg := summarize(&thought.CombinedResponse{
		ThoughtNumber: 1, TotalThoughts: 1,
		Verdict:           &thought.Verdict{Overall: 40, VerdictTag: thought.VerdictRevise},
		TerminationReason: "max-iterations",
	})
	assert.Contains(t, msg, "terminated: max-iterations")
}
