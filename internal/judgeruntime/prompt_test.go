package judgeruntime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

func TestAssemblePromptIncludesFixedInstructions(t *testing.T) {
	body, err := AssemblePrompt(thought.AuditRequest{
		Task: "audit", Candidate: "diff", ContextPack: "pack", Rubric: rubric(),
		Budget: thought.Budget{MaxCycles: 1, Candidates: 1, Threshold: 85},
	})
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &doc))

	instructions, ok := doc["instructions"].([]interface{})
	require.True(t, ok)
	assert.Len(t, instructions, len(fixedInstructions))
	assert.NotContains(t, doc, "systemPrompt")
}

func TestAssemblePromptAddsPromptAwareInstructionsWithSystemPrompt(t *testing.T) {
	body, err := AssemblePrompt(thought.AuditRequest{
		Task: "audit", Candidate: "diff", Rubric: rubric(), SystemPrompt: "be thorough",
	})
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &doc))

	instructions, ok := doc["instructions"].([]interface{})
	require.True(t, ok)
	assert.Len(t, instructions, len(fixedInstructions)+len(promptAwareInstructions))
	assert.Equal(t, "be thorough", doc["systemPrompt"])
}

func TestInvocationArgsAddsEnhancedFlagWithSystemPrompt(t *testing.T) {
	plain := InvocationArgs(thought.AuditRequest{})
	assert.Equal(t, []string{"audit", "--format", "json", "--headless", "--stdin"}, plain)

	enhanced := InvocationArgs(thought.AuditRequest{SystemPrompt: "x"})
	assert.Equal(t, []string{"audit", "--format", "json", "--headless", "--stdin", "--enhanced"}, enhanced)
}
