package judgeruntime

import (
	"encoding/json"

	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

// fixedInstructions is the judge instruction list spec.md §4.3 requires
// on every request, independent of system prompt.
var fixedInstructions = []string{
	"Evaluate each rubric dimension on a 0-100 scale.",
	"Compute overall as the weighted average of dimension scores.",
	"Emit actionable inline comments anchored to file and line.",
	"Emit citations in the form repo://path:start-end.",
	"Return a structured response matching the stated schema.",
}

// promptAwareInstructions is appended when the request carries a
// system prompt (spec.md §4.3 "prompt-aware instructions").
var promptAwareInstructions = []string{
	"Execute the declared workflow steps in order.",
	"Emit a workflow_steps result for each declared step, with evidence and any issues found.",
	"Emit a completion_analysis with a status and a next-step flag.",
}

// promptDocument is the single structured input document delivered to
// the judge on standard input.
type promptDocument struct {
	Task         string                   `json:"task"`
	Candidate    string                   `json:"candidate"`
	ContextPack  string                   `json:"contextPack"`
	Rubric       []thought.RubricDimension `json:"rubric"`
	Budget       thought.Budget           `json:"budget"`
	Instructions []string                 `json:"instructions"`
	SystemPrompt string                   `json:"systemPrompt,omitempty"`
}

// AssemblePrompt builds the structured document described in spec.md
// §4.3 "Prompt assembly", returning it already marshaled as the bytes
// the Process Manager writes to the judge's standard input.
func AssemblePrompt(req thought.AuditRequest) ([]byte, error) {
	doc := promptDocument{
		Task:        req.Task,
		Candidate:   req.Candidate,
		ContextPack: req.ContextPack,
		Rubric:      req.Rubric,
		Budget:      req.Budget,
	}

	instructions := make([]string, len(fixedInstructions))
	copy(instructions, fixedInstructions)

	if req.SystemPrompt != "" {
		doc.SystemPrompt = req.SystemPrompt
		instructions = append(instructions, promptAwareInstructions...)
	}
	doc.Instructions = instructions

	return json.Marshal(doc)
}

// InvocationArgs returns the literal CLI arguments spec.md §4.3 and §6
// mandate: "audit --format json --headless --stdin", plus "--enhanced"
// when a system prompt is present.
func InvocationArgs(req thought.AuditRequest) []string {
	args := []string{"audit", "--format", "json", "--headless", "--stdin"}
	if req.SystemPrompt != "" {
		args = append(args, "--enhanced")
	}
	return args
}
