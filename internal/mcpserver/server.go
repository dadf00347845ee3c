// Package mcpserver is the stdio tool-protocol transport (spec.md §6,
// explicitly an out-of-scope "external collaborator"): a thin shim
// registering one tool with the MCP stdio SDK and delegating straight
// into the Audit Orchestrator. Grounded on
// pkg/mcp/stdio/server.go's mcpsdk.NewServer/AddTool/StdioTransport
// pattern, adapted from HTTP-daemon delegation to a direct in-process
// call since this service has no separate daemon process.
package mcpserver

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DRCubix/gansauditor-codex/internal/orchestrator"
	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

const toolName = "gan_audit_thought"

// Server wraps the MCP SDK server, delegating its one tool directly
// into an Orchestrator.
type Server struct {
	mcpServer    *mcpsdk.Server
	orchestrator *orchestrator.Orchestrator
	workingDir   string
	identity     string
}

// NewServer builds a Server bound to orch. workingDir and identity
// feed the Orchestrator's session-key derivation when a thought
// carries no explicit branchId (spec.md §4.1).
func NewServer(orch *orchestrator.Orchestrator, workingDir, identity string) *Server {
	mcpServer := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "gansauditor-codex",
		Version: "1.0.0",
	}, nil)

	s := &Server{
		mcpServer:    mcpServer,
		orchestrator: orch,
		workingDir:   workingDir,
		identity:     identity,
	}
	s.registerTools()
	return s
}

// Run blocks, serving the tool over stdin/stdout until ctx is
// cancelled or a transport error occurs.
func (s *Server) Run(ctx context.Context) error {
	if err := s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name: toolName,
		Description: "Submit one reasoning step (\"thought\"), optionally embedding code, a diff, or an inline gan-config block. " +
			"When the step looks like code or carries a gan-config block, it is audited against the repository and a verdict " +
			"is returned alongside the usual step bookkeeping.",
	}, s.handleAuditThought)
}

// ThoughtParams is the tool's input schema, mirroring spec.md §6's
// input object exactly (required fields first, then the optional
// ones).
type ThoughtParams struct {
	Thought           string `json:"thought" jsonschema:"The reasoning step's body text, may embed code/diffs/gan-config"`
	NextThoughtNeeded bool   `json:"nextThoughtNeeded" jsonschema:"Whether the caller expects to submit another step"`
	ThoughtNumber     int    `json:"thoughtNumber" jsonschema:"1-based index of this step"`
	TotalThoughts     int    `json:"totalThoughts" jsonschema:"Current estimate of total steps, may grow"`

	IsRevision        bool   `json:"isRevision,omitempty" jsonschema:"Whether this step revises an earlier one"`
	RevisesThought    int    `json:"revisesThought,omitempty" jsonschema:"Index of the step being revised"`
	BranchFromThought int    `json:"branchFromThought,omitempty" jsonschema:"Index of the step this branch diverges from"`
	BranchID          string `json:"branchId,omitempty" jsonschema:"Explicit session/branch identifier; also used as the session key"`
	NeedsMoreThoughts bool   `json:"needsMoreThoughts,omitempty" jsonschema:"Explicit signal that more steps are needed beyond the current estimate"`
}

func (s *Server) handleAuditThought(ctx context.Context, req *mcpsdk.CallToolRequest, params *ThoughtParams) (*mcpsdk.CallToolResult, any, error) {
	t := thought.Thought{
		Body:              params.Thought,
		ThoughtNumber:     params.ThoughtNumber,
		TotalThoughts:     params.TotalThoughts,
		NextThoughtNeeded: params.NextThoughtNeeded,
		IsRevision:        params.IsRevision,
		RevisesThought:    params.RevisesThought,
		BranchFromThought: params.BranchFromThought,
		BranchID:          params.BranchID,
		NeedsMoreThoughts: params.NeedsMoreThoughts,
	}

	resp, errResp := s.orchestrator.Process(ctx, t, s.workingDir, s.identity)
	if errResp != nil {
		return nil, errResp, fmt.Errorf("%s", errResp.Error)
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: summarize(resp)}},
	}, resp, nil
}

func summarize(r *thought.CombinedResponse) string {
	if r.Verdict == nil {
		return fmt.Sprintf("step %d/%d recorded, no audit triggered", r.ThoughtNumber, r.TotalThoughts)
	}
	msg := fmt.Sprintf("step %d/%d audited: overall=%d verdict=%s", r.ThoughtNumber, r.TotalThoughts, r.Verdict.Overall, r.Verdict.VerdictTag)
	if r.TerminationReason != "" {
		msg += fmt.Sprintf(" (terminated: %s)", r.TerminationReason)
	}
	return msg
}
