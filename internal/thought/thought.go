// Package thought holds the wire and session data model shared by the
// orchestrator, the judge runtime, and the session store: the incoming
// Thought, the per-session SessionConfig and SessionState, and the
// AuditRequest/Verdict pair exchanged with the judge.
package thought

import "time"

// Thought is a single step submitted by the caller. It is ephemeral —
// nothing about it outlives the call that produced it except what the
// Orchestrator chooses to append to a SessionState.
type Thought struct {
	Body              string `json:"thought"`
	ThoughtNumber      int    `json:"thoughtNumber"`
	TotalThoughts      int    `json:"totalThoughts"`
	NextThoughtNeeded  bool   `json:"nextThoughtNeeded"`
	IsRevision         bool   `json:"isRevision,omitempty"`
	RevisesThought     int    `json:"revisesThought,omitempty"`
	BranchFromThought  int    `json:"branchFromThought,omitempty"`
	BranchID           string `json:"branchId,omitempty"`
	NeedsMoreThoughts  bool   `json:"needsMoreThoughts,omitempty"`
}

// Scope selects how much of the repository the Context Builder gathers.
type Scope string

const (
	ScopeDiff      Scope = "diff"
	ScopePaths     Scope = "paths"
	ScopeWorkspace Scope = "workspace"
)

// SessionConfig is the set of recognized gan-config options. Values are
// always stored already clamped/validated; raw parsing happens in the
// orchestrator's inline-config layer before a SessionConfig is merged.
type SessionConfig struct {
	Task       string   `json:"task"`
	Scope      Scope    `json:"scope"`
	Paths      []string `json:"paths,omitempty"`
	Threshold  int      `json:"threshold"`
	MaxCycles  int      `json:"maxCycles"`
	Candidates int      `json:"candidates"`
	Judges     []string `json:"judges"`
	ApplyFixes bool     `json:"applyFixes"`
}

// DefaultSessionConfig returns the spec-mandated defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Task:       "Audit and improve the provided candidate",
		Scope:      ScopeDiff,
		Threshold:  85,
		MaxCycles:  1,
		Candidates: 1,
		Judges:     []string{"internal"},
		ApplyFixes: false,
	}
}

// ClampThreshold clamps a threshold into [0,100].
func ClampThreshold(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Merge overlays non-zero-value fields of other onto a copy of c,
// preserving unknown-but-previously-valid fields when other leaves
// them at their zero value. Scope downgrade (paths with no Paths) is
// the caller's responsibility before Merge is invoked, since it needs
// to emit a warning the config layer alone can't carry.
func (c SessionConfig) Merge(other SessionConfig) SessionConfig {
	merged := c
	if other.Task != "" {
		merged.Task = other.Task
	}
	if other.Scope != "" {
		merged.Scope = other.Scope
	}
	if other.Paths != nil {
		merged.Paths = other.Paths
	}
	if other.Threshold != 0 {
		merged.Threshold = ClampThreshold(other.Threshold)
	}
	if other.MaxCycles != 0 {
		merged.MaxCycles = other.MaxCycles
	}
	if other.Candidates != 0 {
		merged.Candidates = other.Candidates
	}
	if other.Judges != nil {
		merged.Judges = other.Judges
	}
	merged.ApplyFixes = other.ApplyFixes || merged.ApplyFixes
	return merged
}

// AuditEntry is one appended history record: the loop number, the
// verdict produced, and when it happened.
type AuditEntry struct {
	Loop      int       `json:"loop"`
	Verdict   Verdict   `json:"verdict"`
	Candidate string    `json:"-"`
	At        time.Time `json:"at"`
}

// SessionState is the durable, exclusively Session-Store-owned record
// for one session key. The Orchestrator mutates it only while holding
// that session's lock (see internal/sessionstore).
type SessionState struct {
	ID      string        `json:"id"`
	Config  SessionConfig `json:"config"`
	History []AuditEntry  `json:"history"`

	// Branches accumulates every distinct branch identifier a thought
	// in this session has carried, in first-seen order.
	Branches    []string  `json:"branches,omitempty"`
	LastVerdict *Verdict  `json:"lastVerdict,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RubricDimension is one named, weighted axis of the audit.
type RubricDimension struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Budget bounds a single audit cycle.
type Budget struct {
	MaxCycles  int `json:"maxCycles"`
	Candidates int `json:"candidates"`
	Threshold  int `json:"threshold"`
}

// AuditRequest is the immutable, per-call bundle submitted to the
// Judge Runtime.
type AuditRequest struct {
	Task        string            `json:"task"`
	Candidate   string            `json:"candidate"`
	ContextPack string            `json:"contextPack"`
	Rubric      []RubricDimension `json:"rubric"`
	Budget      Budget            `json:"budget"`

	// SystemPrompt, when non-empty, switches on prompt-aware response
	// validation (spec.md §4.3) and the --enhanced invocation flag.
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// VerdictTag is the judge's pass/revise/reject call.
type VerdictTag string

const (
	VerdictPass   VerdictTag = "pass"
	VerdictRevise VerdictTag = "revise"
	VerdictReject VerdictTag = "reject"
)

// DimensionScore is one rubric dimension's score.
type DimensionScore struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// InlineComment anchors a remark to a specific file location.
type InlineComment struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Comment string `json:"comment"`
}

// Review is the narrative portion of a Verdict.
type Review struct {
	Summary   string          `json:"summary"`
	Inline    []InlineComment `json:"inline,omitempty"`
	Citations []string        `json:"citations,omitempty"`
}

// JudgeCard records one judge model's independent contribution to
// overall (always non-empty, §8 invariant).
type JudgeCard struct {
	Model string `json:"model"`
	Score int    `json:"score"`
	Notes string `json:"notes,omitempty"`
}

// WorkflowStepResult is a prompt-aware response extension (spec.md
// §4.3): present when the request carried a SystemPrompt.
type WorkflowStepResult struct {
	Step     string   `json:"step"`
	Evidence string   `json:"evidence,omitempty"`
	Issues   []string `json:"issues,omitempty"`
}

// CompletionStatus is the prompt-aware completion_analysis.status enum.
type CompletionStatus string

const (
	CompletionInProgress CompletionStatus = "in_progress"
	CompletionCompleted  CompletionStatus = "completed"
	CompletionTerminated CompletionStatus = "terminated"
)

// CompletionAnalysis is the prompt-aware response extension paired
// with WorkflowStepResult.
type CompletionAnalysis struct {
	Status   CompletionStatus `json:"status"`
	NextStep bool             `json:"nextStep"`
}

// Verdict is the normalized judge output. Every field here has already
// passed through the Judge Runtime's normalization rules by the time
// an Orchestrator sees it.
type Verdict struct {
	Overall      int                  `json:"overall"`
	Dimensions   []DimensionScore     `json:"dimensions"`
	VerdictTag   VerdictTag           `json:"verdict"`
	Review       Review               `json:"review"`
	Iterations   int                  `json:"iterations"`
	JudgeCards   []JudgeCard          `json:"judge_cards"`
	ProposedDiff string               `json:"proposed_diff,omitempty"`

	WorkflowSteps      []WorkflowStepResult `json:"workflow_steps,omitempty"`
	CompletionAnalysis *CompletionAnalysis  `json:"completion_analysis,omitempty"`
}

// ClampScore clamps and rounds a score into [0,100].
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// CombinedResponse is the tool operation's success output (spec.md §6).
type CombinedResponse struct {
	ThoughtNumber        int      `json:"thoughtNumber"`
	TotalThoughts        int      `json:"totalThoughts"`
	NextThoughtNeeded    bool     `json:"nextThoughtNeeded"`
	Branches             []string `json:"branches"`
	ThoughtHistoryLength int      `json:"thoughtHistoryLength"`
	SessionID            string   `json:"sessionId,omitempty"`
	Verdict              *Verdict `json:"gan,omitempty"`

	// TerminationReason is set ("max-iterations", "stagnation") when
	// the orchestrator forced completion rather than the verdict
	// passing on its own merits. Not part of the wire schema's
	// required fields but carried for observability.
	TerminationReason string `json:"terminationReason,omitempty"`

	// Warnings carries non-fatal degradations accumulated during the
	// cycle (scope downgrade, corrupted-session recovery, context
	// build degradation, persistence failure). These never fail the
	// call; they are surfaced so a caller can see why the result is
	// less complete than requested.
	Warnings []string `json:"warnings,omitempty"`
}

// ErrorDetails is the structured error envelope's details object.
type ErrorDetails struct {
	Category    string   `json:"category"`
	Recoverable bool     `json:"recoverable"`
	Suggestions []string `json:"suggestions"`
}

// ErrorResponse is the tool operation's failure output (spec.md §6).
type ErrorResponse struct {
	Error   string       `json:"error"`
	Status  string       `json:"status"`
	Details ErrorDetails `json:"details"`
}
