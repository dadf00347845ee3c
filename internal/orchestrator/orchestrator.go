// Package orchestrator is the Audit Orchestrator (spec.md §4.1): the
// single entry point that turns a Thought into a CombinedResponse,
// coordinating trigger detection, inline config parsing, session
// resolution, the Context Builder, and the Judge Runtime. Grounded on
// the teacher's daemon-level request-handling shape in
// pkg/server/server.go, generalized from HTTP request/response to a
// single stdio tool operation.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DRCubix/gansauditor-codex/internal/classify"
	"github.com/DRCubix/gansauditor-codex/internal/config"
	"github.com/DRCubix/gansauditor-codex/internal/contextpack"
	"github.com/DRCubix/gansauditor-codex/internal/judgeruntime"
	"github.com/DRCubix/gansauditor-codex/internal/logging"
	"github.com/DRCubix/gansauditor-codex/internal/secrets"
	"github.com/DRCubix/gansauditor-codex/internal/sessionstore"
	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

// defaultRubric is the rubric submitted with every audit request.
// spec.md leaves the exact dimension set unspecified beyond "ordered
// dimensions each with a name and a weight in (0,1]"; these five are a
// standard code-review axis set and sum to 1.0 for a readable weighted
// average, though the schema does not require that.
func defaultRubric() []thought.RubricDimension {
	return []thought.RubricDimension{
		{Name: "correctness", Weight: 0.35},
		{Name: "security", Weight: 0.2},
		{Name: "maintainability", Weight: 0.2},
		{Name: "test_coverage", Weight: 0.15},
		{Name: "style", Weight: 0.1},
	}
}

// Orchestrator ties the Session Store, Context Builder, and Judge
// Runtime together into the single audit-cycle operation.
type Orchestrator struct {
	store    *sessionstore.Store
	judge    *judgeruntime.Runtime
	context  *contextpack.Builder
	tiers    config.TierConfig
	rubric   []thought.RubricDimension
	enabled  bool
	logger   *zap.Logger
	scrubber secrets.Scrubber

	cacheMu sync.Mutex
	cache   map[string]*thought.SessionState

	stagMu     sync.Mutex
	stagnation map[string]*stagnationTracker
}

// New builds an Orchestrator from its collaborators. cfg supplies the
// master enable switch and the tiered-completion parameters.
func New(cfg *config.Config, store *sessionstore.Store, judge *judgeruntime.Runtime, builder *contextpack.Builder, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	scrubber, err := secrets.New(nil)
	if err != nil {
		panic(fmt.Sprintf("orchestrator: default scrubber config invalid: %v", err))
	}
	return &Orchestrator{
		store:      store,
		judge:      judge,
		context:    builder,
		tiers:      cfg.Tiers,
		rubric:     defaultRubric(),
		enabled:    cfg.Auditing.Enabled,
		logger:     logger,
		scrubber:   scrubber,
		cache:      make(map[string]*thought.SessionState),
		stagnation: make(map[string]*stagnationTracker),
	}
}

// baseline builds the CombinedResponse fields present regardless of
// whether a session was ever resolved.
func baseline(t thought.Thought) *thought.CombinedResponse {
	return &thought.CombinedResponse{
		ThoughtNumber:     t.ThoughtNumber,
		TotalThoughts:     t.TotalThoughts,
		NextThoughtNeeded: t.NextThoughtNeeded,
	}
}

// Process runs one audit-orchestrator call: given a Thought plus the
// caller's working directory and identity (used only for stable
// session-key derivation when the thought carries no explicit
// branchId), it returns either a CombinedResponse or a structured
// ErrorResponse. Exactly one of the two return values is non-nil.
func (o *Orchestrator) Process(ctx context.Context, t thought.Thought, workingDir, identity string) (*thought.CombinedResponse, *thought.ErrorResponse) {
	if !o.enabled || !HasTrigger(t.Body) {
		return baseline(t), nil
	}

	key := resolveSessionKey(t.BranchID, workingDir, identity, time.Now())
	ctx = logging.WithSessionID(ctx, key)

	mu := o.store.Lock(key)
	defer mu.Unlock()

	session, warnings := o.loadOrCreateSession(key)

	if body, found := extractGanConfig(t.Body); found {
		inline, parseWarnings, ok := parseInlineConfig(body)
		if !ok {
			warnings = append(warnings, "gan-config block present but could not be parsed; using session defaults")
			o.logger.Warn("gan-config parse failed, falling back to defaults", logging.ContextFields(ctx)...)
		} else {
			warnings = append(warnings, parseWarnings...)
			session.Config = session.Config.Merge(inline)
		}
	}

	loop := len(session.History) + 1
	ctx = logging.WithLoop(ctx, loop)
	candidate := o.scrubber.Scrub(strings.TrimSpace(t.Body)).Scrubbed

	pack, cbWarnings := o.context.Build(ctx, workingDir, session.Config)
	warnings = append(warnings, cbWarnings...)

	req := thought.AuditRequest{
		Task:        session.Config.Task,
		Candidate:   candidate,
		ContextPack: pack,
		Rubric:      o.rubric,
		Budget: thought.Budget{
			MaxCycles:  session.Config.MaxCycles,
			Candidates: session.Config.Candidates,
			Threshold:  session.Config.Threshold,
		},
	}

	verdict, err := o.judge.Audit(ctx, req)
	if err != nil {
		o.saveBestEffort(session)
		return nil, o.errorResponse(err)
	}
	if len(verdict.JudgeCards) > 0 && verdict.JudgeCards[0].Model != "" {
		ctx = logging.WithJudgeModel(ctx, verdict.JudgeCards[0].Model)
	}
	o.logger.Info("audit cycle completed", append(logging.ContextFields(ctx),
		zap.Int("score", verdict.Overall),
		zap.String("verdict", string(verdict.VerdictTag)),
	)...)

	session.History = append(session.History, thought.AuditEntry{
		Loop:      loop,
		Verdict:   *verdict,
		Candidate: candidate,
		At:        time.Now(),
	})
	session.LastVerdict = verdict

	if t.BranchID != "" && !containsString(session.Branches, t.BranchID) {
		session.Branches = append(session.Branches, t.BranchID)
	}

	priorCandidates := make([]string, 0, len(session.History)-1)
	for _, entry := range session.History[:len(session.History)-1] {
		priorCandidates = append(priorCandidates, entry.Candidate)
	}

	stagnated := o.stagnationTrackerFor(key).observe(o.tiers, loop, candidate, priorCandidates)
	tier := evaluateCompletion(o.tiers, loop, verdict.Overall)

	done := stagnated || tier.Done
	reason := tier.Reason
	if stagnated {
		reason = "stagnation"
	}

	nextThoughtNeeded := t.NextThoughtNeeded
	if verdict.VerdictTag == thought.VerdictRevise || verdict.VerdictTag == thought.VerdictReject {
		nextThoughtNeeded = true
	}
	if done {
		nextThoughtNeeded = false
	}

	o.cacheMu.Lock()
	o.cache[key] = session
	o.cacheMu.Unlock()

	if saveErr := o.store.Save(session); saveErr != nil {
		wrapped := classify.WrapSessionPersist(saveErr)
		warnings = append(warnings, "session persistence failed, continuing in-memory: "+classify.Classify(wrapped).Suggestions[0])
	}

	return &thought.CombinedResponse{
		ThoughtNumber:        t.ThoughtNumber,
		TotalThoughts:        t.TotalThoughts,
		NextThoughtNeeded:    nextThoughtNeeded,
		Branches:             session.Branches,
		ThoughtHistoryLength: len(session.History),
		SessionID:            key,
		Verdict:              verdict,
		TerminationReason:    reason,
		Warnings:             warnings,
	}, nil
}

func (o *Orchestrator) saveBestEffort(session *thought.SessionState) {
	o.cacheMu.Lock()
	o.cache[session.ID] = session
	o.cacheMu.Unlock()
	_ = o.store.Save(session)
}

func (o *Orchestrator) stagnationTrackerFor(key string) *stagnationTracker {
	o.stagMu.Lock()
	defer o.stagMu.Unlock()
	t, ok := o.stagnation[key]
	if !ok {
		t = &stagnationTracker{}
		o.stagnation[key] = t
	}
	return t
}

func (o *Orchestrator) errorResponse(err error) *thought.ErrorResponse {
	c := classify.Classify(err)
	return &thought.ErrorResponse{
		Error:  fmt.Sprintf("audit cycle failed: %v", err),
		Status: "failed",
		Details: thought.ErrorDetails{
			Category:    string(c.Category),
			Recoverable: c.Recoverable,
			Suggestions: c.Suggestions,
		},
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
