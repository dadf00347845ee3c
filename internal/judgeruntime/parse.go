package judgeruntime

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

// rawVerdict is the loosely-typed shape a judge's standard output is
// expected to match; every field is validated and defaulted by
// normalize before a thought.Verdict is returned (spec.md §9 "model
// dynamic shapes as tagged variants + explicit validators").
type rawVerdict struct {
	Overall    json.Number       `json:"overall"`
	Verdict    string            `json:"verdict"`
	Dimensions []rawDimension    `json:"dimensions"`
	Review     rawReview         `json:"review"`
	Iterations json.Number       `json:"iterations"`
	JudgeCards []rawJudgeCard    `json:"judge_cards"`
	ProposedDiff string          `json:"proposed_diff"`

	WorkflowSteps      []rawWorkflowStep `json:"workflow_steps"`
	CompletionAnalysis *rawCompletion    `json:"completion_analysis"`
}

type rawDimension struct {
	Name  string      `json:"name"`
	Score json.Number `json:"score"`
}

type rawReview struct {
	Summary   string   `json:"summary"`
	Inline    []rawInlineComment `json:"inline"`
	Citations []interface{}      `json:"citations"`
}

type rawInlineComment struct {
	Path    string      `json:"path"`
	Line    json.Number `json:"line"`
	Comment string      `json:"comment"`
}

type rawJudgeCard struct {
	Model string      `json:"model"`
	Score json.Number `json:"score"`
	Notes string      `json:"notes"`
}

type rawWorkflowStep struct {
	Step     string   `json:"step"`
	Evidence string   `json:"evidence"`
	Issues   []string `json:"issues"`
}

type rawCompletion struct {
	Status   string `json:"status"`
	NextStep bool   `json:"nextStep"`
}

// ParseResponse implements spec.md §4.3 "Response parsing": a strict
// structured parse first, falling back to greedy field-level
// extraction on failure, then normalize regardless of which path
// produced the raw verdict.
func ParseResponse(stdout []byte, rubric []thought.RubricDimension, promptAware bool) thought.Verdict {
	var raw rawVerdict
	if err := json.Unmarshal(stdout, &raw); err == nil {
		return normalize(raw, rubric, promptAware)
	}

	raw = greedyExtract(stdout)
	return normalize(raw, rubric, promptAware)
}

var (
	reOverall = regexp.MustCompile(`"overall"\s*:\s*(-?\d+)`)
	reVerdict = regexp.MustCompile(`"verdict"\s*:\s*"(\w+)"`)
	reSummary = regexp.MustCompile(`"summary"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reIters   = regexp.MustCompile(`"iterations"\s*:\s*(-?\d+)`)
)

// greedyExtract best-effort recovers the fields spec.md §4.3 names
// from malformed standard output: overall, verdict, dimensions (left
// empty; normalize fills them from the rubric), review.summary, and
// iterations. Anything not recoverable is left zero so normalize can
// apply its safe defaults.
func greedyExtract(stdout []byte) rawVerdict {
	text := string(stdout)
	var raw rawVerdict

	if m := reOverall.FindStringSubmatch(text); m != nil {
		raw.Overall = json.Number(m[1])
	}
	if m := reVerdict.FindStringSubmatch(text); m != nil {
		raw.Verdict = m[1]
	}
	if m := reSummary.FindStringSubmatch(text); m != nil {
		summary := strings.ReplaceAll(m[1], `\"`, `"`)
		summary = strings.ReplaceAll(summary, `\n`, "\n")
		raw.Review.Summary = summary
	}
	if m := reIters.FindStringSubmatch(text); m != nil {
		raw.Iterations = json.Number(m[1])
	}

	// Attempt a best-effort dimensions array extraction too; if the
	// array itself parses as valid JSON within the larger malformed
	// document, salvage it.
	if start := strings.Index(text, `"dimensions"`); start != -1 {
		if arrStart := strings.Index(text[start:], "["); arrStart != -1 {
			absStart := start + arrStart
			if arrEnd := matchingBracket(text, absStart); arrEnd != -1 {
				var dims []rawDimension
				if err := json.Unmarshal([]byte(text[absStart:arrEnd+1]), &dims); err == nil {
					raw.Dimensions = dims
				}
			}
		}
	}

	return raw
}

// matchingBracket returns the index of the "]" matching the "[" at
// openIdx, or -1 if unbalanced.
func matchingBracket(s string, openIdx int) int {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// citationPattern matches the repo://path:start-end citation shape.
var citationPattern = regexp.MustCompile(`^repo://\S+:\d+-\d+$`)

// normalize applies every rule in spec.md §4.3 "Normalization rules"
// and, when promptAware is set, validates the prompt-aware extensions
// (missing fields there are warnings only — they never block
// returning a Verdict, so no error is returned).
func normalize(raw rawVerdict, rubric []thought.RubricDimension, promptAware bool) thought.Verdict {
	overall := thought.ClampScore(numberOr(raw.Overall, 0))

	tag := thought.VerdictTag(raw.Verdict)
	switch tag {
	case thought.VerdictPass, thought.VerdictRevise, thought.VerdictReject:
	default:
		tag = thought.VerdictRevise
	}

	dims := normalizeDimensions(raw.Dimensions, rubric, overall)

	summary := raw.Review.Summary
	if summary == "" {
		summary = "No summary was recoverable from the judge response."
	}

	var inline []thought.InlineComment
	for _, ic := range raw.Review.Inline {
		if ic.Path == "" || ic.Comment == "" {
			continue
		}
		line, err := ic.Line.Int64()
		if err != nil {
			continue
		}
		inline = append(inline, thought.InlineComment{Path: ic.Path, Line: int(line), Comment: ic.Comment})
	}

	var citations []string
	for _, c := range raw.Review.Citations {
		s, ok := c.(string)
		if !ok {
			continue
		}
		if citationPattern.MatchString(s) {
			citations = append(citations, s)
		}
	}

	iterations := numberOr(raw.Iterations, 1)
	if iterations < 1 {
		iterations = 1
	}

	var cards []thought.JudgeCard
	for _, jc := range raw.JudgeCards {
		if jc.Model == "" {
			continue
		}
		cards = append(cards, thought.JudgeCard{
			Model: jc.Model,
			Score: thought.ClampScore(numberOr(jc.Score, overall)),
			Notes: jc.Notes,
		})
	}
	if len(cards) == 0 {
		cards = []thought.JudgeCard{{Model: "internal", Score: overall}}
	}

	v := thought.Verdict{
		Overall:      overall,
		Dimensions:   dims,
		VerdictTag:   tag,
		Review:       thought.Review{Summary: summary, Inline: inline, Citations: citations},
		Iterations:   iterations,
		JudgeCards:   cards,
		ProposedDiff: raw.ProposedDiff,
	}

	if promptAware {
		for _, ws := range raw.WorkflowSteps {
			if ws.Step == "" {
				continue
			}
			v.WorkflowSteps = append(v.WorkflowSteps, thought.WorkflowStepResult{
				Step: ws.Step, Evidence: ws.Evidence, Issues: ws.Issues,
			})
		}
		if raw.CompletionAnalysis != nil {
			status := thought.CompletionStatus(raw.CompletionAnalysis.Status)
			switch status {
			case thought.CompletionInProgress, thought.CompletionCompleted, thought.CompletionTerminated:
			default:
				status = thought.CompletionInProgress
			}
			v.CompletionAnalysis = &thought.CompletionAnalysis{
				Status: status, NextStep: raw.CompletionAnalysis.NextStep,
			}
		}
	}

	return v
}

// normalizeDimensions validates each rubric-named entry and appends
// any rubric dimension missing from raw, scored at overall, so every
// rubric dimension appears exactly once (spec.md §8 invariant).
func normalizeDimensions(raw []rawDimension, rubric []thought.RubricDimension, overall int) []thought.DimensionScore {
	seen := make(map[string]bool, len(raw))
	var out []thought.DimensionScore
	for _, d := range raw {
		if d.Name == "" {
			continue
		}
		score, err := d.Score.Int64()
		if err != nil {
			continue
		}
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		out = append(out, thought.DimensionScore{Name: d.Name, Score: thought.ClampScore(int(score))})
	}
	for _, rd := range rubric {
		if !seen[rd.Name] {
			out = append(out, thought.DimensionScore{Name: rd.Name, Score: overall})
			seen[rd.Name] = true
		}
	}
	return out
}

func numberOr(n json.Number, fallback int) int {
	if n == "" {
		return fallback
	}
	if v, err := strconv.Atoi(string(n)); err == nil {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return int(f)
	}
	return fallback
}
