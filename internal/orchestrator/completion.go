package orchestrator

import (
	"math"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/DRCubix/gansauditor-codex/internal/config"
)

// tierResult is what evaluateCompletion decided for one loop.
type tierResult struct {
	Done      bool
	Reason    string // "", "max-iterations", "stagnation"
	TierIndex int    // 1, 2, or 3 when Done by score; 0 otherwise
}

// evaluateCompletion walks the tier ladder for the given loop/score
// pair and applies the hard stop, per spec.md §4.1's table: a tier is
// satisfied when the score meets its threshold within its own loop
// budget, independent of the other tiers. maxCycles is deliberately
// not consulted here: spec.md's design notes treat it as an advisory
// lower bound only ("cycles may exceed it up to the hard stop"), not
// a ceiling — the hard stop is the sole authoritative upper bound.
func evaluateCompletion(tiers config.TierConfig, loop, overall int) tierResult {
	if loop >= tiers.HardStopLoops {
		return tierResult{Done: true, Reason: "max-iterations"}
	}
	for i, tier := range []config.Tier{tiers.Tier1, tiers.Tier2, tiers.Tier3} {
		if loop <= tier.Loops && overall >= tier.Score {
			return tierResult{Done: true, TierIndex: i + 1}
		}
	}
	return tierResult{}
}

// similarity returns a [0,1] normalized closeness between a and b:
// 1 - (levenshtein distance / max(len(a), len(b))). Identical strings
// score 1; completely disjoint strings of equal length score 0.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	dist := dmp.DiffLevenshtein(diffs)
	ratio := 1 - float64(dist)/float64(maxLen)
	return math.Max(0, ratio)
}

// stagnationTracker accumulates consecutive high-similarity samples
// for one session so the Orchestrator can require two in a row before
// terminating (spec.md §4.1: "MUST NOT terminate on the very first
// stagnation sample").
type stagnationTracker struct {
	consecutive int
}

// observe compares candidate against every prior candidate recorded
// for the session and returns true once two consecutive loops have
// produced a near-duplicate.
func (t *stagnationTracker) observe(tiers config.TierConfig, loop int, candidate string, priorCandidates []string) bool {
	if loop < tiers.StagnationStart {
		t.consecutive = 0
		return false
	}
	matched := false
	for _, prior := range priorCandidates {
		if prior == "" {
			continue
		}
		if similarity(candidate, prior) >= tiers.StagnationThresh {
			matched = true
			break
		}
	}
	if matched {
		t.consecutive++
	} else {
		t.consecutive = 0
	}
	return t.consecutive >= 2
}
