package orchestrator

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

// ganConfigExtract captures the body of the first fenced block tagged
// gan-config, independent of the language hint fences usually carry
// (```gan-config, ```json gan-config, etc. all match on the tag word).
var ganConfigExtract = regexp.MustCompile("(?s)```\\s*gan-config[^\\n]*\\n(.*?)```")

// extractGanConfig returns the body of the first gan-config fenced
// block in text, if any.
func extractGanConfig(text string) (string, bool) {
	m := ganConfigExtract.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// inlineConfig is the permissive wire shape of a gan-config block.
// Pointer/nil fields distinguish "absent" from "zero value" so that
// thought.SessionConfig.Merge's zero-value-means-unset convention
// sees only fields the caller actually supplied.
type inlineConfig struct {
	Task       *string  `json:"task" toml:"task"`
	Scope      *string  `json:"scope" toml:"scope"`
	Paths      []string `json:"paths" toml:"paths"`
	Threshold  *int     `json:"threshold" toml:"threshold"`
	MaxCycles  *int     `json:"maxCycles" toml:"maxCycles"`
	Candidates *int     `json:"candidates" toml:"candidates"`
	Judges     []string `json:"judges" toml:"judges"`
	ApplyFixes *bool    `json:"applyFixes" toml:"applyFixes"`
}

// parseInlineConfig parses a gan-config block body (JSON first, TOML
// as a permissive fallback) into a SessionConfig overlay plus any
// warnings produced while validating individual fields. A parse
// failure in both formats is never an error: it is reported as
// ok=false and the caller proceeds as if no block were present
// (spec.md §4.1).
func parseInlineConfig(body string) (thought.SessionConfig, []string, bool) {
	var raw inlineConfig
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		raw = inlineConfig{}
		if _, tomlErr := toml.Decode(body, &raw); tomlErr != nil {
			return thought.SessionConfig{}, nil, false
		}
	}

	var warnings []string
	cfg := thought.SessionConfig{}

	if raw.Task != nil {
		cfg.Task = *raw.Task
	}
	if raw.Scope != nil {
		s := thought.Scope(strings.TrimSpace(*raw.Scope))
		switch s {
		case thought.ScopeDiff, thought.ScopeWorkspace:
			cfg.Scope = s
		case thought.ScopePaths:
			if len(raw.Paths) == 0 {
				warnings = append(warnings, "scope=paths requested with no paths; falling back to workspace")
				cfg.Scope = thought.ScopeWorkspace
			} else {
				cfg.Scope = s
			}
		default:
			// invalid scope value: leave unset so Merge preserves
			// the prior/default scope, per spec.md §4.1.
		}
	}
	if len(raw.Paths) > 0 {
		cfg.Paths = raw.Paths
	}
	if raw.Threshold != nil {
		cfg.Threshold = thought.ClampThreshold(*raw.Threshold)
	}
	if raw.MaxCycles != nil {
		cfg.MaxCycles = *raw.MaxCycles
	}
	if raw.Candidates != nil {
		cfg.Candidates = *raw.Candidates
	}
	if len(raw.Judges) > 0 {
		cfg.Judges = raw.Judges
	}
	if raw.ApplyFixes != nil {
		cfg.ApplyFixes = *raw.ApplyFixes
	}

	return cfg, warnings, true
}
