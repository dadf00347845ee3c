package orchestrator

import (
	"time"

	"github.com/DRCubix/gansauditor-codex/internal/sessionstore"
	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

// resolveSessionKey implements spec.md §4.1's session-key precedence:
// an explicit branch identifier always wins; otherwise a deterministic
// stable key derived from the working directory, caller identity, and
// the current hour bucket.
func resolveSessionKey(branchID, workingDir, identity string, now time.Time) string {
	if branchID != "" {
		return branchID
	}
	return sessionstore.StableKey(workingDir, identity, now)
}

// loadOrCreateSession resolves key to a SessionState, preferring the
// Orchestrator's in-memory cache, then the Session Store, and finally
// a fresh session. A corrupted session file is replaced with a fresh
// one and reported as a warning rather than an error, per spec.md
// §4.1's session-resolution failure semantics.
func (o *Orchestrator) loadOrCreateSession(key string) (*thought.SessionState, []string) {
	o.cacheMu.Lock()
	if st, ok := o.cache[key]; ok {
		o.cacheMu.Unlock()
		return st, nil
	}
	o.cacheMu.Unlock()

	var warnings []string
	st, ok, err := o.store.Load(key)
	switch {
	case err != nil:
		warnings = append(warnings, "session file corrupted; starting a fresh session: "+err.Error())
		st = sessionstore.NewSession(key, thought.DefaultSessionConfig())
	case !ok:
		st = sessionstore.NewSession(key, thought.DefaultSessionConfig())
	}

	o.cacheMu.Lock()
	o.cache[key] = st
	o.cacheMu.Unlock()
	return st, warnings
}
