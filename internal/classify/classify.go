// Package classify is the Error Classifier (spec.md §4.4, §7): maps a
// fault to a category, default severity, recoverability, and a
// fixed-table suggestion list, so every failure path surfaces at least
// one concrete, actionable suggestion.
package classify

import (
	"errors"

	"github.com/DRCubix/gansauditor-codex/internal/judgeruntime"
	"github.com/DRCubix/gansauditor-codex/internal/sessionstore"
)

// Category is the fault taxonomy's top-level bucket.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryJudge      Category = "judge"
	CategoryFilesystem Category = "filesystem"
	CategorySession    Category = "session"
)

// Severity is the default severity for a category (spec.md §7); a
// caller may escalate it, but never downgrade a Judge fault below high.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Strategy names the recovery action the Orchestrator takes.
type Strategy string

const (
	StrategyFallbackDefaults Strategy = "fallback-to-defaults"
	StrategyPropagate        Strategy = "propagate"
	StrategySkipDegrade      Strategy = "skip-and-degrade"
	StrategyCreateFresh      Strategy = "create-fresh-session"
)

// Classification is the classifier's full verdict on one fault.
type Classification struct {
	Category    Category
	Severity    Severity
	Recoverable bool
	Strategy    Strategy
	Suggestions []string
}

// suggestion table entries, spec.md §7 "Suggestions are data, not prose".
var (
	suggestConfigDefault     = []string{"Review the inline gan-config block for out-of-range or unrecognized options; unrecognized options fall back to session defaults."}
	suggestJudgeMissing      = []string{"Install the judge executable and ensure it is on PATH, or set CODEX_EXECUTABLE to its absolute path."}
	suggestJudgeTimeout      = []string{"Increase CODEX_TIMEOUT, or reduce the candidate/context size.", "Check whether the judge executable is hanging waiting on stdin."}
	suggestJudgeExecution    = []string{"Inspect standard error from the judge invocation for the underlying failure.", "Verify the judge executable's required runtime dependencies are present."}
	suggestJudgeInvalid      = []string{"Confirm the judge executable supports --format json.", "Check for judge executable version drift against what this service expects."}
	suggestFilesystemMissing = []string{"Provide an explicit paths array when scope=paths.", "Verify the working directory is a valid repository checkout."}
	suggestFilesystemAccess  = []string{"Check file and directory permissions under the configured state directory."}
	suggestSessionCorrupted  = []string{"The session file was corrupted; a fresh session has been created and audit history restarts from empty."}
	suggestSessionPersist    = []string{"Verify the state directory (GAN_STATE_DIR) is writable; the session continues in-memory for this cycle."}
)

// Classify maps err to a Classification. Unrecognized errors default
// to Config/medium/recoverable, the safest fallback bucket.
func Classify(err error) Classification {
	switch {
	case errors.Is(err, judgeruntime.ErrJudgeUnavailable):
		return Classification{
			Category: CategoryJudge, Severity: SeverityCritical, Recoverable: false,
			Strategy: StrategyPropagate, Suggestions: suggestJudgeMissing,
		}
	case errors.Is(err, judgeruntime.ErrJudgeTimeout):
		return Classification{
			Category: CategoryJudge, Severity: SeverityHigh, Recoverable: false,
			Strategy: StrategyPropagate, Suggestions: suggestJudgeTimeout,
		}
	case errors.Is(err, judgeruntime.ErrJudgeResponseInvalid):
		return Classification{
			Category: CategoryJudge, Severity: SeverityHigh, Recoverable: false,
			Strategy: StrategyPropagate, Suggestions: suggestJudgeInvalid,
		}
	case errors.Is(err, judgeruntime.ErrJudgeExecution):
		return Classification{
			Category: CategoryJudge, Severity: SeverityHigh, Recoverable: false,
			Strategy: StrategyPropagate, Suggestions: suggestJudgeExecution,
		}
	case errors.Is(err, sessionstore.ErrCorrupted):
		return Classification{
			Category: CategorySession, Severity: SeverityMedium, Recoverable: true,
			Strategy: StrategyCreateFresh, Suggestions: suggestSessionCorrupted,
		}
	case errors.Is(err, errSessionPersist):
		return Classification{
			Category: CategorySession, Severity: SeverityLow, Recoverable: true,
			Strategy: StrategyFallbackDefaults, Suggestions: suggestSessionPersist,
		}
	case errors.Is(err, errFilesystemMissing):
		return Classification{
			Category: CategoryFilesystem, Severity: SeverityLow, Recoverable: true,
			Strategy: StrategySkipDegrade, Suggestions: suggestFilesystemMissing,
		}
	case errors.Is(err, errFilesystemAccess):
		return Classification{
			Category: CategoryFilesystem, Severity: SeverityMedium, Recoverable: true,
			Strategy: StrategySkipDegrade, Suggestions: suggestFilesystemAccess,
		}
	default:
		return Classification{
			Category: CategoryConfig, Severity: SeverityMedium, Recoverable: true,
			Strategy: StrategyFallbackDefaults, Suggestions: suggestConfigDefault,
		}
	}
}

// Sentinel errors for categories that do not originate from a single
// owning package; the Orchestrator and Context Builder wrap their
// failures in these so Classify can recognize them without importing
// every caller's internal error types.
var (
	errSessionPersist    = errors.New("classify: session persistence failed")
	errFilesystemMissing = errors.New("classify: filesystem resource missing")
	errFilesystemAccess  = errors.New("classify: filesystem access denied")
)

// WrapSessionPersist marks err as a session-persistence fault for
// Classify.
func WrapSessionPersist(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(errSessionPersist, err)
}

// WrapFilesystemMissing marks err as a missing-resource filesystem
// fault for Classify.
func WrapFilesystemMissing(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(errFilesystemMissing, err)
}

// WrapFilesystemAccess marks err as an access-denied filesystem fault
// for Classify.
func WrapFilesystemAccess(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(errFilesystemAccess, err)
}
