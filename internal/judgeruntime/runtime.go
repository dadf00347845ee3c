package judgeruntime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/DRCubix/gansauditor-codex/internal/logging"
	"github.com/DRCubix/gansauditor-codex/internal/procmgr"
	"github.com/DRCubix/gansauditor-codex/internal/secrets"
	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

var tracer = otel.Tracer("gansauditor/judgeruntime")

// Error categories surfaced to the Orchestrator's Error Classifier
// (spec.md §4.4).
//
// ErrJudgeResponseInvalid is reserved for callers that choose to treat
// an empty/placeholder normalized Verdict as invalid; ParseResponse
// itself never fails outright since greedy recovery always yields a
// defaulted Verdict.
var (
	ErrJudgeExecution       = errors.New("judgeruntime: judge exited non-zero")
	ErrJudgeResponseInvalid = errors.New("judgeruntime: judge response could not be parsed")
	ErrJudgeTimeout         = errors.New("judgeruntime: judge invocation timed out")
)

// Config configures a Runtime (spec.md §4.3).
type Config struct {
	Discovery  Discovery
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	WorkDir    string
}

// Runtime is the Judge Runtime: it owns executable discovery and
// caches the result across calls, and delegates every invocation to
// the Process Manager.
type Runtime struct {
	cfg      Config
	procmgr  *procmgr.Manager
	logger   *zap.Logger
	scrubber secrets.Scrubber

	resolvedPath string
	resolvedEnv  []string
}

// New creates a Runtime. A nil logger falls back to zap.NewNop(). The
// judge's stderr is attacker-controlled output from an external
// subprocess and is surfaced verbatim in error responses, so a default
// scrubber is always attached.
func New(cfg Config, pm *procmgr.Manager, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	scrubber, err := secrets.New(nil)
	if err != nil {
		panic(fmt.Sprintf("judgeruntime: default scrubber config invalid: %v", err))
	}
	return &Runtime{cfg: cfg, procmgr: pm, logger: logger, scrubber: scrubber}
}

// Validate runs discovery and environment preparation eagerly,
// returning ErrJudgeUnavailable if either fails. Intended for
// CODEX_VALIDATE_ON_STARTUP (spec.md §6).
func (r *Runtime) Validate(ctx context.Context) error {
	_, _, err := r.ensureResolved()
	return err
}

func (r *Runtime) ensureResolved() (string, []string, error) {
	if r.resolvedPath != "" {
		return r.resolvedPath, r.resolvedEnv, nil
	}

	path, err := r.cfg.Discovery.Resolve()
	if err != nil {
		return "", nil, err
	}
	env, err := r.cfg.Discovery.PrepareEnv()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrJudgeUnavailable, err)
	}

	r.resolvedPath = path
	r.resolvedEnv = env
	return path, env, nil
}

// RetryDelay returns the exponential backoff for attempt (0-indexed):
// base * 2^attempt, per spec.md §4.3 "2^attempt seconds".
func RetryDelay(base time.Duration, attempt int) time.Duration {
	return time.Duration(float64(base) * math.Pow(2, float64(attempt)))
}

// isRetryable reports whether err is a transient error eligible for
// retry. JudgeUnavailable, JudgeResponseInvalid, and timeouts are
// explicitly non-retryable at this layer (spec.md §4.3).
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrJudgeUnavailable) || errors.Is(err, ErrJudgeResponseInvalid) || errors.Is(err, ErrJudgeTimeout) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrJudgeExecution)
}

// Audit implements spec.md §4.3 end to end: resolve the executable,
// assemble the prompt, invoke it through the Process Manager with
// retries on transient errors only, and normalize the response.
func (r *Runtime) Audit(ctx context.Context, req thought.AuditRequest) (*thought.Verdict, error) {
	path, env, err := r.ensureResolved()
	if err != nil {
		return nil, err
	}

	body, err := AssemblePrompt(req)
	if err != nil {
		return nil, fmt.Errorf("judgeruntime: failed to assemble prompt: %w", err)
	}
	args := InvocationArgs(req)

	spanCtx, span := tracer.Start(ctx, "judgeruntime.audit")
	defer span.End()
	span.SetAttributes(attribute.Bool("prompt_aware", req.SystemPrompt != ""))

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		res, execErr := r.procmgr.Execute(spanCtx, procmgr.Request{
			Executable: path,
			Args:       args,
			Dir:        r.cfg.WorkDir,
			Env:        env,
			Stdin:      body,
			Timeout:    r.cfg.Timeout,
		})
		if execErr != nil {
			lastErr = execErr
			break
		}

		if res.TimedOut {
			lastErr = fmt.Errorf("%w after %s", ErrJudgeTimeout, res.Duration)
			break
		}

		if res.ExitCode != 0 {
			stderr := r.scrubber.Scrub(string(res.Stderr)).Scrubbed
			lastErr = fmt.Errorf("%w: exit code %d: %s", ErrJudgeExecution, res.ExitCode, stderr)
			if attempt < r.cfg.MaxRetries && isRetryable(lastErr) {
				r.logger.Warn("judge execution failed, retrying", append(logging.ContextFields(spanCtx),
					zap.Int("attempt", attempt+1), zap.Error(lastErr))...)
				if !sleep(spanCtx, RetryDelay(r.cfg.RetryDelay, attempt)) {
					return nil, spanCtx.Err()
				}
				continue
			}
			break
		}

		verdict := ParseResponse(res.Stdout, req.Rubric, req.SystemPrompt != "")
		return &verdict, nil
	}

	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
