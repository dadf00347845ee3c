// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context: the active
// trace span (populated by judgeruntime's and procmgr's otel.Tracer
// spans), the audit session id, the loop number within that session,
// and the judge model that produced the current verdict, once known.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		fields = append(fields, zap.String("session.id", sessionID))
	}

	if loop, ok := LoopFromContext(ctx); ok {
		fields = append(fields, zap.Int("loop", loop))
	}

	if model := JudgeModelFromContext(ctx); model != "" {
		fields = append(fields, zap.String("judge.model", model))
	}

	return fields
}

// Context key types
type sessionCtxKey struct{}
type loopCtxKey struct{}
type judgeModelCtxKey struct{}

const maxIDLen = 128

// idPattern allows alphanumeric, hyphen, underscore, and dot (judge
// model names such as "gpt-4.1" or "claude-sonnet-4.5" use dots).
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// validateID validates a session id or judge model name.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore, dot)", name)
	}
	return nil
}

// SessionIDFromContext extracts the audit session id from context.
func SessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sessionCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithSessionID attaches the audit session id to context. Panics if
// sessionID is empty or contains invalid characters.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if err := validateID(sessionID, "sessionID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// LoopFromContext extracts the current loop number from context.
func LoopFromContext(ctx context.Context) (int, bool) {
	loop, ok := ctx.Value(loopCtxKey{}).(int)
	return loop, ok
}

// WithLoop attaches the current loop number (1-indexed) to context.
// Panics if loop is less than 1.
func WithLoop(ctx context.Context, loop int) context.Context {
	if loop < 1 {
		panic(fmt.Sprintf("logging: loop must be >= 1, got %d", loop))
	}
	return context.WithValue(ctx, loopCtxKey{}, loop)
}

// JudgeModelFromContext extracts the judge model name from context.
func JudgeModelFromContext(ctx context.Context) string {
	if m, ok := ctx.Value(judgeModelCtxKey{}).(string); ok {
		return m
	}
	return ""
}

// WithJudgeModel attaches the judge model name to context. Panics if
// model is empty or contains invalid characters.
func WithJudgeModel(ctx context.Context, model string) context.Context {
	if err := validateID(model, "judgeModel"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, judgeModelCtxKey{}, model)
}
