package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestContextFields_Trace(t *testing.T) {
	ctx := context.Background()
	fields := ContextFields(ctx)
	assert.Empty(t, fields)
}

func TestContextFields_OTELTracing(t *testing.T) {
	// judgeruntime and procmgr each open a real otel.Tracer span around
	// every judge invocation; this exercises the same propagation path.
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)
	tracer := provider.Tracer("test")

	ctx, span := tracer.Start(context.Background(), "test-operation")
	defer span.End()

	fields := ContextFields(ctx)

	var hasTraceID, hasSpanID bool
	for _, f := range fields {
		if f.Key == "trace_id" {
			hasTraceID = true
			assert.NotEmpty(t, f.String, "trace_id should not be empty")
		}
		if f.Key == "span_id" {
			hasSpanID = true
			assert.NotEmpty(t, f.String, "span_id should not be empty")
		}
	}
	assert.True(t, hasTraceID, "trace_id field missing from context fields")
	assert.True(t, hasSpanID, "span_id field missing from context fields")
}

func TestContextFields_OTELSampling(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(
		trace.WithSampler(trace.AlwaysSample()),
		trace.WithBatcher(exporter),
	)
	tracer := provider.Tracer("test")

	ctx, span := tracer.Start(context.Background(), "sampled-operation")
	defer span.End()

	fields := ContextFields(ctx)

	assertBoolFieldExists(t, fields, "trace_sampled", true)
}

func TestContextFields_Session(t *testing.T) {
	ctx := context.WithValue(context.Background(), sessionCtxKey{}, "sess_123")

	fields := ContextFields(ctx)

	assert.Len(t, fields, 1)
	assertFieldExists(t, fields, "session.id", "sess_123")
}

func TestContextFields_Loop(t *testing.T) {
	ctx := context.WithValue(context.Background(), loopCtxKey{}, 3)

	fields := ContextFields(ctx)

	assert.Len(t, fields, 1)
	for _, f := range fields {
		if f.Key == "loop" {
			assert.EqualValues(t, 3, f.Integer)
			return
		}
	}
	t.Errorf("loop field not found")
}

func TestContextFields_JudgeModel(t *testing.T) {
	ctx := context.WithValue(context.Background(), judgeModelCtxKey{}, "gpt-5-codex")

	fields := ContextFields(ctx)

	assert.Len(t, fields, 1)
	assertFieldExists(t, fields, "judge.model", "gpt-5-codex")
}

func TestContextFields_Combined(t *testing.T) {
	ctx := WithSessionID(context.Background(), "sess_123")
	ctx = WithLoop(ctx, 2)
	ctx = WithJudgeModel(ctx, "claude-sonnet-4.5")

	fields := ContextFields(ctx)

	assert.Len(t, fields, 3)
	assertFieldExists(t, fields, "session.id", "sess_123")
	assertFieldExists(t, fields, "judge.model", "claude-sonnet-4.5")
}

func assertFieldExists(t *testing.T, fields []zap.Field, key, expected string) {
	t.Helper()
	for _, field := range fields {
		if field.Key == key && field.String == expected {
			return
		}
	}
	t.Errorf("field %q with value %q not found", key, expected)
}

func assertBoolFieldExists(t *testing.T, fields []zap.Field, key string, expected bool) {
	t.Helper()
	for _, field := range fields {
		if field.Key == key {
			if expected && field.Integer == 1 {
				return
			} else if !expected && field.Integer == 0 {
				return
			}
		}
	}
	t.Errorf("bool field %q with value %v not found", key, expected)
}

// Validation tests

func TestWithSessionID_Valid(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
	}{
		{"simple", "sess_123"},
		{"with hyphens", "sess-abc-123"},
		{"with underscores", "sess_abc_123"},
		{"alphanumeric", "sessABC123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithSessionID(context.Background(), tt.sessionID)
			retrieved := SessionIDFromContext(ctx)
			assert.Equal(t, tt.sessionID, retrieved)
		})
	}
}

func TestWithSessionID_EmptyPanics(t *testing.T) {
	assert.PanicsWithValue(t, "logging: sessionID cannot be empty", func() {
		WithSessionID(context.Background(), "")
	})
}

func TestWithSessionID_InvalidCharactersPanics(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
	}{
		{"with spaces", "sess 123"},
		{"with slash", "sess/123"},
		{"with special chars", "sess@123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() {
				WithSessionID(context.Background(), tt.sessionID)
			})
		})
	}
}

func TestWithSessionID_TooLongPanics(t *testing.T) {
	longID := string(make([]byte, 129)) // 129 chars, max is 128
	for i := range longID {
		longID = longID[:i] + "a" + longID[i+1:]
	}

	assert.Panics(t, func() {
		WithSessionID(context.Background(), longID)
	})
}

func TestWithLoop_Valid(t *testing.T) {
	ctx := WithLoop(context.Background(), 5)
	loop, ok := LoopFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, 5, loop)
}

func TestWithLoop_ZeroPanics(t *testing.T) {
	assert.Panics(t, func() {
		WithLoop(context.Background(), 0)
	})
}

func TestWithLoop_NegativePanics(t *testing.T) {
	assert.Panics(t, func() {
		WithLoop(context.Background(), -1)
	})
}

func TestLoopFromContext_Missing(t *testing.T) {
	_, ok := LoopFromContext(context.Background())
	assert.False(t, ok)
}

func TestWithJudgeModel_Valid(t *testing.T) {
	tests := []string{"gpt-5-codex", "claude-sonnet-4.5", "gpt-4.1"}
	for _, model := range tests {
		t.Run(model, func(t *testing.T) {
			ctx := WithJudgeModel(context.Background(), model)
			assert.Equal(t, model, JudgeModelFromContext(ctx))
		})
	}
}

func TestWithJudgeModel_EmptyPanics(t *testing.T) {
	assert.PanicsWithValue(t, "logging: judgeModel cannot be empty", func() {
		WithJudgeModel(context.Background(), "")
	})
}

func TestJudgeModelFromContext_Missing(t *testing.T) {
	assert.Equal(t, "", JudgeModelFromContext(context.Background()))
}
