// internal/logging/integration_test.go
package logging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestIntegration_FullLoggingPipeline(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.Format = "json"

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	defer func() {
		_ = logger.Sync()
	}()

	ctx := WithSessionID(context.Background(), "sess_integration_123")
	ctx = WithLoop(ctx, 1)
	ctx = WithJudgeModel(ctx, "gpt-5-codex")

	logger.Trace(ctx, "trace message", zap.String("detail", "ultra-verbose"))
	logger.Debug(ctx, "debug message", zap.String("cache", "hit"))
	logger.Info(ctx, "info message", zap.Duration("duration", 45*time.Millisecond))
	logger.Warn(ctx, "warn message", zap.Int("retry_attempt", 2))
	logger.Error(ctx, "error message", zap.Error(fmt.Errorf("test error")))

	logger.Info(ctx, "judge output received",
		RedactedString("stdout", "candidate text containing sk-fake-1234567890"))

	child := logger.With(zap.String("component", "judgeruntime"))
	child.Info(ctx, "child log")

	named := logger.Named("subsystem")
	named.Info(ctx, "named log")

	_ = logger.Sync()
}

func TestIntegration_ContextFieldInjection(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithSessionID(context.Background(), "sess_123")
	ctx = WithLoop(ctx, 4)

	tl.Info(ctx, "audit cycle completed", zap.String("method", "GET"))

	tl.AssertLogged(t, zapcore.InfoLevel, "audit cycle completed")
	tl.AssertField(t, "audit cycle completed", "session.id", "sess_123")
	tl.AssertField(t, "audit cycle completed", "loop", 4)
	tl.AssertField(t, "audit cycle completed", "method", "GET")
}

func TestIntegration_SecretRedaction(t *testing.T) {
	tl := NewTestLogger()

	tl.Info(context.Background(), "auth",
		RedactedString("credentials", "my-secret-token"))

	tl.AssertLogged(t, zapcore.InfoLevel, "auth")
	tl.AssertNoSecrets(t)
}
