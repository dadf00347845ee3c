// Package logging provides structured logging for gansauditor.
//
// # Overview
//
// The package wraps Zap with:
//   - A custom Trace level (-2, below Debug) for ultra-verbose judge
//     I/O dumps during local debugging
//   - Automatic context field injection: trace/span id (correlating
//     with the spans judgeruntime and procmgr open around each judge
//     invocation), audit session id, loop number, and judge model
//   - Defense-in-depth redaction of judge stdout/stderr and
//     candidate-text fields that might carry secrets the audited
//     repository embeds (API keys, tokens, credentials)
//
// Output always goes to stderr: gansauditor serves the MCP protocol
// over stdout/stdin, so stdout can never be used for log output
// without corrupting the JSON-RPC stream.
//
// # Usage
//
// Create a logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithSessionID(ctx, session.Key)
//	ctx = logging.WithLoop(ctx, loop)
//	logger.Info(ctx, "audit cycle completed", zap.Int("verdict_score", score))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2026-07-30T10:15:30Z",
//	  "level": "info",
//	  "msg": "audit cycle completed",
//	  "trace_id": "abc123",
//	  "session.id": "sess_a1b2c3",
//	  "loop": 3,
//	  "judge.model": "gpt-5-codex",
//	  "verdict_score": 92
//	}
//
// # Configuration Precedence
//
// Configuration follows standard gansauditor precedence:
//  1. Defaults (NewDefaultConfig)
//  2. File (config.yaml)
//  3. Environment variables (GAN_LOG_LEVEL, ...)
//
// # Secret Redaction
//
// Secrets are redacted at two layers:
//  1. Encoder-level field name filtering (password, token, api_key, ...)
//  2. Encoder-level pattern matching (bearer tokens, api-key=... pairs)
//
// Use RedactedString for manual redaction when a field's length alone
// is useful for debugging:
//
//	logger.Debug(ctx, "judge stdout received",
//	    logging.RedactedString("stdout", rawOutput))
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
package logging
