// Package config provides configuration loading for the gansauditor
// service: environment-variable driven, with an optional layered YAML
// file, and a fail-closed production validation pass.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRCubix/gansauditor-codex/internal/logging"
)

// Config holds the complete gansauditor configuration.
type Config struct {
	Production  ProductionConfig
	Auditing    AuditingConfig
	Judge       JudgeConfig
	ProcessMgr  ProcessManagerConfig
	Tiers       TierConfig
	Debug       DebugConfig
	Logging     LoggingConfig
}

// LoggingConfig controls the structured logger gansauditor builds at
// startup (internal/logging).
type LoggingConfig struct {
	// Level is GAN_LOG_LEVEL: trace, debug, info, warn, error, dpanic,
	// panic, or fatal (case-insensitive).
	Level string `koanf:"level"`
}

// AuditingConfig holds the top-level auditing switches.
type AuditingConfig struct {
	// Enabled is ENABLE_GAN_AUDITING, the master switch. When false the
	// Orchestrator never triggers, regardless of thought content.
	Enabled bool `koanf:"enabled"`

	// StateDir is the session store directory (spec.md §6, default
	// ".mcp-gan-state").
	StateDir string `koanf:"state_dir"`
}

// JudgeConfig holds Judge Runtime configuration.
type JudgeConfig struct {
	// Executable overrides discovery with an explicit path (CODEX_EXECUTABLE).
	Executable string `koanf:"executable"`

	// ExecutablePaths is an ordered extra-search-directory list
	// (CODEX_EXECUTABLE_PATHS), beyond PATH.
	ExecutablePaths []string `koanf:"executable_paths"`

	// Timeout bounds a single judge invocation (CODEX_TIMEOUT).
	Timeout Duration `koanf:"timeout"`

	// MaxRetries is the Judge Runtime's transient-error retry budget
	// (CODEX_MAX_RETRIES, default 1-2).
	MaxRetries int `koanf:"max_retries"`

	// RetryDelay is the base delay for exponential backoff
	// (CODEX_RETRY_DELAY); actual delay is RetryDelay * 2^attempt.
	RetryDelay Duration `koanf:"retry_delay"`

	// FailFast requires CODEX_FAIL_FAST=true in production: the runtime
	// must surface JudgeUnavailable rather than degrade silently.
	FailFast bool `koanf:"fail_fast"`

	// AllowMockFallback must be false in production: no synthetic
	// verdict may ever be substituted for a real judge call.
	AllowMockFallback bool `koanf:"allow_mock_fallback"`

	// RequireAvailable requires CODEX_REQUIRE_AVAILABLE=true in
	// production: the judge executable must resolve at startup.
	RequireAvailable bool `koanf:"require_available"`

	// ValidateOnStartup requires CODEX_VALIDATE_ON_STARTUP=true in
	// production: discovery and environment preparation run once eagerly
	// instead of lazily on first audit.
	ValidateOnStartup bool `koanf:"validate_on_startup"`
}

// ProcessManagerConfig holds Process Manager configuration (spec.md §4.2).
type ProcessManagerConfig struct {
	MaxConcurrent         int      `koanf:"max_concurrent"`
	DefaultTimeout        Duration `koanf:"default_timeout"`
	CleanupGrace          Duration `koanf:"cleanup_grace"`
	QueueTimeout          Duration `koanf:"queue_timeout"`
	HealthCheckInterval   Duration `koanf:"health_check_interval"`
}

// Tier is one rung of the tiered completion ladder (spec.md §4.1).
type Tier struct {
	Score int `koanf:"score"`
	Loops int `koanf:"loops"`
}

// TierConfig holds the tiered completion ladder and stagnation
// parameters, all overridable via SYNC_AUDIT_* environment variables.
type TierConfig struct {
	Tier1             Tier    `koanf:"tier1"`
	Tier2             Tier    `koanf:"tier2"`
	Tier3             Tier    `koanf:"tier3"`
	HardStopLoops     int     `koanf:"hard_stop_loops"`
	StagnationStart   int     `koanf:"stagnation_start_loop"`
	StagnationThresh  float64 `koanf:"stagnation_threshold"`
}

// DefaultTiers returns the spec-mandated ladder.
func DefaultTiers() TierConfig {
	return TierConfig{
		Tier1:            Tier{Score: 95, Loops: 10},
		Tier2:            Tier{Score: 90, Loops: 15},
		Tier3:            Tier{Score: 85, Loops: 20},
		HardStopLoops:    25,
		StagnationStart:  10,
		StagnationThresh: 0.95,
	}
}

// DebugConfig holds the optional debug HTTP surface (SPEC_FULL.md §4).
type DebugConfig struct {
	Addr string `koanf:"addr"`
}

// ProductionConfig mirrors the teacher's fail-closed pattern, adapted
// to the judge-availability flags spec.md §6 calls out.
type ProductionConfig struct {
	Enabled bool `koanf:"enabled"`

	// LocalModeAcknowledged permits skipping the production checks
	// below; use only for local development.
	LocalModeAcknowledged bool `koanf:"local_mode_acknowledged"`

	FailFast          bool `koanf:"fail_fast"`
	AllowMockFallback bool `koanf:"allow_mock_fallback"`
	RequireAvailable  bool `koanf:"require_available"`
	ValidateOnStartup bool `koanf:"validate_on_startup"`
}

// IsProduction reports whether production mode is active.
func (c *ProductionConfig) IsProduction() bool { return c.Enabled }

// Validate checks production configuration for security issues,
// returning "SECURITY: ..."-prefixed errors exactly as the judge-fail-fast
// policy in spec.md §6 requires.
func (c *ProductionConfig) Validate() error {
	if !c.Enabled || c.LocalModeAcknowledged {
		return nil
	}
	if !c.FailFast {
		return fmt.Errorf("SECURITY: CODEX_FAIL_FAST must be true in production")
	}
	if c.AllowMockFallback {
		return fmt.Errorf("SECURITY: CODEX_ALLOW_MOCK_FALLBACK must be false in production")
	}
	if !c.RequireAvailable {
		return fmt.Errorf("SECURITY: CODEX_REQUIRE_AVAILABLE must be true in production")
	}
	if !c.ValidateOnStartup {
		return fmt.Errorf("SECURITY: CODEX_VALIDATE_ON_STARTUP must be true in production")
	}
	return nil
}

// Load builds a Config from environment variables with defaults, the
// way the teacher's config.Load does it: typed getEnv* helpers with
// inline defaults, no file I/O.
func Load() *Config {
	tiers := DefaultTiers()

	cfg := &Config{
		Auditing: AuditingConfig{
			Enabled:  getEnvBool("ENABLE_GAN_AUDITING", false),
			StateDir: getEnvString("GAN_STATE_DIR", ".mcp-gan-state"),
		},
		Judge: JudgeConfig{
			Executable:        getEnvString("CODEX_EXECUTABLE", ""),
			ExecutablePaths:   getEnvStringSlice("CODEX_EXECUTABLE_PATHS", nil),
			Timeout:           Duration(getEnvDuration("CODEX_TIMEOUT", 30*time.Second)),
			MaxRetries:        getEnvInt("CODEX_MAX_RETRIES", 1),
			RetryDelay:        Duration(getEnvDuration("CODEX_RETRY_DELAY", 1*time.Second)),
			FailFast:          getEnvBool("CODEX_FAIL_FAST", true),
			AllowMockFallback: getEnvBool("CODEX_ALLOW_MOCK_FALLBACK", false),
			RequireAvailable:  getEnvBool("CODEX_REQUIRE_AVAILABLE", true),
			ValidateOnStartup: getEnvBool("CODEX_VALIDATE_ON_STARTUP", true),
		},
		ProcessMgr: ProcessManagerConfig{
			MaxConcurrent:       getEnvInt("CODEX_MAX_CONCURRENT_PROCESSES", 3),
			DefaultTimeout:      Duration(getEnvDuration("CODEX_TIMEOUT", 30*time.Second)),
			CleanupGrace:        Duration(getEnvDuration("CODEX_PROCESS_CLEANUP_TIMEOUT", 5*time.Second)),
			QueueTimeout:        Duration(getEnvDuration("CODEX_QUEUE_TIMEOUT", 60*time.Second)),
			HealthCheckInterval: Duration(getEnvDuration("CODEX_HEALTH_CHECK_INTERVAL", 30*time.Second)),
		},
		Tiers: TierConfig{
			Tier1: Tier{
				Score: getEnvInt("SYNC_AUDIT_TIER1_SCORE", tiers.Tier1.Score),
				Loops: getEnvInt("SYNC_AUDIT_TIER1_LOOPS", tiers.Tier1.Loops),
			},
			Tier2: Tier{
				Score: getEnvInt("SYNC_AUDIT_TIER2_SCORE", tiers.Tier2.Score),
				Loops: getEnvInt("SYNC_AUDIT_TIER2_LOOPS", tiers.Tier2.Loops),
			},
			Tier3: Tier{
				Score: getEnvInt("SYNC_AUDIT_TIER3_SCORE", tiers.Tier3.Score),
				Loops: getEnvInt("SYNC_AUDIT_TIER3_LOOPS", tiers.Tier3.Loops),
			},
			HardStopLoops:    getEnvInt("SYNC_AUDIT_HARD_STOP_LOOPS", tiers.HardStopLoops),
			StagnationStart:  getEnvInt("SYNC_AUDIT_STAGNATION_START_LOOP", tiers.StagnationStart),
			StagnationThresh: getEnvFloat("SYNC_AUDIT_STAGNATION_THRESHOLD", tiers.StagnationThresh),
		},
		Debug: DebugConfig{
			Addr: getEnvString("GAN_DEBUG_HTTP_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level: getEnvString("GAN_LOG_LEVEL", "info"),
		},
	}

	cfg.Production = loadProductionConfig()

	return cfg
}

// Validate validates the configuration, including the fail-closed
// production pass.
func (c *Config) Validate() error {
	if c.ProcessMgr.MaxConcurrent < 1 {
		return errors.New("CODEX_MAX_CONCURRENT_PROCESSES must be at least 1")
	}
	if c.ProcessMgr.DefaultTimeout.Duration() <= 0 {
		return errors.New("CODEX_TIMEOUT must be positive")
	}
	if c.Judge.MaxRetries < 0 {
		return errors.New("CODEX_MAX_RETRIES must be non-negative")
	}
	if c.Tiers.StagnationThresh < 0 || c.Tiers.StagnationThresh > 1 {
		return errors.New("SYNC_AUDIT_STAGNATION_THRESHOLD must be in [0,1]")
	}
	if c.Tiers.HardStopLoops < c.Tiers.Tier3.Loops {
		return errors.New("SYNC_AUDIT_HARD_STOP_LOOPS must be >= tier3 loop budget")
	}
	if c.Auditing.StateDir == "" {
		return errors.New("GAN_STATE_DIR must not be empty")
	}
	if _, err := logging.LevelFromString(c.Logging.Level); err != nil {
		return fmt.Errorf("GAN_LOG_LEVEL invalid: %w", err)
	}

	if err := c.Production.Validate(); err != nil {
		return fmt.Errorf("production config validation failed: %w", err)
	}

	return nil
}

// loadProductionConfig loads production mode configuration from the
// environment, mirroring the teacher's loadProductionConfig.
func loadProductionConfig() ProductionConfig {
	prodMode := os.Getenv("GAN_PRODUCTION_MODE") == "1"
	localMode := os.Getenv("GAN_LOCAL_MODE") == "1"

	return ProductionConfig{
		Enabled:               prodMode,
		LocalModeAcknowledged: localMode,
		FailFast:              getEnvBool("CODEX_FAIL_FAST", true),
		AllowMockFallback:     getEnvBool("CODEX_ALLOW_MOCK_FALLBACK", false),
		RequireAvailable:      getEnvBool("CODEX_REQUIRE_AVAILABLE", true),
		ValidateOnStartup:     getEnvBool("CODEX_VALIDATE_ON_STARTUP", true),
	}
}

// Helper functions for environment variable parsing, following the
// teacher's getEnv* idiom verbatim.

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
