// Command gansauditor runs the GAN-style code-auditing MCP tool over
// stdio, auditing reasoning steps that carry code, diffs, or an inline
// gan-config block against a Judge Runtime subprocess.
//
// Configuration is loaded from environment variables, optionally
// layered under a YAML file. See internal/config for details.
//
// Usage:
//
//	# Start serving over stdio
//	gansauditor serve
//
//	# Check judge executable discovery without auditing anything
//	gansauditor doctor
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DRCubix/gansauditor-codex/internal/config"
	"github.com/DRCubix/gansauditor-codex/internal/contextpack"
	"github.com/DRCubix/gansauditor-codex/internal/httpdebug"
	"github.com/DRCubix/gansauditor-codex/internal/judgeruntime"
	"github.com/DRCubix/gansauditor-codex/internal/logging"
	"github.com/DRCubix/gansauditor-codex/internal/mcpserver"
	"github.com/DRCubix/gansauditor-codex/internal/orchestrator"
	"github.com/DRCubix/gansauditor-codex/internal/procmgr"
	"github.com/DRCubix/gansauditor-codex/internal/sessionstore"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	configPath string
	workingDir string
	identity   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "gansauditor",
	Short:   "GAN-style code-auditing MCP tool",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (default ~/.config/gansauditor/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workingDir, "working-dir", "", "repository working directory (default: cwd)")
	rootCmd.PersistentFlags().StringVar(&identity, "identity", "", "caller identity used in session-key derivation when no branchId is given")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(doctorCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the audit tool over stdio until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return serve(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gansauditor\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Probe judge executable discovery without running an audit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pm := procmgr.New(toProcmgrConfig(cfg), nil)
		runtime := judgeruntime.New(toJudgeConfig(cfg, resolveWorkingDir()), pm, nil)
		if err := runtime.Validate(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "judge unavailable: %v\n", err)
			return err
		}
		fmt.Println("judge executable resolved successfully")
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func toProcmgrConfig(cfg *config.Config) procmgr.Config {
	return procmgr.Config{
		MaxConcurrent:       cfg.ProcessMgr.MaxConcurrent,
		DefaultTimeout:      cfg.ProcessMgr.DefaultTimeout.Duration(),
		CleanupGrace:        cfg.ProcessMgr.CleanupGrace.Duration(),
		QueueTimeout:        cfg.ProcessMgr.QueueTimeout.Duration(),
		HealthCheckInterval: cfg.ProcessMgr.HealthCheckInterval.Duration(),
	}
}

func toJudgeConfig(cfg *config.Config, wd string) judgeruntime.Config {
	return judgeruntime.Config{
		Discovery: judgeruntime.Discovery{
			Executable:      cfg.Judge.Executable,
			ExtraSearchDirs: cfg.Judge.ExecutablePaths,
		},
		Timeout:    cfg.Judge.Timeout.Duration(),
		MaxRetries: cfg.Judge.MaxRetries,
		RetryDelay: cfg.Judge.RetryDelay.Duration(),
		WorkDir:    wd,
	}
}

// resolveWorkingDir applies judgeruntime's override/repo-root/cwd
// fallback chain to the --working-dir flag, so the Judge Runtime's
// subprocess and the Context Builder's git collection agree on the
// same repository root.
func resolveWorkingDir() string {
	cwd, _ := os.Getwd()
	return judgeruntime.ResolveWorkingDir(workingDir, cwd, cwd)
}

// serve initializes all dependencies and blocks serving the audit tool
// over stdio until ctx is cancelled, mirroring the teacher's run(ctx)
// dependency-wiring shape: load config, build logger, wire
// infrastructure (Process Manager, Judge Runtime, Context Builder,
// Session Store), wire the Orchestrator, then start the transport.
func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := logging.NewDefaultConfig()
	appLogger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = appLogger.Sync() }()
	logger := appLogger.Underlying()

	logger.Info("starting gansauditor",
		zap.Bool("auditing_enabled", cfg.Auditing.Enabled),
		zap.Int("max_concurrent", cfg.ProcessMgr.MaxConcurrent))

	wd := resolveWorkingDir()

	pm := procmgr.New(toProcmgrConfig(cfg), logger)
	pm.SetMetrics(procmgr.NewPromMetrics())
	runtime := judgeruntime.New(toJudgeConfig(cfg, wd), pm, logger)

	if cfg.Judge.ValidateOnStartup {
		if err := runtime.Validate(ctx); err != nil {
			if cfg.Judge.RequireAvailable {
				return fmt.Errorf("judge validation failed at startup: %w", err)
			}
			logger.Warn("judge validation failed at startup, continuing", zap.Error(err))
		}
	}

	builder := contextpack.New()

	store, err := sessionstore.New(cfg.Auditing.StateDir)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}

	orch := orchestrator.New(cfg, store, runtime, builder, logger)

	caller := identity
	if caller == "" {
		caller = os.Getenv("USER")
	}

	if cfg.Debug.Addr != "" {
		dbg := httpdebug.New(cfg.Debug.Addr, pm, logger)
		go func() {
			if err := dbg.Start(ctx); err != nil {
				logger.Warn("debug http server stopped", zap.Error(err))
			}
		}()
	}

	server := mcpserver.NewServer(orch, wd, caller)
	runErr := server.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ProcessMgr.CleanupGrace.Duration()+5*time.Second)
	defer cancel()
	if shutdownErr := pm.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("process manager did not shut down cleanly", zap.Error(shutdownErr))
	}

	return runErr
}
