// DotMod - Discord moderation decision core
// Derived from DotAgent: https://github.com/dotsetgreg/dotagent
// License: MIT
//
// Copyright (c) 2026 DotAgent contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/dotsetgreg/dotmod/pkg/audit"
	"github.com/dotsetgreg/dotmod/pkg/bus"
	"github.com/dotsetgreg/dotmod/pkg/channels"
	"github.com/dotsetgreg/dotmod/pkg/config"
	"github.com/dotsetgreg/dotmod/pkg/cron"
	"github.com/dotsetgreg/dotmod/pkg/health"
	"github.com/dotsetgreg/dotmod/pkg/logger"
	"github.com/dotsetgreg/dotmod/pkg/moderation"
	"github.com/dotsetgreg/dotmod/pkg/moderator"
	"github.com/dotsetgreg/dotmod/pkg/scan"
	"github.com/dotsetgreg/dotmod/pkg/wordmemory"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const (
	appName         = "dotmod"
	shutdownTimeout = 10 * time.Second
)

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// formatBuildInfo returns build time and go version info
func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Fprintf(w, "  Go: %s\n", goVer)
	}
}

func main() {
	err := executeCLI()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath honours DOTMOD_CONFIG before falling back to ~/.dotmod.
func getConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("DOTMOD_CONFIG")); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dotmod", "config.json")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, err
	}
	applyLogLevel(cfg, false)
	return cfg, nil
}

func applyLogLevel(cfg *config.Config, debug bool) {
	if debug {
		logger.SetLevel(logger.DEBUG)
		return
	}
	lvl, ok := logger.ParseLevel(cfg.Log.Level)
	if !ok {
		logger.WarnCF("cli", "Unknown log level, using info", map[string]any{"level": cfg.Log.Level})
	}
	logger.SetLevel(lvl)
}

func openMemory(cfg *config.Config) (*wordmemory.Store, error) {
	path := cfg.MemoryPath()
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create memory dir: %w", err)
		}
	}
	store, err := wordmemory.Open(path, wordmemory.Options{
		Retention:       cfg.MemoryRetention(),
		MaxRecentPerKey: cfg.Memory.MaxRecentPerKey,
	})
	if err != nil {
		return nil, fmt.Errorf("open word memory: %w", err)
	}
	return store, nil
}

func gatewayCmd(out io.Writer, debug bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if debug {
		applyLogLevel(cfg, true)
		fmt.Fprintln(out, "🔍 Debug mode enabled")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return fmt.Errorf("%w: set discord.token in %s or DOTMOD_DISCORD_TOKEN", config.ErrMissingToken, getConfigPath())
	}

	memory, err := openMemory(cfg)
	if err != nil {
		return err
	}
	defer memory.Close()

	var (
		auditStore *audit.Store
		auditLog   moderator.AuditLog
	)
	if cfg.Audit.Enabled {
		auditStore, err = audit.Open(cfg.AuditPath())
		if err != nil {
			return err
		}
		defer auditStore.Close()
		auditLog = auditStore
	}

	engine, err := moderation.NewEngineFromConfig(cfg, memory, nil)
	if err != nil {
		return err
	}

	msgBus := bus.NewMessageBus()
	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		return fmt.Errorf("creating channel manager: %w", err)
	}

	mod := moderator.New(moderator.Options{
		Bus:     msgBus,
		Engine:  engine,
		Audit:   auditLog,
		Weights: cfg.ChannelRiskScore,
		Routing: moderator.Routing{
			ModLogChannelID:     cfg.Discord.ModLogChannelID,
			EscalationChannelID: cfg.Discord.EscalationChannelID,
		},
	})

	var scanner *scan.Scanner
	if discord, ok := channelManager.Discord(); ok {
		scanner = scan.NewScanner(discord, msgBus, []string(cfg.Discord.ScanChannelIDs), cfg.ScanInterval())
	}

	cronService, err := setupMaintenance(cfg, memory, auditStore)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cronService.Start(ctx); err != nil {
		fmt.Fprintf(out, "Error starting cron service: %v\n", err)
	}
	fmt.Fprintf(out, "✓ Maintenance jobs: %s\n", strings.Join(cronService.Jobs(), ", "))

	if err := channelManager.StartAll(ctx); err != nil {
		cronService.Stop()
		return fmt.Errorf("starting channels: %w", err)
	}
	fmt.Fprintln(out, "✓ Discord connected")

	go mod.Run(ctx)
	if scanner != nil {
		scanner.Start(ctx)
		fmt.Fprintf(out, "✓ Scanning %d channel(s) every %s\n", len(cfg.Discord.ScanChannelIDs), scanner.Interval())
	}

	healthServer := health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port)
	healthServer.RegisterCheck("discord", func() (bool, string) {
		if channelManager.AllRunning() {
			return true, "connected"
		}
		return false, "not connected"
	})
	healthServer.RegisterCheck("moderator", func() (bool, string) {
		if mod.IsRunning() {
			return true, fmt.Sprintf("%d processed", mod.Processed())
		}
		return false, "stopped"
	})
	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("health", "Health server error", map[string]any{"error": err.Error()})
		}
	}()
	healthServer.SetReady(true)
	fmt.Fprintf(out, "✓ Health endpoints available at http://%s/health, /ready and /metrics\n", healthServer.Addr())
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(out, "\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	_ = healthServer.Stop(shutdownCtx)
	if scanner != nil {
		scanner.Stop()
	}
	cronService.Stop()
	cancel()
	if err := channelManager.StopAll(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Channel shutdown incomplete", map[string]any{"error": err.Error()})
	}
	msgBus.Close()
	fmt.Fprintln(out, "✓ Gateway stopped")
	return nil
}

// setupMaintenance schedules word memory compaction and audit retention.
func setupMaintenance(cfg *config.Config, memory *wordmemory.Store, auditStore *audit.Store) (*cron.Service, error) {
	svc := cron.NewService()
	if cfg.Memory.SweepSchedule != "" {
		err := svc.AddJob("memory-sweep", cfg.Memory.SweepSchedule, func(ctx context.Context, now time.Time) {
			removed, err := memory.Prune()
			if err != nil {
				logger.WarnCF("memory", "Word memory sweep failed", map[string]any{"error": err.Error()})
				return
			}
			logger.InfoCF("memory", "Word memory swept", map[string]any{"removed": removed})
		})
		if err != nil {
			return nil, fmt.Errorf("memory.sweep_schedule: %w", err)
		}
	}
	if auditStore != nil && cfg.Audit.SweepSchedule != "" && cfg.AuditRetention() > 0 {
		retention := cfg.AuditRetention()
		err := svc.AddJob("audit-sweep", cfg.Audit.SweepSchedule, func(ctx context.Context, now time.Time) {
			n, err := auditStore.SweepBefore(ctx, now.Add(-retention))
			if err != nil {
				logger.WarnCF("audit", "Audit sweep failed", map[string]any{"error": err.Error()})
				return
			}
			logger.InfoCF("audit", "Audit log swept", map[string]any{"removed": n})
		})
		if err != nil {
			return nil, fmt.Errorf("audit.sweep_schedule: %w", err)
		}
	}
	return svc, nil
}

func statusCmd(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	configPath := getConfigPath()

	fmt.Fprintf(out, "%s Status\n", appName)
	fmt.Fprintf(out, "Version: %s\n", formatVersion())
	build, _ := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(out, "Build: %s\n", build)
	}
	fmt.Fprintln(out)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintln(out, "Config:", configPath, "✓")
	} else {
		fmt.Fprintln(out, "Config:", configPath, "✗")
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, "Config valid: ✗", err)
	} else {
		fmt.Fprintln(out, "Config valid: ✓")
	}

	memoryPath := cfg.MemoryPath()
	if _, err := os.Stat(memoryPath); err == nil {
		fmt.Fprintln(out, "Word memory:", memoryPath, "✓")
	} else {
		fmt.Fprintln(out, "Word memory:", memoryPath, "not initialized")
	}
	if cfg.Audit.Enabled {
		auditPath := cfg.AuditPath()
		if _, err := os.Stat(auditPath); err == nil {
			fmt.Fprintln(out, "Audit log:", auditPath, "✓")
		} else {
			fmt.Fprintln(out, "Audit log:", auditPath, "not initialized")
		}
	} else {
		fmt.Fprintln(out, "Audit log: disabled")
	}

	status := func(enabled bool) string {
		if enabled {
			return "✓"
		}
		return "not set"
	}
	t := cfg.Moderation.Thresholds
	fmt.Fprintf(out, "Thresholds: warn=%d delete=%d escalate=%d\n", t.Warn, t.Delete, t.Escalate)
	fmt.Fprintf(out, "Keywords: %d, blocked patterns: %d\n", len(cfg.Moderation.Keywords), len(cfg.Moderation.BlockedPatterns)+len(cfg.Moderation.BlockedPhrases))
	fmt.Fprintf(out, "Scan channels: %d (every %s)\n", len(cfg.Discord.ScanChannelIDs), cfg.ScanInterval())
	fmt.Fprintln(out, "Classifier:", status(cfg.Classifier.Enabled && strings.TrimSpace(cfg.Classifier.Endpoint) != ""))
	fmt.Fprintln(out, "Discord token:", status(strings.TrimSpace(cfg.Discord.Token) != ""))
	fmt.Fprintln(out, "Mod log channel:", status(cfg.Discord.ModLogChannelID != ""))
	fmt.Fprintln(out, "Escalation channel:", status(cfg.Discord.EscalationChannelID != ""))
	return nil
}
