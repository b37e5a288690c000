// ABOUTME: Entry point for coven-connect
// ABOUTME: Bridges chat platforms into isolated engine sessions

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/2389/coven-connect/internal/config"
	"github.com/2389/coven-connect/internal/engine"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  ___ _____   _____ _ __        ___ ___  _ __  _ __   ___  ___| |_
 / __/ _ \ \ / / _ \ '_ \ _____/ __/ _ \| '_ \| '_ \ / _ \/ __| __|
| (_| (_) \ V /  __/ | | |_____| (_| (_) | | | | | | |  __/ (__| |_
 \___\___/ \_/ \___|_| |_|      \___\___/|_| |_|_| |_|\___|\___|\__|
`

// getConfigPath returns the path to the connect config file.
// Priority: COVEN_CONNECT_CONFIG env var > XDG_CONFIG_HOME/coven-connect/config.yaml > ~/.config/coven-connect/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_CONNECT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven-connect", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-connect <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve         Start the connector")
		fmt.Println("  init          Create a starter config and bundle")
		fmt.Println("  check-config  Validate the config and bundle without starting")
		fmt.Println("  health        Check engine reachability")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "check-config":
		err = runCheckConfig(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Display:   %s\n", cfg.Display.Mode)
	green.Print("    ▶ ")
	fmt.Printf("Platforms: %s\n", strings.Join(enabledPlatforms(cfg), ", "))
	fmt.Println()

	logger.Info("starting coven-connect",
		"config", configPath,
		"display_mode", cfg.Display.Mode,
	)

	app, err := newApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating connector: %w", err)
	}

	return app.Run(ctx)
}

func enabledPlatforms(cfg *config.Config) []string {
	var out []string
	if cfg.Platforms.Slack.Enabled {
		out = append(out, "slack")
	}
	if cfg.Platforms.Teams.Enabled {
		out = append(out, "teams")
	}
	if cfg.Platforms.Matrix.Enabled {
		out = append(out, "matrix")
	}
	return out
}

func runCheckConfig(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	bundlePath, err := engine.ResolveBundlePath(cfg.Engine.BundlePath)
	if err != nil {
		return fmt.Errorf("resolving bundle: %w", err)
	}
	bundle, err := engine.LoadBundle(bundlePath)
	if err != nil {
		return fmt.Errorf("loading bundle: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Config: %s\n", configPath)
	green.Printf("  ✓ Bundle: %s (%s)\n", bundlePath, bundle.Name)
	green.Printf("  ✓ Platforms: %s\n", strings.Join(enabledPlatforms(cfg), ", "))
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	bundlePath, err := engine.ResolveBundlePath(cfg.Engine.BundlePath)
	if err != nil {
		return fmt.Errorf("resolving bundle: %w", err)
	}
	bundle, err := engine.LoadBundle(bundlePath)
	if err != nil {
		return fmt.Errorf("loading bundle: %w", err)
	}

	if err := engine.NewTemplate(bundle, nil).Ping(ctx); err != nil {
		return fmt.Errorf("engine health check failed: %w", err)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.File != "" {
		// Rotating file log is always JSON; the console colors are for
		// humans, the file is for machines.
		return slog.New(slog.NewJSONHandler(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
		}, opts))
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
