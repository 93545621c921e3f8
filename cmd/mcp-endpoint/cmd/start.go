package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinel-gate/mcp-endpoint/internal/adapter/inbound/ws"
	"github.com/sentinel-gate/mcp-endpoint/internal/config"
	"github.com/sentinel-gate/mcp-endpoint/internal/domain/catalog"
	"github.com/sentinel-gate/mcp-endpoint/internal/domain/registry"
	"github.com/sentinel-gate/mcp-endpoint/internal/observability"
	"github.com/sentinel-gate/mcp-endpoint/internal/service/coordinator"
)

var devMode bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the MCP endpoint router",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "enable development mode (forces debug logging)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel := parseLogLevel(cfg.Logging.Level)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	}
	logger := slog.New(handler)
	logger.Debug("log level configured", "level", cfg.Logging.Level, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	traceWriter := io.Discard
	if cfg.DevMode {
		traceWriter = os.Stderr
	}
	shutdownTracing, err := observability.InitTracing(ctx, traceWriter)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("error shutting down tracer provider", "error", err)
		}
	}()

	reg := registry.New()
	cat := catalog.New(reg)
	coord := coordinator.New(reg, cat,
		coordinator.WithLogger(logger),
		coordinator.WithPendingTimeout(time.Duration(cfg.WebSocket.PendingTimeoutSeconds)*time.Second),
	)

	sweepInterval := time.Duration(cfg.WebSocket.PendingTimeoutSeconds) * time.Second / 2
	if sweepInterval < time.Second {
		sweepInterval = time.Second
	}
	go coord.RunSweeper(ctx, sweepInterval)

	transport := ws.New(reg, cat, coord,
		ws.WithAddr(cfg.Addr()),
		ws.WithHealthKey(cfg.Server.Key),
		ws.WithAllowedOrigins(cfg.Security.AllowedOrigins),
		ws.WithIdleTimeout(time.Duration(cfg.WebSocket.IdleTimeoutSeconds)*time.Second),
		ws.WithLogger(logger),
	)

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// parseLogLevel maps a configured log level name to a slog.Level,
// defaulting to info for anything unrecognized.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
