// Command agent-gateway runs the MCP server: it wires the provider
// router, adapter registry, workflow store and orchestrator together,
// then serves tools/list and tools/call over line-delimited JSON-RPC on
// stdio (spec.md §6). All logging goes to stderr; stdout carries only
// JSON-RPC frames.
//
// Usage:
//
//	agent-gateway [--config path] [--visible] [--log-level LEVEL] [--json-logs]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentgateway/gateway/adapter"
	"github.com/agentgateway/gateway/config"
	"github.com/agentgateway/gateway/internal/metrics"
	"github.com/agentgateway/gateway/internal/telemetry"
	"github.com/agentgateway/gateway/orchestrator"
	"github.com/agentgateway/gateway/protocol/mcp"
	"github.com/agentgateway/gateway/router"
	"github.com/agentgateway/gateway/toolsurface"
	"github.com/agentgateway/gateway/workflow"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	visible := flag.Bool("visible", false, "run the provider adapter non-headless")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides the config file; AGENTGATEWAY_LOG_LEVEL takes precedence when set)")
	jsonLogs := flag.Bool("json-logs", true, "emit logs as JSON rather than console text")
	flag.Parse()

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *logLevel != "" && os.Getenv("AGENTGATEWAY_LOG_LEVEL") == "" {
		cfg.Log.Level = *logLevel
	}
	if !*jsonLogs {
		cfg.Log.Format = "console"
	}

	logger := buildLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting agent gateway",
		zap.String("version", version),
		zap.String("git_commit", gitCommit),
		zap.Bool("visible", *visible),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
	}
	defer func() {
		if err := otelProviders.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector("agent_gateway", logger)

	r := router.New(cfg.Providers.ToRouterPreferences(), logger)

	adapterRegistry, err := adapter.NewRegistry(cfg.Providers, *visible)
	if err != nil {
		logger.Fatal("failed to build adapter registry", zap.Error(err))
	}

	store := workflow.NewStore()
	orch := orchestrator.New(r, adapterRegistry, store, cfg.Orchestrator, logger).WithMetrics(collector)

	registry := toolsurface.NewRegistry(orch, *visible)
	server := mcp.NewServer(registry, "agent-gateway", version, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.RunStdio(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logger.Fatal("mcp server stopped with error", zap.Error(err))
	}

	logger.Info("agent gateway stopped")
}

// buildLogger forces all output to stderr regardless of cfg, since
// stdout is reserved for JSON-RPC frames (spec.md §6).
func buildLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddCaller())
	if err != nil {
		fallback, _ := zap.NewProduction()
		return fallback
	}
	return logger
}
