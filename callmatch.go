package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wildcall/callmatch-go/cmd"
	"github.com/wildcall/callmatch-go/internal/conf"
	"github.com/wildcall/callmatch-go/internal/logging"
	"github.com/wildcall/callmatch-go/internal/observability/metrics"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.Config{
		FilePath:   settings.Main.Log.Path,
		MaxSizeMB:  settings.Main.Log.MaxSizeMB,
		MaxBackups: settings.Main.Log.MaxBackups,
		MaxAgeDays: settings.Main.Log.MaxAgeDays,
		Level:      parseLevel(settings.Main.Log.Level, settings.Debug),
	}
	logging.Init(logCfg)

	if settings.Output.MetricsEnabled {
		startMetricsServer(settings.Output.MetricsAddr)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseLevel(level string, debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	switch level {
	case "trace":
		return logging.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func startMetricsServer(addr string) {
	registry := prometheus.NewRegistry()
	if err := metrics.Init(registry); err != nil {
		logging.Warn("failed to register metrics", "error", err)
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logging.Error("metrics server stopped", "error", err)
		}
	}()
}
