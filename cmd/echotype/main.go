// Command echotype is the main entry point for the echotype dictation
// scoring server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/hverberg/echotype/internal/cache"
	"github.com/hverberg/echotype/internal/config"
	"github.com/hverberg/echotype/internal/fetch"
	"github.com/hverberg/echotype/internal/health"
	"github.com/hverberg/echotype/internal/observe"
	"github.com/hverberg/echotype/internal/practice"
	"github.com/hverberg/echotype/internal/resilience"
	"github.com/hverberg/echotype/internal/server"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "echotype: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "echotype: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("echotype starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "echotype",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Persisted transcript store (optional) ─────────────────────────────────
	checkers := []health.Checker{}
	cacheOpts := []cache.Option{
		cache.WithTTL(time.Duration(cfg.Cache.TTLSeconds) * time.Second),
		cache.WithErrorTTL(time.Duration(cfg.Cache.ErrorTTLSeconds) * time.Second),
		cache.WithFetchTimeout(time.Duration(cfg.Fetcher.TimeoutSeconds) * time.Second),
		cache.WithMetrics(metrics),
	}
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("failed to connect to database", "err", err)
			return 1
		}
		defer pool.Close()

		store := cache.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("failed to migrate transcript store", "err", err)
			return 1
		}
		cacheOpts = append(cacheOpts, cache.WithStore(store))
		checkers = append(checkers, health.Database(pool))
		slog.Info("transcript store connected")
	} else {
		slog.Info("database.url is empty; transcripts are cached in memory only")
	}

	// ── Transcript source ─────────────────────────────────────────────────────
	var fetchOpts []fetch.Option
	if len(cfg.Fetcher.Languages) > 0 {
		fetchOpts = append(fetchOpts, fetch.WithLanguages(cfg.Fetcher.Languages))
	}
	client, err := fetch.New(cfg.Fetcher.BaseURL, fetchOpts...)
	if err != nil {
		slog.Error("failed to create transcript client", "err", err)
		return 1
	}

	breaker := resilience.New(resilience.Config{Name: "transcript-source"})
	checkers = append(checkers, health.TranscriptSource(breaker))

	// ── Service wiring ────────────────────────────────────────────────────────
	transcripts := cache.New(resilience.Guard(client, breaker), cacheOpts...)
	svc := practice.New(transcripts,
		practice.WithCloseThreshold(cfg.Scoring.CloseThreshold),
		practice.WithMaxSubmissionBytes(cfg.Scoring.MaxSubmissionBytes),
		practice.WithMetrics(metrics),
	)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.New(svc, health.New(checkers...), metrics).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
