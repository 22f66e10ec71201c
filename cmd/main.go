package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/guildboard/internal/adapters/http/api"
	"github.com/okian/guildboard/internal/adapters/http/swagger"
	"github.com/okian/guildboard/internal/adapters/stats"
	app "github.com/okian/guildboard/internal/app"
	"github.com/okian/guildboard/internal/config"
	"github.com/okian/guildboard/internal/domain/scoring"
	"github.com/okian/guildboard/pkg/logger"
	"github.com/okian/guildboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := run(); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	format, _ := logger.ParseFormat(cfg.LogFormat)
	if err := logger.Init(logger.WithFormat(format)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	if len(cfg.MetricsLabels) > 0 {
		if err := metrics.Configure(metrics.WithConstLabels(cfg.MetricsLabels)); err != nil {
			return fmt.Errorf("failed to configure metrics: %w", err)
		}
	}

	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// buildService translates the configuration into service options.
func buildService(cfg *config.Config, log logger.Logger) (*app.Service, error) {
	sets, err := cfg.ScoringRuleSets()
	if err != nil {
		return nil, err
	}
	catalogOpts := []scoring.Option{scoring.WithDefaults()}
	for _, rs := range sets {
		catalogOpts = append(catalogOpts, scoring.WithRuleSet(rs))
	}
	catalog, err := scoring.NewCatalog(catalogOpts...)
	if err != nil {
		return nil, fmt.Errorf("scoring rule-sets: %w", err)
	}

	return app.New(
		app.WithLogger(log),
		app.WithStorage(cfg.StorageDriver, cfg.StorageDSN),
		app.WithCatalog(catalog),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithFetchConcurrency(cfg.FetchConcurrency),
		app.WithDurationBounds(cfg.MinEventDuration, cfg.MaxEventDuration),
		app.WithRequeueDelay(cfg.RequeueDelay),
		app.WithStatsClientOptions(
			stats.WithBaseURL(cfg.StatsBaseURL),
			stats.WithAPIKey(cfg.StatsAPIKey),
			stats.WithTimeout(cfg.StatsTimeout),
		),
		app.WithRetryOptions(
			stats.WithMaxTries(cfg.StatsMaxTries),
			stats.WithBackoff(cfg.StatsRetryInitial, cfg.StatsRetryMax),
			stats.WithMaxElapsed(cfg.StatsMaxElapsed),
		),
	), nil
}

// newMux registers the docs and business routes.
func newMux(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats refreshes the queue and worker gauges.
			_ = svc.GetStats()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
