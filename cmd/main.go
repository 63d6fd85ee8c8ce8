package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	service "github.com/googly1030/intern-platform/internal/app"
	"github.com/googly1030/intern-platform/internal/config"
	"github.com/googly1030/intern-platform/pkg/logger"
	"github.com/googly1030/intern-platform/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants. Writes are bounded per frame on progress
// streams, so the server-wide write timeout only covers plain responses.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics.
	// We collect our own custom system metrics instead.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(context.Background(), "scoring service exited", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.InitWithConfig(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		logger.Get().Warn(ctx, "invalid log settings; keeping defaults",
			logger.String("log_level", cfg.LogLevel), logger.String("log_format", cfg.LogFormat), logger.Error(err))
	}
	log := logger.Get()

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Warn(context.Background(), "closing resources", logger.Error(err))
		}
	}()

	if err := a.svc.Start(ctx); err != nil {
		return err
	}

	interval := configureMetrics(cfg)
	go startSystemMetricsUpdater(ctx, interval)
	go startServiceMetricsUpdater(ctx, a.svc, log, interval)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.StoreBackend),
			logger.String("queue", cfg.QueueBackend),
			logger.Int("workers", cfg.WorkerCount))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	log.Info(context.Background(), "shutting down server...")

	// Stop taking requests first, then let in-flight runs finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := a.svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service shutdown failed", logger.Error(err))
	}

	log.Info(context.Background(), "server stopped")
	return nil
}

// configureMetrics applies the metrics settings and returns the sampling
// period for the gauge updaters.
func configureMetrics(cfg *config.Config) time.Duration {
	metrics.SetRefreshInterval(cfg.MetricsRefreshInterval)
	return metrics.RefreshInterval()
}

// startSystemMetricsUpdater samples runtime metrics every interval until ctx ends.
func startSystemMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
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

// startServiceMetricsUpdater samples service gauges every interval until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service, log logger.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := updateServiceMetrics(ctx, svc); err != nil {
				log.Debug(ctx, "service metrics refresh failed", logger.Error(err))
			}
		}
	}
}

// updateSystemMetrics updates system-level metrics.
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

// updateServiceMetrics refreshes gauges derived from service state.
func updateServiceMetrics(ctx context.Context, svc *service.Service) error {
	stats, err := svc.GetStats(ctx)
	if err != nil {
		return err
	}
	metrics.UpdateQueueSize(stats.QueueDepth)
	metrics.UpdateProgressSubscribers(stats.Subscribers)
	metrics.UpdateRankingEntries(svc.Ranking().Count(""))
	return nil
}
