package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sensor-dashboard/internal/cache"
	"github.com/kjstillabower/sensor-dashboard/internal/config"
	"github.com/kjstillabower/sensor-dashboard/internal/dataset"
	httphandler "github.com/kjstillabower/sensor-dashboard/internal/http"
	"github.com/kjstillabower/sensor-dashboard/internal/observability"
	"github.com/kjstillabower/sensor-dashboard/internal/service"
	"github.com/kjstillabower/sensor-dashboard/internal/traffic"
	"github.com/kjstillabower/sensor-dashboard/internal/views"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	loader, err := dataset.NewLoader(cfg.Encoding)
	if err != nil {
		logger.Fatal("dataset loader", zap.Error(err))
	}
	if _, err := os.Stat(cfg.FallbackPath); err != nil {
		logger.Warn("default dataset not readable; dashboard will show an error until a file is uploaded",
			zap.String("path", cfg.FallbackPath), zap.Error(err))
	}

	uploadStore, memcacheCloser, err := newUploadStore(cfg)
	if err != nil {
		logger.Fatal("memcached cache", zap.Error(err))
	}
	logger.Info("upload store", zap.String("backend", cfg.CacheBackend), zap.String("addrs", cfg.MemcachedAddrs))
	dashboardService := service.NewDashboardService(loader, uploadStore, cfg.FallbackPath, cfg.UploadTTL, cfg.MaxUploadBytes)

	if err := views.LoadTemplates(); err != nil {
		logger.Fatal("templates", zap.Error(err))
	}

	healthConfig := &httphandler.HealthConfig{
		Thresholds: traffic.Thresholds{
			OverloadWindow:      cfg.OverloadWindow,
			OverloadThreshold:   cfg.OverloadThreshold(),
			DegradedWindow:      cfg.DegradedWindow,
			DegradedErrorRate:   float64(cfg.DegradedErrorPct) / 100,
			DegradedMinRequests: cfg.DegradedMinRequests,
		},
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	limiter := newLimiter(cfg)
	handler := httphandler.NewHandler(dashboardService, healthConfig, logger, cfg.MaxUploadBytes)
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Leaves room for the request timeout plus writing a large workbook.
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("fallback_path", cfg.FallbackPath),
			zap.String("encoding", cfg.Encoding))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	httphandler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// newUploadStore returns the configured upload store. The memcached client is
// also returned so main can ping and close it; it is nil for in_memory.
func newUploadStore(cfg *config.Config) (cache.Cache, *cache.MemcachedCache, error) {
	if cfg.CacheBackend != "memcached" {
		return cache.NewInMemoryCache(), nil, nil
	}
	mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
	if err != nil {
		return nil, nil, err
	}
	return mc, mc, nil
}

// newLimiter returns nil when rate limiting is disabled.
func newLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
}
