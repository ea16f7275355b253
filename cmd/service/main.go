package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-outlook-service/internal/cache"
	"github.com/kjstillabower/climate-outlook-service/internal/circuitbreaker"
	"github.com/kjstillabower/climate-outlook-service/internal/client"
	"github.com/kjstillabower/climate-outlook-service/internal/config"
	httphandler "github.com/kjstillabower/climate-outlook-service/internal/http"
	"github.com/kjstillabower/climate-outlook-service/internal/lifecycle"
	"github.com/kjstillabower/climate-outlook-service/internal/observability"
	"github.com/kjstillabower/climate-outlook-service/internal/service"
	"github.com/kjstillabower/climate-outlook-service/internal/validation"
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

	provider, err := client.NewOpenMeteoClientWithRetry(
		cfg.ProviderForecastURL,
		cfg.ProviderArchiveURL,
		cfg.ProviderTimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("provider client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "provider",
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("provider", from.String(), to.String())
				observability.SetCircuitBreakerStateGauge("provider", float64(to))
			},
		})
		provider.SetCircuitBreaker(cb)
		observability.SetCircuitBreakerStateGauge("provider", 0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var cacheSvc cache.Cache
	var cachePing func() error
	var cacheClose func() error
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		cacheSvc, cachePing, cacheClose = mc, mc.Ping, mc.Close
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "sqlite":
		sc, err := cache.NewSQLiteCache(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("sqlite cache", zap.Error(err))
		}
		cacheSvc, cachePing, cacheClose = sc, sc.Ping, sc.Close
		logger.Info("cache backend: sqlite", zap.String("path", cfg.SQLitePath))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	outlooks := service.New(provider, cacheSvc, logger, service.Options{
		CacheTTL:  cfg.CacheTTL,
		CacheType: cfg.CacheBackend,
		Limits: validation.Limits{
			MinWindowDays: cfg.MinWindowDays,
			MaxWindowDays: cfg.MaxWindowDays,
			MaxFutureDays: cfg.MaxFutureDays,
		},
		ForecastHorizonDays: cfg.ForecastHorizonDays,
		ArchiveStart:        cfg.ArchiveStart,
		ArchiveLagDays:      cfg.ArchiveLagDays,
		Thresholds:          cfg.RiskThresholds(),
		CoalesceEnabled:     cfg.CoalesceEnabled,
		CoalesceTimeout:     cfg.CoalesceTimeout,
	})

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdRPM:   cfg.OverloadThresholdRPM,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StartTime:              time.Now(),
		CachePing:              cachePing,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(outlooks, healthConfig, logger)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	outlookRouter := router.PathPrefix("/outlook").Subrouter()
	outlookRouter.Use(httphandler.RateLimitMiddleware(limiter))
	outlookRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	outlookRouter.HandleFunc("", handler.GetOutlook).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
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
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if cacheClose != nil {
		if err := cacheClose(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
