package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bikeflow/internal/cache"
	"bikeflow/internal/config"
	"bikeflow/internal/handler"
	"bikeflow/internal/hub"
	"bikeflow/internal/ingestor"
	"bikeflow/internal/metrics"
	"bikeflow/internal/middleware"
	"bikeflow/internal/overlay"
	"bikeflow/internal/publisher"
	"bikeflow/internal/store"
	"bikeflow/pkg/bluebikes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting bikeflow server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"stations_url", cfg.StationsURL,
		"trips_url", cfg.TripsURL,
		"tz", cfg.Location.String(),
		"redis_enabled", cfg.RedisEnabled,
		"nats_enabled", cfg.NATSURL != "",
	)

	overlays, err := overlay.Load(cfg.OverlaysFile)
	if err != nil {
		logger.Error("failed to load overlays", "path", cfg.OverlaysFile, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewCollector(cfg.RefreshInterval)
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = m.Serve(cfg.MetricsAddr, logger)
	}

	stationStore := store.New(cfg.TileZoomLevel)

	var remote cache.Remote
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing with in-process cache only", "error", err)
		} else {
			defer redisCache.Close()
			remote = redisCache
		}
	}
	trafficCache := cache.NewTrafficCache(cfg.CacheSize, cfg.CacheTTL, remote, m, logger)
	warmer := cache.NewCacheWarmer(trafficCache, stationStore, logger)

	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" {
		pub, err = publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, m, logger)
		if err != nil {
			logger.Warn("nats unavailable, dataset announcements disabled", "error", err)
			pub = nil
		} else {
			defer pub.Close()
		}
	}

	wsHub := hub.NewHub(stationStore, m, logger.With("component", "hub"))

	client := bluebikes.New(cfg.StationsURL, cfg.TripsURL, cfg.Location, cfg.FetchTimeout, logger)
	ing := ingestor.New(client, stationStore, m, cfg.RefreshInterval, logger)
	ing.SetOnUpdate(func(ctx context.Context, result ingestor.LoadResult) {
		if cfg.CacheWarmOnLoad {
			if err := warmer.WarmAll(ctx); err != nil {
				logger.Warn("cache warm failed", "error", err)
			}
		}

		wsHub.Reload(result.Version)

		if pub != nil {
			err := pub.PublishDatasetLoaded(publisher.DatasetLoadedMessage{
				Version:    result.Version,
				Stations:   result.Stations,
				Trips:      result.Trips,
				Skipped:    result.Skipped,
				DurationMS: result.Duration.Milliseconds(),
				LoadedAt:   time.Now().UTC(),
			})
			if err != nil {
				logger.Warn("dataset announcement failed", "error", err)
			}
		}
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, m, logger)

	trafficHandler := handler.NewTrafficHandler(stationStore, trafficCache, m, logger)
	wsHandler := handler.NewWSHandler(wsHub, cfg.TileZoomLevel, logger)
	healthHandler := handler.NewHealthHandler(ing, stationStore)
	overlayHandler := handler.NewOverlayHandler(overlays)
	statsHandler := handler.NewStatsHandler(stationStore, wsHub, trafficCache, limiter)

	api := http.NewServeMux()
	api.HandleFunc("GET /v1/stations", trafficHandler.ListStations)
	api.HandleFunc("GET /v1/stations/{id}", trafficHandler.GetStation)
	api.HandleFunc("GET /v1/markers", trafficHandler.ListMarkers)
	api.HandleFunc("GET /v1/overlays", overlayHandler.ListOverlays)
	api.HandleFunc("GET /v1/stats", statsHandler.GetStats)

	mux := http.NewServeMux()
	mux.Handle("/v1/", limiter.Middleware(handler.GzipMiddleware(api)))
	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)
	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.RequestLogger(logger)(handler.CORSMiddleware(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go wsHub.Run(ctx)
	go limiter.Run(ctx)
	go ing.Start(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
