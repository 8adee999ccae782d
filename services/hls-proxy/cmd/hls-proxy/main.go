package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/quickwatch/internal/platform/httpserver"
	"github.com/example/quickwatch/internal/platform/logging"
	"github.com/example/quickwatch/internal/platform/run"
	"github.com/example/quickwatch/services/hls-proxy/internal/cache"
	"github.com/example/quickwatch/services/hls-proxy/internal/config"
	"github.com/example/quickwatch/services/hls-proxy/internal/handlers"
	"github.com/example/quickwatch/services/hls-proxy/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.NewService(cfg.App.LogLevel, cfg.App.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	up := upstream.New(cfg.UpstreamTimeout, cfg.UserAgent, upstream.BreakerSettings{
		FailureThreshold: cfg.CBFailureThreshold,
		MaxRequests:      cfg.CBMaxRequests,
		Interval:         cfg.CBInterval,
		Timeout:          cfg.CBTimeout,
	}, log)

	var (
		playlists cache.Cache
		ready     func() error
	)
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.RedisURL, cfg.PlaylistCacheTTL)
		if err != nil {
			log.Error("redis", zap.Error(err))
			run.Exit(1)
		}
		playlists = rc
		ready = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return rc.Ping(ctx)
		}
		log.Info("playlist cache", zap.String("backend", "redis"), zap.Duration("ttl", cfg.PlaylistCacheTTL))
	} else {
		mc, err := cache.NewMemoryCache(cfg.PlaylistCacheSize, cfg.PlaylistCacheTTL)
		if err != nil {
			log.Error("playlist cache", zap.Error(err))
			run.Exit(1)
		}
		playlists = mc
		log.Info("playlist cache", zap.String("backend", "memory"), zap.Int("size", cfg.PlaylistCacheSize), zap.Duration("ttl", cfg.PlaylistCacheTTL))
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: ready, Logger: log, SkipCORS: true})
	handlers.Routes(r, handlers.Deps{
		Upstream:   up,
		Cache:      playlists,
		PublicBase: cfg.PublicBase,
		Log:        log,
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.App.HTTP.Addr, ServiceName: cfg.App.ServiceName, Router: r})
	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		return srv.Start(log)
	})
	runner.Graceful(srv.Shutdown)
	_ = playlists.Close()
	run.Exit(code)
}
