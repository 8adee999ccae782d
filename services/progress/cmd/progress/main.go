package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/quickwatch/internal/platform/db"
	"github.com/example/quickwatch/internal/platform/httpserver"
	"github.com/example/quickwatch/internal/platform/logging"
	"github.com/example/quickwatch/internal/platform/natsconn"
	"github.com/example/quickwatch/internal/platform/run"
	"github.com/example/quickwatch/internal/progress"
	"github.com/example/quickwatch/services/progress/internal/config"
	"github.com/example/quickwatch/services/progress/internal/handlers"
	"github.com/example/quickwatch/services/progress/internal/worker"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, ready, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("progress store", zap.String("kind", string(cfg.Store())), zap.Error(err))
		run.Exit(1)
	}
	log.Info("progress store ready", zap.String("kind", string(cfg.Store())), zap.String("profile", cfg.Profile))

	var pub *progress.Publisher
	if cfg.NATSURL != "" {
		nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.App.ServiceName + "-" + cfg.InstanceID})
		if err != nil {
			log.Error("nats connect", zap.Error(err))
			run.Exit(1)
		}
		defer nc.Close()
		js, err := nc.JetStream()
		if err != nil {
			log.Error("jetstream", zap.Error(err))
			run.Exit(1)
		}
		if err := natsconn.EnsureStream(js, progress.StreamName, []string{progress.SubjectSaved}, cfg.StreamMaxAge); err != nil {
			log.Error("ensure stream", zap.Error(err))
			run.Exit(1)
		}
		pub = progress.NewPublisher(js, cfg.InstanceID, log)

		consumer := &worker.Consumer{
			Store:     store,
			Origin:    cfg.InstanceID,
			Log:       log,
			BatchSize: cfg.ConsumerBatch,
			MaxWait:   cfg.ConsumerMaxWait,
		}
		go func() {
			if err := consumer.Run(ctx, js); err != nil {
				log.Error("progress consumer stopped", zap.Error(err))
			}
		}()
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: ready, Logger: log})
	handlers.Routes(r, store, pub, log)

	srv := httpserver.New(httpserver.Options{Addr: cfg.App.HTTP.Addr, ServiceName: cfg.App.ServiceName, Router: r})
	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		return srv.Start(log)
	})
	runner.Graceful(srv.Shutdown)
	cancel()
	closeStore()
	run.Exit(code)
}

// openStore builds the configured Store together with its readiness probe
// and cleanup.
func openStore(ctx context.Context, cfg config.Config) (progress.Store, func() error, func(), error) {
	switch cfg.Store() {
	case config.StorePostgres:
		pool, err := db.Open(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		s := progress.NewPostgresStore(pool, cfg.Profile)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		ready := func() error {
			c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(c)
		}
		return s, ready, pool.Close, nil
	case config.StoreRedis:
		b := progress.NewRedisBackend(cfg.RedisURL, cfg.Profile)
		ready := func() error {
			c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return b.Ping(c)
		}
		return progress.NewListStore(b), ready, func() { _ = b.Close() }, nil
	case config.StoreFile:
		return progress.NewListStore(progress.NewFileBackend(cfg.DataFile)), nil, func() {}, nil
	default:
		return progress.NewListStore(progress.NewMemoryBackend()), nil, func() {}, nil
	}
}
