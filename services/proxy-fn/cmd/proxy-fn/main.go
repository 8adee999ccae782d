package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/quickwatch/internal/platform/httpserver"
	"github.com/example/quickwatch/internal/platform/logging"
	"github.com/example/quickwatch/internal/platform/run"
	"github.com/example/quickwatch/services/proxy-fn/internal/config"
	"github.com/example/quickwatch/services/proxy-fn/internal/function"
)

func main() {
	invoke := flag.Bool("invoke", false, "read one event JSON from stdin, write the response JSON to stdout, and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.NewService(cfg.App.LogLevel, cfg.App.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	fn := function.New(cfg.UpstreamTimeout, cfg.MaxBodyBytes, log)

	if *invoke {
		run.Exit(invokeOnce(fn, log))
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{Logger: log, SkipCORS: true})
	h := function.Handler(fn)
	r.Handle("/proxy", h)
	r.Handle("/.netlify/functions/proxy", h)

	srv := httpserver.New(httpserver.Options{Addr: cfg.App.HTTP.Addr, ServiceName: cfg.App.ServiceName, Router: r})
	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		return srv.Start(log)
	})
	runner.Graceful(srv.Shutdown)
	run.Exit(code)
}

func invokeOnce(fn *function.Function, log *zap.Logger) int {
	var ev function.Event
	if err := json.NewDecoder(os.Stdin).Decode(&ev); err != nil {
		log.Error("invoke: decode event", zap.Error(err))
		return 1
	}
	resp := fn.Handle(context.Background(), ev)
	if err := json.NewEncoder(os.Stdout).Encode(resp); err != nil {
		log.Error("invoke: encode response", zap.Error(err))
		return 1
	}
	return 0
}
