package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/quickwatch/internal/platform/logging"
	"github.com/example/quickwatch/internal/platform/run"
	"github.com/example/quickwatch/internal/playback"
	"github.com/example/quickwatch/services/probe/internal/probe"
)

func main() {
	var (
		streamURL = flag.String("url", "", "playlist URL to probe (required)")
		proxyBase = flag.String("proxy-base", os.Getenv("PROXY_PUBLIC_BASE"), "hls-proxy origin; empty fetches directly")
		referer   = flag.String("referer", "", "Referer the proxy should send upstream")
		origin    = flag.String("origin", "", "Origin the proxy should send upstream")
		subs      = flag.String("subtitles", "", "optional WebVTT/SRT URL")
		cueAt     = flag.Duration("cue-at", 0, "position used to sample the active subtitle cue")
		timeout   = flag.Duration("timeout", 20*time.Second, "per-request timeout")
		logLevel  = flag.String("log-level", "info", "zap log level")
	)
	flag.Parse()

	log, err := logging.NewService(*logLevel, "probe")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if *streamURL == "" {
		log.Error("missing -url")
		flag.Usage()
		run.Exit(2)
	}

	headers := map[string]string{}
	if *referer != "" {
		headers["Referer"] = *referer
	}
	if *origin != "" {
		headers["Origin"] = *origin
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := probe.Run(ctx, probe.Options{
		URL:          *streamURL,
		ProxyBase:    *proxyBase,
		Headers:      headers,
		SubtitlesURL: *subs,
		CueAt:        *cueAt,
	}, playback.NewHTTPLoader(*timeout), log)
	if err != nil {
		log.Error("probe failed", zap.String("url", *streamURL), zap.Error(err))
		run.Exit(1)
	}

	for _, q := range rep.Qualities {
		log.Info("quality", zap.Int("index", q.Index), zap.String("name", q.DisplayName), zap.Int("bitrate_bps", q.BitrateBps))
	}
	if rep.SubtitleError != "" {
		log.Warn("subtitles", zap.String("error", rep.SubtitleError))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		log.Error("encode report", zap.Error(err))
		run.Exit(1)
	}
}
