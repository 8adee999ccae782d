package config

import (
	"time"

	"github.com/example/quickwatch/internal/platform/config"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Config struct {
	App config.AppConfig
	// PublicBase is the externally visible proxy origin used in rewritten
	// playlists. Empty means derive it from each request.
	PublicBase      string
	UpstreamTimeout time.Duration
	UserAgent       string

	PlaylistCacheTTL  time.Duration
	PlaylistCacheSize int
	// RedisURL switches the playlist cache to Redis when set.
	RedisURL string

	// Per-host circuit breaker settings.
	CBFailureThreshold uint32
	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration
}

func Load() (Config, error) {
	app, err := config.Load(":8084")
	if err != nil {
		return Config{}, err
	}
	return Config{
		App:                app,
		PublicBase:         config.EnvString("PROXY_PUBLIC_BASE", ""),
		UpstreamTimeout:    config.EnvDuration("PROXY_UPSTREAM_TIMEOUT", 20*time.Second),
		UserAgent:          config.EnvString("PROXY_USER_AGENT", defaultUserAgent),
		PlaylistCacheTTL:   config.EnvDuration("PLAYLIST_CACHE_TTL", 10*time.Second),
		PlaylistCacheSize:  config.EnvInt("PLAYLIST_CACHE_SIZE", 1024),
		RedisURL:           config.EnvString("REDIS_URL", ""),
		CBFailureThreshold: uint32(config.EnvInt("CB_FAILURE_THRESHOLD", 5)),
		CBMaxRequests:      uint32(config.EnvInt("CB_MAX_REQUESTS", 1)),
		CBInterval:         config.EnvDuration("CB_INTERVAL", 60*time.Second),
		CBTimeout:          config.EnvDuration("CB_TIMEOUT", 30*time.Second),
	}, nil
}
