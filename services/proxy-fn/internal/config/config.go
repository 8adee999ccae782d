package config

import (
	"time"

	"github.com/example/quickwatch/internal/platform/config"
)

type Config struct {
	App config.AppConfig
	// UpstreamTimeout bounds a whole upstream exchange.
	UpstreamTimeout time.Duration
	// MaxBodyBytes caps relayed payloads; 0 disables the cap.
	MaxBodyBytes int64
}

func Load() (Config, error) {
	app, err := config.Load(":8085")
	if err != nil {
		return Config{}, err
	}
	return Config{
		App:             app,
		UpstreamTimeout: config.EnvDuration("PROXY_UPSTREAM_TIMEOUT", 25*time.Second),
		MaxBodyBytes:    int64(config.EnvInt("PROXY_MAX_BODY_BYTES", 0)),
	}, nil
}
