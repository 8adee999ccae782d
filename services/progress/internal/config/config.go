package config

import (
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/example/quickwatch/internal/platform/config"
)

type StoreKind string

const (
	StorePostgres StoreKind = "postgres"
	StoreRedis    StoreKind = "redis"
	StoreFile     StoreKind = "file"
	StoreMemory   StoreKind = "memory"
)

type Config struct {
	App config.AppConfig
	// Profile scopes every stored entry. One deployment serves one profile.
	Profile string
	// InstanceID tags published events so a replica can skip its own.
	InstanceID string

	DatabaseURL string
	RedisURL    string
	DataFile    string

	NATSURL         string
	StreamMaxAge    time.Duration
	ConsumerBatch   int
	ConsumerMaxWait time.Duration
}

func Load() (Config, error) {
	app, err := config.Load(":8086")
	if err != nil {
		return Config{}, err
	}
	return Config{
		App:             app,
		Profile:         config.EnvString("PROGRESS_PROFILE", "default"),
		InstanceID:      config.EnvString("INSTANCE_ID", defaultInstanceID()),
		DatabaseURL:     config.EnvString("DATABASE_URL", ""),
		RedisURL:        config.EnvString("REDIS_URL", ""),
		DataFile:        config.EnvString("PROGRESS_DATA_FILE", ""),
		NATSURL:         config.EnvString("NATS_URL", ""),
		StreamMaxAge:    config.EnvDuration("PROGRESS_STREAM_MAX_AGE", 24*time.Hour),
		ConsumerBatch:   config.EnvInt("WORKER_BATCH_SIZE", 100),
		ConsumerMaxWait: config.EnvDuration("WORKER_BATCH_INTERVAL", 2*time.Second),
	}, nil
}

// Store picks the backend: Postgres wins over Redis, Redis over a file, and
// memory is the fallback.
func (c Config) Store() StoreKind {
	switch {
	case c.DatabaseURL != "":
		return StorePostgres
	case c.RedisURL != "":
		return StoreRedis
	case c.DataFile != "":
		return StoreFile
	default:
		return StoreMemory
	}
}

func defaultInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return uuid.NewString()
}
