// Package cache holds rewritten playlists for a short time so that players
// polling a live playlist, or many viewers of the same stream, do not each
// hit the origin.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/maypok86/otter"

	"github.com/example/quickwatch/internal/platform/proxyurl"
)

// Playlist is a rewritten playlist ready to be served.
type Playlist struct {
	StatusCode int    `json:"status"`
	Body       string `json:"body"`
}

type Cache interface {
	Get(ctx context.Context, key string) (Playlist, bool, error)
	Set(ctx context.Context, key string, p Playlist) error
	Close() error
}

// Key identifies a rewritten playlist. The proxy base is part of it because
// rewritten URLs embed it.
func Key(target string, headers map[string]string, proxyBase string) string {
	h := sha256.New()
	h.Write([]byte(target))
	h.Write([]byte{0})
	h.Write([]byte(proxyurl.EncodeHeaders(headers)))
	h.Write([]byte{0})
	h.Write([]byte(proxyBase))
	return "quickwatch:playlist:" + hex.EncodeToString(h.Sum(nil))
}

// MemoryCache is a bounded in-process cache with a fixed TTL.
type MemoryCache struct {
	c otter.Cache[string, Playlist]
}

func NewMemoryCache(maxEntries int, ttl time.Duration) (*MemoryCache, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	c, err := otter.MustBuilder[string, Playlist](maxEntries).
		Cost(func(_ string, _ Playlist) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}
	return &MemoryCache{c: c}, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (Playlist, bool, error) {
	p, ok := m.c.Get(key)
	return p, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, p Playlist) error {
	m.c.Set(key, p)
	return nil
}

func (m *MemoryCache) Close() error {
	m.c.Close()
	return nil
}
