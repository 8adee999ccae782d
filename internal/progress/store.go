// Package progress persists playback positions and derives the
// continue-watching view.
package progress

import (
	"context"
)

// Store is implemented by ListStore and PostgresStore. Implementations are
// safe for concurrent use; concurrent saves to one key are last-write-wins.
type Store interface {
	// Save inserts or replaces the entry for e's key.
	Save(ctx context.Context, e Entry) (Entry, error)
	// Get returns nil, nil when no entry matches.
	Get(ctx context.Context, key Key) (*Entry, error)
	// ListForMedia returns every entry of one title in storage order.
	ListForMedia(ctx context.Context, mediaID int, mediaType MediaType) ([]Entry, error)
	ContinueWatching(ctx context.Context) ([]ContinueWatchingEntry, error)
}
