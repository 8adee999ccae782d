package progress

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type MediaType string

const (
	Movie MediaType = "movie"
	TV    MediaType = "tv"
)

const (
	// Capacity is the number of entries a store keeps before evicting the
	// oldest.
	Capacity = 50
	// ContinueWatchingLimit caps the continue-watching view.
	ContinueWatchingLimit = 20

	minCompletionPercent = 5.0
	maxCompletionPercent = 90.0
)

var ErrInvalidEntry = errors.New("invalid progress entry")

// Key identifies one progress entry. Movies always carry season and episode 0.
type Key struct {
	MediaID   int       `json:"media_id"`
	MediaType MediaType `json:"media_type"`
	Season    int       `json:"season"`
	Episode   int       `json:"episode"`
}

// Normalize collapses season and episode for movies.
func (k Key) Normalize() Key {
	if k.MediaType == Movie {
		k.Season, k.Episode = 0, 0
	}
	return k
}

func (k Key) Validate() error {
	if k.MediaID <= 0 {
		return fmt.Errorf("%w: media_id must be positive", ErrInvalidEntry)
	}
	switch k.MediaType {
	case Movie, TV:
	default:
		return fmt.Errorf("%w: media_type must be movie or tv, got %q", ErrInvalidEntry, k.MediaType)
	}
	if k.Season < 0 || k.Episode < 0 {
		return fmt.Errorf("%w: season and episode must not be negative", ErrInvalidEntry)
	}
	return nil
}

// Entry is a snapshot of how far a title has been watched.
type Entry struct {
	MediaID             int       `json:"media_id"`
	MediaType           MediaType `json:"media_type"`
	Season              int       `json:"season"`
	Episode             int       `json:"episode"`
	WatchedSeconds      int       `json:"watched_seconds"`
	FullDurationSeconds int       `json:"full_duration_seconds"`
	SourceIndex         int       `json:"source_index"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (e Entry) Key() Key {
	return Key{MediaID: e.MediaID, MediaType: e.MediaType, Season: e.Season, Episode: e.Episode}.Normalize()
}

// normalize validates e and applies key collapsing. A zero UpdatedAt is
// stamped with now.
func (e Entry) normalize(now time.Time) (Entry, error) {
	k := e.Key()
	if err := k.Validate(); err != nil {
		return Entry{}, err
	}
	if e.WatchedSeconds < 0 || e.FullDurationSeconds < 0 || e.SourceIndex < 0 {
		return Entry{}, fmt.Errorf("%w: durations and source index must not be negative", ErrInvalidEntry)
	}
	e.Season, e.Episode = k.Season, k.Episode
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

// CompletionPercent is watched over full duration in percent, clamped to
// 100. Unknown durations count as 0.
func (e Entry) CompletionPercent() float64 {
	if e.FullDurationSeconds <= 0 {
		return 0
	}
	return math.Min(100, float64(e.WatchedSeconds)/float64(e.FullDurationSeconds)*100)
}

// Resumable reports whether playback should seek to WatchedSeconds on load.
func (e *Entry) Resumable() bool {
	return e != nil && e.WatchedSeconds > 0
}

// ContinueWatchingEntry is an Entry in the continue-watching view.
type ContinueWatchingEntry struct {
	Entry
	ProgressPercent int `json:"progress_percent"`
}

func inContinueWatching(e Entry) bool {
	p := e.CompletionPercent()
	return p >= minCompletionPercent && p < maxCompletionPercent
}
