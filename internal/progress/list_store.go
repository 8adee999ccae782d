package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCorruptData = errors.New("progress data is not a JSON list")

// Backend holds the serialized entry list as one blob, the way a browser
// keeps it under a single key.
type Backend interface {
	// Load returns nil, nil when nothing has been stored yet.
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, data []byte) error
}

// ListStore keeps entries as an ordered JSON list in a Backend. Writes are
// read-modify-write under a mutex, so one ListStore serializes its own
// callers while separate processes sharing a backend are last-write-wins.
type ListStore struct {
	mu       sync.Mutex
	backend  Backend
	capacity int
	now      func() time.Time
}

func NewListStore(b Backend) *ListStore {
	return &ListStore{backend: b, capacity: Capacity, now: time.Now}
}

func (s *ListStore) load(ctx context.Context) ([]Entry, error) {
	raw, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if len(raw) == 0 {
		return []Entry{}, nil
	}
	var list []Entry
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	return list, nil
}

func (s *ListStore) Save(ctx context.Context, e Entry) (Entry, error) {
	e, err := e.normalize(s.now())
	if err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return Entry{}, err
	}
	list = upsert(list, e, s.capacity)

	data, err := json.Marshal(list)
	if err != nil {
		return Entry{}, fmt.Errorf("encode progress: %w", err)
	}
	if err := s.backend.Store(ctx, data); err != nil {
		return Entry{}, fmt.Errorf("store progress: %w", err)
	}
	return e, nil
}

func (s *ListStore) Get(ctx context.Context, key Key) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return find(list, key), nil
}

func (s *ListStore) ListForMedia(ctx context.Context, mediaID int, mediaType MediaType) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return filterMedia(list, mediaID, mediaType), nil
}

func (s *ListStore) ContinueWatching(ctx context.Context) ([]ContinueWatchingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return continueWatching(list), nil
}

// Len reports the number of stored entries.
func (s *ListStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}
