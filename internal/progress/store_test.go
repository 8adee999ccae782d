package progress

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *ListStore {
	t.Helper()
	s := NewListStore(NewMemoryBackend())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestSave_MovieKeyCollapses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Save(ctx, Entry{MediaID: 5, MediaType: Movie, Season: 3, Episode: 7, WatchedSeconds: 120, FullDurationSeconds: 6000}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Get(ctx, Key{MediaID: 5, MediaType: Movie})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.WatchedSeconds != 120 {
		t.Fatalf("expected saved movie entry, got %+v", got)
	}
	if got.Season != 0 || got.Episode != 0 {
		t.Fatalf("expected season/episode collapsed to 0, got %d/%d", got.Season, got.Episode)
	}

	// Any season/episode on lookup hits the same movie entry.
	again, _ := s.Get(ctx, Key{MediaID: 5, MediaType: Movie, Season: 9, Episode: 9})
	if again == nil {
		t.Fatal("expected lookup with other season/episode to match")
	}
}

func TestSave_TVKeysAreDistinct(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _ = s.Save(ctx, Entry{MediaID: 1, MediaType: TV, Season: 1, Episode: 1, WatchedSeconds: 10, FullDurationSeconds: 100})
	_, _ = s.Save(ctx, Entry{MediaID: 1, MediaType: TV, Season: 1, Episode: 2, WatchedSeconds: 20, FullDurationSeconds: 100})

	ep1, _ := s.Get(ctx, Key{MediaID: 1, MediaType: TV, Season: 1, Episode: 1})
	ep2, _ := s.Get(ctx, Key{MediaID: 1, MediaType: TV, Season: 1, Episode: 2})
	if ep1 == nil || ep2 == nil || ep1.WatchedSeconds != 10 || ep2.WatchedSeconds != 20 {
		t.Fatalf("unexpected entries: %+v %+v", ep1, ep2)
	}
	if missing, _ := s.Get(ctx, Key{MediaID: 1, MediaType: TV, Season: 2, Episode: 1}); missing != nil {
		t.Fatalf("expected nil for unknown episode, got %+v", missing)
	}
}

func TestSave_ReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _ = s.Save(ctx, Entry{MediaID: 1, MediaType: Movie, WatchedSeconds: 10, FullDurationSeconds: 100})
	_, _ = s.Save(ctx, Entry{MediaID: 2, MediaType: Movie, WatchedSeconds: 10, FullDurationSeconds: 100})
	_, _ = s.Save(ctx, Entry{MediaID: 1, MediaType: Movie, WatchedSeconds: 50, FullDurationSeconds: 100})

	n, _ := s.Len(ctx)
	if n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
	got, _ := s.Get(ctx, Key{MediaID: 1, MediaType: Movie})
	if got.WatchedSeconds != 50 {
		t.Fatalf("expected last write to win, got %d", got.WatchedSeconds)
	}
}

func TestSave_CapacityEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for id := 1; id <= 51; id++ {
		if _, err := s.Save(ctx, Entry{MediaID: id, MediaType: TV, Season: 1, Episode: 1, WatchedSeconds: 1, FullDurationSeconds: 10}); err != nil {
			t.Fatalf("save %d: %v", id, err)
		}
	}
	n, _ := s.Len(ctx)
	if n != Capacity {
		t.Fatalf("expected %d entries, got %d", Capacity, n)
	}
	if first, _ := s.Get(ctx, Key{MediaID: 1, MediaType: TV, Season: 1, Episode: 1}); first != nil {
		t.Fatal("expected first-saved key to be evicted")
	}
	for id := 2; id <= 51; id++ {
		if e, _ := s.Get(ctx, Key{MediaID: id, MediaType: TV, Season: 1, Episode: 1}); e == nil {
			t.Fatalf("expected key %d to be present", id)
		}
	}
}

func TestSave_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	bad := []Entry{
		{MediaID: 0, MediaType: Movie},
		{MediaID: 1, MediaType: "anime"},
		{MediaID: 1, MediaType: TV, Season: -1},
		{MediaID: 1, MediaType: Movie, WatchedSeconds: -5},
	}
	for _, e := range bad {
		if _, err := s.Save(ctx, e); !errors.Is(err, ErrInvalidEntry) {
			t.Fatalf("expected ErrInvalidEntry for %+v, got %v", e, err)
		}
	}
}

func TestSave_KeepsClientTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))

	saved, err := s.Save(ctx, Entry{MediaID: 3, MediaType: Movie, UpdatedAt: ts})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !saved.UpdatedAt.Equal(ts) || saved.UpdatedAt.Location() != time.UTC {
		t.Fatalf("expected client timestamp in UTC, got %v", saved.UpdatedAt)
	}
}

// ─── Continue watching ───────────────────────────────────────────────────────

func TestContinueWatching_Bounds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for id, watched := range map[int]int{1: 4, 2: 5, 3: 90, 4: 89, 5: 0} {
		_, _ = s.Save(ctx, Entry{MediaID: id, MediaType: Movie, WatchedSeconds: watched, FullDurationSeconds: 100})
	}
	_, _ = s.Save(ctx, Entry{MediaID: 6, MediaType: Movie, WatchedSeconds: 30})

	view, err := s.ContinueWatching(ctx)
	if err != nil {
		t.Fatalf("continue watching: %v", err)
	}
	got := map[int]bool{}
	for _, e := range view {
		got[e.MediaID] = true
	}
	if got[1] || got[3] || got[5] || got[6] {
		t.Fatalf("unexpected entries in view: %v", got)
	}
	if !got[2] || !got[4] {
		t.Fatalf("expected 5%% and 89%% entries, got %v", got)
	}
}

func TestContinueWatching_SortedAndCapped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for id := 1; id <= 25; id++ {
		_, _ = s.Save(ctx, Entry{MediaID: id, MediaType: Movie, WatchedSeconds: 50, FullDurationSeconds: 100})
	}
	view, _ := s.ContinueWatching(ctx)
	if len(view) != ContinueWatchingLimit {
		t.Fatalf("expected %d entries, got %d", ContinueWatchingLimit, len(view))
	}
	if view[0].MediaID != 25 || view[len(view)-1].MediaID != 6 {
		t.Fatalf("expected most recent first, got first=%d last=%d", view[0].MediaID, view[len(view)-1].MediaID)
	}
	for i := 1; i < len(view); i++ {
		if view[i].UpdatedAt.After(view[i-1].UpdatedAt) {
			t.Fatalf("view not sorted by updated_at desc at %d", i)
		}
	}
	if view[0].ProgressPercent != 50 {
		t.Fatalf("expected 50%%, got %d", view[0].ProgressPercent)
	}
}

func TestListForMedia(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _ = s.Save(ctx, Entry{MediaID: 7, MediaType: TV, Season: 1, Episode: 1})
	_, _ = s.Save(ctx, Entry{MediaID: 8, MediaType: TV, Season: 1, Episode: 1})
	_, _ = s.Save(ctx, Entry{MediaID: 7, MediaType: TV, Season: 1, Episode: 2})
	_, _ = s.Save(ctx, Entry{MediaID: 7, MediaType: Movie})

	list, err := s.ListForMedia(ctx, 7, TV)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Episode != 1 || list[1].Episode != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}
	if empty, _ := s.ListForMedia(ctx, 99, TV); empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", empty)
	}
}

func TestResumable(t *testing.T) {
	var none *Entry
	if none.Resumable() {
		t.Fatal("nil entry is not resumable")
	}
	if (&Entry{WatchedSeconds: 0}).Resumable() {
		t.Fatal("zero position is not resumable")
	}
	if !(&Entry{WatchedSeconds: 1}).Resumable() {
		t.Fatal("positive position is resumable")
	}
}

// ─── Backends ────────────────────────────────────────────────────────────────

func TestFileBackend_PersistsAcrossStores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "continue.json")

	first := NewListStore(NewFileBackend(path))
	if _, err := first.Save(ctx, Entry{MediaID: 11, MediaType: Movie, WatchedSeconds: 42, FullDurationSeconds: 100}); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := NewListStore(NewFileBackend(path))
	got, err := second.Get(ctx, Key{MediaID: 11, MediaType: Movie})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.WatchedSeconds != 42 {
		t.Fatalf("expected persisted entry, got %+v", got)
	}
}

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	s := NewListStore(NewFileBackend(filepath.Join(t.TempDir(), "absent.json")))
	got, err := s.Get(context.Background(), Key{MediaID: 1, MediaType: Movie})
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", got, err)
	}
}

func TestListStore_CorruptData(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	_ = b.Store(ctx, []byte(`{"not":"a list"}`))
	s := NewListStore(b)

	if _, err := s.Get(ctx, Key{MediaID: 1, MediaType: Movie}); !errors.Is(err, ErrCorruptData) {
		t.Fatalf("expected ErrCorruptData, got %v", err)
	}
	if _, err := s.Save(ctx, Entry{MediaID: 1, MediaType: Movie}); !errors.Is(err, ErrCorruptData) {
		t.Fatalf("expected save to refuse overwriting corrupt data, got %v", err)
	}
}

func TestPublisher_NilSafe(t *testing.T) {
	var p *Publisher
	p.Publish(Entry{MediaID: 1, MediaType: Movie})
	NewPublisher(nil, "a", nil).Publish(Entry{MediaID: 1, MediaType: Movie})
}
