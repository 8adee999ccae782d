package playback

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/quickwatch/internal/progress"
)

// Action is a viewer interaction that forces an immediate progress save.
type Action string

const (
	ActionPlayPause  Action = "play_pause"
	ActionSeek       Action = "seek"
	ActionVolume     Action = "volume"
	ActionFullscreen Action = "fullscreen"
	ActionPiP        Action = "pip"
	ActionSubtitle   Action = "subtitle"
	ActionQuality    Action = "quality"
	ActionTeardown   Action = "teardown"
)

// DefaultSaveInterval is how often progress is saved while time advances.
const DefaultSaveInterval = 2 * time.Second

// Saver is the write half of progress.Store.
type Saver interface {
	Save(ctx context.Context, e progress.Entry) (progress.Entry, error)
}

// Getter is the read half of progress.Store.
type Getter interface {
	Get(ctx context.Context, key progress.Key) (*progress.Entry, error)
}

type TrackerConfig struct {
	Store       Saver
	Media       Media
	Key         progress.Key
	SourceIndex int
	Interval    time.Duration
	Log         *zap.Logger
}

// ProgressTracker snapshots the media position into a store on a timer and
// on viewer actions.
type ProgressTracker struct {
	cfg TrackerConfig
	log *zap.Logger

	// ticks replaces the timer in tests.
	ticks <-chan time.Time

	mu       sync.Mutex
	lastTick float64
	running  bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewProgressTracker(cfg TrackerConfig) *ProgressTracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSaveInterval
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &ProgressTracker{
		cfg:      cfg,
		log:      log,
		lastTick: -1,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the save timer until Close or ctx is done.
func (t *ProgressTracker) Start(ctx context.Context) {
	ticks := t.ticks
	var ticker *time.Ticker
	if ticks == nil {
		ticker = time.NewTicker(t.cfg.Interval)
		ticks = ticker.C
	}

	t.mu.Lock()
	t.running = true
	t.mu.Unlock()

	go func() {
		defer close(t.done)
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			case <-ticks:
				t.tick(ctx)
			}
		}
	}()
}

func (t *ProgressTracker) tick(ctx context.Context) {
	now := t.cfg.Media.CurrentTime()

	t.mu.Lock()
	advancing := !t.cfg.Media.Paused() && now != t.lastTick
	t.lastTick = now
	t.mu.Unlock()

	if !advancing {
		return
	}
	if err := t.save(ctx); err != nil {
		t.log.Warn("progress: periodic save failed", zap.Error(err))
	}
}

// Notify saves immediately for a viewer action.
func (t *ProgressTracker) Notify(ctx context.Context, a Action) error {
	if err := t.save(ctx); err != nil {
		t.log.Warn("progress: save failed", zap.String("action", string(a)), zap.Error(err))
		return err
	}
	return nil
}

// Close stops the timer and writes a final snapshot.
func (t *ProgressTracker) Close(ctx context.Context) error {
	first := false
	t.stopOnce.Do(func() {
		close(t.stop)
		first = true
	})
	if !first {
		return nil
	}

	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	if running {
		select {
		case <-t.done:
		case <-ctx.Done():
		}
	}
	return t.Notify(ctx, ActionTeardown)
}

func (t *ProgressTracker) save(ctx context.Context) error {
	duration := t.cfg.Media.Duration()
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return nil
	}
	k := t.cfg.Key
	_, err := t.cfg.Store.Save(ctx, progress.Entry{
		MediaID:             k.MediaID,
		MediaType:           k.MediaType,
		Season:              k.Season,
		Episode:             k.Episode,
		WatchedSeconds:      int(t.cfg.Media.CurrentTime()),
		FullDurationSeconds: int(duration),
		SourceIndex:         t.cfg.SourceIndex,
	})
	return err
}

// ResumePosition returns the saved position for key when playback should
// seek there on load.
func ResumePosition(ctx context.Context, store Getter, key progress.Key) (float64, bool, error) {
	e, err := store.Get(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if !e.Resumable() {
		return 0, false, nil
	}
	return float64(e.WatchedSeconds), true, nil
}
