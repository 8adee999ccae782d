package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/quickwatch/internal/progress"
)

// Consumer replays progress.saved events from other replicas into the local
// store.
type Consumer struct {
	Store  progress.Store
	Origin string
	Log    *zap.Logger

	BatchSize int
	MaxWait   time.Duration
}

// Outcome of applying one event.
type Outcome int

const (
	Applied Outcome = iota
	SkippedOwn
	SkippedStale
)

// Apply stores the entry carried by data unless it came from this replica or
// the local copy is newer. Malformed payloads return an error wrapping
// progress.ErrInvalidEntry so they can be terminated instead of redelivered.
func (c *Consumer) Apply(ctx context.Context, data []byte) (Outcome, error) {
	var ev progress.SavedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return 0, fmt.Errorf("%w: decode event: %v", progress.ErrInvalidEntry, err)
	}
	if ev.Origin != "" && ev.Origin == c.Origin {
		return SkippedOwn, nil
	}
	existing, err := c.Store.Get(ctx, ev.Entry.Key())
	if err != nil {
		return 0, err
	}
	if existing != nil && existing.UpdatedAt.After(ev.Entry.UpdatedAt) {
		return SkippedStale, nil
	}
	if _, err := c.Store.Save(ctx, ev.Entry); err != nil {
		return 0, err
	}
	return Applied, nil
}

// Run pulls batches from the durable consumer until ctx is done.
func (c *Consumer) Run(ctx context.Context, js nats.JetStreamContext) error {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 2 * time.Second
	}
	sub, err := js.PullSubscribe(progress.SubjectSaved, "progress-"+c.Origin, nats.BindStream(progress.StreamName))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", progress.SubjectSaved, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	for {
		if ctx.Err() != nil {
			return nil
		}
		msgs, err := sub.Fetch(c.BatchSize, nats.MaxWait(c.MaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.Log.Warn("progress consumer: fetch", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			c.handle(ctx, m)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m *nats.Msg) {
	outcome, err := c.Apply(ctx, m.Data)
	switch {
	case errors.Is(err, progress.ErrInvalidEntry):
		c.Log.Warn("progress consumer: dropping invalid event", zap.Error(err))
		if err := m.Term(); err != nil {
			c.Log.Warn("progress consumer: term", zap.Error(err))
		}
	case err != nil:
		c.Log.Warn("progress consumer: apply", zap.Error(err))
		if err := m.Nak(); err != nil {
			c.Log.Warn("progress consumer: nak", zap.Error(err))
		}
	default:
		if outcome == SkippedStale {
			c.Log.Debug("progress consumer: stale event skipped")
		}
		if err := m.Ack(); err != nil {
			c.Log.Warn("progress consumer: ack", zap.Error(err))
		}
	}
}
