package progress

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// SubjectSaved carries SavedEvent payloads.
	SubjectSaved = "progress.saved"
	// StreamName is the JetStream stream backing SubjectSaved.
	StreamName = "PROGRESS"
)

// SavedEvent is published after every successful save.
type SavedEvent struct {
	EventID    string    `json:"event_id"`
	Origin     string    `json:"origin"`
	OccurredAt time.Time `json:"occurred_at"`
	Entry      Entry     `json:"entry"`
}

// Publisher announces saved entries on NATS JetStream. A nil receiver or a
// nil JetStream context makes it a no-op.
type Publisher struct {
	js     nats.JetStreamContext
	origin string
	log    *zap.Logger
}

func NewPublisher(js nats.JetStreamContext, origin string, log *zap.Logger) *Publisher {
	return &Publisher{js: js, origin: origin, log: log}
}

// Publish is fire-and-forget; failures are logged, never returned.
func (p *Publisher) Publish(e Entry) {
	if p == nil || p.js == nil {
		return
	}
	ev := SavedEvent{
		EventID:    uuid.NewString(),
		Origin:     p.origin,
		OccurredAt: time.Now().UTC(),
		Entry:      e,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("progress: marshal event failed", zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(SubjectSaved, data); err != nil {
		p.log.Warn("progress: publish failed", zap.String("subject", SubjectSaved), zap.Error(err))
	}
}
