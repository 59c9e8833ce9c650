package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/progress"
)

// Publisher sends a payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// OutcomeMessage is the payload published for each finished item.
type OutcomeMessage struct {
	RunID     string    `json:"run_id"`
	URL       string    `json:"url"`
	Item      int       `json:"item"`
	Outcome   string    `json:"outcome"`
	Strategy  string    `json:"strategy,omitempty"`
	Path      string    `json:"path,omitempty"`
	Bytes     int64     `json:"bytes,omitempty"`
	Attempts  int       `json:"attempts"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// PublishSink publishes one OutcomeMessage per ITEM_DONE event.
type PublishSink struct {
	pub    Publisher
	topic  string
	logger *zap.Logger
}

// NewPublishSink constructs a PublishSink that writes to topic.
func NewPublishSink(pub Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes item outcomes in batch order.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageItemDone {
			continue
		}
		msg := OutcomeMessage{
			RunID:     evt.RunUUID().String(),
			URL:       evt.URL,
			Item:      evt.Item,
			Outcome:   string(evt.Outcome),
			Strategy:  string(evt.Strategy),
			Path:      evt.Path,
			Bytes:     evt.Bytes,
			Attempts:  evt.Attempt,
			ElapsedMS: evt.Dur.Milliseconds(),
			At:        evt.TS,
		}
		if !evt.Succeeded() {
			msg.Error = evt.Note
		}
		id, err := s.pub.Publish(ctx, s.topic, msg)
		if err != nil {
			return fmt.Errorf("publish outcome for %s: %w", evt.URL, err)
		}
		s.logger.Debug("outcome published", zap.String("url", evt.URL), zap.String("message_id", id))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
