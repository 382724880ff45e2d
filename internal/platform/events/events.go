// Package events publishes domain lifecycle events. Publishing is
// best-effort: callers log failures and carry on.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is a domain lifecycle notification.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	ActorID    int64       `json:"actor_id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data,omitempty"`
	// Recipients are users whose live channels should see the event.
	Recipients []int64 `json:"-"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType string, actorID int64, data interface{}, recipients ...int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
		Recipients: recipients,
	}
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi publishes to every destination and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info().
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Int64("actor_id", ev.ActorID).
		Interface("data", ev.Data).
		Msg("domain event")
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
