package events

import (
	"context"
	"errors"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/websocket"
)

// Deliverer pushes a payload to a user's live channels.
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, payload []byte) error
}

// LivePublisher pushes events to the recipients' open WebSocket channels.
type LivePublisher struct {
	out Deliverer
}

func NewLivePublisher(out Deliverer) *LivePublisher {
	return &LivePublisher{out: out}
}

func (p *LivePublisher) Publish(ctx context.Context, ev Event) error {
	if len(ev.Recipients) == 0 {
		return nil
	}
	payload, err := websocket.Encode(ev.Type, ev)
	if err != nil {
		return err
	}
	var errs []error
	for _, uid := range ev.Recipients {
		if err := p.out.Deliver(ctx, uid, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
