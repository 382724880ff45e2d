// Package messaging persists chat messages and routes them to the live
// channels of both participants.
package messaging

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/websocket"
)

// Deliverer pushes an encoded event to every live channel of a user. The
// presence hub and the Redis bus both satisfy it.
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, payload []byte) error
}

type RouterConfig struct {
	TypingWorkers   int
	TypingQueueSize int
}

// Router sends messages and typing indicators. Per conversation, deliveries
// leave the router in the order the messages were persisted.
type Router struct {
	store  *Store
	out    Deliverer
	locks  *lockset
	typing *typingPool
	logger zerolog.Logger
}

func NewRouter(store *Store, out Deliverer, cfg RouterConfig, logger zerolog.Logger) *Router {
	logger = logger.With().Str("component", "router").Logger()
	return &Router{
		store:  store,
		out:    out,
		locks:  newLockset(),
		typing: newTypingPool(out, cfg.TypingWorkers, cfg.TypingQueueSize, logger),
		logger: logger,
	}
}

// Run drives the typing workers until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	r.typing.run(ctx)
}

// Send persists a message from id to receiverID and delivers it to every live
// channel of both users, including the sender's other devices.
func (r *Router) Send(ctx context.Context, id auth.Identity, receiverID int64, content string) (*Message, error) {
	unlock := r.locks.Lock(KeyFor(id.UserID, receiverID))
	defer unlock()

	m, err := r.store.Append(ctx, id.UserID, receiverID, content)
	if err != nil {
		return nil, err
	}

	payload, err := websocket.Encode(websocket.EventReceiveMessage, m)
	if err != nil {
		return nil, fmt.Errorf("encode message %d: %w", m.ID, err)
	}
	r.deliver(ctx, m.ReceiverID, payload)
	r.deliver(ctx, m.SenderID, payload)

	r.logger.Debug().
		Int64("message_id", m.ID).
		Int64("sender_id", m.SenderID).
		Int64("receiver_id", m.ReceiverID).
		Msg("message routed")
	return m, nil
}

func (r *Router) deliver(ctx context.Context, userID int64, payload []byte) {
	if err := r.out.Deliver(ctx, userID, payload); err != nil {
		r.logger.Debug().Err(err).Int64("user_id", userID).Msg("delivery failed")
	}
}

// NotifyTyping queues a typing indicator for the receiver's channels. It
// never blocks and never persists anything.
func (r *Router) NotifyTyping(_ context.Context, id auth.Identity, receiverID int64) error {
	if err := validateParties(id.UserID, receiverID); err != nil {
		return err
	}
	payload, err := websocket.Encode(websocket.EventTyping, map[string]int64{"sender_id": id.UserID})
	if err != nil {
		return fmt.Errorf("encode typing: %w", err)
	}
	r.typing.enqueue(typingJob{receiverID: receiverID, payload: payload})
	return nil
}

// Dispatch handles a decoded socket event for the connection's identity.
func (r *Router) Dispatch(ctx context.Context, id auth.Identity, ev websocket.Inbound) error {
	switch ev.Type {
	case websocket.EventSendMessage:
		_, err := r.Send(ctx, id, ev.ReceiverID, ev.Content)
		return err
	case websocket.EventTyping:
		return r.NotifyTyping(ctx, id, ev.ReceiverID)
	default:
		return apperr.Validation("event %q cannot be dispatched", ev.Type)
	}
}
