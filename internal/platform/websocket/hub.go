// Package websocket is the live delivery layer: a presence registry mapping
// user ids to their open channels, and the /ws transport that feeds inbound
// events to the message router.
package websocket

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const shardCount = 32

// Channel is one live delivery endpoint for a user, typically one browser tab
// or device. Deliveries after Close are dropped.
type Channel struct {
	ID     string
	UserID int64

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newChannel(userID int64, buffer int) *Channel {
	return &Channel{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, buffer),
	}
}

// Deliver enqueues payload without blocking. It reports false when the channel
// is closed or its buffer is full.
func (c *Channel) Deliver(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Messages is drained by the connection's write pump.
func (c *Channel) Messages() <-chan []byte {
	return c.send
}

func (c *Channel) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

// Closed reports whether the channel has been unregistered.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type shard struct {
	mu    sync.RWMutex
	users map[int64]map[*Channel]struct{}
}

// Hub is the presence registry. Mutations lock only the shard owning the
// user id, so registrations for different users rarely contend.
type Hub struct {
	shards     [shardCount]shard
	sendBuffer int
	channels   atomic.Int64
	logger     zerolog.Logger
}

// NewHub creates a Hub whose channels buffer up to sendBuffer payloads.
func NewHub(logger zerolog.Logger, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	h := &Hub{sendBuffer: sendBuffer, logger: logger.With().Str("component", "hub").Logger()}
	for i := range h.shards {
		h.shards[i].users = make(map[int64]map[*Channel]struct{})
	}
	return h
}

func (h *Hub) shardFor(userID int64) *shard {
	return &h.shards[uint64(userID)%shardCount]
}

// Register opens a new channel for userID.
func (h *Hub) Register(userID int64) *Channel {
	ch := newChannel(userID, h.sendBuffer)
	s := h.shardFor(userID)

	s.mu.Lock()
	set := s.users[userID]
	if set == nil {
		set = make(map[*Channel]struct{})
		s.users[userID] = set
	}
	set[ch] = struct{}{}
	s.mu.Unlock()

	h.channels.Add(1)
	h.logger.Debug().Int64("user_id", userID).Str("channel_id", ch.ID).Msg("channel registered")
	return ch
}

// Unregister removes ch and closes it. Calling it again is a no-op.
func (h *Hub) Unregister(ch *Channel) {
	if ch == nil {
		return
	}
	s := h.shardFor(ch.UserID)

	s.mu.Lock()
	if set, ok := s.users[ch.UserID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(s.users, ch.UserID)
		}
	}
	s.mu.Unlock()

	if ch.close() {
		h.channels.Add(-1)
		h.logger.Debug().Int64("user_id", ch.UserID).Str("channel_id", ch.ID).Msg("channel unregistered")
	}
}

// ChannelsFor returns a snapshot of userID's live channels. An offline user
// yields an empty slice.
func (h *Hub) ChannelsFor(userID int64) []*Channel {
	s := h.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.users[userID]
	out := make([]*Channel, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	return out
}

// IsOnline reports whether userID has at least one live channel.
func (h *Hub) IsOnline(userID int64) bool {
	s := h.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

// Deliver pushes payload to every live channel of userID. Closed channels are
// skipped. A channel whose buffer is full is unregistered, which ends its
// connection; the client reconnects and reloads history. Neither case is an
// error for the caller.
func (h *Hub) Deliver(_ context.Context, userID int64, payload []byte) error {
	for _, ch := range h.ChannelsFor(userID) {
		if ch.Deliver(payload) {
			continue
		}
		if ch.Closed() {
			h.logger.Debug().Int64("user_id", userID).Str("channel_id", ch.ID).Msg("delivery dropped")
			continue
		}
		h.logger.Warn().Int64("user_id", userID).Str("channel_id", ch.ID).Msg("send buffer full, closing slow channel")
		h.Unregister(ch)
	}
	return nil
}

// ChannelCount returns the number of live channels across all users.
func (h *Hub) ChannelCount() int {
	return int(h.channels.Load())
}

// Close unregisters every channel, ending all write pumps.
func (h *Hub) Close() {
	for i := range h.shards {
		s := &h.shards[i]
		s.mu.Lock()
		var all []*Channel
		for _, set := range s.users {
			for ch := range set {
				all = append(all, ch)
			}
		}
		s.users = make(map[int64]map[*Channel]struct{})
		s.mu.Unlock()

		for _, ch := range all {
			if ch.close() {
				h.channels.Add(-1)
			}
		}
	}
}
