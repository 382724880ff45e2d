// Package bus fans deliveries out across server instances. Every instance
// publishes to Redis and every instance delivers what it receives to its own
// presence registry, so a user connected to any instance sees the event.
package bus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "telehealth:user:"

// Deliverer pushes a payload to a user's channels on this instance.
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, payload []byte) error
}

// NewRedisClient parses a redis:// URL and verifies the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// RedisBus implements Deliverer by publishing to a per-user Redis channel.
type RedisBus struct {
	rdb    *redis.Client
	local  Deliverer
	logger zerolog.Logger
}

func NewRedisBus(rdb *redis.Client, local Deliverer, logger zerolog.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, local: local, logger: logger.With().Str("component", "bus").Logger()}
}

func channelFor(userID int64) string {
	return channelPrefix + strconv.FormatInt(userID, 10)
}

func userFromChannel(channel string) (int64, error) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return 0, fmt.Errorf("unexpected channel %q", channel)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(channel, channelPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad user id in channel %q", channel)
	}
	return id, nil
}

// Deliver publishes payload for userID. Publishes complete in call order, so
// a caller serializing its calls keeps per-user ordering across instances.
func (b *RedisBus) Deliver(ctx context.Context, userID int64, payload []byte) error {
	if err := b.rdb.Publish(ctx, channelFor(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channelFor(userID), err)
	}
	return nil
}

// Run subscribes to every user channel and relays messages to the local
// registry until ctx is cancelled.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	b.logger.Info().Msg("fan-out bus subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			userID, err := userFromChannel(msg.Channel)
			if err != nil {
				b.logger.Warn().Err(err).Msg("ignoring bus message")
				continue
			}
			if err := b.local.Deliver(ctx, userID, []byte(msg.Payload)); err != nil {
				b.logger.Debug().Err(err).Int64("user_id", userID).Msg("local delivery failed")
			}
		}
	}
}
