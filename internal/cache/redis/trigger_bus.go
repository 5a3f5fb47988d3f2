package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// TriggerBus implements domain.TriggerBus over Redis Pub/Sub. Messages are
// ephemeral: a trigger published while no sniper is subscribed is lost.
type TriggerBus struct {
	c      *Client
	logger *slog.Logger
}

// NewTriggerBus creates a TriggerBus backed by the given Client.
func NewTriggerBus(c *Client, logger *slog.Logger) *TriggerBus {
	return &TriggerBus{c: c, logger: logger.With(slog.String("component", "trigger_bus"))}
}

// PublishTrigger sends t as JSON on channel.
func (tb *TriggerBus) PublishTrigger(ctx context.Context, channel string, t domain.Trigger) error {
	return tb.publish(ctx, channel, t)
}

// PublishSummary sends a session summary as JSON on channel.
func (tb *TriggerBus) PublishSummary(ctx context.Context, channel string, s domain.Summary) error {
	return tb.publish(ctx, channel, s)
}

func (tb *TriggerBus) publish(ctx context.Context, channel string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", channel, err)
	}
	if err := tb.c.rdb.Publish(ctx, tb.c.key(channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Triggers subscribes to channel and returns a channel of decoded triggers.
// The subscription is closed, and the returned channel with it, when ctx is
// cancelled.
func (tb *TriggerBus) Triggers(ctx context.Context, channel string) (<-chan domain.Trigger, error) {
	name := tb.c.key(channel)
	var pubsub *redis.PubSub
	if hasPattern(name) {
		pubsub = tb.c.rdb.PSubscribe(ctx, name)
	} else {
		pubsub = tb.c.rdb.Subscribe(ctx, name)
	}

	// Wait for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan domain.Trigger, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var t domain.Trigger
				if err := json.Unmarshal([]byte(msg.Payload), &t); err != nil || t.TargetMint == "" {
					tb.logger.Warn("dropping malformed trigger",
						slog.String("channel", msg.Channel),
						slog.Int("bytes", len(msg.Payload)),
					)
					continue
				}
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the channel includes glob-style wildcards, in
// which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

var _ domain.TriggerBus = (*TriggerBus)(nil)
