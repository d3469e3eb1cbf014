package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultNotifyChannel is the Redis channel carrying matrix changes.
const DefaultNotifyChannel = "rbac.grant.changed"

const relayTimeout = 2 * time.Second

var _ Publisher = (*RedisNotifier)(nil)

// RedisNotifier shares changes between processes. Local changes go to the
// local broker immediately and are relayed to Redis in the background;
// remote changes received on the channel are re-published locally.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	origin  string
	local   *Broker
	logger  *slog.Logger
}

// NewRedisNotifier builds a notifier bound to local.
func NewRedisNotifier(client *redis.Client, channel string, local *Broker, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	return &RedisNotifier{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		logger:  logger,
	}
}

// Origin identifies this process on the channel.
func (n *RedisNotifier) Origin() string {
	return n.origin
}

// Publish delivers c locally and relays it to other processes.
func (n *RedisNotifier) Publish(c Change) {
	n.local.Publish(c)
	c.Origin = n.origin
	go n.relay(c)
}

func (n *RedisNotifier) relay(c Change) {
	data, err := json.Marshal(c)
	if err != nil {
		n.warn("rbac notifier encode", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		n.warn("rbac notifier publish", err)
	}
}

// Listen consumes remote changes until ctx is done. It returns once the
// subscription is closed.
func (n *RedisNotifier) Listen(ctx context.Context) error {
	sub := n.client.Subscribe(ctx, n.channel)
	defer func() {
		_ = sub.Close()
	}()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("rbac: subscribe %s: %w", n.channel, err)
	}
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				n.warn("rbac notifier decode", err)
				continue
			}
			if c.Origin == n.origin {
				continue
			}
			n.local.Publish(c)
		}
	}
}

func (n *RedisNotifier) warn(msg string, err error) {
	if n.logger != nil {
		n.logger.Warn(msg, slog.String("channel", n.channel), slog.Any("error", err))
	}
}
