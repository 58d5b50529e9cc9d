package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"combox/internal/observability"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "events:"

// Notifier bridges hub groups over Redis pub/sub so fan-out reaches clients
// connected to other instances. With a nil Redis client every publish is a
// no-op, which keeps single-instance and test setups simple.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Publish sends an event payload to a group's Redis channel.
func (n *Notifier) Publish(ctx context.Context, group string, event Event) error {
	if n.rdb == nil {
		return nil
	}
	data := event.Marshal()
	if data == nil {
		return fmt.Errorf("unmarshalable event %q", event.Type)
	}
	if err := n.rdb.Publish(ctx, redisChannelPrefix+group, data).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		return err
	}
	return nil
}

// ToChannel publishes an event to a channel group. Errors are logged, not
// surfaced: pub/sub delivery is fire-and-forget.
func (n *Notifier) ToChannel(channelID uint, event Event) {
	if err := n.Publish(context.Background(), ChannelGroup(channelID), event); err != nil {
		slog.Warn("failed to publish channel event", "channel_id", channelID, "type", event.Type, "error", err)
	}
}

// ToUser publishes an event to a user's private group.
func (n *Notifier) ToUser(userID uint, event Event) {
	if err := n.Publish(context.Background(), UserGroup(userID), event); err != nil {
		slog.Warn("failed to publish user event", "user_id", userID, "type", event.Type, "error", err)
	}
}

// StartSubscriber subscribes to every group channel and calls onMessage for
// each incoming payload. onMessage receives the group name and raw payload.
func (n *Notifier) StartSubscriber(ctx context.Context, onMessage func(group string, payload []byte)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, redisChannelPrefix+"*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							slog.Error("panic in notifier subscriber", "recover", r, "stack", string(debug.Stack()))
						}
					}()
					group := strings.TrimPrefix(msg.Channel, redisChannelPrefix)
					onMessage(group, []byte(msg.Payload))
				}()
			}
		}
	}()

	return nil
}
