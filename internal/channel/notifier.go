package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"noteboard/api/internal/util"
)

// Notifier tells peer instances that the shared store changed. Peers react
// by re-reading the store and publishing a fresh snapshot locally.
type Notifier interface {
	Notify(ctx context.Context) error
	// Listen blocks until ctx is done, calling onChange for every change
	// made elsewhere and whenever the listener (re)joins the channel.
	Listen(ctx context.Context, onChange func(context.Context)) error
}

// NopNotifier is used by single-instance deployments.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context) error { return nil }

func (NopNotifier) Listen(ctx context.Context, _ func(context.Context)) error {
	<-ctx.Done()
	return nil
}

type notice struct {
	Origin string `json:"origin"`
	At     int64  `json:"at"`
}

// RedisNotifier carries change notices over a Redis pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	origin  string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: channel,
		origin:  util.NewID("node"),
	}
}

func (n *RedisNotifier) Notify(ctx context.Context) error {
	payload, err := json.Marshal(notice{Origin: n.origin, At: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("marshal change notice: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change notice: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context, onChange func(context.Context)) error {
	pubsub := n.client.Subscribe(ctx, n.channel)
	defer pubsub.Close()

	messages := pubsub.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			switch msg := raw.(type) {
			case *redis.Subscription:
				// Notices may have been missed while disconnected.
				if msg.Kind == "subscribe" {
					onChange(ctx)
				}
			case *redis.Message:
				var in notice
				if err := json.Unmarshal([]byte(msg.Payload), &in); err != nil {
					log.Printf("channel: ignoring malformed notice on %s: %v", n.channel, err)
					continue
				}
				if in.Origin == n.origin {
					continue
				}
				onChange(ctx)
			}
		}
	}
}
