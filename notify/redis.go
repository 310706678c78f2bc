package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"hireflow/agreement"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "hireflow.notifications"

// Publisher is satisfied by *redis.Client.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes events as JSON on a pub/sub channel. Subscribers filter by
// recipient.
type Redis struct {
	client  Publisher
	channel string
}

func NewRedis(client Publisher, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel}
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("notify: parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

type envelope struct {
	Topic string          `json:"topic"`
	Event agreement.Event `json:"event"`
}

func (r *Redis) Notify(ctx context.Context, e agreement.Event) error {
	payload, err := json.Marshal(envelope{Topic: Topic(e), Event: e})
	if err != nil {
		return fmt.Errorf("notify: marshal redis payload: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("notify: publish %s: %w", r.channel, err)
	}
	return nil
}
