package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultStream = "salonbook:events"

// RedisStream appends events to a Redis stream for downstream notifiers.
type RedisStream struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

type RedisOption func(*RedisStream)

// WithMaxLen caps the stream length approximately.
func WithMaxLen(n int64) RedisOption {
	return func(r *RedisStream) {
		r.maxLen = n
	}
}

func NewRedisStream(client redis.UniversalClient, stream string, opts ...RedisOption) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	r := &RedisStream{client: client, stream: stream}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dial connects and pings, failing fast on a bad address.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	const op = "events.Dial"

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

func (r *RedisStream) Publish(ctx context.Context, e Event) error {
	const op = "events.RedisStream.Publish"

	e = stamp(e)
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"type":    e.Type,
			"payload": string(body),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
