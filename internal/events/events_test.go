package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversByType(t *testing.T) {
	bus := NewBus()
	var created, all []Event
	bus.Subscribe(BookingCreated, func(ctx context.Context, e Event) error {
		created = append(created, e)
		return nil
	})
	bus.Subscribe("", func(ctx context.Context, e Event) error {
		all = append(all, e)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), Event{Type: BookingCreated}))
	require.NoError(t, bus.Publish(context.Background(), Event{Type: BookingCanceled}))

	require.Len(t, created, 1)
	assert.Len(t, all, 2)
	assert.NotEqual(t, uuid.Nil, created[0].ID)
	assert.False(t, created[0].OccurredAt.IsZero())
}

func TestBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")
	ran := 0
	bus.Subscribe(BookingConfirmed, func(ctx context.Context, e Event) error {
		ran++
		return boom
	})
	bus.Subscribe(BookingConfirmed, func(ctx context.Context, e Event) error {
		ran++
		return nil
	})

	err := bus.Publish(context.Background(), Event{Type: BookingConfirmed})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, ran)
}

func TestMulti(t *testing.T) {
	a, b := NewBus(), NewBus()
	var ids []uuid.UUID
	record := func(ctx context.Context, e Event) error {
		ids = append(ids, e.ID)
		return nil
	}
	a.Subscribe("", record)
	b.Subscribe("", record)

	require.NoError(t, Multi{a, b, Discard{}}.Publish(context.Background(), Event{Type: DateBlocked}))
	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1], "fan-out keeps one event id")
}

func TestRedisStream_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	pub := NewRedisStream(client, "test:events")
	e := Event{
		Type:       BookingCreated,
		ResourceID: uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		BookingID:  uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		Date:       "2026-03-02",
		To:         "requested",
	}
	require.NoError(t, pub.Publish(context.Background(), e))

	msgs, err := client.XRange(context.Background(), "test:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, BookingCreated, msgs[0].Values["type"])

	var got Event
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["payload"].(string)), &got))
	assert.Equal(t, e.BookingID, got.BookingID)
	assert.Equal(t, "2026-03-02", got.Date)
	assert.NotEqual(t, uuid.Nil, got.ID)
}

func TestRedisStream_DefaultStreamName(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, NewRedisStream(client, "").Publish(context.Background(), Event{Type: DateUnblocked}))

	n, err := client.XLen(context.Background(), DefaultStream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStream_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	err := NewRedisStream(client, "x").Publish(context.Background(), Event{Type: BookingCreated})
	assert.Error(t, err)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Dial(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	_ = client.Close()
}
