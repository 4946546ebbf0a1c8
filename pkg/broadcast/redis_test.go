package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveMessage(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestRedisChannelDropsOwnMessages(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()
	ctx := context.Background()

	a := NewRedisChannel(client, "caresync_orders_sync", "tab-a", nil)
	b := NewRedisChannel(client, "caresync_orders_sync", "tab-b", nil)
	defer a.Close()
	defer b.Close()

	gotA := make(chan Message, 4)
	gotB := make(chan Message, 4)
	_, err := a.Subscribe(ctx, func(msg Message) { gotA <- msg })
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, func(msg Message) { gotB <- msg })
	require.NoError(t, err)

	orders := models.SeedOrders()
	require.NoError(t, a.Publish(ctx, SyncOrders(orders, 3, "")))
	msg := receiveMessage(t, gotB)
	assert.Equal(t, "tab-a", msg.Origin, "origin stamped on publish")
	assert.EqualValues(t, 3, msg.Version)
	assert.Equal(t, orders, msg.Payload)

	require.NoError(t, b.Publish(ctx, SyncOrders(nil, 4, "")))
	// Redis delivers in order, so tab-a's own message was dropped if the
	// first one it sees is tab-b's.
	msg = receiveMessage(t, gotA)
	assert.Equal(t, "tab-b", msg.Origin)
	assert.Equal(t, []models.Order{}, msg.Payload)
	assert.Empty(t, gotB)
}

func TestRedisChannelClose(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()
	ctx := context.Background()

	c := NewRedisChannel(client, "caresync_orders_sync", "tab-a", nil)
	sub, err := c.Subscribe(ctx, func(Message) {})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.NoError(t, sub.Close(), "closing twice is harmless")

	_, err = c.Subscribe(ctx, func(Message) {})
	assert.ErrorIs(t, err, ErrClosed)
}
