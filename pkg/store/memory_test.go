package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
		return Change{}
	}
}

func TestMemorySessionsShareData(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	a, b := backend.Session(), backend.Session()

	require.NoError(t, a.Set(ctx, "k", "v1"))
	v, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v1", v)

	_, found, _ = b.Get(ctx, "other")
	assert.False(t, found)
}

func TestMemoryWatchSkipsOwnWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := NewMemoryBackend()
	a, b := backend.Session(), backend.Session()

	chA, err := a.Watch(ctx, "orders")
	require.NoError(t, err)
	chB, err := b.Watch(ctx, "orders")
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, "orders", "[1]"))
	require.NoError(t, a.Set(ctx, "unwatched", "x"))

	got := receive(t, chB)
	assert.Equal(t, Change{Key: "orders", Value: "[1]"}, got)

	select {
	case c := <-chA:
		t.Fatalf("writer saw its own change: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}

	backend.Put("orders", "[2]")
	assert.Equal(t, "[2]", receive(t, chA).Value)
	assert.Equal(t, "[2]", receive(t, chB).Value)
}

func TestMemoryWatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewMemoryBackend().Session().Watch(ctx, "orders")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}

func TestMemoryRemoveNotifiesWatchers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := NewMemoryBackend()
	s := backend.Session()
	require.NoError(t, s.Set(ctx, "orders", "[1]"))

	ch, err := s.Watch(ctx, "orders")
	require.NoError(t, err)

	backend.Remove("orders")
	assert.Equal(t, Change{Key: "orders", Deleted: true}, receive(t, ch))

	_, found, err := s.Get(ctx, "orders")
	require.NoError(t, err)
	assert.False(t, found)
}
