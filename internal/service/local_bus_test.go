package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

func TestLocalBus_PublishMatchesPatterns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocalBus()
	all, err := bus.Subscribe(ctx, "arb:*")
	require.NoError(t, err)
	halts, err := bus.Subscribe(ctx, domain.ChannelHalts)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelExecutions, []byte("e1")))
	require.NoError(t, bus.Publish(ctx, domain.ChannelHalts, []byte("h1")))

	assert.Equal(t, []byte("e1"), <-all)
	assert.Equal(t, []byte("h1"), <-all)
	assert.Equal(t, []byte("h1"), <-halts)
	select {
	case msg := <-halts:
		t.Fatalf("unexpected message %q", msg)
	default:
	}
}

func TestLocalBus_SubscriptionClosesWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewLocalBus()
	ch, err := bus.Subscribe(ctx, "arb:*")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription did not close")
	}
	// Publishing after the subscriber left must not panic.
	require.NoError(t, bus.Publish(context.Background(), "arb:x", []byte("late")))
}

func TestLocalBus_StreamReadAfterID(t *testing.T) {
	ctx := context.Background()
	bus := NewLocalBus()
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamExecutions, []byte(p)))
	}

	first, err := bus.StreamRead(ctx, domain.StreamExecutions, "0", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, []byte("a"), first[0].Payload)

	rest, err := bus.StreamRead(ctx, domain.StreamExecutions, first[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []byte("c"), rest[0].Payload)

	_, err = bus.StreamRead(ctx, domain.StreamExecutions, "bogus-x", 10)
	assert.Error(t, err)
}
