package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	registrybroker "github.com/chirino/solace-bridge/internal/registry/broker"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	got := make(chan registrybroker.Delivery, 1)

	sub, err := b.Subscribe(context.Background(), "q1", func(_ context.Context, d registrybroker.Delivery) error {
		got <- d
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	err = b.Publish(context.Background(), "q1", "hello", map[string]string{
		"messageId":     "m1",
		"correlationId": "c1",
		"custom":        "v",
	})
	require.NoError(t, err)

	select {
	case d := <-got:
		require.Equal(t, "hello", d.Payload)
		require.Equal(t, "m1", d.MessageID)
		require.Equal(t, "c1", d.CorrelationID)
		require.Equal(t, "v", d.Properties["custom"])
	case <-time.After(time.Second):
		t.Fatal("delivery never arrived")
	}
}

func TestHandlerErrorRedeliversOnce(t *testing.T) {
	b := New()
	var calls atomic.Int32

	sub, err := b.Subscribe(context.Background(), "q", func(_ context.Context, _ registrybroker.Delivery) error {
		if calls.Add(1) == 1 {
			return errors.New("nack")
		}
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	require.NoError(t, b.Publish(context.Background(), "q", "retry me", nil))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
}

func TestDepthAndDrain(t *testing.T) {
	b := New()
	require.NoError(t, b.Publish(context.Background(), "q", "a", nil))
	require.NoError(t, b.Publish(context.Background(), "q", "b", nil))
	require.Equal(t, 2, b.Depth("q"))

	ds := b.Drain("q")
	require.Len(t, ds, 2)
	require.Zero(t, b.Depth("q"))
}

func TestPublishAfterClose(t *testing.T) {
	b := New()
	require.NoError(t, b.Close())
	require.Error(t, b.Publish(context.Background(), "q", "late", nil))
	// Idempotent.
	require.NoError(t, b.Close())
}
