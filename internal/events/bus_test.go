package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPublishSyncDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer shutdownBus(t, bus)

	var got atomic.Int32
	bus.SubscribeFunc(CandidateDetected, func(_ context.Context, e Event) error {
		assert.Equal(t, CandidateDetected, e.Type())
		got.Add(1)
		return nil
	})

	err := bus.PublishSync(context.Background(), CandidateDetectedEvent{
		BaseEvent: NewBase(CandidateDetected),
		Signature: "sig-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.Load())
}

func TestPublishSyncIgnoresOtherTypes(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer shutdownBus(t, bus)

	var got atomic.Int32
	bus.SubscribeFunc(PositionClosed, func(context.Context, Event) error {
		got.Add(1)
		return nil
	})

	require.NoError(t, bus.PublishSync(context.Background(), CandidateDetectedEvent{
		BaseEvent: NewBase(CandidateDetected),
	}))
	assert.Zero(t, got.Load())
}

func TestPublishAsyncDispatch(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)

	done := make(chan struct{})
	bus.SubscribeFunc(SignalGenerated, func(context.Context, Event) error {
		close(done)
		return nil
	})

	require.NoError(t, bus.Publish(SignalGeneratedEvent{BaseEvent: NewBase(SignalGenerated)}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
	shutdownBus(t, bus)
}

func TestPublishAfterShutdown(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	shutdownBus(t, bus)

	err := bus.Publish(CandidateDetectedEvent{BaseEvent: NewBase(CandidateDetected)})
	assert.Error(t, err)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer shutdownBus(t, bus)

	var got atomic.Int32
	sub := bus.SubscribeFunc(PositionOpened, func(context.Context, Event) error {
		got.Add(1)
		return nil
	})
	sub.Unsubscribe()

	require.NoError(t, bus.PublishSync(context.Background(), PositionOpenedEvent{
		BaseEvent: NewBase(PositionOpened),
	}))
	assert.Zero(t, got.Load())
}

func TestPublishSyncCollectsHandlerErrors(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer shutdownBus(t, bus)

	bus.SubscribeFunc(PersistenceDegraded, func(context.Context, Event) error {
		return errors.New("handler failed")
	})

	err := bus.PublishSync(context.Background(), PersistenceDegradedEvent{
		BaseEvent: NewBase(PersistenceDegraded),
	})
	assert.Error(t, err)
}

func shutdownBus(t *testing.T, bus *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = bus.Shutdown(ctx)
}
