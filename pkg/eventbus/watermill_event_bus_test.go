package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/buildforge/pkg/channels/gochannel"
	"github.com/buildforge/buildforge/pkg/events"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	received := make(chan any, 1)

	require.NoError(t, bus.Handle(events.RunFailedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	err = bus.Publish(ctx, "wf-1", events.RunFailed{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.RunFailedEvent,
			Timestamp:  time.Now(),
			WorkflowID: "wf-1",
			RunID:      "run-1",
		},
		FailedStepID: "build-1",
		Error:        "boom",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		failed, ok := event.(*events.RunFailed)
		require.True(t, ok)
		assert.Equal(t, "run-1", failed.RunID)
		assert.Equal(t, "build-1", failed.FailedStepID)
		assert.Equal(t, "boom", failed.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestUnhandledEventTypeIsAcked(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))
	require.NoError(t, bus.Publish(ctx, "wf-1", events.StepStarted{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.StepStartedEvent, WorkflowID: "wf-1"},
		StepID:    "s1",
	}))
}
