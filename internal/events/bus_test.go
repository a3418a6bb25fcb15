package events

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	b := NewBus()
	var order []string
	b.Subscribe(TopicUIUpdates, func(Event) error { order = append(order, "first"); return nil })
	b.Subscribe(TopicUIUpdates, func(Event) error { order = append(order, "second"); return nil })

	b.Publish(New(TopicUIUpdates, UIUpdate{Kind: "signal_published"}))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBusTopicIsolation(t *testing.T) {
	b := NewBus()
	var got int
	b.Subscribe(TopicRiskResponses, func(Event) error { got++; return nil })

	b.Publish(New(TopicUIUpdates, UIUpdate{}))
	assert.Zero(t, got, "handlers only see their own topic")

	b.Publish(New(TopicRiskResponses, RiskAdvisory{UserID: "u1"}))
	assert.Equal(t, 1, got)
}

func TestBusHandlerFailureIsIsolated(t *testing.T) {
	b := NewBus()
	var delivered []string
	b.Subscribe(TopicFeedback, func(Event) error { return errors.New("boom") })
	b.Subscribe(TopicFeedback, func(Event) error { panic("worse") })
	b.Subscribe(TopicFeedback, func(Event) error { delivered = append(delivered, "ok"); return nil })

	b.Publish(New(TopicFeedback, FeedbackOutcome{PickID: "p1"}))
	assert.Equal(t, []string{"ok"}, delivered, "an erroring or panicking handler never starves the rest")
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()
	var got int
	sub := b.Subscribe(TopicUserActivity, func(Event) error { got++; return nil })

	b.Publish(New(TopicUserActivity, UserActivity{UserID: "u1"}))
	b.Unsubscribe(sub)
	b.Publish(New(TopicUserActivity, UserActivity{UserID: "u1"}))
	assert.Equal(t, 1, got)

	// Unsubscribing twice (or nil) is harmless.
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)
}

func TestBusRecent(t *testing.T) {
	b := NewBus()
	for i := 0; i < 5; i++ {
		b.Publish(New(TopicMarketMovements, MarketMovement{GameID: fmt.Sprintf("g%d", i)}))
	}

	recent := b.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "g4", recent[0].Payload.(MarketMovement).GameID, "newest first")
	assert.Equal(t, "g2", recent[2].Payload.(MarketMovement).GameID)

	// Asking for more than was ever published returns what exists.
	assert.Len(t, b.Recent(100), 5)
}

func TestNewStampsEnvelope(t *testing.T) {
	evt := New(TopicSimResponses, SimulationResult{EventID: "evt-1"})
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, TopicSimResponses, evt.Topic)
	assert.False(t, evt.Timestamp.IsZero())

	other := New(TopicSimResponses, SimulationResult{EventID: "evt-1"})
	assert.NotEqual(t, evt.ID, other.ID)
}
