package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betflow/betflow/internal/adapters/odds"
	"github.com/betflow/betflow/internal/events"
)

func TestSimCacheServesLatestResult(t *testing.T) {
	c := NewSimCache(time.Minute)

	require.NoError(t, c.Handle(events.New(events.TopicSimResponses, events.SimulationResult{
		EventID: "evt-1", ConvergenceRate: 0.85, ModelVersion: "mc-1",
	})))
	require.NoError(t, c.Handle(events.New(events.TopicSimResponses, events.SimulationResult{
		EventID: "evt-1", ConvergenceRate: 0.93, ModelVersion: "mc-1",
	})))

	sim, err := c.Simulate(context.Background(), odds.Event{ID: "evt-1"})
	require.NoError(t, err)
	assert.InDelta(t, 0.93, sim.ConvergenceRate, 0.0001, "later results replace earlier ones")
}

func TestSimCacheMissAndExpiry(t *testing.T) {
	c := NewSimCache(10 * time.Millisecond)

	_, err := c.Simulate(context.Background(), odds.Event{ID: "evt-unknown"})
	assert.Error(t, err)

	c.Put(events.SimulationResult{EventID: "evt-1"})
	time.Sleep(25 * time.Millisecond)
	_, err = c.Simulate(context.Background(), odds.Event{ID: "evt-1"})
	assert.Error(t, err, "a stale distribution is never served")
}

func TestSimCacheRejectsForeignPayload(t *testing.T) {
	c := NewSimCache(time.Minute)
	err := c.Handle(events.New(events.TopicSimResponses, events.MarketMovement{GameID: "g1"}))
	assert.Error(t, err)
}
