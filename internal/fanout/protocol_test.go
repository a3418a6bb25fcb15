package fanout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betflow/betflow/internal/events"
)

func roundTrip(t *testing.T, evt events.Event) events.Event {
	t.Helper()
	data, err := MarshalEvent(evt)
	require.NoError(t, err)
	out, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, out.ID)
	assert.Equal(t, evt.Topic, out.Topic)
	return out
}

func TestRoundTripTypedPayloads(t *testing.T) {
	out := roundTrip(t, events.New(events.TopicParlayRequests, events.ParlayRequest{
		RequestID: "r1", UserID: "u1", RiskProfile: "BALANCED", LegCount: 3, Mode: "PARLAY_MODE",
	}))
	req, ok := out.Payload.(events.ParlayRequest)
	require.True(t, ok)
	assert.Equal(t, 3, req.LegCount)

	// risk.alerts carries the inbound size-check request, not the advisory.
	out = roundTrip(t, events.New(events.TopicRiskAlerts, events.RiskCheckRequest{
		RequestID: "r2", UserID: "u1", Amount: 400, Odds: -110, WinProb: 0.55,
	}))
	check, ok := out.Payload.(events.RiskCheckRequest)
	require.True(t, ok)
	assert.Equal(t, -110, check.Odds)

	out = roundTrip(t, events.New(events.TopicRiskResponses, events.RiskAdvisory{
		UserID: "u1", AlertLevel: "DANGER", Reasons: []string{"BANKROLL_PCT_DANGER"},
	}))
	adv, ok := out.Payload.(events.RiskAdvisory)
	require.True(t, ok)
	assert.Equal(t, "DANGER", adv.AlertLevel)

	out = roundTrip(t, events.New(events.TopicSimResponses, events.SimulationResult{
		EventID:          "evt-1",
		WinProbabilities: map[string]float64{"New York Knicks": 0.62, "Atlanta Hawks": 0.38},
		ConvergenceRate:  0.91,
		NumSimulations:   25_000,
		ModelVersion:     "mc-1",
	}))
	sim, ok := out.Payload.(events.SimulationResult)
	require.True(t, ok)
	assert.InDelta(t, 0.62, sim.WinProbabilities["New York Knicks"], 0.0001)

	out = roundTrip(t, events.New(events.TopicMarketMovements, events.MarketMovement{
		GameID: "evt-1", MarketKey: "SPREAD", SpreadDelta: -1.5,
	}))
	mv, ok := out.Payload.(events.MarketMovement)
	require.True(t, ok)
	assert.InDelta(t, -1.5, mv.SpreadDelta, 0.0001)
}

func TestUnmarshalUnknownTopic(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"topic":"nope.unknown","data":{}}`))
	assert.Error(t, err)
}

func TestUnmarshalGarbage(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{not json`))
	assert.Error(t, err)

	// A valid envelope with a mistyped payload is rejected, not coerced.
	_, err = UnmarshalEvent([]byte(`{"topic":"risk.alerts","data":{"amount":"lots"}}`))
	assert.Error(t, err)
}
