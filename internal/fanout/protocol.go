package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/betflow/betflow/internal/events"
)

// Envelope is the wire format for events sent over the fanout WebSocket.
// Keys are snake_case; timestamps are RFC-3339 UTC.
type Envelope struct {
	Topic     events.Topic    `json:"topic"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// MarshalEvent serializes an Event into a JSON-encoded Envelope.
func MarshalEvent(evt events.Event) ([]byte, error) {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		Topic:     evt.Topic,
		ID:        evt.ID,
		Timestamp: evt.Timestamp.UTC(),
		Data:      data,
	}
	return json.Marshal(env)
}

// UnmarshalEvent deserializes a JSON Envelope back into a typed Event.
// The payload variant is selected by topic.
func UnmarshalEvent(data []byte) (events.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	evt := events.Event{
		ID:        env.ID,
		Topic:     env.Topic,
		Timestamp: env.Timestamp,
	}

	payload, err := decodePayload(env.Topic, env.Data)
	if err != nil {
		return evt, err
	}
	evt.Payload = payload
	return evt, nil
}

func decodePayload(topic events.Topic, data json.RawMessage) (any, error) {
	switch topic {
	case events.TopicParlayRequests:
		return decodeAs[events.ParlayRequest](topic, data)
	case events.TopicParlayResponses:
		return decodeAs[events.ParlayResponse](topic, data)
	case events.TopicRiskAlerts:
		return decodeAs[events.RiskCheckRequest](topic, data)
	case events.TopicRiskResponses:
		return decodeAs[events.RiskAdvisory](topic, data)
	case events.TopicSimResponses:
		return decodeAs[events.SimulationResult](topic, data)
	case events.TopicUserActivity:
		return decodeAs[events.UserActivity](topic, data)
	case events.TopicFeedback:
		return decodeAs[events.FeedbackOutcome](topic, data)
	case events.TopicMarketMovements:
		return decodeAs[events.MarketMovement](topic, data)
	case events.TopicUIUpdates:
		return decodeAs[events.UIUpdate](topic, data)
	default:
		return nil, fmt.Errorf("unknown topic: %s", topic)
	}
}

func decodeAs[T any](topic events.Topic, data json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", topic, err)
	}
	return v, nil
}
