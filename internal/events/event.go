package events

import (
	"time"

	"github.com/google/uuid"
)

type Sport string

const (
	SportMLB   Sport = "mlb"
	SportNBA   Sport = "nba"
	SportNCAAB Sport = "ncaab"
	SportNCAAF Sport = "ncaaf"
	SportNFL   Sport = "nfl"
	SportNHL   Sport = "nhl"
)

// Topic addresses a stream on the bus. Agents subscribe per topic;
// there is no ordering guarantee across topics.
type Topic string

const (
	TopicParlayRequests  Topic = "parlay.requests"
	TopicParlayResponses Topic = "parlay.responses"
	TopicRiskAlerts      Topic = "risk.alerts"
	TopicRiskResponses   Topic = "risk.responses"
	TopicSimResponses    Topic = "simulation.responses"
	TopicUserActivity    Topic = "user.activity"
	TopicFeedback        Topic = "feedback.outcomes"
	TopicMarketMovements Topic = "market.movements"
	TopicUIUpdates       Topic = "ui.updates"
)

// Event is the envelope that flows through the bus. Payload is one of the
// typed structs in types.go, keyed by Topic.
type Event struct {
	ID        string
	Topic     Topic
	Timestamp time.Time
	Payload   any
}

// Publisher is the publish-only capability handed to agents. Agents never
// hold the full bus; the orchestrator owns subscription wiring.
type Publisher interface {
	Publish(Event)
}

// New stamps a payload with a fresh id and the current UTC time.
func New(topic Topic, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
