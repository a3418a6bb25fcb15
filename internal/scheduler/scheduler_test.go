package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/betflow/betflow/internal/adapters/odds"
	"github.com/betflow/betflow/internal/config"
	"github.com/betflow/betflow/internal/events"
)

func TestInWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := config.WaveWindow{FromMinutes: 60, ToMinutes: 75}

	assert.True(t, inWindow(now, now.Add(60*time.Minute), w))
	assert.True(t, inWindow(now, now.Add(70*time.Minute), w))
	assert.True(t, inWindow(now, now.Add(75*time.Minute), w))

	assert.False(t, inWindow(now, now.Add(59*time.Minute), w))
	assert.False(t, inWindow(now, now.Add(76*time.Minute), w))
	assert.False(t, inWindow(now, now.Add(-time.Hour), w), "started games are out of every window")
}

func TestProviderSportKey(t *testing.T) {
	key, ok := ProviderSportKey(events.SportNBA)
	assert.True(t, ok)
	assert.Equal(t, "basketball_nba", key)

	key, ok = ProviderSportKey(events.SportNHL)
	assert.True(t, ok)
	assert.Equal(t, "icehockey_nhl", key)

	_, ok = ProviderSportKey(events.Sport("cricket"))
	assert.False(t, ok)
}

func TestAllConfirmedLineup(t *testing.T) {
	l := AllConfirmed{}.LineupFor(context.Background(), odds.Event{})
	assert.True(t, l.PitcherConfirmed)
	assert.True(t, l.QBConfirmed)
	assert.True(t, l.GoalieConfirmed)
	assert.True(t, l.WeatherOK)
}
