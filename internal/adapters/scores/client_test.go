package scores

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchScoreExactID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sports/basketball_nba/scores", r.URL.Path)
		assert.Equal(t, "evt-1", r.URL.Query().Get("eventIds"))
		w.Write([]byte(`[
			{"event_id": "evt-other", "home_team": "X", "away_team": "Y", "home_score": 1, "away_score": 2, "completed": true},
			{"event_id": "evt-1", "home_team": "New York Knicks", "away_team": "Atlanta Hawks",
			 "home_score": 110, "away_score": 102, "completed": true, "last_update": "2026-03-01T22:10:00Z"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", 5*time.Second)
	fs, err := c.FetchScore(context.Background(), "basketball_nba", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", fs.EventID)
	assert.Equal(t, "New York Knicks", fs.HomeTeam)
	assert.Equal(t, 110, fs.HomeScore)
	assert.Equal(t, 102, fs.AwayScore)
	assert.True(t, fs.Completed)
	assert.Equal(t, time.Date(2026, 3, 1, 22, 10, 0, 0, time.UTC), fs.LastUpdate)
}

func TestFetchScoreNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", 5*time.Second)
	_, err := c.FetchScore(context.Background(), "basketball_nba", "evt-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchScoreProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", 5*time.Second)
	_, err := c.FetchScore(context.Background(), "basketball_nba", "evt-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
