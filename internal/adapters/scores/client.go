// Package scores fetches final scores by exact provider event id. Fuzzy
// matching is forbidden: team-name verification against the local event
// happens in the grading service, which freezes grading on drift.
package scores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/betflow/betflow/internal/core/grading"
)

// ErrNotFound means the provider has no event under that id.
var ErrNotFound = errors.New("scores: event not found")

// Client talks to the score provider.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "score-provider",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

// wireScore matches the provider's snake_case payload.
type wireScore struct {
	EventID    string `json:"event_id"`
	HomeTeam   string `json:"home_team"`
	AwayTeam   string `json:"away_team"`
	HomeScore  int    `json:"home_score"`
	AwayScore  int    `json:"away_score"`
	Completed  bool   `json:"completed"`
	LastUpdate string `json:"last_update"`
}

// FetchScore returns the final score for an exact provider event id.
func (c *Client) FetchScore(ctx context.Context, sport, eventID string) (grading.FinalScore, error) {
	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("eventIds", eventID)
	reqURL := fmt.Sprintf("%s/sports/%s/scores?%s", c.baseURL, sport, q.Encode())

	out, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("scores: fetch %s: %w", eventID, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("scores: read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("scores: %s returned %d", eventID, resp.StatusCode)
		}

		var ws []wireScore
		if err := json.Unmarshal(body, &ws); err != nil {
			return nil, fmt.Errorf("scores: decode: %w", err)
		}
		for _, w := range ws {
			if w.EventID == eventID {
				return w, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, eventID)
	})
	if err != nil {
		return grading.FinalScore{}, err
	}

	w := out.(wireScore)
	fs := grading.FinalScore{
		EventID:   w.EventID,
		HomeTeam:  w.HomeTeam,
		AwayTeam:  w.AwayTeam,
		HomeScore: w.HomeScore,
		AwayScore: w.AwayScore,
		Completed: w.Completed,
	}
	if t, err := time.Parse(time.RFC3339, w.LastUpdate); err == nil {
		fs.LastUpdate = t
	}
	return fs, nil
}
