// Package odds fetches pregame and live market prices from the odds
// provider. The client paces requests, trips a breaker on provider
// failures, and rotates through an API key pool on quota exhaustion.
package odds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/betflow/betflow/internal/telemetry"
)

// ErrQuotaExhausted means every key in the pool is out of usage credits.
// Transient: callers may retry after the provider's quota window resets.
var ErrQuotaExhausted = errors.New("odds: api key pool exhausted")

// ErrNoKeys means the client was built without any API keys.
var ErrNoKeys = errors.New("odds: no api keys configured")

// quotaMarker is the provider's body marker on a 401 quota rejection.
const quotaMarker = "OUT_OF_USAGE_CREDITS"

// Market keys the adapter supports.
const (
	MarketH2H      = "h2h"
	MarketSpreads  = "spreads"
	MarketTotals   = "totals"
	MarketTotals1H = "totals_1h"
)

// Outcome is one priced side within a market.
type Outcome struct {
	Name  string   `json:"name"`
	Price int      `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// Market is one book's quotes for a market key.
type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

// Bookmaker is one book's markets on an event.
type Bookmaker struct {
	Key     string   `json:"key"`
	Markets []Market `json:"markets"`
}

// Event is one upcoming game with its quoted markets.
type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	CommenceTime time.Time   `json:"commence_time"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// keyPool is an ordered API key rotation. Rotation is sticky: once a key
// exhausts its quota the pool moves on and stays there.
type keyPool struct {
	mu   sync.Mutex
	keys []string
	idx  int
	used int // rotations since the last successful call
}

func (p *keyPool) current() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", ErrNoKeys
	}
	return p.keys[p.idx], nil
}

// rotate advances to the next key; false when the pool has gone all the
// way around without a successful call.
func (p *keyPool) rotate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idx = (p.idx + 1) % len(p.keys)
	p.used++
	telemetry.Metrics.KeyRotations.Inc()
	return p.used < len(p.keys)
}

func (p *keyPool) markGood() {
	p.mu.Lock()
	p.used = 0
	p.mu.Unlock()
}

// Client talks to the odds provider.
type Client struct {
	baseURL string
	region  string
	pool    *keyPool
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a client. Timeout is the per-call deadline; requests
// are paced to one per second with short bursts.
func NewClient(baseURL, region string, keys []string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		region:  region,
		pool:    &keyPool{keys: keys},
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "odds-provider",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

// FetchEvents returns upcoming events with the requested markets quoted.
// On a quota 401 the key pool rotates and the call retries once per key
// until the pool is exhausted.
func (c *Client) FetchEvents(ctx context.Context, sport string, markets []string) ([]Event, error) {
	for {
		key, err := c.pool.current()
		if err != nil {
			return nil, err
		}

		evs, err := c.fetch(ctx, sport, markets, key)
		if err == nil {
			c.pool.markGood()
			return evs, nil
		}

		var qe *quotaError
		if !errors.As(err, &qe) {
			return nil, err
		}
		telemetry.Warnf("odds: key exhausted, rotating pool")
		if !c.pool.rotate() {
			c.pool.markGood() // reset so a later retry walks the pool again
			return nil, ErrQuotaExhausted
		}
	}
}

// quotaError distinguishes the rotatable 401 from every other failure.
type quotaError struct{ body string }

func (e *quotaError) Error() string { return "odds: out of usage credits" }

func (c *Client) fetch(ctx context.Context, sport string, markets []string, apiKey string) ([]Event, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("apiKey", apiKey)
	q.Set("regions", c.region)
	q.Set("markets", strings.Join(markets, ","))
	q.Set("oddsFormat", "american")
	reqURL := fmt.Sprintf("%s/sports/%s/odds?%s", c.baseURL, sport, q.Encode())

	start := time.Now()
	out, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("odds: fetch %s: %w", sport, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("odds: read body: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized && strings.Contains(string(body), quotaMarker) {
			return nil, &quotaError{body: string(body)}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("odds: %s returned %d: %s", sport, resp.StatusCode, truncate(string(body), 200))
		}

		var evs []Event
		if err := json.Unmarshal(body, &evs); err != nil {
			return nil, fmt.Errorf("odds: decode events: %w", err)
		}
		return evs, nil
	})
	telemetry.Metrics.OddsFetches.Inc()
	telemetry.Metrics.OddsFetchLatency.Record(time.Since(start))
	if err != nil {
		return nil, err
	}
	return out.([]Event), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
