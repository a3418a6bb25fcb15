package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/betflow/betflow/internal/adapters/odds"
	"github.com/betflow/betflow/internal/events"
)

// SimCache holds the latest simulation result per event, fed from the
// simulation.responses topic. It is the scheduler's Simulator: the
// numerical simulator itself is an external collaborator, and the core
// only consumes its output contract. Entries expire after the TTL so a
// wave never publishes on a stale distribution.
type SimCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]simEntry
}

type simEntry struct {
	sim events.SimulationResult
	at  time.Time
}

func NewSimCache(ttl time.Duration) *SimCache {
	return &SimCache{ttl: ttl, entries: make(map[string]simEntry)}
}

// Handle is the bus handler for simulation.responses.
func (c *SimCache) Handle(evt events.Event) error {
	sim, ok := evt.Payload.(events.SimulationResult)
	if !ok {
		return fmt.Errorf("simcache: unexpected payload on %s", evt.Topic)
	}
	c.Put(sim)
	return nil
}

// Put stores a result directly; tests and replay tooling use it.
func (c *SimCache) Put(sim events.SimulationResult) {
	c.mu.Lock()
	c.entries[sim.EventID] = simEntry{sim: sim, at: time.Now().UTC()}
	c.mu.Unlock()
}

// Simulate satisfies scheduler.Simulator from the cache. A miss or an
// expired entry is an error; the sweep skips the game and retries on
// the next tick.
func (c *SimCache) Simulate(_ context.Context, ev odds.Event) (events.SimulationResult, error) {
	c.mu.Lock()
	entry, ok := c.entries[ev.ID]
	c.mu.Unlock()

	if !ok {
		return events.SimulationResult{}, fmt.Errorf("simcache: no simulation for %s", ev.ID)
	}
	if time.Since(entry.at) > c.ttl {
		return events.SimulationResult{}, fmt.Errorf("simcache: simulation for %s is stale", ev.ID)
	}
	return entry.sim, nil
}
