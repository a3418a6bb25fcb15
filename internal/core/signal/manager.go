package signal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betflow/betflow/internal/config"
	"github.com/betflow/betflow/internal/core/edge"
	"github.com/betflow/betflow/internal/core/sportcfg"
	"github.com/betflow/betflow/internal/events"
	"github.com/betflow/betflow/internal/store"
	"github.com/betflow/betflow/internal/telemetry"
)

var (
	// ErrLockedSignal rejects any transition attempted after game start.
	ErrLockedSignal = errors.New("signal: locked signal cannot transition")
	// ErrEntryFrozen rejects a second, different entry on a published signal.
	ErrEntryFrozen = errors.New("signal: entry already captured")
	ErrNotFound    = errors.New("signal: not found")
	// ErrUnknownSport means the registry carries no config for the sport.
	ErrUnknownSport = errors.New("signal: unknown sport")
)

// Identical market captures within this window resolve to one snapshot.
const snapshotDedupWindow = time.Hour

// Manager owns signals and their append-only sub-entities. Mutations of
// one signal are serialized through a per-signal lock so no two
// concurrent callers advance the same signal; the store is the
// authoritative copy and every mutation writes through.
type Manager struct {
	signals   *store.Collection
	snapshots *store.Collection
	sims      *store.Collection
	ops       *store.Collection
	registry  *sportcfg.Registry
	waves     config.Waves
	pub       events.Publisher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(st *store.Store, reg *sportcfg.Registry, waves config.Waves, pub events.Publisher) *Manager {
	return &Manager{
		signals:   st.Collection(store.ColSignals),
		snapshots: st.Collection(store.ColSnapshots),
		sims:      st.Collection(store.ColSimulations),
		ops:       st.Collection(store.ColOpsAlerts),
		registry:  reg,
		waves:     waves,
		pub:       pub,
		locks:     make(map[string]*sync.Mutex),
	}
}

// opsAlert records an integrity violation for the ops review queue.
func (m *Manager) opsAlert(ctx context.Context, alertType, eventID, detail string) {
	if err := m.ops.Insert(ctx, uuid.NewString(), map[string]any{
		"alert_type": alertType,
		"event_id":   eventID,
		"detail":     detail,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		telemetry.Warnf("signal: persist ops alert: %v", err)
	}
}

// lockFor hands out the serialization lock for one signal id.
func (m *Manager) lockFor(signalID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[signalID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[signalID] = l
	}
	return l
}

// CreateMarketSnapshot content-addresses the capture and deduplicates it
// against recent captures: an identical market seen again within an hour
// returns the already-stored snapshot, same id and all.
func (m *Manager) CreateMarketSnapshot(ctx context.Context, snap MarketSnapshot) (MarketSnapshot, error) {
	snap.Hash = snap.ContentHash()
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}

	rows, err := m.snapshots.Find(ctx, store.FindOpts{
		Eq:      map[string]any{"hash": snap.Hash},
		OrderBy: "captured_at", Desc: true, Limit: 1,
	})
	if err != nil {
		return snap, err
	}
	if len(rows) > 0 {
		prior, err := store.DecodeAll[MarketSnapshot](rows)
		if err != nil {
			return snap, err
		}
		if snap.CapturedAt.Sub(prior[0].CapturedAt) < snapshotDedupWindow {
			return prior[0], nil
		}
	}

	snap.SnapshotID = uuid.NewString()
	if err := m.snapshots.Insert(ctx, snap.SnapshotID, snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// RecordSimulationRun appends a run to the global simulations collection
// so any wave (and the replay tooling) can see it.
func (m *Manager) RecordSimulationRun(ctx context.Context, run SimulationRun) (SimulationRun, error) {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if err := m.sims.Insert(ctx, run.RunID, run); err != nil {
		return run, err
	}
	return run, nil
}

// CreateSignal opens a new signal in DISCOVERED state (wave-1 entry).
func (m *Manager) CreateSignal(ctx context.Context, game GameMeta, intent Intent, market edge.MarketKey) (*Signal, error) {
	sig := &Signal{
		SignalID:    uuid.NewString(),
		GameID:      game.GameID,
		Sport:       game.Sport,
		HomeTeam:    game.HomeTeam,
		AwayTeam:    game.AwayTeam,
		GameTime:    game.GameTime.UTC(),
		Intent:      intent,
		MarketKey:   market,
		State:       StateDiscovered,
		CreatedAt:   time.Now().UTC(),
		Snapshots:   []MarketSnapshot{},
		Runs:        []SimulationRun{},
		Evaluations: []WaveEvaluation{},
	}
	if err := m.signals.Insert(ctx, sig.SignalID, sig); err != nil {
		return nil, err
	}
	telemetry.Metrics.SignalsCreated.Inc()
	telemetry.Metrics.ActiveSignals.Inc()
	return sig, nil
}

// Get loads one signal by id.
func (m *Manager) Get(ctx context.Context, signalID string) (*Signal, error) {
	var sig Signal
	found, err := m.signals.Get(ctx, signalID, &sig)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, signalID)
	}
	return &sig, nil
}

// FindCurrent returns the newest signal for a game/market pair.
func (m *Manager) FindCurrent(ctx context.Context, gameID string, market edge.MarketKey) (*Signal, bool, error) {
	rows, err := m.signals.Find(ctx, store.FindOpts{
		Eq:      map[string]any{"game_id": gameID, "market_key": string(market)},
		OrderBy: "created_at", Desc: true, Limit: 1,
	})
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	sigs, err := store.DecodeAll[Signal](rows)
	if err != nil {
		return nil, false, err
	}
	return &sigs[0], true, nil
}

// SignalsInState lists every signal currently in the given state.
func (m *Manager) SignalsInState(ctx context.Context, st State) ([]Signal, error) {
	rows, err := m.signals.Find(ctx, store.FindOpts{
		Eq: map[string]any{"state": string(st)}, OrderBy: "created_at",
	})
	if err != nil {
		return nil, err
	}
	return store.DecodeAll[Signal](rows)
}

// AddMarketSnapshot appends a snapshot to a signal, computing spread and
// total deltas against the previous capture. A material move releases an
// active freeze early and is published as a market movement.
func (m *Manager) AddMarketSnapshot(ctx context.Context, signalID string, snap MarketSnapshot) (*Signal, error) {
	l := m.lockFor(signalID)
	l.Lock()
	defer l.Unlock()

	sig, err := m.Get(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if sig.LockedAt != nil || sig.State == StateGraded {
		return nil, fmt.Errorf("%w: %s", ErrLockedSignal, signalID)
	}

	if prev := sig.LatestSnapshot(); prev != nil {
		if snap.Spread != nil && prev.Spread != nil {
			snap.SpreadDelta = snap.Spread.Line - prev.Spread.Line
		}
		if snap.Total != nil && prev.Total != nil {
			snap.TotalDelta = snap.Total.Line - prev.Total.Line
		}
	}

	if err := m.signals.AppendToList(ctx, signalID, "snapshots", snap); err != nil {
		return nil, err
	}
	sig.Snapshots = append(sig.Snapshots, snap)

	material := math.Abs(snap.SpreadDelta) >= m.waves.FreezeReleaseSpread ||
		math.Abs(snap.TotalDelta) >= m.waves.FreezeReleaseTotal
	if material {
		if sig.FrozenAt(time.Now().UTC()) {
			if err := m.releaseFreeze(ctx, sig); err != nil {
				return nil, err
			}
		}
		if m.pub != nil {
			m.pub.Publish(events.New(events.TopicMarketMovements, events.MarketMovement{
				GameID:      sig.GameID,
				MarketKey:   string(sig.MarketKey),
				SpreadDelta: snap.SpreadDelta,
				TotalDelta:  snap.TotalDelta,
			}))
		}
	}
	return sig, nil
}

// AddSimulationRun appends a run to the signal and mirrors it into the
// global simulations collection.
func (m *Manager) AddSimulationRun(ctx context.Context, signalID string, run SimulationRun) (*Signal, error) {
	l := m.lockFor(signalID)
	l.Lock()
	defer l.Unlock()

	sig, err := m.Get(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if sig.LockedAt != nil || sig.State == StateGraded {
		return nil, fmt.Errorf("%w: %s", ErrLockedSignal, signalID)
	}

	run, err = m.RecordSimulationRun(ctx, run)
	if err != nil {
		return nil, err
	}
	if err := m.signals.AppendToList(ctx, signalID, "runs", run); err != nil {
		return nil, err
	}
	sig.Runs = append(sig.Runs, run)
	return sig, nil
}

// LockSignalWithEntry publishes a signal: state PUBLISHED, publishedAt
// stamped, entry frozen. Re-publishing with an identical entry is
// idempotent; a different entry is an integrity violation.
func (m *Manager) LockSignalWithEntry(ctx context.Context, signalID string, entry EntrySnapshot) (*Signal, error) {
	l := m.lockFor(signalID)
	l.Lock()
	defer l.Unlock()

	sig, err := m.Get(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if sig.LockedAt != nil {
		return nil, fmt.Errorf("%w: %s", ErrLockedSignal, signalID)
	}
	if sig.State == StatePublished {
		if sig.Entry != nil && sameEntry(*sig.Entry, entry) {
			return sig, nil
		}
		m.opsAlert(ctx, "ENTRY_CONFLICT", sig.GameID,
			fmt.Sprintf("second entry attempted on published signal %s", signalID))
		return nil, fmt.Errorf("%w: %s", ErrEntryFrozen, signalID)
	}

	now := time.Now().UTC()
	sig.State = StatePublished
	sig.PublishedAt = &now
	sig.Entry = &entry
	err = m.signals.SetFields(ctx, signalID, map[string]any{
		"state":        sig.State,
		"published_at": now,
		"entry":        entry,
	})
	if err != nil {
		return nil, err
	}
	telemetry.Metrics.SignalsPublished.Inc()
	telemetry.Infof("signal: published %s (%s %s) entry %s", signalID, sig.GameID, sig.MarketKey, entry.SharpSide)
	return sig, nil
}

// sameEntry ignores the capture timestamp: a retried publish of the same
// price at a later instant is still the same entry.
func sameEntry(a, b EntrySnapshot) bool {
	a.CapturedAt, b.CapturedAt = time.Time{}, time.Time{}
	return a.SharpSide == b.SharpSide && a.MarketType == b.MarketType &&
		eqPtr(a.EntryLine, b.EntryLine) && eqPtr(a.EntryTotal, b.EntryTotal) &&
		a.EntryOdds == b.EntryOdds && a.CapturedWave == b.CapturedWave
}

func eqPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// LockSignalAtGameStart freezes a signal for grading. After this the only
// allowed transition is to GRADED.
func (m *Manager) LockSignalAtGameStart(ctx context.Context, signalID string) (*Signal, error) {
	l := m.lockFor(signalID)
	l.Lock()
	defer l.Unlock()

	sig, err := m.Get(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if sig.LockedAt != nil {
		return sig, nil
	}
	if sig.State == StateGraded {
		return nil, fmt.Errorf("%w: %s already graded", ErrLockedSignal, signalID)
	}

	now := time.Now().UTC()
	sig.State = StateLocked
	sig.LockedAt = &now
	err = m.signals.SetFields(ctx, signalID, map[string]any{
		"state": sig.State, "locked_at": now,
	})
	if err != nil {
		return nil, err
	}
	telemetry.Metrics.SignalsLocked.Inc()
	return sig, nil
}

// FreezeSignal sets the advisory re-simulation freeze. Consulted by the
// wave loops to skip redundant work; never a hard lock.
func (m *Manager) FreezeSignal(ctx context.Context, signalID string, d time.Duration, reason string) error {
	until := time.Now().UTC().Add(d)
	return m.signals.SetFields(ctx, signalID, map[string]any{
		"freeze_until": until, "freeze_reason": reason,
	})
}

func (m *Manager) releaseFreeze(ctx context.Context, sig *Signal) error {
	sig.FreezeUntil = nil
	sig.FreezeReason = ""
	if err := m.signals.Unset(ctx, sig.SignalID, "freeze_until"); err != nil {
		return err
	}
	telemetry.Infof("signal: freeze released early on %s (material market move)", sig.SignalID)
	return m.signals.Unset(ctx, sig.SignalID, "freeze_reason")
}

// FrozenAt reports whether the advisory freeze window is still open.
func (s *Signal) FrozenAt(now time.Time) bool {
	return s.FreezeUntil != nil && now.Before(*s.FreezeUntil)
}

// GradeSignal settles a signal with the final score. Valid from LOCKED or
// PUBLISHED (a game can end before the lock sweep sees it).
func (m *Manager) GradeSignal(ctx context.Context, signalID string, homeScore, awayScore int, result edge.Result) (*Signal, error) {
	l := m.lockFor(signalID)
	l.Lock()
	defer l.Unlock()

	sig, err := m.Get(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if sig.State == StateGraded {
		return sig, nil
	}
	if sig.State != StateLocked && sig.State != StatePublished {
		return nil, fmt.Errorf("signal: cannot grade from state %s", sig.State)
	}

	now := time.Now().UTC()
	sig.State = StateGraded
	sig.Result = result
	sig.GradedAt = &now
	err = m.signals.SetFields(ctx, signalID, map[string]any{
		"state": sig.State, "result": result, "graded_at": now,
	})
	if err != nil {
		return nil, err
	}
	telemetry.Metrics.SignalsGraded.Inc()
	telemetry.Metrics.ActiveSignals.Dec()
	telemetry.Infof("signal: graded %s %s (%d-%d)", signalID, result, homeScore, awayScore)
	return sig, nil
}

// ComputeDelta diffs two signals' key fields into a change summary.
func (m *Manager) ComputeDelta(ctx context.Context, fromID, toID string) (SignalDelta, error) {
	from, err := m.Get(ctx, fromID)
	if err != nil {
		return SignalDelta{}, err
	}
	to, err := m.Get(ctx, toID)
	if err != nil {
		return SignalDelta{}, err
	}

	d := SignalDelta{FromID: fromID, ToID: toID}
	if from.State != to.State {
		d.StateChange = fmt.Sprintf("%s→%s", from.State, to.State)
		d.Changes = append(d.Changes, "state "+d.StateChange)
	}

	fe, te := from.LatestEvaluation(), to.LatestEvaluation()
	if fe != nil && te != nil {
		d.EdgeMove = te.CompressedEdgePct - fe.CompressedEdgePct
		if d.EdgeMove != 0 {
			d.Changes = append(d.Changes, fmt.Sprintf("edge %+.1f", d.EdgeMove))
		}
		if fe.SharpSide != te.SharpSide {
			d.SideChanged = true
			d.Changes = append(d.Changes, fmt.Sprintf("side %s→%s", fe.SharpSide, te.SharpSide))
		}
	}

	fs, ts := from.LatestSnapshot(), to.LatestSnapshot()
	if fs != nil && ts != nil {
		if fs.Spread != nil && ts.Spread != nil {
			d.LineMove = ts.Spread.Line - fs.Spread.Line
		}
		if fs.Total != nil && ts.Total != nil {
			d.TotalMove = ts.Total.Line - fs.Total.Line
		}
		if d.LineMove != 0 {
			d.Changes = append(d.Changes, fmt.Sprintf("line %+.1f", d.LineMove))
		}
		if d.TotalMove != 0 {
			d.Changes = append(d.Changes, fmt.Sprintf("total %+.1f", d.TotalMove))
		}
	}
	return d, nil
}

// Robustness weighting. State stability dominates, then edge scatter,
// then volatility-bucket churn.
const (
	robustnessStateWeight = 0.5
	robustnessEdgeWeight  = 0.3
	robustnessVolWeight   = 0.2
	robustFloor           = 0.7
	fragileCeiling        = 0.4
)

// ComputeRobustness judges the stability of the last few signals for one
// game/market. Returns RobustnessUnknown with nil error when there is too
// little history to judge.
func (m *Manager) ComputeRobustness(ctx context.Context, gameID string, market edge.MarketKey, lookback int) (Robustness, error) {
	if lookback <= 0 {
		lookback = 5
	}
	rows, err := m.signals.Find(ctx, store.FindOpts{
		Eq:      map[string]any{"game_id": gameID, "market_key": string(market)},
		OrderBy: "created_at", Desc: true, Limit: lookback,
	})
	if err != nil {
		return RobustnessUnknown, err
	}
	sigs, err := store.DecodeAll[Signal](rows)
	if err != nil {
		return RobustnessUnknown, err
	}

	var evals []WaveEvaluation
	for _, s := range sigs {
		if e := s.LatestEvaluation(); e != nil {
			evals = append(evals, *e)
		}
	}
	if len(evals) < 2 {
		return RobustnessUnknown, nil
	}

	var stateStable, volStable int
	var edges []float64
	for i, e := range evals {
		edges = append(edges, e.CompressedEdgePct)
		if i == 0 {
			continue
		}
		if e.State == evals[i-1].State {
			stateStable++
		}
		if e.Volatility == evals[i-1].Volatility {
			volStable++
		}
	}
	pairs := float64(len(evals) - 1)

	// Edge scatter above 3 points is treated as fully unstable.
	edgeScore := 1 - stddev(edges)/3.0
	if edgeScore < 0 {
		edgeScore = 0
	}

	score := robustnessStateWeight*(float64(stateStable)/pairs) +
		robustnessEdgeWeight*edgeScore +
		robustnessVolWeight*(float64(volStable)/pairs)

	switch {
	case score >= robustFloor:
		return Robust, nil
	case score < fragileCeiling:
		return Fragile, nil
	default:
		return RobustnessUnknown, nil
	}
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sum float64
	for _, x := range xs {
		sum += (x - mean) * (x - mean)
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// appendEvaluation writes a wave evaluation through to the store.
func (m *Manager) appendEvaluation(ctx context.Context, sig *Signal, ev WaveEvaluation) error {
	if err := m.signals.AppendToList(ctx, sig.SignalID, "evaluations", ev); err != nil {
		return err
	}
	sig.Evaluations = append(sig.Evaluations, ev)
	return nil
}

func (m *Manager) setState(ctx context.Context, sig *Signal, st State) error {
	sig.State = st
	return m.signals.SetFields(ctx, sig.SignalID, map[string]any{"state": st})
}

// describeEval is used in log lines only.
func describeEval(ev WaveEvaluation) string {
	parts := []string{string(ev.State), fmt.Sprintf("%.1f%%", ev.CompressedEdgePct)}
	if ev.SharpSide != "" {
		parts = append(parts, ev.SharpSide)
	}
	return strings.Join(parts, " ")
}
