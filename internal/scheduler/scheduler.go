// Package scheduler drives signals through the three-wave lifecycle with
// independent periodic sweeps. Each sweep isolates per-game failures and
// all loops share one cancellation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/betflow/betflow/internal/adapters/odds"
	"github.com/betflow/betflow/internal/config"
	"github.com/betflow/betflow/internal/core/signal"
	"github.com/betflow/betflow/internal/events"
	"github.com/betflow/betflow/internal/telemetry"
)

// OddsSource is the market-data dependency. Wave 3 calls it at sweep
// time so the prices it sees are live.
type OddsSource interface {
	FetchEvents(ctx context.Context, sport string, markets []string) ([]odds.Event, error)
}

// Simulator is the Monte-Carlo dependency; the core only consumes its
// output contract.
type Simulator interface {
	Simulate(ctx context.Context, ev odds.Event) (events.SimulationResult, error)
}

// LineupSource supplies confirmation context per game. The default
// treats everything as confirmed.
type LineupSource interface {
	LineupFor(ctx context.Context, ev odds.Event) signal.Lineup
}

// AllConfirmed is the LineupSource for sports with no confirmation
// requirements (and for tests).
type AllConfirmed struct{}

func (AllConfirmed) LineupFor(context.Context, odds.Event) signal.Lineup {
	return signal.Lineup{PitcherConfirmed: true, QBConfirmed: true, GoalieConfirmed: true, WeatherOK: true}
}

// sportKeys maps internal sport names to provider sport keys.
var sportKeys = map[events.Sport]string{
	events.SportMLB:   "baseball_mlb",
	events.SportNBA:   "basketball_nba",
	events.SportNCAAB: "basketball_ncaab",
	events.SportNCAAF: "americanfootball_ncaaf",
	events.SportNFL:   "americanfootball_nfl",
	events.SportNHL:   "icehockey_nhl",
}

var sweepMarkets = []string{odds.MarketH2H, odds.MarketSpreads, odds.MarketTotals}

// ProviderSportKey maps an internal sport to the provider's sport key.
func ProviderSportKey(s events.Sport) (string, bool) {
	k, ok := sportKeys[s]
	return k, ok
}

// AlertFunc records an ops alert. Nil means alerts are log-only.
type AlertFunc func(ctx context.Context, alertType, detail string)

// Scheduler owns the three wave loops.
type Scheduler struct {
	waves   config.Waves
	manager *signal.Manager
	odds    OddsSource
	sim     Simulator
	lineups LineupSource
	sports  []events.Sport
	alert   AlertFunc
}

// OnAlert installs the ops-alert sink. Call before Run.
func (s *Scheduler) OnAlert(f AlertFunc) { s.alert = f }

// fireAlert forwards to the sink and always logs.
func (s *Scheduler) fireAlert(ctx context.Context, alertType, detail string) {
	telemetry.Errorf("scheduler: %s: %s", alertType, detail)
	if s.alert != nil {
		s.alert(ctx, alertType, detail)
	}
}

func New(waves config.Waves, mgr *signal.Manager, src OddsSource, sim Simulator, lineups LineupSource, sports []events.Sport) *Scheduler {
	if lineups == nil {
		lineups = AllConfirmed{}
	}
	return &Scheduler{waves: waves, manager: mgr, odds: src, sim: sim, lineups: lineups, sports: sports}
}

// Run starts the three loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(ctx, "wave1", s.waves.Wave1Interval(), s.sweepWave1) })
	g.Go(func() error { return s.loop(ctx, "wave2", s.waves.Wave2Interval(), s.sweepWave2) })
	g.Go(func() error { return s.loop(ctx, "wave3", s.waves.Wave3Interval(), s.sweepWave3) })
	return g.Wait()
}

// loop runs one sweep immediately and then on every tick. A sweep error
// is logged, never fatal; only cancellation stops the loop.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		telemetry.Metrics.SweepsRun.Inc()
		if err := sweep(ctx); err != nil && ctx.Err() == nil {
			telemetry.Metrics.SweepErrors.Inc()
			telemetry.Errorf("scheduler: %s sweep: %v", name, err)
		}
		select {
		case <-ctx.Done():
			telemetry.Infof("scheduler: %s loop stopped", name)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sweepWave1 discovers candidates: games starting inside the discovery
// window that have no prior signal get simulated, snapshotted, and
// evaluated.
func (s *Scheduler) sweepWave1(ctx context.Context) error {
	now := time.Now().UTC()
	for _, sport := range s.sports {
		evs, err := s.fetchWindow(ctx, sport, now, s.waves.Wave1Window)
		if err != nil {
			if errors.Is(err, odds.ErrQuotaExhausted) {
				s.fireAlert(ctx, "QUOTA_EXHAUSTED", fmt.Sprintf("wave1 %s sweep: odds key pool exhausted", sport))
			} else {
				telemetry.Warnf("scheduler: wave1 %s fetch: %v", sport, err)
			}
			continue
		}
		for _, ev := range evs {
			if err := s.runWave1(ctx, sport, ev); err != nil {
				// One game's failure never aborts the sweep.
				telemetry.Metrics.SweepErrors.Inc()
				telemetry.Errorf("scheduler: wave1 %s: %v", ev.ID, err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return nil
}

func (s *Scheduler) runWave1(ctx context.Context, sport events.Sport, ev odds.Event) error {
	sim, err := s.sim.Simulate(ctx, ev)
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}
	game := signal.GameMeta{
		GameID:   ev.ID,
		Sport:    sport,
		HomeTeam: ev.HomeTeam,
		AwayTeam: ev.AwayTeam,
		GameTime: ev.CommenceTime,
	}
	_, err = s.manager.Wave1PrimaryScan(ctx, game, signal.WaveInput{
		Snapshot: odds.Snapshot(ev, 1),
		Sim:      sim,
		Lineup:   s.lineups.LineupFor(ctx, ev),
	})
	return err
}

// sweepWave2 re-validates DISCOVERED candidates approaching T-120m.
func (s *Scheduler) sweepWave2(ctx context.Context) error {
	return s.sweepCandidates(ctx, signal.StateDiscovered, s.waves.Wave2Window, 2,
		func(ctx context.Context, id string, in signal.WaveInput) error {
			_, err := s.manager.Wave2StabilityScan(ctx, id, in)
			return err
		})
}

// sweepWave3 runs the final lock pass on VALIDATED candidates at T-60m,
// against live prices, and locks published signals whose games have
// started.
func (s *Scheduler) sweepWave3(ctx context.Context) error {
	if err := s.lockStartedGames(ctx); err != nil {
		telemetry.Warnf("scheduler: lock sweep: %v", err)
	}
	return s.sweepCandidates(ctx, signal.StateValidated, s.waves.Wave3Window, 3,
		func(ctx context.Context, id string, in signal.WaveInput) error {
			_, err := s.manager.Wave3FinalLockScan(ctx, id, in)
			return err
		})
}

// sweepCandidates drives one wave over every signal in the given state
// whose game time falls inside the window.
func (s *Scheduler) sweepCandidates(ctx context.Context, state signal.State, window config.WaveWindow, wave int,
	scan func(context.Context, string, signal.WaveInput) error) error {

	now := time.Now().UTC()
	sigs, err := s.manager.SignalsInState(ctx, state)
	if err != nil {
		return err
	}

	for i := range sigs {
		sig := &sigs[i]
		if !inWindow(now, sig.GameTime, window) {
			continue
		}
		if sig.FrozenAt(now) {
			telemetry.Debugf("scheduler: wave%d skipping frozen %s", wave, sig.SignalID)
			continue
		}

		ev, ok, err := s.findEvent(ctx, sig.Sport, sig.GameID)
		if err != nil {
			if errors.Is(err, odds.ErrQuotaExhausted) {
				s.fireAlert(ctx, "QUOTA_EXHAUSTED", fmt.Sprintf("wave%d %s: odds key pool exhausted", wave, sig.GameID))
			} else {
				telemetry.Warnf("scheduler: wave%d %s fetch: %v", wave, sig.GameID, err)
			}
			continue
		}
		if !ok {
			telemetry.Warnf("scheduler: wave%d %s no longer quoted", wave, sig.GameID)
			continue
		}

		sim, err := s.sim.Simulate(ctx, ev)
		if err != nil {
			telemetry.Metrics.SweepErrors.Inc()
			telemetry.Errorf("scheduler: wave%d simulate %s: %v", wave, sig.GameID, err)
			continue
		}
		in := signal.WaveInput{
			Snapshot: odds.Snapshot(ev, wave),
			Sim:      sim,
			Lineup:   s.lineups.LineupFor(ctx, ev),
		}
		if err := scan(ctx, sig.SignalID, in); err != nil {
			telemetry.Metrics.SweepErrors.Inc()
			telemetry.Errorf("scheduler: wave%d %s: %v", wave, sig.SignalID, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// lockStartedGames moves published signals into LOCKED once their game
// time passes.
func (s *Scheduler) lockStartedGames(ctx context.Context) error {
	now := time.Now().UTC()
	sigs, err := s.manager.SignalsInState(ctx, signal.StatePublished)
	if err != nil {
		return err
	}
	for i := range sigs {
		if sigs[i].GameTime.After(now) {
			continue
		}
		if _, err := s.manager.LockSignalAtGameStart(ctx, sigs[i].SignalID); err != nil {
			telemetry.Errorf("scheduler: lock %s: %v", sigs[i].SignalID, err)
		}
	}
	return nil
}

func (s *Scheduler) fetchWindow(ctx context.Context, sport events.Sport, now time.Time, w config.WaveWindow) ([]odds.Event, error) {
	key, ok := sportKeys[sport]
	if !ok {
		return nil, fmt.Errorf("scheduler: no provider key for sport %s", sport)
	}
	evs, err := s.odds.FetchEvents(ctx, key, sweepMarkets)
	if err != nil {
		return nil, err
	}
	var out []odds.Event
	for _, ev := range evs {
		if inWindow(now, ev.CommenceTime, w) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *Scheduler) findEvent(ctx context.Context, sport events.Sport, gameID string) (odds.Event, bool, error) {
	key, ok := sportKeys[sport]
	if !ok {
		return odds.Event{}, false, fmt.Errorf("scheduler: no provider key for sport %s", sport)
	}
	evs, err := s.odds.FetchEvents(ctx, key, sweepMarkets)
	if err != nil {
		return odds.Event{}, false, err
	}
	for _, ev := range evs {
		if ev.ID == gameID {
			return ev, true, nil
		}
	}
	return odds.Event{}, false, nil
}

// inWindow reports whether gameTime falls between now+from and now+to
// minutes.
func inWindow(now, gameTime time.Time, w config.WaveWindow) bool {
	from := now.Add(time.Duration(w.FromMinutes) * time.Minute)
	to := now.Add(time.Duration(w.ToMinutes) * time.Minute)
	return !gameTime.Before(from) && !gameTime.After(to)
}
