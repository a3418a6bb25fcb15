package signal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/betflow/betflow/internal/core/edge"
	"github.com/betflow/betflow/internal/core/sharpside"
	"github.com/betflow/betflow/internal/core/sportcfg"
	"github.com/betflow/betflow/internal/events"
	"github.com/betflow/betflow/internal/telemetry"
)

// GameMeta identifies one upcoming game for wave processing.
type GameMeta struct {
	GameID   string
	Sport    events.Sport
	HomeTeam string
	AwayTeam string
	GameTime time.Time
}

// WaveInput bundles everything one wave sweep hands the manager for a
// single game: the fresh market capture, the simulation output, and the
// lineup/conditions context.
type WaveInput struct {
	Snapshot MarketSnapshot
	Sim      events.SimulationResult
	Lineup   Lineup
}

// runFromSim converts the simulator's wire contract into the append-only
// run record.
func runFromSim(gameID string, wave int, sim events.SimulationResult) SimulationRun {
	return SimulationRun{
		GameID:             gameID,
		EventID:            sim.EventID,
		Wave:               wave,
		ModelVersion:       sim.ModelVersion,
		NumSims:            sim.NumSimulations,
		WinProbabilities:   sim.WinProbabilities,
		SpreadDistribution: sim.SpreadDistribution,
		TotalDistribution:  sim.TotalDistribution,
		ConvergenceRate:    sim.ConvergenceRate,
		WinProbStd:         sim.WinProbStd,
		TotalStd:           sim.TotalStd,
		CreatedAt:          time.Now().UTC(),
	}
}

// Wave1PrimaryScan is the discovery pass (T-6h). It opens one signal per
// quotable market, takes the discovery snapshot, records the run, and
// evaluates. EDGE/LEAN candidates stay DISCOVERED under a freeze window;
// everything else closes as NO_PLAY immediately.
func (m *Manager) Wave1PrimaryScan(ctx context.Context, game GameMeta, in WaveInput) ([]*Signal, error) {
	cfg, ok := m.registry.Get(game.Sport)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSport, game.Sport)
	}

	snap, err := m.CreateMarketSnapshot(ctx, in.Snapshot)
	if err != nil {
		return nil, err
	}

	var out []*Signal
	for _, market := range quotableMarkets(game.Sport, snap, in.Sim) {
		if _, exists, err := m.FindCurrent(ctx, game.GameID, market); err != nil {
			return out, err
		} else if exists {
			continue
		}

		sig, err := m.CreateSignal(ctx, game, IntentTruthMode, market)
		if err != nil {
			return out, err
		}
		if sig, err = m.AddMarketSnapshot(ctx, sig.SignalID, snap); err != nil {
			return out, err
		}
		run := runFromSim(game.GameID, 1, in.Sim)
		if sig, err = m.AddSimulationRun(ctx, sig.SignalID, run); err != nil {
			return out, err
		}

		ev, _, _, err := evaluateWave(cfg, sig, snap, run, in.Lineup, 1)
		if err != nil {
			return out, err
		}
		if err := m.appendEvaluation(ctx, sig, ev); err != nil {
			return out, err
		}

		if ev.State == edge.StateNoPlay {
			if err := m.setState(ctx, sig, StateNoPlay); err != nil {
				return out, err
			}
		} else {
			freeze := time.Duration(m.waves.FreezeMinutes) * time.Minute
			if err := m.FreezeSignal(ctx, sig.SignalID, freeze, "post-discovery cooldown"); err != nil {
				return out, err
			}
		}
		telemetry.Infof("wave1: %s %s %s → %s", game.GameID, game.Sport, market, describeEval(ev))
		out = append(out, sig)
	}
	return out, nil
}

// Wave2StabilityScan is the validation pass (T-120m). The candidate must
// reproduce its discovery read: edge drift within tolerance, same edge
// state, same sharp side. Pass goes to VALIDATED, fail to UNSTABLE.
func (m *Manager) Wave2StabilityScan(ctx context.Context, signalID string, in WaveInput) (*Signal, error) {
	cfg, sig, err := m.loadForWave(ctx, signalID, StateDiscovered)
	if err != nil {
		return nil, err
	}

	snap, err := m.CreateMarketSnapshot(ctx, in.Snapshot)
	if err != nil {
		return nil, err
	}
	if sig, err = m.AddMarketSnapshot(ctx, signalID, snap); err != nil {
		return nil, err
	}
	run := runFromSim(sig.GameID, 2, in.Sim)
	if sig, err = m.AddSimulationRun(ctx, signalID, run); err != nil {
		return nil, err
	}

	ev, _, _, err := evaluateWave(cfg, sig, snap, run, in.Lineup, 2)
	if err != nil {
		return nil, err
	}
	if err := m.appendEvaluation(ctx, sig, ev); err != nil {
		return nil, err
	}

	prior := waveEval(sig, 1)
	stable := prior != nil &&
		math.Abs(ev.CompressedEdgePct-prior.CompressedEdgePct) <= m.waves.StabilityTolerancePct &&
		ev.State == prior.State &&
		ev.SharpSide == prior.SharpSide

	next := StateUnstable
	if stable {
		next = StateValidated
	}
	if err := m.setState(ctx, sig, next); err != nil {
		return nil, err
	}
	telemetry.Infof("wave2: %s %s → %s (%s)", sig.GameID, sig.MarketKey, next, describeEval(ev))
	return sig, nil
}

// Wave3FinalLockScan is the publish pass (T-60m), fed by live market
// data. Publish requires an EDGE/LEAN state, the compressed edge over
// the publish floor, a non-extreme distribution, and a sharp side; the
// entry snapshot is captured and frozen in the same step. Anything short
// of the bar is silenced as WITHDRAWN.
func (m *Manager) Wave3FinalLockScan(ctx context.Context, signalID string, in WaveInput) (*Signal, error) {
	cfg, sig, err := m.loadForWave(ctx, signalID, StateValidated)
	if err != nil {
		return nil, err
	}

	snap, err := m.CreateMarketSnapshot(ctx, in.Snapshot)
	if err != nil {
		return nil, err
	}
	if sig, err = m.AddMarketSnapshot(ctx, signalID, snap); err != nil {
		return nil, err
	}
	run := runFromSim(sig.GameID, 3, in.Sim)
	if sig, err = m.AddSimulationRun(ctx, signalID, run); err != nil {
		return nil, err
	}

	ev, marketEval, sel, err := evaluateWave(cfg, sig, snap, run, in.Lineup, 3)
	if err != nil {
		return nil, err
	}
	if err := m.appendEvaluation(ctx, sig, ev); err != nil {
		return nil, err
	}

	gates := edge.EvaluateGates(in.Sim, marketEval, m.waves.MinEdgeForPublish)

	publishable := ev.State != edge.StateNoPlay &&
		ev.CompressedEdgePct >= m.waves.MinEdgeForPublish &&
		ev.Distribution != edge.DistUnstableExtreme &&
		sel != nil && sel.SharpSide != sharpside.NoSharpPlay &&
		gates.Passed

	if !publishable {
		if err := m.setState(ctx, sig, StateWithdrawn); err != nil {
			return nil, err
		}
		telemetry.Infof("wave3: %s %s silenced (%s, gates %v)", sig.GameID, sig.MarketKey, describeEval(ev), gates.Failures())
		return sig, nil
	}

	entry := buildEntry(sig, snap, *sel, 3)
	sig, err = m.LockSignalWithEntry(ctx, signalID, entry)
	if err != nil {
		return nil, err
	}
	if m.pub != nil {
		m.pub.Publish(events.New(events.TopicUIUpdates, events.UIUpdate{
			Kind:     "signal_published",
			SignalID: sig.SignalID,
			GameID:   sig.GameID,
			Detail:   sel.Displays.SharpSide,
		}))
	}
	return sig, nil
}

// loadForWave fetches the signal and its sport config and checks the
// state the wave expects; a wrong state means another sweep already
// advanced it, which the caller treats as a skip.
func (m *Manager) loadForWave(ctx context.Context, signalID string, want State) (cfg sportcfg.SportConfig, sig *Signal, err error) {
	sig, err = m.Get(ctx, signalID)
	if err != nil {
		return cfg, nil, err
	}
	if sig.State != want {
		return cfg, nil, fmt.Errorf("signal: %s is %s, wave expects %s", signalID, sig.State, want)
	}
	c, ok := m.registry.Get(sig.Sport)
	if !ok {
		return cfg, nil, fmt.Errorf("%w: %s", ErrUnknownSport, sig.Sport)
	}
	return c, sig, nil
}

// waveEval returns the evaluation recorded at the given wave, or nil.
func waveEval(sig *Signal, wave int) *WaveEvaluation {
	for i := range sig.Evaluations {
		if sig.Evaluations[i].Wave == wave {
			return &sig.Evaluations[i]
		}
	}
	return nil
}

// quotableMarkets lists the market keys wave 1 can open for this capture:
// a market needs both a quote and a usable distribution. NHL spreads are
// pucklines.
func quotableMarkets(sport events.Sport, snap MarketSnapshot, sim events.SimulationResult) []edge.MarketKey {
	var out []edge.MarketKey
	if snap.Spread != nil && len(sim.SpreadDistribution) > 0 {
		if sport == events.SportNHL {
			out = append(out, edge.MarketPuckline)
		} else {
			out = append(out, edge.MarketSpread)
		}
	}
	if snap.Total != nil && len(sim.TotalDistribution) > 0 {
		out = append(out, edge.MarketTotal)
	}
	if snap.Moneyline != nil && len(sim.WinProbabilities) > 0 {
		out = append(out, edge.MarketMoneyline)
	}
	return out
}
