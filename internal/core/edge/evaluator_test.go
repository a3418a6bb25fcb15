package edge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betflow/betflow/internal/core/sportcfg"
	"github.com/betflow/betflow/internal/events"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func nbaConfig(t *testing.T) sportcfg.SportConfig {
	t.Helper()
	reg, err := sportcfg.NewRegistry("")
	require.NoError(t, err)
	cfg, ok := reg.Get(events.SportNBA)
	require.True(t, ok)
	return cfg
}

func spreadInput(rawProb, line float64) Input {
	return Input{
		Sport:       events.SportNBA,
		Market:      MarketSpread,
		RawProb:     rawProb,
		SpreadLine:  fptr(line),
		Price:       iptr(-110),
		StdDev:      0.045,
		Convergence: 0.92,
		WeatherOK:   true,
	}
}

func TestEvaluateMissingMarketData(t *testing.T) {
	cfg := nbaConfig(t)

	in := spreadInput(0.70, -5.5)
	in.Price = nil
	ev := Evaluate(cfg, in)

	assert.Equal(t, StateNoPlay, ev.State)
	assert.False(t, ev.Eligible)
	assert.Equal(t, CodeMissingMarketData, ev.BlockReason)
}

func TestEvaluateSpreadClassification(t *testing.T) {
	cfg := nbaConfig(t)

	// raw 0.75 compresses to 0.575 against -110 implied 0.5238: edge 5.1.
	ev := Evaluate(cfg, spreadInput(0.75, -5.5))
	assert.Equal(t, StateEdge, ev.State)
	assert.True(t, ev.Eligible)
	assert.InDelta(t, 5.12, ev.CompressedEdgePct, 0.05)
	assert.False(t, ev.IsLargeSpread)

	// raw 0.68 compresses to 0.554: edge 3.0, lean territory.
	ev = Evaluate(cfg, spreadInput(0.68, -5.5))
	assert.Equal(t, StateLean, ev.State)

	ev = Evaluate(cfg, spreadInput(0.55, -5.5))
	assert.Equal(t, StateNoPlay, ev.State)
	assert.True(t, ev.Eligible, "NO_PLAY on thin edge is a valid outcome, not a block")
}

func TestEvaluateLargeSpreadNeedsStrongerEdge(t *testing.T) {
	cfg := nbaConfig(t)

	// Edge 3.6 clears the normal 3.5 bar but not the large-spread 5.0 bar.
	ev := Evaluate(cfg, spreadInput(0.70, -10.5))
	assert.True(t, ev.IsLargeSpread)
	assert.Equal(t, StateLean, ev.State)

	// The same probability on a normal spread is a full EDGE.
	ev = Evaluate(cfg, spreadInput(0.70, -5.5))
	assert.False(t, ev.IsLargeSpread)
	assert.Equal(t, StateEdge, ev.State)
}

func TestEvaluateSpreadSizeGuardrails(t *testing.T) {
	cfg := nbaConfig(t)

	in := spreadInput(0.75, 17.5) // dog cap for NBA is 16.5
	ev := Evaluate(cfg, in)
	assert.Equal(t, StateNoPlay, ev.State)
	assert.Equal(t, Code("SPREAD_TOO_LARGE_17.5"), ev.BlockReason)

	in = spreadInput(0.75, -15.5) // favorite cap is 14.5
	in.FavoriteSide = true
	ev = Evaluate(cfg, in)
	assert.Equal(t, Code("SPREAD_TOO_LARGE_15.5"), ev.BlockReason)
}

func TestEvaluateConfirmationGates(t *testing.T) {
	reg, err := sportcfg.NewRegistry("")
	require.NoError(t, err)
	mlb, ok := reg.Get(events.SportMLB)
	require.True(t, ok)

	in := Input{
		Sport:       events.SportMLB,
		Market:      MarketMoneyline,
		RawProb:     0.80,
		Price:       iptr(-110),
		StdDev:      0.02,
		Convergence: 0.95,
		WeatherOK:   true,
	}
	ev := Evaluate(mlb, in)
	assert.Equal(t, StateNoPlay, ev.State)
	assert.Equal(t, CodePitcherNotConfirmed, ev.BlockReason)

	in.PitcherConfirmed = true
	in.WeatherOK = false
	ev = Evaluate(mlb, in)
	assert.Equal(t, CodeWeatherUncertain, ev.BlockReason)

	in.WeatherOK = true
	ev = Evaluate(mlb, in)
	assert.True(t, ev.Eligible)
}

func TestEvaluateUnstableExtremeBlocks(t *testing.T) {
	cfg := nbaConfig(t)

	in := spreadInput(0.75, -5.5)
	in.Convergence = 0.40
	ev := Evaluate(cfg, in)

	assert.Equal(t, DistUnstableExtreme, ev.Distribution)
	assert.Equal(t, StateNoPlay, ev.State)
	assert.Equal(t, CodeUnstableExtreme, ev.BlockReason)
}

func TestEvaluateTotalPicksStrongerSide(t *testing.T) {
	cfg := nbaConfig(t)

	in := Input{
		Sport:       events.SportNBA,
		Market:      MarketTotal,
		OverProb:    0.38,
		UnderProb:   0.62,
		TotalLine:   fptr(224.5),
		OverPrice:   iptr(-110),
		UnderPrice:  iptr(-110),
		StdDev:      0.05,
		Convergence: 0.90,
		WeatherOK:   true,
	}
	ev := Evaluate(cfg, in)
	assert.Equal(t, "UNDER", ev.ChosenSide)
	assert.Greater(t, ev.CompressedEdgePct, 0.0)
}

func TestEvaluateMoneylineWinProbFloor(t *testing.T) {
	cfg := nbaConfig(t) // MinWinProbEdge 0.54

	in := Input{
		Sport:       events.SportNBA,
		Market:      MarketMoneyline,
		RawProb:     0.60, // compresses to 0.53, below the floor
		Price:       iptr(140),
		StdDev:      0.04,
		Convergence: 0.90,
		WeatherOK:   true,
	}
	ev := Evaluate(cfg, in)
	assert.Equal(t, StateNoPlay, ev.State)
	assert.True(t, ev.Eligible)

	in.RawProb = 0.75 // compresses to 0.575
	ev = Evaluate(cfg, in)
	assert.Equal(t, StateEdge, ev.State)
}

func TestNearKeyNumber(t *testing.T) {
	reg, err := sportcfg.NewRegistry("")
	require.NoError(t, err)
	nfl, ok := reg.Get(events.SportNFL)
	require.True(t, ok)

	in := Input{
		Sport:        events.SportNFL,
		Market:       MarketSpread,
		RawProb:      0.70,
		SpreadLine:   fptr(-3.5),
		Price:        iptr(-110),
		StdDev:       0.03,
		Convergence:  0.90,
		QBConfirmed:  true,
		WeatherOK:    true,
		FavoriteSide: true,
	}
	ev := Evaluate(nfl, in)
	assert.True(t, ev.NearKeyNumber)

	in.SpreadLine = fptr(-5.5)
	ev = Evaluate(nfl, in)
	assert.False(t, ev.NearKeyNumber)
}

func TestClassifyDistribution(t *testing.T) {
	assert.Equal(t, DistStable, ClassifyDistribution(0.90))
	assert.Equal(t, DistStable, ClassifyDistribution(0.85))
	assert.Equal(t, DistUnstable, ClassifyDistribution(0.70))
	assert.Equal(t, DistUnstableExtreme, ClassifyDistribution(0.59))
}

func TestEvaluateGates(t *testing.T) {
	cfg := nbaConfig(t)
	ev := Evaluate(cfg, spreadInput(0.75, -5.5))

	run := events.SimulationResult{
		EventID:          "evt-1",
		WinProbabilities: map[string]float64{"home": 0.75, "away": 0.25},
		ConvergenceRate:  0.92,
		NumSimulations:   50_000,
		ModelVersion:     "v3",
	}

	g := EvaluateGates(run, ev, 3.0)
	assert.True(t, g.Passed)
	assert.Empty(t, g.Failures())
	assert.Len(t, g.Gates, 5)

	run.NumSimulations = 500
	g = EvaluateGates(run, ev, 3.0)
	assert.False(t, g.Passed)
	assert.Contains(t, g.Failures(), Code("INSUFFICIENT_SIM_POWER"))

	// Waves 1 and 2 skip the publish gate entirely.
	run.NumSimulations = 50_000
	g = EvaluateGates(run, ev, 0)
	assert.Len(t, g.Gates, 4)
}

func TestGrading(t *testing.T) {
	// Favorite -5.5 wins by 6: covers.
	assert.Equal(t, ResultWin, GradeSpread(110, 104, -5.5))
	// Wins by 5: does not cover.
	assert.Equal(t, ResultLoss, GradeSpread(110, 105, -5.5))
	// Whole-number spread landing exactly: push.
	assert.Equal(t, ResultPush, GradeSpread(110, 104, -6))

	assert.Equal(t, ResultWin, GradeTotal(110, 115, 224.5, "OVER"))
	assert.Equal(t, ResultLoss, GradeTotal(110, 112, 224.5, "OVER"))
	assert.Equal(t, ResultWin, GradeTotal(110, 112, 224.5, "UNDER"))
	assert.Equal(t, ResultPush, GradeTotal(110, 114, 224, "OVER"))

	assert.Equal(t, ResultWin, GradeMoneyline(5, 3))
	assert.Equal(t, ResultLoss, GradeMoneyline(3, 5))
	assert.Equal(t, ResultPush, GradeMoneyline(3, 3))
}
