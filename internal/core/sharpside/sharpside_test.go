package sharpside

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betflow/betflow/internal/core/edge"
)

func TestSelectSpreadFavoriteSharp(t *testing.T) {
	// Market has the Knicks -5.5 while the model has them covering 12.3.
	sel := SelectSpread(SpreadInput{
		HomeTeam:         "New York Knicks",
		AwayTeam:         "Atlanta Hawks",
		MarketSpreadHome: -5.5,
		ModelSpread:      12.3,
		Volatility:       edge.VolMedium,
	})

	assert.Equal(t, ActionLayPoints, sel.Action)
	assert.Equal(t, "Atlanta Hawks +5.5", sel.Displays.Market)
	assert.Contains(t, sel.Displays.Model, "+12.3")
	assert.Contains(t, sel.Displays.SharpSide, "Knicks")
	assert.InDelta(t, 6.8, sel.EdgeMagnitude, 0.01)
	assert.Zero(t, sel.VolatilityPenalty)
	assert.InDelta(t, 6.8, sel.EdgeAfterPenalty, 0.01)
}

func TestSelectSpreadTakePoints(t *testing.T) {
	// Model needs only 3.2 points; the market hands the dog 5.5.
	sel := SelectSpread(SpreadInput{
		HomeTeam:         "New York Knicks",
		AwayTeam:         "Atlanta Hawks",
		MarketSpreadHome: -5.5,
		ModelSpread:      -3.2,
		Volatility:       edge.VolLow,
	})

	assert.Equal(t, ActionTakePoints, sel.Action)
	assert.Contains(t, sel.SharpSide, "Hawks")
	assert.InDelta(t, 2.3, sel.EdgeMagnitude, 0.01)
	assert.Zero(t, sel.VolatilityPenalty, "pregame dog penalty only applies at EXTREME")
	assert.InDelta(t, 2.3, sel.EdgeAfterPenalty, 0.01)
}

func TestSelectSpreadTakePointsLive(t *testing.T) {
	// Model wants more points than the market gives: deferred live entry,
	// full penalty schedule.
	sel := SelectSpread(SpreadInput{
		HomeTeam:         "New York Knicks",
		AwayTeam:         "Atlanta Hawks",
		MarketSpreadHome: -5.5,
		ModelSpread:      7.0,
		Volatility:       edge.VolHigh,
	})

	assert.InDelta(t, 1.5, sel.EdgeMagnitude, 0.01)
	assert.Equal(t, 2.0, sel.VolatilityPenalty)
	// Penalty eats the whole edge: suppressed.
	assert.Equal(t, NoSharpPlay, sel.SharpSide)
	assert.Equal(t, ActionNone, sel.Action)
	assert.InDelta(t, -0.5, sel.EdgeAfterPenalty, 0.01)
}

func TestSelectSpreadLiveSurvivesLowVolatility(t *testing.T) {
	sel := SelectSpread(SpreadInput{
		HomeTeam:         "New York Knicks",
		AwayTeam:         "Atlanta Hawks",
		MarketSpreadHome: -5.5,
		ModelSpread:      9.0,
		Volatility:       edge.VolLow,
	})

	assert.Equal(t, ActionTakePointsLive, sel.Action)
	assert.Equal(t, 0.5, sel.VolatilityPenalty)
	assert.InDelta(t, 3.0, sel.EdgeAfterPenalty, 0.01)
}

func TestSelectSpreadEquality(t *testing.T) {
	sel := SelectSpread(SpreadInput{
		HomeTeam:         "New York Knicks",
		AwayTeam:         "Atlanta Hawks",
		MarketSpreadHome: -5.5,
		ModelSpread:      -5.5,
		Volatility:       edge.VolLow,
	})
	assert.Equal(t, NoSharpPlay, sel.SharpSide)
	assert.Equal(t, ActionNone, sel.Action)
}

func TestSelectSpreadAwayFavorite(t *testing.T) {
	// Positive home line flips favorite and underdog.
	sel := SelectSpread(SpreadInput{
		HomeTeam:         "Charlotte Hornets",
		AwayTeam:         "Boston Celtics",
		MarketSpreadHome: 7.5,
		ModelSpread:      -4.0,
		Volatility:       edge.VolLow,
	})
	assert.Equal(t, "Boston Celtics", sel.MarketFavorite)
	assert.Equal(t, "Charlotte Hornets", sel.MarketUnderdog)
	assert.Equal(t, ActionTakePoints, sel.Action)
	assert.Contains(t, sel.SharpSide, "Hornets")
}

func TestSelectSpreadFavoriteSharpNeedsBothGuards(t *testing.T) {
	// Short favorite line: the guard requires the market line at -3 or
	// beyond, so even a huge model number stays off the favorite.
	sel := SelectSpread(SpreadInput{
		HomeTeam:         "New York Knicks",
		AwayTeam:         "Atlanta Hawks",
		MarketSpreadHome: -2.5,
		ModelSpread:      10.0,
		Volatility:       edge.VolLow,
	})
	assert.NotEqual(t, ActionLayPoints, sel.Action)
	assert.Equal(t, ActionTakePointsLive, sel.Action)
}

func TestSelectTotal(t *testing.T) {
	sel := SelectTotal(TotalInput{
		Line: 224.5, OverProb: 0.46, UnderProb: 0.54,
		EdgePct: 2.1, Volatility: edge.VolMedium,
	})
	assert.Equal(t, ActionUnder, sel.Action)
	assert.Equal(t, "UNDER 224.5", sel.SharpSide)
	assert.Equal(t, 2.1, sel.EdgeAfterPenalty)
}

func TestSelectMoneyline(t *testing.T) {
	sel := SelectMoneyline(MoneylineInput{
		HomeTeam: "New York Knicks", AwayTeam: "Atlanta Hawks",
		HomeProb: 0.58, AwayProb: 0.42,
		EdgePct: 3.4, Volatility: edge.VolLow,
	})
	assert.Equal(t, ActionML, sel.Action)
	assert.Equal(t, "New York Knicks ML", sel.SharpSide)
}

func TestCheckAlignment(t *testing.T) {
	playable := SelectSpread(SpreadInput{
		HomeTeam: "New York Knicks", AwayTeam: "Atlanta Hawks",
		MarketSpreadHome: -5.5, ModelSpread: -3.2, Volatility: edge.VolLow,
	})
	require.NotEqual(t, NoSharpPlay, playable.SharpSide)

	assert.NoError(t, CheckAlignment(edge.StateEdge, &playable))
	assert.NoError(t, CheckAlignment(edge.StateLean, &playable))
	assert.Error(t, CheckAlignment(edge.StateNoPlay, &playable))

	suppressed := SelectSpread(SpreadInput{
		HomeTeam: "New York Knicks", AwayTeam: "Atlanta Hawks",
		MarketSpreadHome: -5.5, ModelSpread: -5.5, Volatility: edge.VolLow,
	})
	assert.Error(t, CheckAlignment(edge.StateEdge, &suppressed))
	assert.NoError(t, CheckAlignment(edge.StateNoPlay, &suppressed))
	assert.NoError(t, CheckAlignment(edge.StateNoPlay, nil))
}
