package parlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func leg(event, sport, market, side, period string, prob float64) Candidate {
	return Candidate{
		EventID: event, SportKey: sport, MarketType: market,
		Side: side, Period: period, WinProbability: prob,
	}
}

func TestCorrelationPairs(t *testing.T) {
	spread := leg("evt1", "nba", "spread", "home", "full", 0.6)
	total := leg("evt1", "nba", "total", "over", "full", 0.55)
	ml := leg("evt1", "nba", "moneyline", "home", "full", 0.6)
	otherSpread := leg("evt1", "nba", "spread", "away", "full", 0.6)

	assert.InDelta(t, 0.65, Correlation(spread, total), 0.001)
	assert.InDelta(t, 0.95, Correlation(spread, otherSpread), 0.001)
	assert.InDelta(t, 0.85, Correlation(ml, spread), 0.001)
	assert.InDelta(t, 0.85, Correlation(spread, ml), 0.001, "pair order must not matter")

	sameSport := leg("evt2", "nba", "spread", "home", "full", 0.6)
	assert.InDelta(t, 0.15, Correlation(spread, sameSport), 0.001)

	crossSport := leg("evt3", "nhl", "moneyline", "home", "full", 0.6)
	assert.Zero(t, Correlation(spread, crossSport))

	// Same city, different sports: the weak city bias applies.
	nyKnicks := leg("evt4", "nba", "spread", "home", "full", 0.6)
	nyKnicks.HomeCity = "New York"
	nyRangers := leg("evt5", "nhl", "moneyline", "home", "full", 0.6)
	nyRangers.HomeCity = "New York"
	assert.InDelta(t, 0.10, Correlation(nyKnicks, nyRangers), 0.001)
}

func TestPeriodTotalsCorrelation(t *testing.T) {
	halfUnder := leg("evt1", "nba", "total", "under", "1H", 0.55)
	halfOver := leg("evt1", "nba", "total", "over", "1H", 0.55)
	fullOver := leg("evt1", "nba", "total", "over", "full", 0.55)
	fullUnder := leg("evt1", "nba", "total", "under", "full", 0.55)

	assert.InDelta(t, -0.30, Correlation(halfUnder, fullOver), 0.001)
	assert.InDelta(t, 0.75, Correlation(halfOver, fullOver), 0.001)
	assert.InDelta(t, -0.40, Correlation(halfOver, fullUnder), 0.001)
	assert.InDelta(t, -0.30, Correlation(fullOver, halfUnder), 0.001, "pair order must not matter")
}

func TestMaxCorrelationFlagsConflicts(t *testing.T) {
	legs := []Candidate{
		leg("evt1", "nba", "total", "under", "1H", 0.55),
		leg("evt1", "nba", "total", "over", "full", 0.55),
		leg("evt2", "nba", "spread", "home", "full", 0.60),
	}
	maxCorr, conflict := MaxCorrelation(legs)
	assert.InDelta(t, 0.15, maxCorr, 0.001)
	assert.True(t, conflict, "hedged totals on the same event are a conflict")

	clean := []Candidate{
		leg("evt1", "nba", "spread", "home", "full", 0.60),
		leg("evt2", "nhl", "moneyline", "home", "full", 0.58),
	}
	maxCorr, conflict = MaxCorrelation(clean)
	assert.Zero(t, maxCorr)
	assert.False(t, conflict)
}

func TestCombinedProbability(t *testing.T) {
	legs := []Candidate{
		leg("evt1", "nba", "spread", "home", "full", 0.60),
		leg("evt2", "nba", "spread", "home", "full", 0.50),
	}

	// rho 0 is pure independence, rho 1 collapses to the weakest leg.
	assert.InDelta(t, 0.30, CombinedProbability(legs, 0), 0.0001)
	assert.InDelta(t, 0.50, CombinedProbability(legs, 1), 0.0001)
	assert.InDelta(t, 0.40, CombinedProbability(legs, 0.5), 0.0001)

	// Out-of-range rho clamps rather than extrapolating.
	assert.InDelta(t, 0.30, CombinedProbability(legs, -2), 0.0001)
	assert.InDelta(t, 0.50, CombinedProbability(legs, 5), 0.0001)

	assert.Zero(t, CombinedProbability(nil, 0.5))
}
