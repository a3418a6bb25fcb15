package parlay

// Pairwise correlation constants. Same-game legs are strongly tied;
// cross-sport legs are independent unless the city bias applies.
const (
	corrSameGameSpreads     = 0.95
	corrSameGameMLSpread    = 0.85
	corrSameGameSpreadTotal = 0.65
	corrSameGameDefault     = 0.70
	corrSameSport           = 0.15
	corrCityBias            = 0.10

	// 1H vs full-game total pairings on the same event.
	corrHedgedTotals   = -0.30 // 1H under + FG over
	corrStackedOvers   = 0.75  // 1H over + FG over
	corrConflictTotals = -0.40 // 1H over + FG under
)

// Correlation returns the pairwise correlation between two legs.
// Negative values mark hedging or mathematical conflicts.
func Correlation(a, b Candidate) float64 {
	if a.EventID == b.EventID {
		return sameGameCorrelation(a, b)
	}
	if a.SportKey == b.SportKey {
		return corrSameSport
	}
	if a.HomeCity != "" && a.HomeCity == b.HomeCity {
		return corrCityBias
	}
	return 0
}

func sameGameCorrelation(a, b Candidate) float64 {
	if a.MarketType == "total" && b.MarketType == "total" && a.Period != b.Period {
		return periodTotalsCorrelation(a, b)
	}

	switch {
	case a.MarketType == "spread" && b.MarketType == "spread":
		return corrSameGameSpreads
	case pairIs(a, b, "moneyline", "spread"):
		return corrSameGameMLSpread
	case pairIs(a, b, "spread", "total"):
		return corrSameGameSpreadTotal
	default:
		return corrSameGameDefault
	}
}

// periodTotalsCorrelation handles a first-half and a full-game total on
// the same event. Order of the pair does not matter.
func periodTotalsCorrelation(a, b Candidate) float64 {
	half, full := a, b
	if b.Period == "1H" {
		half, full = b, a
	}
	if half.Period != "1H" || full.Period != "full" {
		return corrSameGameDefault
	}

	switch {
	case half.Side == "under" && full.Side == "over":
		return corrHedgedTotals
	case half.Side == "over" && full.Side == "over":
		return corrStackedOvers
	case half.Side == "over" && full.Side == "under":
		return corrConflictTotals
	default: // both under: same direction, strongly tied
		return corrStackedOvers
	}
}

func pairIs(a, b Candidate, m1, m2 string) bool {
	return (a.MarketType == m1 && b.MarketType == m2) ||
		(a.MarketType == m2 && b.MarketType == m1)
}

// MaxCorrelation scans every leg pair; the second return flags any
// negatively correlated (conflicting or hedged) pair.
func MaxCorrelation(legs []Candidate) (maxCorr float64, conflict bool) {
	for i := 0; i < len(legs); i++ {
		for j := i + 1; j < len(legs); j++ {
			c := Correlation(legs[i], legs[j])
			if c > maxCorr {
				maxCorr = c
			}
			if c < 0 {
				conflict = true
			}
		}
	}
	return maxCorr, conflict
}

// CombinedProbability blends the independent product with the weakest
// leg by the correlation coefficient: rho 0 is pure independence, rho 1
// collapses to min(legProbs). Clamped to [0,1].
func CombinedProbability(legs []Candidate, rho float64) float64 {
	if len(legs) == 0 {
		return 0
	}
	if rho < 0 {
		rho = 0
	}
	if rho > 1 {
		rho = 1
	}

	product := 1.0
	minProb := legs[0].WinProbability
	for _, l := range legs {
		product *= l.WinProbability
		if l.WinProbability < minProb {
			minProb = l.WinProbability
		}
	}

	adjusted := product*(1-rho) + minProb*rho
	return clamp01(adjusted)
}
