package parlay

// MinParlayWeight is the eligibility floor on a candidate's weight.
const MinParlayWeight = 0.5

// Weight component mix and penalties. Probability dominates, then edge,
// then the model's own confidence; HIGH volatility and unstable
// distributions are flat deductions.
const (
	probWeight = 0.45
	edgeWeight = 0.30
	confWeight = 0.25

	highVolPenalty  = 0.15
	medVolPenalty   = 0.05
	unstablePenalty = 0.20

	// probScore saturates at this probability; edgeScore at this edge.
	probCeiling = 0.65
	edgeCeiling = 6.0
)

// ComputeWeight scores one candidate into [0,1] and stamps eligibility.
func ComputeWeight(c *Candidate) {
	probScore := clamp01((c.WinProbability - 0.50) / (probCeiling - 0.50))
	edgeScore := clamp01(c.EdgePoints / edgeCeiling)
	confScore := clamp01(c.Confidence / 100)

	w := probWeight*probScore + edgeWeight*edgeScore + confWeight*confScore

	switch c.VolatilityBand {
	case BandHigh:
		w -= highVolPenalty
	case BandMed:
		w -= medVolPenalty
	}
	if !c.DistributionStable {
		w -= unstablePenalty
	}

	c.ParlayWeight = clamp01(w)
	c.ParlayEligible = c.ParlayWeight >= MinParlayWeight
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
