package parlay

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/betflow/betflow/internal/telemetry"
)

// Parlay-pool thresholds for PARLAY mode (the looser gate set).
const (
	poolMinWinProb   = 0.53
	poolMinEdge      = 1.5
	poolMinConf      = 50.0
	poolMaxZScore    = 2.0
	minLegFloor      = 3
)

// profileConstraints are the per-attempt selection limits.
type profileConstraints struct {
	MinWinProb  float64
	MaxHighVol  int
	MaxUnstable int
	MaxProps    int
	AllowLean   bool
}

func constraintsFor(p Profile) profileConstraints {
	switch p {
	case ProfileHighConfidence:
		return profileConstraints{MinWinProb: 0.58, MaxHighVol: 0, MaxUnstable: 0, MaxProps: 1}
	case ProfileHighVolatility:
		return profileConstraints{MinWinProb: 0.53, MaxHighVol: 3, MaxUnstable: 2, MaxProps: 3, AllowLean: true}
	default:
		return profileConstraints{MinWinProb: 0.55, MaxHighVol: 1, MaxUnstable: 1, MaxProps: 2}
	}
}

// AuditSink receives one record per ladder attempt. Nil disables audit.
type AuditSink func(ctx context.Context, rec AuditRecord)

// Engine builds parlays from a candidate slate.
type Engine struct {
	audit AuditSink
}

func NewEngine(audit AuditSink) *Engine {
	return &Engine{audit: audit}
}

// Generate runs pool construction, weighting, and the fallback ladder.
// It always returns a structured Result; the only failure modes are an
// empty slate and ladder exhaustion.
func (e *Engine) Generate(ctx context.Context, req Request, slate []Candidate) Result {
	telemetry.Metrics.ParlayRequests.Inc()

	res := Result{
		Mode:             req.Mode,
		RequestedProfile: req.Profile,
		UsedProfile:      req.Profile,
		RequestedLegs:    req.LegCount,
		Timestamp:        time.Now().UTC(),
	}
	if req.LegCount < minLegFloor {
		req.LegCount = minLegFloor
		res.RequestedLegs = minLegFloor
	}

	pool := e.buildPool(req, slate)
	if len(pool) == 0 {
		res.FailReason = FailEmptySlate
		return res
	}

	profile := req.Profile
	legCount := req.LegCount
	includeLean := constraintsFor(profile).AllowLean
	attempt := 0

	for {
		attempt++
		legs := e.selectLegs(req, pool, constraintsFor(profile), legCount, includeLean)
		e.recordAttempt(ctx, req, attempt, profile, legCount, includeLean, len(pool), legs)

		if len(legs) == legCount {
			return e.finish(res, req, profile, legs)
		}

		// Fallback ladder. Each relaxation is tried once; leg-count
		// reduction loops until the floor.
		switch {
		case profile == ProfileHighConfidence:
			profile = ProfileBalanced
			res.FallbackSteps = append(res.FallbackSteps, StepFallbackToBalanced)
		case !includeLean:
			includeLean = true
			res.FallbackSteps = append(res.FallbackSteps, StepEnableHigherRisk)
		case profile != ProfileHighVolatility:
			profile = ProfileHighVolatility
			res.FallbackSteps = append(res.FallbackSteps, StepFallbackToHighVol)
		case legCount > minLegFloor:
			legCount--
			res.FallbackSteps = append(res.FallbackSteps, StepReduceLegCount)
		default:
			res.FailReason = FailFallbackExhausted
			res.UsedProfile = profile
			res.UsedLegs = 0
			telemetry.Metrics.ParlayFallbacks.Inc()
			return res
		}
		telemetry.Metrics.ParlayFallbacks.Inc()
	}
}

// buildPool applies the gate stack: required fields, integrity, mode
// gating, market filters, and the prop integrity gate; then weights
// every survivor.
func (e *Engine) buildPool(req Request, slate []Candidate) []Candidate {
	var pool []Candidate
	mean, std := probStats(slate)

	for _, c := range slate {
		// Data integrity + model validity.
		if c.EventID == "" || c.StrictState == "" ||
			c.WinProbability <= 0 || c.WinProbability > 1 {
			continue
		}

		switch req.Mode {
		case ModeStrict:
			if c.StrictState != "PICK" || !c.CanParlay {
				continue
			}
		default: // parlay pool
			if c.StrictState == "NO_PLAY" {
				continue
			}
			if c.WinProbability < poolMinWinProb || c.EdgePoints < poolMinEdge ||
				c.Confidence < poolMinConf {
				continue
			}
			if std > 0 && math.Abs(c.WinProbability-mean)/std > poolMaxZScore {
				continue
			}
		}

		if c.IsProp {
			if !req.IncludeProps && !req.DFSMode {
				continue
			}
			// Prop integrity gate.
			if !c.PlayerStatusOK || c.VolatilityBand == BandHigh {
				continue
			}
		} else if !req.IncludeGameLines && !req.DFSMode {
			continue
		}

		ComputeWeight(&c)
		pool = append(pool, c)
	}
	return pool
}

// selectLegs sorts eligible candidates by weight and greedily picks the
// top N under the profile's caps and the diversification rules.
func (e *Engine) selectLegs(req Request, pool []Candidate, cons profileConstraints, n int, includeLean bool) []Candidate {
	eligible := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		if !c.ParlayEligible || c.WinProbability < cons.MinWinProb {
			continue
		}
		if c.StrictState == "LEAN" && !(includeLean || cons.AllowLean) {
			continue
		}
		eligible = append(eligible, c)
	}
	sortByWeightDesc(eligible)

	var (
		legs                       []Candidate
		highVol, unstable, props   int
		gamesUsed                  = map[string]bool{}
		sportsUsed                 = map[string]bool{}
	)
	for _, c := range eligible {
		if len(legs) == n {
			break
		}
		if !req.AllowSameGame && gamesUsed[c.EventID] {
			continue
		}
		if !req.AllowCrossSport && len(sportsUsed) > 0 && !sportsUsed[c.SportKey] {
			continue
		}
		if c.VolatilityBand == BandHigh && highVol == cons.MaxHighVol {
			continue
		}
		if !c.DistributionStable && unstable == cons.MaxUnstable {
			continue
		}
		if c.IsProp && props == cons.MaxProps {
			continue
		}

		legs = append(legs, c)
		gamesUsed[c.EventID] = true
		sportsUsed[c.SportKey] = true
		if c.VolatilityBand == BandHigh {
			highVol++
		}
		if !c.DistributionStable {
			unstable++
		}
		if c.IsProp {
			props++
		}
	}
	return legs
}

func (e *Engine) finish(res Result, req Request, used Profile, legs []Candidate) Result {
	res.Success = true
	res.ParlayID = uuid.NewString()
	res.UsedProfile = used
	res.UsedLegs = len(legs)
	res.Legs = legs

	var weightSum, edgeSum float64
	hit := 1.0
	for _, l := range legs {
		weightSum += l.ParlayWeight
		edgeSum += l.EdgePoints
		hit *= l.WinProbability
	}
	res.PortfolioScore = weightSum
	res.ExpectedHitRate = hit
	res.EVProxy = edgeSum / float64(len(legs)) * hit

	maxCorr, conflict := MaxCorrelation(legs)
	res.MaxCorrelation = maxCorr
	res.ConflictDetected = conflict
	res.Recommendation = recommend(res)

	telemetry.Infof("parlay: built %d-leg %s (hit %.1f%%, corr %.2f) for %s",
		len(legs), used, hit*100, maxCorr, req.UserID)
	return res
}

// Terminal classification thresholds on the finished parlay.
func recommend(res Result) string {
	switch {
	case res.ConflictDetected || res.ExpectedHitRate < 0.10:
		return "AVOID"
	case res.EVProxy >= 1.0 && res.ExpectedHitRate >= 0.25 && res.MaxCorrelation < 0.8:
		return "STRONG PLAY"
	case res.EVProxy >= 0.5:
		return "CONSIDER"
	default:
		return "PASS"
	}
}

func (e *Engine) recordAttempt(ctx context.Context, req Request, attempt int, p Profile, n int, lean bool, poolSize int, legs []Candidate) {
	if e.audit == nil {
		return
	}
	rec := AuditRecord{
		UserID:             req.UserID,
		Attempt:            attempt,
		Profile:            p,
		LegCount:           n,
		IncludeLean:        lean,
		CandidatesIn:       poolSize,
		CandidatesEligible: len(legs),
		Outcome:            "short",
		Timestamp:          time.Now().UTC(),
	}
	if len(legs) == n {
		rec.Outcome = "built"
	}
	e.audit(ctx, rec)
}

func probStats(slate []Candidate) (mean, std float64) {
	if len(slate) == 0 {
		return 0, 0
	}
	for _, c := range slate {
		mean += c.WinProbability
	}
	mean /= float64(len(slate))
	var sum float64
	for _, c := range slate {
		sum += (c.WinProbability - mean) * (c.WinProbability - mean)
	}
	return mean, math.Sqrt(sum / float64(len(slate)))
}

func sortByWeightDesc(cs []Candidate) {
	for i := 1; i < len(cs); i++ {
		key := cs[i]
		j := i - 1
		for j >= 0 && cs[j].ParlayWeight < key.ParlayWeight {
			cs[j+1] = cs[j]
			j--
		}
		cs[j+1] = key
	}
}
