package parlay

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// solid builds a candidate that clears the parlay pool but not the
// HIGH_CONFIDENCE or BALANCED win-probability bars.
func solid(event string) Candidate {
	return Candidate{
		EventID: event, SportKey: "nba", MarketType: "spread",
		StrictState: "PICK", Side: "home", Period: "full",
		WinProbability: 0.54, EdgePoints: 6.0, Confidence: 80,
		VolatilityBand: BandLow, DistributionStable: true,
		CanParlay: true, PlayerStatusOK: true,
	}
}

func strong(event string) Candidate {
	c := solid(event)
	c.WinProbability = 0.60
	return c
}

func parlayRequest(profile Profile, legs int) Request {
	return Request{
		UserID: "u1", Profile: profile, LegCount: legs, Mode: ModeParlay,
		IncludeGameLines: true, AllowCrossSport: true,
	}
}

func TestComputeWeight(t *testing.T) {
	c := solid("evt1")
	ComputeWeight(&c)
	// 0.45·0.267 + 0.30·1.0 + 0.25·0.8 = 0.62, no penalties.
	assert.InDelta(t, 0.62, c.ParlayWeight, 0.005)
	assert.True(t, c.ParlayEligible)

	// HIGH volatility plus an unstable distribution buries the same leg.
	shaky := solid("evt2")
	shaky.VolatilityBand = BandHigh
	shaky.DistributionStable = false
	ComputeWeight(&shaky)
	assert.InDelta(t, 0.27, shaky.ParlayWeight, 0.005)
	assert.False(t, shaky.ParlayEligible)

	// Weight never leaves [0,1].
	monster := Candidate{WinProbability: 0.99, EdgePoints: 50, Confidence: 100,
		VolatilityBand: BandLow, DistributionStable: true}
	ComputeWeight(&monster)
	assert.Equal(t, 1.0, monster.ParlayWeight)
}

func TestGenerateFirstAttempt(t *testing.T) {
	e := NewEngine(nil)
	slate := []Candidate{strong("evt1"), strong("evt2"), strong("evt3")}

	res := e.Generate(context.Background(), parlayRequest(ProfileBalanced, 3), slate)
	require.True(t, res.Success)
	assert.NotEmpty(t, res.ParlayID)
	assert.Equal(t, ProfileBalanced, res.UsedProfile)
	assert.Equal(t, 3, res.UsedLegs)
	assert.Len(t, res.Legs, 3)
	assert.Empty(t, res.FallbackSteps)
	assert.InDelta(t, 0.216, res.ExpectedHitRate, 0.001)
	assert.InDelta(t, 0.15, res.MaxCorrelation, 0.001)
	assert.False(t, res.ConflictDetected)
	assert.NotEmpty(t, res.Recommendation)
}

func TestGenerateFallbackLadderToHighVol(t *testing.T) {
	e := NewEngine(nil)
	// 54% legs: below HIGH_CONFIDENCE (0.58) and BALANCED (0.55), above
	// the HIGH_VOLATILITY floor (0.53).
	slate := []Candidate{solid("evt1"), solid("evt2"), solid("evt3")}

	res := e.Generate(context.Background(), parlayRequest(ProfileHighConfidence, 3), slate)
	require.True(t, res.Success)
	assert.Equal(t, ProfileHighConfidence, res.RequestedProfile)
	assert.Equal(t, ProfileHighVolatility, res.UsedProfile)
	assert.Equal(t, []string{
		StepFallbackToBalanced,
		StepEnableHigherRisk,
		StepFallbackToHighVol,
	}, res.FallbackSteps)
	assert.Equal(t, 3, res.UsedLegs)
	assert.InDelta(t, 0.54*0.54*0.54, res.ExpectedHitRate, 0.001)
}

func TestGenerateExhaustsLadder(t *testing.T) {
	e := NewEngine(nil)
	// Only two candidates for a three-leg request: no relaxation can
	// conjure the third leg, and the leg count is already at the floor.
	slate := []Candidate{solid("evt1"), solid("evt2")}

	res := e.Generate(context.Background(), parlayRequest(ProfileHighConfidence, 3), slate)
	assert.False(t, res.Success)
	assert.Equal(t, FailFallbackExhausted, res.FailReason)
	assert.Zero(t, res.UsedLegs)
	assert.Empty(t, res.Legs, "a failed build never carries a partial slip")
	assert.Contains(t, res.FallbackSteps, StepFallbackToHighVol)
}

func TestGenerateEmptySlate(t *testing.T) {
	e := NewEngine(nil)
	res := e.Generate(context.Background(), parlayRequest(ProfileBalanced, 3), nil)
	assert.False(t, res.Success)
	assert.Equal(t, FailEmptySlate, res.FailReason)
}

func TestGenerateStrictModeAdmitsPicksOnly(t *testing.T) {
	e := NewEngine(nil)
	lean := strong("evt-lean")
	lean.StrictState = "LEAN"
	noParlay := strong("evt-flagged")
	noParlay.CanParlay = false

	slate := []Candidate{strong("evt1"), strong("evt2"), strong("evt3"), lean, noParlay}
	req := parlayRequest(ProfileBalanced, 3)
	req.Mode = ModeStrict

	res := e.Generate(context.Background(), req, slate)
	require.True(t, res.Success)
	for _, l := range res.Legs {
		assert.Equal(t, "PICK", l.StrictState)
		assert.True(t, l.CanParlay)
		assert.NotEqual(t, "evt-lean", l.EventID)
		assert.NotEqual(t, "evt-flagged", l.EventID)
	}
}

func TestGenerateSameGameDiversification(t *testing.T) {
	e := NewEngine(nil)
	dup := strong("evt1")
	dup.MarketType = "total"
	dup.Side = "over"
	slate := []Candidate{strong("evt1"), dup, strong("evt2"), strong("evt3")}

	req := parlayRequest(ProfileBalanced, 3)
	res := e.Generate(context.Background(), req, slate)
	require.True(t, res.Success)
	seen := map[string]int{}
	for _, l := range res.Legs {
		seen[l.EventID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "event %s appears %d times without allow_same_game", id, n)
	}

	// With same-game explicitly allowed both evt1 legs can ride.
	req.AllowSameGame = true
	req.LegCount = 4
	res = e.Generate(context.Background(), req, slate)
	require.True(t, res.Success)
	assert.Equal(t, 4, res.UsedLegs)
}

func TestGeneratePropIntegrityGate(t *testing.T) {
	e := NewEngine(nil)
	prop := strong("evt-prop")
	prop.IsProp = true
	prop.PlayerStatusOK = false // questionable player

	slate := []Candidate{strong("evt1"), strong("evt2"), strong("evt3"), prop}
	req := parlayRequest(ProfileBalanced, 3)
	req.IncludeProps = true

	res := e.Generate(context.Background(), req, slate)
	require.True(t, res.Success)
	for _, l := range res.Legs {
		assert.NotEqual(t, "evt-prop", l.EventID, "unconfirmed player props never enter the pool")
	}
}

func TestGenerateNeverBuildsBelowLegFloor(t *testing.T) {
	e := NewEngine(nil)
	slate := []Candidate{strong("evt1"), strong("evt2"), strong("evt3")}

	res := e.Generate(context.Background(), parlayRequest(ProfileBalanced, 1), slate)
	require.True(t, res.Success)
	assert.Equal(t, 3, res.RequestedLegs, "requests below the floor round up")
	assert.Equal(t, 3, res.UsedLegs)
}

func TestGenerateAuditTrail(t *testing.T) {
	var recs []AuditRecord
	e := NewEngine(func(_ context.Context, rec AuditRecord) { recs = append(recs, rec) })

	slate := []Candidate{solid("evt1"), solid("evt2"), solid("evt3")}
	res := e.Generate(context.Background(), parlayRequest(ProfileHighConfidence, 3), slate)
	require.True(t, res.Success)

	// HC, BAL, BAL+lean, HV: one record per ladder attempt.
	require.Len(t, recs, 4)
	assert.Equal(t, "short", recs[0].Outcome)
	assert.Equal(t, "built", recs[3].Outcome)
	assert.Equal(t, ProfileHighVolatility, recs[3].Profile)
	for i, r := range recs {
		assert.Equal(t, i+1, r.Attempt)
	}
}

func TestGenerateLadderIsFinite(t *testing.T) {
	e := NewEngine(nil)
	// A large request over a thin pool walks the whole ladder, including
	// every leg-count reduction, and still terminates.
	var slate []Candidate
	for i := 0; i < 2; i++ {
		slate = append(slate, solid(fmt.Sprintf("evt%d", i)))
	}
	res := e.Generate(context.Background(), parlayRequest(ProfileHighConfidence, 8), slate)
	assert.False(t, res.Success)
	assert.Equal(t, FailFallbackExhausted, res.FailReason)

	var reductions int
	for _, s := range res.FallbackSteps {
		if s == StepReduceLegCount {
			reductions++
		}
	}
	assert.Equal(t, 5, reductions, "8 legs steps down to the floor of 3")
}
