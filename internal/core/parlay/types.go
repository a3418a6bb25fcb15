// Package parlay composes qualified signals into correlated multi-leg
// bets. Candidate filtering, weighting, and correlation feed a selection
// pass wrapped in a fallback ladder that only comes back empty when the
// slate itself is empty.
package parlay

import "time"

// Profile is the requested risk posture for a parlay.
type Profile string

const (
	ProfileHighConfidence Profile = "HIGH_CONFIDENCE"
	ProfileBalanced       Profile = "BALANCED"
	ProfileHighVolatility Profile = "HIGH_VOLATILITY"
)

// Mode selects the candidate pool gating.
type Mode string

const (
	// ModeStrict (truth mode) admits PICK-state legs only.
	ModeStrict Mode = "TRUTH_MODE"
	// ModeParlay admits PICK and LEAN legs through the looser pool
	// thresholds, with weight penalties.
	ModeParlay Mode = "PARLAY_MODE"
)

// Volatility band labels on candidates (coarser than the evaluator's).
const (
	BandLow  = "LOW"
	BandMed  = "MED"
	BandHigh = "HIGH"
)

// Fallback step codes, in ladder order.
const (
	StepFallbackToBalanced  = "FALLBACK_TO_BALANCED"
	StepEnableHigherRisk    = "ENABLE_HIGHER_RISK_LEGS"
	StepFallbackToHighVol   = "FALLBACK_TO_HIGH_VOL"
	StepReduceLegCount      = "REDUCE_LEG_COUNT"
	FailFallbackExhausted   = "FALLBACK_EXHAUSTED_NO_VALID_LEGS"
	FailEmptySlate          = "EMPTY_CANDIDATE_SLATE"
)

// Candidate is one leg the engine may select.
type Candidate struct {
	EventID     string  `json:"event_id"`
	SportKey    string  `json:"sport_key"`
	MarketType  string  `json:"market_type"` // spread, total, moneyline, prop
	StrictState string  `json:"strict_state"` // PICK, LEAN, NO_PLAY
	Side        string  `json:"side"`
	Period      string  `json:"period"` // 1H, 2H, full

	WinProbability     float64 `json:"win_probability"`
	EdgePoints         float64 `json:"edge_points"`
	Confidence         float64 `json:"confidence"` // 0-100
	VolatilityBand     string  `json:"volatility_band"`
	DistributionStable bool    `json:"distribution_stable"`

	// Team home cities, for the cross-sport city bias.
	HomeCity string `json:"home_city,omitempty"`

	CanParlay      bool `json:"can_parlay"`
	IsProp         bool `json:"is_prop"`
	PlayerStatusOK bool `json:"player_status_ok"`

	// Computed by the engine.
	ParlayWeight   float64 `json:"parlay_weight"`
	ParlayEligible bool    `json:"parlay_eligible"`
}

// Request describes one parlay build.
type Request struct {
	UserID   string  `json:"user_id"`
	Profile  Profile `json:"profile"`
	LegCount int     `json:"leg_count"`
	Mode     Mode    `json:"mode"`

	IncludeProps     bool `json:"include_props"`
	IncludeGameLines bool `json:"include_game_lines"`
	DFSMode          bool `json:"dfs_mode"`

	AllowSameGame   bool `json:"allow_same_game"`
	AllowCrossSport bool `json:"allow_cross_sport"`
}

// Result is the structured generation outcome. Generation never raises
// to callers; failure is a Result with Success false.
type Result struct {
	Success          bool      `json:"success"`
	ParlayID         string    `json:"parlay_id,omitempty"`
	Mode             Mode      `json:"mode"`
	RequestedProfile Profile   `json:"requested_profile"`
	UsedProfile      Profile   `json:"used_profile"`
	RequestedLegs    int       `json:"requested_leg_count"`
	UsedLegs         int       `json:"used_leg_count"`
	Legs             []Candidate `json:"legs,omitempty"`

	PortfolioScore   float64 `json:"portfolio_score"`
	ExpectedHitRate  float64 `json:"expected_hit_rate"`
	EVProxy          float64 `json:"expected_value_proxy"`
	MaxCorrelation   float64 `json:"max_correlation"`
	ConflictDetected bool    `json:"conflict_detected"`
	Recommendation   string  `json:"recommendation"`

	FallbackSteps []string  `json:"fallback_steps,omitempty"`
	FailReason    string    `json:"fail_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// AuditRecord captures one ladder attempt for the persisted audit trail.
type AuditRecord struct {
	ParlayID           string    `json:"parlay_id,omitempty"`
	UserID             string    `json:"user_id"`
	Attempt            int       `json:"attempt"`
	Profile            Profile   `json:"profile"`
	LegCount           int       `json:"leg_count"`
	IncludeLean        bool      `json:"include_lean"`
	CandidatesIn       int       `json:"candidates_in"`
	CandidatesEligible int       `json:"candidates_eligible"`
	Outcome            string    `json:"outcome"` // "built" or "short"
	FailReason         string    `json:"fail_reason,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}
