package events

// ParlayRequest asks the parlay agent to build a slip for a user.
// Published on parlay.requests; the response comes back on parlay.responses.
type ParlayRequest struct {
	RequestID   string   `json:"request_id"`
	UserID      string   `json:"user_id"`
	RiskProfile string   `json:"risk_profile"` // HIGH_CONFIDENCE, BALANCED, HIGH_VOLATILITY
	LegCount    int      `json:"leg_count"`
	Mode        string   `json:"mode"` // TRUTH_MODE or PARLAY_MODE
	Sports      []string `json:"sports,omitempty"`
	IncludeProps     bool `json:"include_props"`
	IncludeGameLines bool `json:"include_game_lines"`
	DFSMode          bool `json:"dfs_mode"`
}

// ParlayResponse carries the structured generation result (or a typed
// error message) back to the requesting side.
type ParlayResponse struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Type      string `json:"type"` // "result" or "error"
	Error     string `json:"error,omitempty"`
	Result    any    `json:"result,omitempty"`
}

// RiskCheckRequest asks the risk agent to vet a proposed bet size.
// Published on risk.alerts; the advisory comes back on risk.responses.
type RiskCheckRequest struct {
	RequestID string  `json:"request_id"`
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	Odds      int     `json:"odds"` // American
	WinProb   float64 `json:"win_prob"`
}

// RiskAdvisory is published on risk.responses and risk.alerts.
type RiskAdvisory struct {
	RequestID  string   `json:"request_id,omitempty"`
	UserID     string   `json:"user_id"`
	AlertLevel string   `json:"alert_level"` // OK, WARNING, DANGER, EXTREME
	Reasons    []string `json:"reasons"`
	Messages   []string `json:"messages"`
	KellySize  float64  `json:"kelly_size"`
}

// SimulationResult is the Monte-Carlo output contract consumed by the core.
// Distribution keys are stringified margins/totals, per the provider.
type SimulationResult struct {
	EventID            string             `json:"event_id"`
	WinProbabilities   map[string]float64 `json:"win_probabilities"`
	SpreadDistribution map[string]float64 `json:"spread_distribution"`
	TotalDistribution  map[string]float64 `json:"total_distribution"`
	ConvergenceRate    float64            `json:"convergence_rate"`
	WinProbStd         float64            `json:"win_prob_std"`
	TotalStd           float64            `json:"total_std"`
	NumSimulations     int                `json:"num_simulations"`
	ModelVersion       string             `json:"model_version"`
}

// UserActivity is published when a user places or settles a bet.
// The risk agent consumes it for tilt detection and bankroll health.
type UserActivity struct {
	UserID   string  `json:"user_id"`
	Action   string  `json:"action"` // "bet_placed", "bet_settled"
	Amount   float64 `json:"amount"`
	UnitSize float64 `json:"unit_size"`
	Won      *bool   `json:"won,omitempty"` // set on bet_settled
}

// FeedbackOutcome reports a graded pick back into the system.
type FeedbackOutcome struct {
	PickID string `json:"pick_id"`
	GameID string `json:"game_id"`
	Result string `json:"result"` // WIN, LOSS, PUSH
	Source string `json:"source"`
}

// MarketMovement is published when a fresh snapshot moves materially
// against the previous one for the same game/market.
type MarketMovement struct {
	GameID      string  `json:"game_id"`
	MarketKey   string  `json:"market_key"`
	SpreadDelta float64 `json:"spread_delta"`
	TotalDelta  float64 `json:"total_delta"`
}

// UIUpdate is a thin notification for downstream renderers; the core only
// publishes it, presentation belongs to external collaborators.
type UIUpdate struct {
	Kind     string `json:"kind"` // "signal_published", "signal_withdrawn", "parlay_ready"
	SignalID string `json:"signal_id,omitempty"`
	GameID   string `json:"game_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}
