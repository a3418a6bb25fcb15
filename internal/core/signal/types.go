package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/betflow/betflow/internal/core/edge"
	"github.com/betflow/betflow/internal/core/sharpside"
	"github.com/betflow/betflow/internal/events"
)

// State of a signal in its lifecycle.
type State string

const (
	StateDiscovered State = "DISCOVERED"
	StateValidating State = "VALIDATING"
	StateValidated  State = "VALIDATED"
	StateUnstable   State = "UNSTABLE"
	StatePublished  State = "PUBLISHED"
	StateWithdrawn  State = "WITHDRAWN"
	StateLocked     State = "LOCKED"
	StateGraded     State = "GRADED"
	StateNoPlay     State = "NO_PLAY"
	StateLean       State = "LEAN"
	StatePick       State = "PICK"
)

// Intent distinguishes what a signal is being qualified for.
type Intent string

const (
	IntentTruthMode  Intent = "TRUTH_MODE"
	IntentParlayMode Intent = "PARLAY_MODE"
	IntentB2B        Intent = "B2B"
)

// SpreadQuote is one book's spread market at a capture instant.
type SpreadQuote struct {
	Line      float64 `json:"line"` // home-relative, negative when home favored
	HomePrice int     `json:"home_price"`
	AwayPrice int     `json:"away_price"`
}

// TotalQuote is one book's total market.
type TotalQuote struct {
	Line       float64 `json:"line"`
	OverPrice  int     `json:"over_price"`
	UnderPrice int     `json:"under_price"`
}

// MoneylineQuote is one book's moneyline market.
type MoneylineQuote struct {
	HomePrice int `json:"home_price"`
	AwayPrice int `json:"away_price"`
}

// MarketSnapshot is an immutable capture of market prices. Hash is
// content-addressed over the prices so identical captures within the
// dedup window resolve to one snapshot.
type MarketSnapshot struct {
	SnapshotID string          `json:"snapshot_id"`
	GameID     string          `json:"game_id"`
	CapturedAt time.Time       `json:"captured_at"`
	Wave       int             `json:"wave"`
	Book       string          `json:"book"`
	Spread     *SpreadQuote    `json:"spread,omitempty"`
	Total      *TotalQuote     `json:"total,omitempty"`
	Moneyline  *MoneylineQuote `json:"moneyline,omitempty"`
	Hash       string          `json:"hash"`

	// Movement against the previous snapshot on the same signal; zero on
	// the first capture.
	SpreadDelta float64 `json:"spread_delta"`
	TotalDelta  float64 `json:"total_delta"`
}

// ContentHash covers game, book, and every quoted price, but not the
// capture time; two captures of an unmoved market hash identically.
func (m MarketSnapshot) ContentHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s", m.GameID, m.Book)
	if m.Spread != nil {
		fmt.Fprintf(h, "|s%.2f:%d:%d", m.Spread.Line, m.Spread.HomePrice, m.Spread.AwayPrice)
	}
	if m.Total != nil {
		fmt.Fprintf(h, "|t%.2f:%d:%d", m.Total.Line, m.Total.OverPrice, m.Total.UnderPrice)
	}
	if m.Moneyline != nil {
		fmt.Fprintf(h, "|m%d:%d", m.Moneyline.HomePrice, m.Moneyline.AwayPrice)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SimulationRun is one Monte-Carlo pass, append-only.
type SimulationRun struct {
	RunID              string             `json:"run_id"`
	GameID             string             `json:"game_id"`
	EventID            string             `json:"event_id"`
	Wave               int                `json:"wave"`
	ModelVersion       string             `json:"model_version"`
	Seed               int64              `json:"seed"`
	NumSims            int                `json:"num_sims"`
	WinProbabilities   map[string]float64 `json:"win_probabilities"`
	SpreadDistribution map[string]float64 `json:"spread_distribution"`
	TotalDistribution  map[string]float64 `json:"total_distribution"`
	ConvergenceRate    float64            `json:"convergence_rate"`
	WinProbStd         float64            `json:"win_prob_std"`
	TotalStd           float64            `json:"total_std"`
	CreatedAt          time.Time          `json:"created_at"`
}

// WaveEvaluation summarizes one wave's evaluation on the signal, so
// later waves can run stability checks without replaying the pipeline.
type WaveEvaluation struct {
	Wave              int               `json:"wave"`
	State             edge.EdgeState    `json:"state"`
	CompressedEdgePct float64           `json:"compressed_edge_pct"`
	CompressedProb    float64           `json:"compressed_prob"`
	SharpSide         string            `json:"sharp_side,omitempty"`
	Action            sharpside.Action  `json:"action,omitempty"`
	Volatility        edge.Volatility   `json:"volatility"`
	Distribution      edge.Distribution `json:"distribution"`
	BlockReason       edge.Code         `json:"block_reason,omitempty"`
	EvaluatedAt       time.Time         `json:"evaluated_at"`
}

// EntrySnapshot is the frozen price captured at publish. Immutable.
type EntrySnapshot struct {
	SharpSide          string    `json:"sharp_side"`
	MarketType         string    `json:"market_type"`
	EntryLine          *float64  `json:"entry_line,omitempty"`
	EntryTotal         *float64  `json:"entry_total,omitempty"`
	EntryOdds          int       `json:"entry_odds"`
	MaxAcceptableLine  *float64  `json:"max_acceptable_line,omitempty"`
	MaxAcceptableTotal *float64  `json:"max_acceptable_total,omitempty"`
	MaxAcceptableOdds  *int      `json:"max_acceptable_odds,omitempty"`
	CapturedAt         time.Time `json:"captured_at"`
	CapturedWave       int       `json:"captured_wave"`
}

// Signal is the central aggregate. Snapshots, Runs, and Evaluations are
// append-only; Entry is frozen the moment PublishedAt is set.
type Signal struct {
	SignalID  string         `json:"signal_id"`
	GameID    string         `json:"game_id"`
	Sport     events.Sport   `json:"sport"`
	HomeTeam  string         `json:"home_team"`
	AwayTeam  string         `json:"away_team"`
	GameTime  time.Time      `json:"game_time"`
	Intent    Intent         `json:"intent"`
	MarketKey edge.MarketKey `json:"market_key"`
	State     State          `json:"state"`
	CreatedAt time.Time      `json:"created_at"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`

	Snapshots   []MarketSnapshot `json:"snapshots"`
	Runs        []SimulationRun  `json:"runs"`
	Evaluations []WaveEvaluation `json:"evaluations"`

	Entry *EntrySnapshot `json:"entry,omitempty"`

	FreezeUntil  *time.Time `json:"freeze_until,omitempty"`
	FreezeReason string     `json:"freeze_reason,omitempty"`

	Result   edge.Result `json:"result,omitempty"`
	GradedAt *time.Time  `json:"graded_at,omitempty"`
}

// LatestEvaluation returns the newest wave evaluation, or nil.
func (s *Signal) LatestEvaluation() *WaveEvaluation {
	if len(s.Evaluations) == 0 {
		return nil
	}
	return &s.Evaluations[len(s.Evaluations)-1]
}

// LatestSnapshot returns the newest market snapshot, or nil.
func (s *Signal) LatestSnapshot() *MarketSnapshot {
	if len(s.Snapshots) == 0 {
		return nil
	}
	return &s.Snapshots[len(s.Snapshots)-1]
}

// SignalDelta is a diff of two signals' key fields.
type SignalDelta struct {
	FromID      string   `json:"from_id"`
	ToID        string   `json:"to_id"`
	StateChange string   `json:"state_change,omitempty"`
	EdgeMove    float64  `json:"edge_move"`
	LineMove    float64  `json:"line_move"`
	TotalMove   float64  `json:"total_move"`
	SideChanged bool     `json:"side_changed"`
	Changes     []string `json:"changes,omitempty"`
}

// Robustness classifies the stability of recent signals for one market.
type Robustness string

const (
	Robust  Robustness = "ROBUST"
	Fragile Robustness = "FRAGILE"
	// RobustnessUnknown means too little history to judge.
	RobustnessUnknown Robustness = ""
)
