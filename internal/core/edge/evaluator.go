// Package edge is the sport-agnostic market evaluation pipeline. Every
// sport runs the same pipeline; only the thresholds and confirmation
// flags in sportcfg differ. All functions here are pure: callers hand in
// model output and market prices, and get a record back.
package edge

import (
	"fmt"
	"math"

	"github.com/betflow/betflow/internal/core/sportcfg"
	"github.com/betflow/betflow/internal/events"
)

// EdgeState classifies one evaluated market.
type EdgeState string

const (
	StateEdge   EdgeState = "EDGE"
	StateLean   EdgeState = "LEAN"
	StateNoPlay EdgeState = "NO_PLAY"
)

// MarketKey names the market being evaluated.
type MarketKey string

const (
	MarketSpread    MarketKey = "SPREAD"
	MarketTotal     MarketKey = "TOTAL"
	MarketMoneyline MarketKey = "MONEYLINE"
	MarketPuckline  MarketKey = "PUCKLINE"
	MarketProp      MarketKey = "PROP"
)

// Volatility buckets a simulation stdDev against the sport's bands.
type Volatility string

const (
	VolLow     Volatility = "LOW"
	VolMedium  Volatility = "MEDIUM"
	VolHigh    Volatility = "HIGH"
	VolExtreme Volatility = "EXTREME"
)

// Distribution classifies simulation convergence.
type Distribution string

const (
	DistStable          Distribution = "STABLE"
	DistUnstable        Distribution = "UNSTABLE"
	DistUnstableExtreme Distribution = "UNSTABLE_EXTREME"
)

// Code is a machine-readable blocking reason. NO_PLAY with a code is a
// valid outcome, not an evaluator failure.
type Code string

const (
	CodeMissingMarketData   Code = "MISSING_MARKET_DATA"
	CodePitcherNotConfirmed Code = "PITCHER_NOT_CONFIRMED"
	CodeQBNotConfirmed      Code = "QB_NOT_CONFIRMED"
	CodeGoalieNotConfirmed  Code = "GOALIE_NOT_CONFIRMED"
	CodeWeatherUncertain    Code = "WEATHER_UNCERTAIN"
	CodeUnstableExtreme     Code = "DISTRIBUTION_UNSTABLE_EXTREME"
)

func codeSpreadTooLarge(market MarketKey, line float64) Code {
	if market == MarketPuckline {
		return Code(fmt.Sprintf("PUCKLINE_TOO_LARGE_%.1f", math.Abs(line)))
	}
	return Code(fmt.Sprintf("SPREAD_TOO_LARGE_%.1f", math.Abs(line)))
}

// Input is everything one market evaluation needs. Pointer fields
// distinguish a missing price from a zero one.
type Input struct {
	Sport  events.Sport
	Market MarketKey

	// Model output. RawProb is the probability of the evaluated side
	// (spread cover, moneyline win). Totals use the Over/Under pair and
	// ignore RawProb.
	RawProb     float64
	OverProb    float64
	UnderProb   float64
	StdDev      float64
	Convergence float64

	// Market prices, American odds.
	SpreadLine *float64 // signed, evaluated side's perspective
	Price      *int     // spread or moneyline price for the evaluated side
	TotalLine  *float64
	OverPrice  *int
	UnderPrice *int

	// True when the evaluated spread side is the favorite; selects which
	// spread-size cap applies.
	FavoriteSide bool

	// Lineup and conditions context. Only consulted when the sport
	// config requires the confirmation.
	PitcherConfirmed bool
	QBConfirmed      bool
	GoalieConfirmed  bool
	WeatherOK        bool
}

// MarketEvaluation is the pipeline output. Edges are in percentage
// points of compressed (or raw) probability over the market's implied.
type MarketEvaluation struct {
	Sport  events.Sport `json:"sport"`
	Market MarketKey    `json:"market"`
	State  EdgeState    `json:"state"`

	RawEdgePct        float64 `json:"raw_edge_pct"`
	CompressedEdgePct float64 `json:"compressed_edge_pct"`
	CompressedProb    float64 `json:"compressed_prob"`
	ImpliedProb       float64 `json:"implied_prob"`

	ChosenSide    string       `json:"chosen_side,omitempty"` // OVER or UNDER, totals only
	IsLargeSpread bool         `json:"is_large_spread"`
	NearKeyNumber bool         `json:"near_key_number"`
	Volatility    Volatility   `json:"volatility"`
	Distribution  Distribution `json:"distribution"`

	Eligible    bool   `json:"eligible"`
	BlockReason Code   `json:"block_reason,omitempty"`
	Reasons     []Code `json:"reasons,omitempty"`
}

// Evaluate runs the full pipeline for one market: validate, compress,
// edge, classify, then apply eligibility gates. An ineligible market is
// forced to NO_PLAY regardless of edge.
func Evaluate(cfg sportcfg.SportConfig, in Input) MarketEvaluation {
	ev := MarketEvaluation{
		Sport:        in.Sport,
		Market:       in.Market,
		State:        StateNoPlay,
		Volatility:   classifyVolatility(in.StdDev, cfg.Volatility),
		Distribution: ClassifyDistribution(in.Convergence),
	}

	if code, ok := validate(in); !ok {
		ev.block(code)
		return ev
	}

	switch in.Market {
	case MarketTotal:
		evaluateTotal(cfg, in, &ev)
	case MarketMoneyline:
		evaluateMoneyline(cfg, in, &ev)
	default:
		evaluateSpread(cfg, in, &ev)
	}

	// Eligibility gates. Edge strength never rescues a blocked market.
	if cfg.RequiresPitcherConfirmation && !in.PitcherConfirmed {
		ev.block(CodePitcherNotConfirmed)
	}
	if cfg.RequiresQBConfirmation && !in.QBConfirmed {
		ev.block(CodeQBNotConfirmed)
	}
	if cfg.RequiresGoalieConfirmation && !in.GoalieConfirmed {
		ev.block(CodeGoalieNotConfirmed)
	}
	if cfg.WeatherSensitive && !in.WeatherOK {
		ev.block(CodeWeatherUncertain)
	}
	if ev.Distribution == DistUnstableExtreme {
		ev.block(CodeUnstableExtreme)
	}
	if (in.Market == MarketSpread || in.Market == MarketPuckline) && in.SpreadLine != nil {
		limit := cfg.MaxDogSpread
		if in.FavoriteSide {
			limit = cfg.MaxFavoriteSpread
		}
		if limit > 0 && math.Abs(*in.SpreadLine) > limit {
			ev.block(codeSpreadTooLarge(in.Market, *in.SpreadLine))
		}
	}

	if ev.BlockReason != "" {
		ev.State = StateNoPlay
		return ev
	}
	ev.Eligible = true
	return ev
}

func (ev *MarketEvaluation) block(code Code) {
	if ev.BlockReason == "" {
		ev.BlockReason = code
	}
	ev.Reasons = append(ev.Reasons, code)
	ev.Eligible = false
}

func validate(in Input) (Code, bool) {
	switch in.Market {
	case MarketTotal:
		if in.TotalLine == nil || in.OverPrice == nil || in.UnderPrice == nil ||
			in.OverProb <= 0 || in.UnderProb <= 0 {
			return CodeMissingMarketData, false
		}
	case MarketMoneyline:
		if in.Price == nil || in.RawProb <= 0 {
			return CodeMissingMarketData, false
		}
	default: // spread, puckline
		if in.SpreadLine == nil || in.Price == nil || in.RawProb <= 0 {
			return CodeMissingMarketData, false
		}
	}
	return "", true
}

func evaluateSpread(cfg sportcfg.SportConfig, in Input, ev *MarketEvaluation) {
	ev.CompressedProb = Compress(in.RawProb, cfg.CompressionFactor)
	ev.ImpliedProb = AmericanToImplied(*in.Price)
	ev.RawEdgePct = (in.RawProb - ev.ImpliedProb) * 100
	ev.CompressedEdgePct = (ev.CompressedProb - ev.ImpliedProb) * 100

	line := math.Abs(*in.SpreadLine)
	ev.IsLargeSpread = cfg.LargeSpreadCutoff > 0 && line >= cfg.LargeSpreadCutoff
	ev.NearKeyNumber = nearKeyNumber(line, cfg.KeyNumbers)

	edgeBar := cfg.Spread.EdgeThreshold
	if ev.IsLargeSpread && cfg.LargeSpreadEdgeRequirement > edgeBar {
		edgeBar = cfg.LargeSpreadEdgeRequirement
	}
	ev.State = classify(ev.CompressedEdgePct, edgeBar, cfg.Spread.LeanMin)
}

func evaluateTotal(cfg sportcfg.SportConfig, in Input, ev *MarketEvaluation) {
	overC := Compress(in.OverProb, cfg.CompressionFactor)
	underC := Compress(in.UnderProb, cfg.CompressionFactor)
	overEdge := overC - AmericanToImplied(*in.OverPrice)
	underEdge := underC - AmericanToImplied(*in.UnderPrice)

	if overEdge >= underEdge {
		ev.ChosenSide = "OVER"
		ev.CompressedProb = overC
		ev.ImpliedProb = AmericanToImplied(*in.OverPrice)
		ev.RawEdgePct = (in.OverProb - ev.ImpliedProb) * 100
		ev.CompressedEdgePct = overEdge * 100
	} else {
		ev.ChosenSide = "UNDER"
		ev.CompressedProb = underC
		ev.ImpliedProb = AmericanToImplied(*in.UnderPrice)
		ev.RawEdgePct = (in.UnderProb - ev.ImpliedProb) * 100
		ev.CompressedEdgePct = underEdge * 100
	}
	ev.State = classify(ev.CompressedEdgePct, cfg.Total.EdgeThreshold, cfg.Total.LeanMin)
}

func evaluateMoneyline(cfg sportcfg.SportConfig, in Input, ev *MarketEvaluation) {
	ev.CompressedProb = Compress(in.RawProb, cfg.CompressionFactor)
	ev.ImpliedProb = AmericanToImplied(*in.Price)
	ev.RawEdgePct = (in.RawProb - ev.ImpliedProb) * 100
	ev.CompressedEdgePct = (ev.CompressedProb - ev.ImpliedProb) * 100

	// A moneyline play also needs the compressed win probability itself
	// above the sport floor; a big edge on a coin flip is not a play.
	if cfg.Moneyline.MinWinProbEdge > 0 && ev.CompressedProb < cfg.Moneyline.MinWinProbEdge {
		ev.State = StateNoPlay
		return
	}
	ev.State = classify(ev.CompressedEdgePct, cfg.Moneyline.EdgeThreshold, cfg.Moneyline.LeanMin)
}

func classify(edgePct, edgeThreshold, leanMin float64) EdgeState {
	switch {
	case edgePct >= edgeThreshold:
		return StateEdge
	case edgePct >= leanMin:
		return StateLean
	default:
		return StateNoPlay
	}
}

func classifyVolatility(std float64, b sportcfg.VolatilityBands) Volatility {
	switch {
	case std < b.Low:
		return VolLow
	case std < b.Medium:
		return VolMedium
	case std < b.High:
		return VolHigh
	default:
		return VolExtreme
	}
}

// ClassifyDistribution maps a convergence rate to a stability class.
func ClassifyDistribution(convergence float64) Distribution {
	switch {
	case convergence >= 0.85:
		return DistStable
	case convergence >= 0.60:
		return DistUnstable
	default:
		return DistUnstableExtreme
	}
}

func nearKeyNumber(line float64, keys []float64) bool {
	for _, k := range keys {
		if math.Abs(line-k) <= 0.5 {
			return true
		}
	}
	return false
}
