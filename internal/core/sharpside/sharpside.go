// Package sharpside turns an evaluated market plus market prices into a
// concrete side with an action. The spread rule is the locked
// definition: the model spread is signed from the underdog's
// perspective, and the favorite is only played through the
// favorite_sharp guard below.
package sharpside

import (
	"fmt"
	"math"

	"github.com/betflow/betflow/internal/core/edge"
)

// Action is what to do with the sharp side.
type Action string

const (
	ActionLayPoints      Action = "LAY_POINTS"
	ActionTakePoints     Action = "TAKE_POINTS"
	ActionTakePointsLive Action = "TAKE_POINTS_LIVE"
	ActionOver           Action = "OVER"
	ActionUnder          Action = "UNDER"
	ActionML             Action = "ML"
	ActionNone           Action = "NONE"
)

// NoSharpPlay is the SharpSide value when no side qualifies.
const NoSharpPlay = "NO_SHARP_PLAY"

// Market severely underpricing the favorite needs this much slack, in
// points, before the favorite side is ever recommended.
const favoriteSharpSlack = 3.0

// Displays are the downstream-facing strings. They are the source of
// truth for renderers; nothing downstream re-derives them.
type Displays struct {
	Market    string `json:"market"`
	Model     string `json:"model"`
	SharpSide string `json:"sharp_side"`
}

// Selection is the full sharp-side record for one market.
type Selection struct {
	SharpSide         string          `json:"sharp_side"`
	Action            Action          `json:"action"`
	MarketSpread      float64         `json:"market_spread,omitempty"`
	ModelSpread       float64         `json:"model_spread,omitempty"`
	MarketFavorite    string          `json:"market_favorite,omitempty"`
	MarketUnderdog    string          `json:"market_underdog,omitempty"`
	EdgeMagnitude     float64         `json:"edge_magnitude"`
	VolatilityPenalty float64         `json:"volatility_penalty"`
	EdgeAfterPenalty  float64         `json:"edge_after_penalty"`
	Displays          Displays        `json:"displays"`
	Reasoning         string          `json:"reasoning"`
	Volatility        edge.Volatility `json:"volatility"`
}

// SpreadInput feeds SelectSpread. MarketSpreadHome is the book's home
// line (negative when home is favored). ModelSpread is signed from the
// underdog's perspective: positive means the model has the underdog
// covering by that many points, negative means the favorite covers.
type SpreadInput struct {
	HomeTeam         string
	AwayTeam         string
	MarketSpreadHome float64
	ModelSpread      float64
	Volatility       edge.Volatility
}

// SelectSpread applies the locked spread rule.
//
// With modelNorm = |ModelSpread| and the market underdog getting
// marketDog points:
//
//	favorite_sharp:            lay the points with the favorite
//	modelNorm < marketDog:     market is generous to the dog, take now
//	modelNorm > marketDog:     market shorts the dog, take live
//	equality:                  no sharp play
func SelectSpread(in SpreadInput) Selection {
	marketDog := math.Abs(in.MarketSpreadHome)
	modelNorm := math.Abs(in.ModelSpread)

	favorite, underdog := in.HomeTeam, in.AwayTeam
	if in.MarketSpreadHome > 0 {
		favorite, underdog = in.AwayTeam, in.HomeTeam
	}
	marketFav := -marketDog

	sel := Selection{
		MarketSpread:   in.MarketSpreadHome,
		ModelSpread:    in.ModelSpread,
		MarketFavorite: favorite,
		MarketUnderdog: underdog,
		Volatility:     in.Volatility,
		Displays: Displays{
			Market: fmt.Sprintf("%s +%.1f", underdog, marketDog),
			Model:  fmt.Sprintf("%s %+.1f", underdog, in.ModelSpread),
		},
	}
	sel.EdgeMagnitude = math.Abs(modelNorm - marketDog)

	favoriteSharp := marketFav <= -favoriteSharpSlack &&
		-modelNorm < marketFav-favoriteSharpSlack

	switch {
	case favoriteSharp:
		sel.Action = ActionLayPoints
		sel.SharpSide = fmt.Sprintf("%s %.1f", favorite, marketFav)
		sel.VolatilityPenalty = 0 // pregame favorite carries no penalty
		sel.Reasoning = fmt.Sprintf(
			"market underprices the favorite: model has %s covering %.1f against a %.1f line",
			favorite, modelNorm, marketFav)
	case modelNorm < marketDog:
		sel.Action = ActionTakePoints
		sel.SharpSide = fmt.Sprintf("%s +%.1f", underdog, marketDog)
		sel.VolatilityPenalty = pregameDogPenalty(in.Volatility)
		sel.Reasoning = fmt.Sprintf(
			"market is generous to the dog: model needs only %.1f, market gives %.1f",
			modelNorm, marketDog)
	case modelNorm > marketDog:
		sel.Action = ActionTakePointsLive
		sel.SharpSide = fmt.Sprintf("%s +%.1f", underdog, marketDog)
		sel.VolatilityPenalty = livePenalty(in.Volatility)
		sel.Reasoning = fmt.Sprintf(
			"market shorts the dog: model wants %.1f, entry deferred to the live market",
			modelNorm)
	default:
		return noPlay(sel, "model and market agree on the number")
	}

	sel.EdgeAfterPenalty = sel.EdgeMagnitude - sel.VolatilityPenalty
	if sel.EdgeAfterPenalty <= 0 {
		return noPlay(sel, fmt.Sprintf(
			"edge %.1f does not survive the %.1f volatility penalty",
			sel.EdgeMagnitude, sel.VolatilityPenalty))
	}
	sel.Displays.SharpSide = sel.SharpSide
	return sel
}

// TotalInput feeds SelectTotal with compressed side probabilities.
type TotalInput struct {
	Line       float64
	OverProb   float64
	UnderProb  float64
	EdgePct    float64
	Volatility edge.Volatility
}

// SelectTotal picks OVER or UNDER by the stronger compressed
// probability. No penalty logic beyond carrying the volatility flag.
func SelectTotal(in TotalInput) Selection {
	side, prob := "OVER", in.OverProb
	action := ActionOver
	if in.UnderProb > in.OverProb {
		side, prob = "UNDER", in.UnderProb
		action = ActionUnder
	}
	display := fmt.Sprintf("%s %.1f", side, in.Line)
	return Selection{
		SharpSide:        display,
		Action:           action,
		EdgeMagnitude:    in.EdgePct,
		EdgeAfterPenalty: in.EdgePct,
		Volatility:       in.Volatility,
		Displays: Displays{
			Market:    fmt.Sprintf("total %.1f", in.Line),
			Model:     fmt.Sprintf("%s %.0f%%", side, prob*100),
			SharpSide: display,
		},
		Reasoning: fmt.Sprintf("model favors the %s at %.0f%%", side, prob*100),
	}
}

// MoneylineInput feeds SelectMoneyline with compressed win
// probabilities per team.
type MoneylineInput struct {
	HomeTeam   string
	AwayTeam   string
	HomeProb   float64
	AwayProb   float64
	EdgePct    float64
	Volatility edge.Volatility
}

// SelectMoneyline picks the team with the higher compressed win
// probability.
func SelectMoneyline(in MoneylineInput) Selection {
	team, prob := in.HomeTeam, in.HomeProb
	if in.AwayProb > in.HomeProb {
		team, prob = in.AwayTeam, in.AwayProb
	}
	display := fmt.Sprintf("%s ML", team)
	return Selection{
		SharpSide:        display,
		Action:           ActionML,
		EdgeMagnitude:    in.EdgePct,
		EdgeAfterPenalty: in.EdgePct,
		Volatility:       in.Volatility,
		Displays: Displays{
			Market:    fmt.Sprintf("%s / %s moneyline", in.AwayTeam, in.HomeTeam),
			Model:     fmt.Sprintf("%s %.0f%%", team, prob*100),
			SharpSide: display,
		},
		Reasoning: fmt.Sprintf("model has %s winning %.0f%% of simulations", team, prob*100),
	}
}

// CheckAlignment enforces the invariant between the evaluator state and
// the selection: EDGE/LEAN must carry a real side, NO_PLAY must not.
// A violation is an integrity error; callers refuse to publish on it.
func CheckAlignment(state edge.EdgeState, sel *Selection) error {
	playable := sel != nil && sel.Action != ActionNone && sel.SharpSide != NoSharpPlay
	switch state {
	case edge.StateEdge, edge.StateLean:
		if !playable {
			return fmt.Errorf("sharpside: state %s without a sharp side", state)
		}
	case edge.StateNoPlay:
		if playable {
			return fmt.Errorf("sharpside: NO_PLAY carries sharp side %q", sel.SharpSide)
		}
	}
	return nil
}

// Live-entry plays take the full penalty schedule.
func livePenalty(v edge.Volatility) float64 {
	switch v {
	case edge.VolLow:
		return 0.5
	case edge.VolMedium:
		return 1.0
	case edge.VolHigh:
		return 2.0
	default:
		return 3.0
	}
}

// Pregame dog entries are only penalized at EXTREME.
func pregameDogPenalty(v edge.Volatility) float64 {
	if v == edge.VolExtreme {
		return 1.0
	}
	return 0
}

func noPlay(sel Selection, why string) Selection {
	sel.SharpSide = NoSharpPlay
	sel.Action = ActionNone
	sel.EdgeAfterPenalty = sel.EdgeMagnitude - sel.VolatilityPenalty
	sel.Displays.SharpSide = NoSharpPlay
	sel.Reasoning = why
	return sel
}
