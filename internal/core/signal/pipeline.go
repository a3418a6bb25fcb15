package signal

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/betflow/betflow/internal/core/edge"
	"github.com/betflow/betflow/internal/core/sharpside"
	"github.com/betflow/betflow/internal/core/sportcfg"
)

// Lineup carries the confirmation context a wave needs. Only the flags
// the sport's config requires are consulted.
type Lineup struct {
	PitcherConfirmed bool `json:"pitcher_confirmed"`
	QBConfirmed      bool `json:"qb_confirmed"`
	GoalieConfirmed  bool `json:"goalie_confirmed"`
	WeatherOK        bool `json:"weather_ok"`
}

// evaluateWave runs the full qualification pipeline for one signal at one
// wave: build the evaluator input from the snapshot and simulation run,
// classify the edge, and select the sharp side. The evaluator state and
// the selection must agree; a mismatch is an integrity error and the
// caller leaves the signal untouched.
func evaluateWave(cfg sportcfg.SportConfig, sig *Signal, snap MarketSnapshot, run SimulationRun, lineup Lineup, wave int) (WaveEvaluation, edge.MarketEvaluation, *sharpside.Selection, error) {
	in, err := buildInput(sig, snap, run, lineup)
	if err != nil {
		return WaveEvaluation{}, edge.MarketEvaluation{}, nil, err
	}

	ev := edge.Evaluate(cfg, in)

	var sel *sharpside.Selection
	if ev.State != edge.StateNoPlay {
		s := selectSide(cfg, sig, snap, run, ev)
		sel = &s
	}
	if err := sharpside.CheckAlignment(ev.State, sel); err != nil {
		return WaveEvaluation{}, ev, nil, err
	}

	we := WaveEvaluation{
		Wave:              wave,
		State:             ev.State,
		CompressedEdgePct: ev.CompressedEdgePct,
		CompressedProb:    ev.CompressedProb,
		Volatility:        ev.Volatility,
		Distribution:      ev.Distribution,
		BlockReason:       ev.BlockReason,
		EvaluatedAt:       time.Now().UTC(),
	}
	if sel != nil {
		we.SharpSide = sel.SharpSide
		we.Action = sel.Action
	}
	return we, ev, sel, nil
}

// buildInput maps the market snapshot plus simulation distributions into
// the evaluator's input for this signal's market.
func buildInput(sig *Signal, snap MarketSnapshot, run SimulationRun, lineup Lineup) (edge.Input, error) {
	in := edge.Input{
		Sport:       sig.Sport,
		Market:      sig.MarketKey,
		Convergence: run.ConvergenceRate,

		PitcherConfirmed: lineup.PitcherConfirmed,
		QBConfirmed:      lineup.QBConfirmed,
		GoalieConfirmed:  lineup.GoalieConfirmed,
		WeatherOK:        lineup.WeatherOK,
	}

	switch sig.MarketKey {
	case edge.MarketTotal:
		if snap.Total == nil {
			return in, nil // evaluator reports MISSING_MARKET_DATA
		}
		in.StdDev = run.TotalStd
		in.TotalLine = &snap.Total.Line
		in.OverPrice = &snap.Total.OverPrice
		in.UnderPrice = &snap.Total.UnderPrice
		over, under := totalSideProbs(run.TotalDistribution, snap.Total.Line)
		in.OverProb, in.UnderProb = over, under

	case edge.MarketMoneyline:
		if snap.Moneyline == nil {
			return in, nil
		}
		in.StdDev = run.WinProbStd
		pHome := run.WinProbabilities[sig.HomeTeam]
		pAway := run.WinProbabilities[sig.AwayTeam]
		if pHome >= pAway {
			in.RawProb = pHome
			in.Price = &snap.Moneyline.HomePrice
		} else {
			in.RawProb = pAway
			in.Price = &snap.Moneyline.AwayPrice
		}

	default: // spread, puckline
		if snap.Spread == nil {
			return in, nil
		}
		in.StdDev = run.WinProbStd
		homeLine := snap.Spread.Line
		pHome, push := spreadCoverProb(run.SpreadDistribution, homeLine)
		pAway := 1 - pHome - push
		if pHome >= pAway {
			in.RawProb = pHome
			in.SpreadLine = &homeLine
			in.Price = &snap.Spread.HomePrice
			in.FavoriteSide = homeLine < 0
		} else {
			awayLine := -homeLine
			in.RawProb = pAway
			in.SpreadLine = &awayLine
			in.Price = &snap.Spread.AwayPrice
			in.FavoriteSide = homeLine > 0
		}
	}
	return in, nil
}

// selectSide runs the sharp-side selector for an EDGE/LEAN market.
func selectSide(cfg sportcfg.SportConfig, sig *Signal, snap MarketSnapshot, run SimulationRun, ev edge.MarketEvaluation) sharpside.Selection {
	switch sig.MarketKey {
	case edge.MarketTotal:
		over, under := totalSideProbs(run.TotalDistribution, snap.Total.Line)
		return sharpside.SelectTotal(sharpside.TotalInput{
			Line:       snap.Total.Line,
			OverProb:   edge.Compress(over, cfg.CompressionFactor),
			UnderProb:  edge.Compress(under, cfg.CompressionFactor),
			EdgePct:    ev.CompressedEdgePct,
			Volatility: ev.Volatility,
		})
	case edge.MarketMoneyline:
		return sharpside.SelectMoneyline(sharpside.MoneylineInput{
			HomeTeam:   sig.HomeTeam,
			AwayTeam:   sig.AwayTeam,
			HomeProb:   edge.Compress(run.WinProbabilities[sig.HomeTeam], cfg.CompressionFactor),
			AwayProb:   edge.Compress(run.WinProbabilities[sig.AwayTeam], cfg.CompressionFactor),
			EdgePct:    ev.CompressedEdgePct,
			Volatility: ev.Volatility,
		})
	default:
		return sharpside.SelectSpread(sharpside.SpreadInput{
			HomeTeam:         sig.HomeTeam,
			AwayTeam:         sig.AwayTeam,
			MarketSpreadHome: snap.Spread.Line,
			ModelSpread:      modelDogSpread(run.SpreadDistribution, snap.Spread.Line),
			Volatility:       ev.Volatility,
		})
	}
}

// modelDogSpread is the model's expected margin oriented to the market
// underdog: positive means the model has the dog winning outright.
func modelDogSpread(dist map[string]float64, homeLine float64) float64 {
	em := expectedMargin(dist) // home minus away
	if homeLine < 0 {
		return -em // home favored, dog is away
	}
	return em
}

// expectedMargin is the frequency-weighted mean of a margin distribution
// keyed by stringified home-minus-away margins.
func expectedMargin(dist map[string]float64) float64 {
	var sum, total float64
	for k, freq := range dist {
		margin, err := strconv.ParseFloat(k, 64)
		if err != nil {
			continue
		}
		sum += margin * freq
		total += freq
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// spreadCoverProb is the probability the home side covers its line, plus
// the push mass. Margins land on the keys of the distribution.
func spreadCoverProb(dist map[string]float64, homeLine float64) (cover, push float64) {
	var total float64
	for k, freq := range dist {
		margin, err := strconv.ParseFloat(k, 64)
		if err != nil {
			continue
		}
		total += freq
		switch adj := margin + homeLine; {
		case adj > 0:
			cover += freq
		case adj == 0:
			push += freq
		}
	}
	if total == 0 {
		return 0, 0
	}
	return cover / total, push / total
}

// totalSideProbs splits a total distribution at the line. Push mass
// belongs to neither side.
func totalSideProbs(dist map[string]float64, line float64) (over, under float64) {
	var total float64
	for k, freq := range dist {
		t, err := strconv.ParseFloat(k, 64)
		if err != nil {
			continue
		}
		total += freq
		switch {
		case t > line:
			over += freq
		case t < line:
			under += freq
		}
	}
	if total == 0 {
		return 0, 0
	}
	return over / total, under / total
}

// buildEntry captures the frozen publish price from the final snapshot
// and selection. Max-acceptable bounds allow a half point of line
// slippage and ten cents of price.
func buildEntry(sig *Signal, snap MarketSnapshot, sel sharpside.Selection, wave int) EntrySnapshot {
	entry := EntrySnapshot{
		SharpSide:    sel.SharpSide,
		MarketType:   string(sig.MarketKey),
		CapturedAt:   time.Now().UTC(),
		CapturedWave: wave,
	}

	switch sig.MarketKey {
	case edge.MarketTotal:
		if snap.Total != nil {
			line := snap.Total.Line
			entry.EntryTotal = &line
			if sel.Action == sharpside.ActionOver {
				entry.EntryOdds = snap.Total.OverPrice
			} else {
				entry.EntryOdds = snap.Total.UnderPrice
			}
			worst := line // totals tolerate a half point against the side
			if sel.Action == sharpside.ActionOver {
				worst += 0.5
			} else {
				worst -= 0.5
			}
			entry.MaxAcceptableTotal = &worst
		}
	case edge.MarketMoneyline:
		if snap.Moneyline != nil {
			if sel.SharpSide == fmt.Sprintf("%s ML", sig.HomeTeam) {
				entry.EntryOdds = snap.Moneyline.HomePrice
			} else {
				entry.EntryOdds = snap.Moneyline.AwayPrice
			}
		}
	default:
		if snap.Spread != nil {
			dogLine := math.Abs(snap.Spread.Line)
			var line float64
			if sel.Action == sharpside.ActionLayPoints {
				line = -dogLine
				entry.EntryOdds = priceForFavorite(snap)
			} else {
				line = dogLine
				entry.EntryOdds = priceForDog(snap)
			}
			entry.EntryLine = &line
			worst := line - 0.5
			entry.MaxAcceptableLine = &worst
		}
	}

	maxOdds := entry.EntryOdds - 10
	entry.MaxAcceptableOdds = &maxOdds
	return entry
}

func priceForFavorite(snap MarketSnapshot) int {
	if snap.Spread.Line < 0 {
		return snap.Spread.HomePrice
	}
	return snap.Spread.AwayPrice
}

func priceForDog(snap MarketSnapshot) int {
	if snap.Spread.Line < 0 {
		return snap.Spread.AwayPrice
	}
	return snap.Spread.HomePrice
}
