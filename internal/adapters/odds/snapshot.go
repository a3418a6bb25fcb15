package odds

import (
	"time"

	"github.com/betflow/betflow/internal/core/signal"
)

// Snapshot flattens one event's first-book quotes into a market
// snapshot. Spread lines are home-relative; totals take the over/under
// pair; h2h becomes the moneyline. Events with no usable book yield a
// snapshot with all markets nil, which the evaluator rejects as
// MISSING_MARKET_DATA.
func Snapshot(ev Event, wave int) signal.MarketSnapshot {
	snap := signal.MarketSnapshot{
		GameID:     ev.ID,
		CapturedAt: time.Now().UTC(),
		Wave:       wave,
	}

	for _, book := range ev.Bookmakers {
		if snap.Book == "" {
			snap.Book = book.Key
		}
		for _, m := range book.Markets {
			switch m.Key {
			case MarketSpreads:
				if snap.Spread == nil {
					snap.Spread = spreadQuote(ev, m)
				}
			case MarketTotals:
				if snap.Total == nil {
					snap.Total = totalQuote(m)
				}
			case MarketH2H:
				if snap.Moneyline == nil {
					snap.Moneyline = moneylineQuote(ev, m)
				}
			}
		}
	}

	snap.Hash = snap.ContentHash()
	return snap
}

func spreadQuote(ev Event, m Market) *signal.SpreadQuote {
	var q signal.SpreadQuote
	var haveHome, haveAway bool
	for _, o := range m.Outcomes {
		switch o.Name {
		case ev.HomeTeam:
			if o.Point == nil {
				return nil
			}
			q.Line = *o.Point
			q.HomePrice = o.Price
			haveHome = true
		case ev.AwayTeam:
			q.AwayPrice = o.Price
			haveAway = true
		}
	}
	if !haveHome || !haveAway {
		return nil
	}
	return &q
}

func totalQuote(m Market) *signal.TotalQuote {
	var q signal.TotalQuote
	var haveOver, haveUnder bool
	for _, o := range m.Outcomes {
		switch o.Name {
		case "Over":
			if o.Point == nil {
				return nil
			}
			q.Line = *o.Point
			q.OverPrice = o.Price
			haveOver = true
		case "Under":
			q.UnderPrice = o.Price
			haveUnder = true
		}
	}
	if !haveOver || !haveUnder {
		return nil
	}
	return &q
}

func moneylineQuote(ev Event, m Market) *signal.MoneylineQuote {
	var q signal.MoneylineQuote
	var haveHome, haveAway bool
	for _, o := range m.Outcomes {
		switch o.Name {
		case ev.HomeTeam:
			q.HomePrice = o.Price
			haveHome = true
		case ev.AwayTeam:
			q.AwayPrice = o.Price
			haveAway = true
		}
	}
	if !haveHome || !haveAway {
		return nil
	}
	return &q
}
