// Package risk vets bet sizes, sizes stakes by fractional Kelly, watches
// bankroll health, and detects tilt from the user activity stream. All
// findings are advisories published on the bus; the agent never blocks a
// bet itself.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betflow/betflow/internal/config"
	"github.com/betflow/betflow/internal/core/edge"
	"github.com/betflow/betflow/internal/events"
	"github.com/betflow/betflow/internal/store"
	"github.com/betflow/betflow/internal/telemetry"
)

// Alert levels, weakest to strongest.
const (
	LevelOK       = "OK"
	LevelWarning  = "WARNING"
	LevelDanger   = "DANGER"
	LevelCritical = "CRITICAL"
	LevelExtreme  = "EXTREME"
	LevelHealthy  = "HEALTHY"
)

// Tilt reason classes. The cooldown is keyed per user per class.
const (
	TiltHighFrequency = "HIGH_FREQUENCY"
	TiltOversizedBet  = "OVERSIZED_BET"
	TiltRapidBetting  = "RAPID_BETTING"
	TiltLossStreak    = "LOSS_STREAK"
)

// Profile is the cached user risk profile, write-through to the store.
type Profile struct {
	UserID           string  `json:"user_id"`
	Bankroll         float64 `json:"bankroll"`
	StartingBankroll float64 `json:"starting_bankroll"`
	AvgBetSize       float64 `json:"avg_bet_size"`
	RecentLossStreak int     `json:"recent_loss_streak"`
}

// betRecord is one tracked bet in the tilt window.
type betRecord struct {
	at     time.Time
	amount float64
}

// Agent consumes risk.alerts, user.activity, and parlay.responses, and
// publishes advisories on risk.responses.
type Agent struct {
	limits   config.RiskLimits
	pub      events.Publisher
	profiles *store.Collection
	alerts   *store.Collection

	mu        sync.Mutex
	cache     map[string]*Profile
	bets      map[string][]betRecord
	cooldowns map[string]time.Time // userID|reasonClass → last alert

	now func() time.Time
}

func NewAgent(limits config.RiskLimits, st *store.Store, pub events.Publisher) *Agent {
	return &Agent{
		limits:    limits,
		pub:       pub,
		profiles:  st.Collection(store.ColRiskProfiles),
		alerts:    st.Collection(store.ColRiskAlerts),
		cache:     make(map[string]*Profile),
		bets:      make(map[string][]betRecord),
		cooldowns: make(map[string]time.Time),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProfileFor returns the cached profile, falling back to the store, then
// to a zero profile for unknown users.
func (a *Agent) ProfileFor(ctx context.Context, userID string) *Profile {
	a.mu.Lock()
	if p, ok := a.cache[userID]; ok {
		a.mu.Unlock()
		return p
	}
	a.mu.Unlock()

	p := &Profile{UserID: userID}
	if _, err := a.profiles.Get(ctx, userID, p); err != nil {
		telemetry.Warnf("risk: load profile %s: %v", userID, err)
	}

	a.mu.Lock()
	a.cache[userID] = p
	a.mu.Unlock()
	return p
}

// UpdateProfile replaces the cached profile and writes it through.
func (a *Agent) UpdateProfile(ctx context.Context, p Profile) error {
	a.mu.Lock()
	a.cache[p.UserID] = &p
	a.mu.Unlock()
	return a.profiles.Upsert(ctx, p.UserID, p)
}

// CheckBetSize vets a proposed stake against the user's bankroll and
// average bet, and reports the Kelly-suggested size alongside.
func (a *Agent) CheckBetSize(ctx context.Context, userID string, amount float64, odds int, winProb float64) events.RiskAdvisory {
	p := a.ProfileFor(ctx, userID)

	adv := events.RiskAdvisory{UserID: userID, AlertLevel: LevelOK}
	if p.Bankroll > 0 {
		adv.KellySize = a.KellySize(p.Bankroll, winProb, odds)
	}
	if p.Bankroll <= 0 {
		adv.AlertLevel = LevelWarning
		adv.Reasons = append(adv.Reasons, "NO_BANKROLL")
		adv.Messages = append(adv.Messages, "no bankroll on record; size checks are meaningless")
		return adv
	}

	bankrollPct := amount / p.Bankroll * 100
	var sizeMult float64
	if p.AvgBetSize > 0 {
		sizeMult = amount / p.AvgBetSize
	}

	if bankrollPct >= a.limits.DangerBankrollPct {
		adv.AlertLevel = LevelDanger
		adv.Reasons = append(adv.Reasons, "BANKROLL_PCT_DANGER")
		adv.Messages = append(adv.Messages,
			fmt.Sprintf("stake is %.1f%% of bankroll (danger at %.0f%%)", bankrollPct, a.limits.DangerBankrollPct))
	} else if bankrollPct >= a.limits.WarnBankrollPct {
		adv.AlertLevel = LevelWarning
		adv.Reasons = append(adv.Reasons, "BANKROLL_PCT_WARNING")
		adv.Messages = append(adv.Messages,
			fmt.Sprintf("stake is %.1f%% of bankroll (warning at %.0f%%)", bankrollPct, a.limits.WarnBankrollPct))
	}

	if sizeMult >= a.limits.DangerSizeMult {
		adv.AlertLevel = LevelDanger
		adv.Reasons = append(adv.Reasons, "SIZE_MULT_DANGER")
		adv.Messages = append(adv.Messages,
			fmt.Sprintf("stake is %.1fx the average bet (danger at %.0fx)", sizeMult, a.limits.DangerSizeMult))
	}

	if adv.AlertLevel != LevelOK {
		adv.Messages = append(adv.Messages,
			fmt.Sprintf("kelly-suggested size: %.2f", adv.KellySize))
	}
	return adv
}

// KellySize is the fractional-Kelly stake: kellyPct = (b·p − q)/b with
// b the decimal odds minus one, clamped to [0, cap].
func (a *Agent) KellySize(bankroll, winProb float64, odds int) float64 {
	b := edge.AmericanToDecimal(odds) - 1
	if b <= 0 {
		return 0
	}
	q := 1 - winProb
	kellyPct := (b*winProb - q) / b
	if kellyPct < 0 {
		kellyPct = 0
	}
	if kellyPct > a.limits.KellyCap {
		kellyPct = a.limits.KellyCap
	}
	return bankroll * kellyPct
}

// CheckParlayRisk vets a finished parlay: EXTREME on long-shot or
// many-leg slips, flags over-correlation and variance traps.
func (a *Agent) CheckParlayRisk(userID string, combinedProb float64, legs int, maxCorrelation, evProxy float64) events.RiskAdvisory {
	adv := events.RiskAdvisory{UserID: userID, AlertLevel: LevelOK}

	if combinedProb < 0.10 || legs >= 5 {
		adv.AlertLevel = LevelExtreme
		adv.Reasons = append(adv.Reasons, "PARLAY_EXTREME")
		adv.Messages = append(adv.Messages,
			fmt.Sprintf("%d legs at %.1f%% combined is lottery-ticket territory", legs, combinedProb*100))
	}
	if maxCorrelation > 0.8 {
		adv.Reasons = append(adv.Reasons, "HIGH_CORRELATION")
		adv.Messages = append(adv.Messages,
			fmt.Sprintf("leg correlation %.2f: these legs win and lose together", maxCorrelation))
		if adv.AlertLevel == LevelOK {
			adv.AlertLevel = LevelWarning
		}
	}
	if evProxy > 1.5 && combinedProb < 0.20 {
		adv.Reasons = append(adv.Reasons, "VARIANCE_WARNING")
		adv.Messages = append(adv.Messages,
			"high EV but low hit rate: expect long losing stretches")
		if adv.AlertLevel == LevelOK {
			adv.AlertLevel = LevelWarning
		}
	}
	return adv
}

// BankrollHealth grades drawdown from the starting bankroll and the
// current loss streak.
func (a *Agent) BankrollHealth(p *Profile) (level string, reasons []string) {
	level = LevelHealthy
	if p.StartingBankroll > 0 {
		drawdown := 1 - p.Bankroll/p.StartingBankroll
		switch {
		case drawdown > a.limits.CriticalDrawdown:
			level = LevelCritical
			reasons = append(reasons, fmt.Sprintf("drawdown %.0f%%", drawdown*100))
		case drawdown > a.limits.WarnDrawdown:
			level = LevelWarning
			reasons = append(reasons, fmt.Sprintf("drawdown %.0f%%", drawdown*100))
		}
	}
	if p.RecentLossStreak >= a.limits.WarnLossStreak {
		if level == LevelHealthy {
			level = LevelWarning
		}
		reasons = append(reasons, fmt.Sprintf("%d straight losses", p.RecentLossStreak))
	}
	return level, reasons
}

// TrackBet runs tilt detection on one placed bet. At most one alert per
// user per hour fires for the same reason class.
func (a *Agent) TrackBet(ctx context.Context, act events.UserActivity) []string {
	now := a.now()
	window := time.Duration(a.limits.TiltWindowMinutes) * time.Minute

	a.mu.Lock()
	history := a.bets[act.UserID]
	// Trim bets that fell out of the frequency window.
	kept := history[:0]
	for _, b := range history {
		if now.Sub(b.at) <= window {
			kept = append(kept, b)
		}
	}
	var sincePrev time.Duration
	if len(kept) > 0 {
		sincePrev = now.Sub(kept[len(kept)-1].at)
	}
	kept = append(kept, betRecord{at: now, amount: act.Amount})
	a.bets[act.UserID] = kept
	betsInWindow := len(kept)
	a.mu.Unlock()

	var fired []string
	if betsInWindow > a.limits.TiltBetsPerWindow {
		fired = a.fire(ctx, fired, act.UserID, TiltHighFrequency,
			fmt.Sprintf("%d bets in %d minutes", betsInWindow, a.limits.TiltWindowMinutes))
	}
	if act.UnitSize > 0 && act.Amount > a.limits.TiltOversizeMult*act.UnitSize {
		fired = a.fire(ctx, fired, act.UserID, TiltOversizedBet,
			fmt.Sprintf("%.0f against a %.0f unit", act.Amount, act.UnitSize))
	}
	if betsInWindow > 1 && sincePrev > 0 && sincePrev < time.Duration(a.limits.TiltRapidSeconds)*time.Second {
		fired = a.fire(ctx, fired, act.UserID, TiltRapidBetting,
			fmt.Sprintf("only %.0fs since the previous bet", sincePrev.Seconds()))
	}
	if p := a.ProfileFor(ctx, act.UserID); p.RecentLossStreak >= a.limits.TiltLossStreak {
		fired = a.fire(ctx, fired, act.UserID, TiltLossStreak,
			fmt.Sprintf("%d consecutive losses", p.RecentLossStreak))
	}
	return fired
}

// fire publishes and persists one tilt alert, subject to the per-class
// cooldown.
func (a *Agent) fire(ctx context.Context, fired []string, userID, class, detail string) []string {
	cooldown := time.Duration(a.limits.AlertCooldownHours) * time.Hour
	key := userID + "|" + class
	now := a.now()

	a.mu.Lock()
	if last, ok := a.cooldowns[key]; ok && now.Sub(last) < cooldown {
		a.mu.Unlock()
		return fired
	}
	a.cooldowns[key] = now
	a.mu.Unlock()

	adv := events.RiskAdvisory{
		UserID:     userID,
		AlertLevel: LevelWarning,
		Reasons:    []string{class},
		Messages:   []string{detail},
	}
	if a.pub != nil {
		a.pub.Publish(events.New(events.TopicRiskResponses, adv))
	}
	if err := a.alerts.Insert(ctx, uuid.NewString(), map[string]any{
		"user_id": userID, "class": class, "detail": detail,
		"timestamp": now.Format(time.RFC3339),
	}); err != nil {
		telemetry.Warnf("risk: persist alert: %v", err)
	}
	telemetry.Metrics.RiskAlerts.Inc()
	telemetry.Warnf("risk: tilt alert %s for %s (%s)", class, userID, detail)
	return append(fired, class)
}

// HandleUserActivity is the bus handler for user.activity.
func (a *Agent) HandleUserActivity(evt events.Event) error {
	act, ok := evt.Payload.(events.UserActivity)
	if !ok {
		return fmt.Errorf("risk: unexpected payload on %s", evt.Topic)
	}
	ctx := context.Background()

	switch act.Action {
	case "bet_placed":
		a.TrackBet(ctx, act)
	case "bet_settled":
		if act.Won == nil {
			return nil
		}
		p := a.ProfileFor(ctx, act.UserID)
		updated := *p
		if *act.Won {
			updated.RecentLossStreak = 0
			updated.Bankroll += act.Amount
		} else {
			updated.RecentLossStreak++
			updated.Bankroll -= act.Amount
		}
		if err := a.UpdateProfile(ctx, updated); err != nil {
			return err
		}
		if level, reasons := a.BankrollHealth(&updated); level != LevelHealthy && a.pub != nil {
			a.pub.Publish(events.New(events.TopicRiskResponses, events.RiskAdvisory{
				UserID:     act.UserID,
				AlertLevel: level,
				Reasons:    reasons,
			}))
		}
	}
	return nil
}

// HandleRiskCheck is the bus handler for risk.alerts (inbound bet-size
// requests). The advisory goes back out on risk.responses.
func (a *Agent) HandleRiskCheck(evt events.Event) error {
	req, ok := evt.Payload.(events.RiskCheckRequest)
	if !ok {
		return fmt.Errorf("risk: unexpected payload on %s", evt.Topic)
	}
	adv := a.CheckBetSize(context.Background(), req.UserID, req.Amount, req.Odds, req.WinProb)
	adv.RequestID = req.RequestID
	if a.pub != nil {
		a.pub.Publish(events.New(events.TopicRiskResponses, adv))
	}
	return nil
}
