// Package grading settles published signals against final scores. Every
// grading record is keyed by a content-derived idempotency key, so
// re-grading with the same rules versions returns the stored record and
// a rules-version change creates a new record without touching history.
package grading

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betflow/betflow/internal/core/edge"
	"github.com/betflow/betflow/internal/core/signal"
	"github.com/betflow/betflow/internal/events"
	"github.com/betflow/betflow/internal/store"
	"github.com/betflow/betflow/internal/telemetry"
)

// ErrGradingFrozen means the event is under a mapping-drift freeze and
// must not be graded until an operator clears it.
var ErrGradingFrozen = errors.New("grading: event frozen by mapping drift")

// ErrNoEntry means the signal was never published, so there is nothing
// to grade.
var ErrNoEntry = errors.New("grading: signal has no entry snapshot")

// FinalScore is the score adapter's contract for one completed event.
type FinalScore struct {
	EventID   string    `json:"event_id"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	HomeScore int       `json:"home_score"`
	AwayScore int       `json:"away_score"`
	Completed bool      `json:"completed"`
	LastUpdate time.Time `json:"last_update"`
}

// Record is one stored grading outcome.
type Record struct {
	Key       string      `json:"key"`
	PickID    string      `json:"pick_id"`
	Source    string      `json:"source"`
	SettlementRulesVersion string `json:"settlement_rules_version"`
	CLVRulesVersion        string `json:"clv_rules_version"`
	Result    edge.Result `json:"result"`
	HomeScore int         `json:"home_score"`
	AwayScore int         `json:"away_score"`

	// Closing-line value against the entry snapshot, oriented to the
	// sharp side. Points for spread/total, cents for moneyline.
	CLVPoints float64 `json:"clv_points"`
	CLVCents  int     `json:"clv_cents"`

	Override  bool   `json:"override,omitempty"`
	AuditNote string `json:"audit_note,omitempty"`
	GradedAt  time.Time `json:"graded_at"`
}

// Key derives the grading idempotency key:
// sha256(pickId|source|settlementRulesVersion|clvRulesVersion)[:32].
func Key(pickID, source, settlementVer, clvVer string) string {
	sum := sha256.Sum256([]byte(pickID + "|" + source + "|" + settlementVer + "|" + clvVer))
	return hex.EncodeToString(sum[:])[:32]
}

// Service grades signals and owns the drift freeze.
type Service struct {
	records *store.Collection
	ops     *store.Collection
	pub     events.Publisher

	SettlementRulesVersion string
	CLVRulesVersion        string

	mu     sync.Mutex
	frozen map[string]bool // eventID → drift freeze
}

func NewService(st *store.Store, pub events.Publisher) *Service {
	return &Service{
		records:                st.Collection(store.ColGrading),
		ops:                    st.Collection(store.ColOpsAlerts),
		pub:                    pub,
		SettlementRulesVersion: "v1",
		CLVRulesVersion:        "v1",
		frozen:                 make(map[string]bool),
	}
}

// FreezeEvent marks an event ungradable after provider mapping drift and
// writes the ops alert. Fuzzy matching is forbidden; drift is always a
// hard stop.
func (s *Service) FreezeEvent(ctx context.Context, eventID, detail string) {
	s.mu.Lock()
	s.frozen[eventID] = true
	s.mu.Unlock()

	if err := s.ops.Insert(ctx, uuid.NewString(), map[string]any{
		"alert_type": "MAPPING_DRIFT",
		"event_id":   eventID,
		"detail":     detail,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		telemetry.Warnf("grading: persist drift alert: %v", err)
	}
	telemetry.Errorf("grading: MAPPING_DRIFT on %s, grading frozen (%s)", eventID, detail)
}

// Frozen reports whether grading is frozen for an event.
func (s *Service) Frozen(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen[eventID]
}

// VerifyMapping compares the local event's teams against the score
// provider's, exactly. Any mismatch freezes grading for the event.
func (s *Service) VerifyMapping(ctx context.Context, eventID, localHome, localAway string, score FinalScore) error {
	if strings.EqualFold(localHome, score.HomeTeam) && strings.EqualFold(localAway, score.AwayTeam) {
		return nil
	}
	s.FreezeEvent(ctx, eventID, fmt.Sprintf(
		"local %q/%q vs provider %q/%q", localHome, localAway, score.HomeTeam, score.AwayTeam))
	return fmt.Errorf("%w: %s", ErrGradingFrozen, eventID)
}

// Grade settles one published signal against a final score. Idempotent:
// an existing record under the same key is returned as stored.
func (s *Service) Grade(ctx context.Context, sig *signal.Signal, source string, score FinalScore) (Record, error) {
	if s.Frozen(sig.GameID) {
		return Record{}, fmt.Errorf("%w: %s", ErrGradingFrozen, sig.GameID)
	}
	if sig.Entry == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrNoEntry, sig.SignalID)
	}
	if err := s.VerifyMapping(ctx, sig.GameID, sig.HomeTeam, sig.AwayTeam, score); err != nil {
		return Record{}, err
	}

	key := Key(sig.SignalID, source, s.SettlementRulesVersion, s.CLVRulesVersion)

	var existing Record
	if found, err := s.records.Get(ctx, key, &existing); err != nil {
		return Record{}, err
	} else if found {
		return existing, nil
	}

	rec := Record{
		Key:       key,
		PickID:    sig.SignalID,
		Source:    source,
		SettlementRulesVersion: s.SettlementRulesVersion,
		CLVRulesVersion:        s.CLVRulesVersion,
		Result:    settle(sig, score),
		HomeScore: score.HomeScore,
		AwayScore: score.AwayScore,
		GradedAt:  time.Now().UTC(),
	}
	rec.CLVPoints, rec.CLVCents = closingLineValue(sig)

	if err := s.records.Insert(ctx, key, rec); err != nil {
		// A concurrent grader beat us to the key; theirs is canonical.
		if errors.Is(err, store.ErrDuplicate) {
			if found, gerr := s.records.Get(ctx, key, &existing); gerr == nil && found {
				return existing, nil
			}
		}
		return Record{}, err
	}

	if s.pub != nil {
		s.pub.Publish(events.New(events.TopicFeedback, events.FeedbackOutcome{
			PickID: sig.SignalID,
			GameID: sig.GameID,
			Result: string(rec.Result),
			Source: source,
		}))
	}
	return rec, nil
}

// Override re-states a grading record by hand. Requires an audit note;
// the override replaces the stored record under the same key.
func (s *Service) Override(ctx context.Context, key string, result edge.Result, note string) (Record, error) {
	if note == "" {
		return Record{}, errors.New("grading: override requires an audit note")
	}
	var rec Record
	found, err := s.records.Get(ctx, key, &rec)
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, fmt.Errorf("grading: no record under key %s", key)
	}
	rec.Result = result
	rec.Override = true
	rec.AuditNote = note
	rec.GradedAt = time.Now().UTC()
	if err := s.records.Upsert(ctx, key, rec); err != nil {
		return Record{}, err
	}
	telemetry.Warnf("grading: override %s → %s (%s)", key, result, note)
	return rec, nil
}

// settle grades the entry against the final score by market type.
func settle(sig *signal.Signal, score FinalScore) edge.Result {
	entry := sig.Entry
	switch sig.MarketKey {
	case edge.MarketTotal:
		line := 0.0
		if entry.EntryTotal != nil {
			line = *entry.EntryTotal
		}
		side := "UNDER"
		if strings.HasPrefix(entry.SharpSide, "OVER") {
			side = "OVER"
		}
		return edge.GradeTotal(score.HomeScore, score.AwayScore, line, side)

	case edge.MarketMoneyline:
		if strings.HasPrefix(entry.SharpSide, sig.HomeTeam) {
			return edge.GradeMoneyline(score.HomeScore, score.AwayScore)
		}
		return edge.GradeMoneyline(score.AwayScore, score.HomeScore)

	default: // spread, puckline
		line := 0.0
		if entry.EntryLine != nil {
			line = *entry.EntryLine
		}
		picked, other := pickedScores(sig, score)
		return edge.GradeSpread(picked, other, line)
	}
}

// pickedScores orients the final score to the side named on the entry.
func pickedScores(sig *signal.Signal, score FinalScore) (picked, other int) {
	if strings.HasPrefix(sig.Entry.SharpSide, sig.HomeTeam) {
		return score.HomeScore, score.AwayScore
	}
	return score.AwayScore, score.HomeScore
}

// closingLineValue measures the entry against the closing snapshot,
// oriented to the sharp side: positive means the entry beat the close.
func closingLineValue(sig *signal.Signal) (points float64, cents int) {
	closing := sig.LatestSnapshot()
	entry := sig.Entry
	if closing == nil || entry == nil {
		return 0, 0
	}

	switch sig.MarketKey {
	case edge.MarketTotal:
		if entry.EntryTotal == nil || closing.Total == nil {
			return 0, 0
		}
		diff := *entry.EntryTotal - closing.Total.Line
		if strings.HasPrefix(entry.SharpSide, "OVER") {
			// Over wants the line to rise after entry.
			return -diff, 0
		}
		return diff, 0

	case edge.MarketMoneyline:
		if closing.Moneyline == nil {
			return 0, 0
		}
		closingPrice := closing.Moneyline.AwayPrice
		if strings.HasPrefix(entry.SharpSide, sig.HomeTeam) {
			closingPrice = closing.Moneyline.HomePrice
		}
		// American prices rank numerically: a higher entry price beat
		// the close.
		return 0, entry.EntryOdds - closingPrice

	default:
		if entry.EntryLine == nil || closing.Spread == nil {
			return 0, 0
		}
		closingLine := math.Abs(closing.Spread.Line)
		if *entry.EntryLine < 0 {
			closingLine = -closingLine
		}
		// More points in hand than the close is positive CLV.
		return *entry.EntryLine - closingLine, 0
	}
}

// ParlayLegsAfterPush reduces a parlay's effective leg count: pushed
// legs drop out rather than losing the slip.
func ParlayLegsAfterPush(results []edge.Result) (legs int, lost bool) {
	for _, r := range results {
		switch r {
		case edge.ResultLoss:
			lost = true
		case edge.ResultWin:
			legs++
		}
	}
	return legs, lost
}
