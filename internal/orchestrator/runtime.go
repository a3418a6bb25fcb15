// Package orchestrator wires the agents to the bus and owns process
// lifecycle. Agents receive a publish-only capability; all subscription
// wiring lives here, in one deterministic order, so no agent holds a
// back-pointer to the runtime.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/betflow/betflow/internal/adapters/odds"
	"github.com/betflow/betflow/internal/adapters/scores"
	"github.com/betflow/betflow/internal/config"
	"github.com/betflow/betflow/internal/core/edge"
	"github.com/betflow/betflow/internal/core/grading"
	"github.com/betflow/betflow/internal/core/parlay"
	"github.com/betflow/betflow/internal/core/risk"
	"github.com/betflow/betflow/internal/core/sharpside"
	"github.com/betflow/betflow/internal/core/signal"
	"github.com/betflow/betflow/internal/core/sportcfg"
	"github.com/betflow/betflow/internal/events"
	"github.com/betflow/betflow/internal/fanout"
	"github.com/betflow/betflow/internal/scheduler"
	"github.com/betflow/betflow/internal/store"
	"github.com/betflow/betflow/internal/telemetry"
)

// ScoreSource is the score-provider dependency.
type ScoreSource interface {
	FetchScore(ctx context.Context, sport, eventID string) (grading.FinalScore, error)
}

// Deps are the external collaborators. Nil fields get the real adapters
// built from config; tests inject mocks.
type Deps struct {
	Odds    scheduler.OddsSource
	Scores  ScoreSource
	Lineups scheduler.LineupSource
}

// Runtime is the explicit process-wide value replacing any singleton:
// constructed once at start, passed down, shut down in order.
type Runtime struct {
	cfg      *config.Config
	bus      *events.Bus
	store    *store.Store
	registry *sportcfg.Registry

	manager *signal.Manager
	parlays *parlay.Engine
	risk    *risk.Agent
	grading *grading.Service
	sched   *scheduler.Scheduler
	simc    *SimCache
	scores  ScoreSource
	server  *fanout.Server

	subs        []*events.Subscription
	cancelSched context.CancelFunc
	group       *errgroup.Group
}

// New builds the full agent graph. Nothing is subscribed or running
// until Start.
func New(cfg *config.Config, st *store.Store, deps Deps) (*Runtime, error) {
	registry, err := sportcfg.NewRegistry("")
	if err != nil {
		return nil, err
	}
	limits, err := config.LoadRiskLimits(cfg.RiskLimitsPath)
	if err != nil {
		return nil, err
	}
	waves, err := config.LoadWaves(cfg.WavesPath)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	r := &Runtime{
		cfg:      cfg,
		bus:      bus,
		store:    st,
		registry: registry,
		risk:     risk.NewAgent(limits, st, bus),
		grading:  grading.NewService(st, bus),
		simc:     NewSimCache(45 * time.Minute),
	}
	r.manager = signal.NewManager(st, registry, waves, bus)

	audit := st.Collection(store.ColParlayAudit)
	r.parlays = parlay.NewEngine(func(ctx context.Context, rec parlay.AuditRecord) {
		if err := audit.Insert(ctx, uuid.NewString(), rec); err != nil {
			telemetry.Warnf("orchestrator: parlay audit: %v", err)
		}
	})

	oddsSrc := deps.Odds
	if oddsSrc == nil {
		oddsSrc = odds.NewClient(cfg.OddsBaseURL, cfg.OddsRegion, cfg.OddsAPIKeys, cfg.RequestTimeout)
	}
	r.scores = deps.Scores
	if r.scores == nil {
		r.scores = scores.NewClient(cfg.ScoresBaseURL, cfg.ScoresAPIKey, cfg.RequestTimeout)
	}

	r.sched = scheduler.New(waves, r.manager, oddsSrc, r.simc, deps.Lineups, registry.Sports())
	opsCol := st.Collection(store.ColOpsAlerts)
	r.sched.OnAlert(func(ctx context.Context, alertType, detail string) {
		err := opsCol.Insert(ctx, uuid.NewString(), map[string]any{
			"alert_type": alertType,
			"detail":     detail,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			telemetry.Warnf("orchestrator: persist ops alert: %v", err)
		}
	})
	return r, nil
}

// Bus exposes the runtime's bus for request-side publishers.
func (r *Runtime) Bus() *events.Bus { return r.bus }

// Manager exposes the signal manager to request-side flows.
func (r *Runtime) Manager() *signal.Manager { return r.manager }

// Start subscribes the agents in deterministic order (parlay, risk,
// market, user activity, feedback), then starts the fanout listener and
// the wave scheduler.
func (r *Runtime) Start(ctx context.Context) {
	r.subs = append(r.subs,
		r.bus.Subscribe(events.TopicParlayRequests, r.handleParlayRequest),
		r.bus.Subscribe(events.TopicParlayResponses, r.handleParlayResponse),
		r.bus.Subscribe(events.TopicRiskAlerts, r.risk.HandleRiskCheck),
		r.bus.Subscribe(events.TopicSimResponses, r.simc.Handle),
		r.bus.Subscribe(events.TopicMarketMovements, r.handleMarketMovement),
		r.bus.Subscribe(events.TopicUserActivity, r.risk.HandleUserActivity),
		r.bus.Subscribe(events.TopicFeedback, r.handleFeedback),
	)

	schedCtx, cancel := context.WithCancel(ctx)
	r.cancelSched = cancel
	r.group, schedCtx = errgroup.WithContext(schedCtx)

	if r.cfg.FanoutPort > 0 {
		r.server = fanout.NewServer(r.bus)
		srv := r.server
		port := r.cfg.FanoutPort
		r.group.Go(func() error { return srv.StartListening(schedCtx, port) })
	}
	r.group.Go(func() error { return r.sched.Run(schedCtx) })

	telemetry.Infof("orchestrator: started (%d subscriptions)", len(r.subs))
}

// Shutdown stops everything in order: scheduler loops first, then the
// bus listener, then the handlers, and finally the store.
func (r *Runtime) Shutdown() error {
	if r.cancelSched != nil {
		r.cancelSched()
	}
	if r.group != nil {
		if err := r.group.Wait(); err != nil && err != context.Canceled {
			telemetry.Warnf("orchestrator: shutdown: %v", err)
		}
	}
	if r.server != nil {
		if err := r.server.StopListening(); err != nil {
			telemetry.Warnf("orchestrator: fanout stop: %v", err)
		}
	}
	for _, sub := range r.subs {
		r.bus.Unsubscribe(sub)
	}
	r.subs = nil
	telemetry.Infof("orchestrator: shutdown complete")
	return r.store.Close()
}

// RequestParlayAnalysis builds a parlay from the currently published
// slate and publishes the result on parlay.responses.
func (r *Runtime) RequestParlayAnalysis(ctx context.Context, req parlay.Request) parlay.Result {
	slate, err := r.candidateSlate(ctx)
	if err != nil {
		telemetry.Errorf("orchestrator: slate: %v", err)
	}
	res := r.parlays.Generate(ctx, req, slate)
	r.bus.Publish(events.New(events.TopicParlayResponses, events.ParlayResponse{
		UserID: req.UserID,
		Type:   "result",
		Result: res,
	}))
	return res
}

// CheckBetSize runs the bet-size check synchronously; the advisory also
// goes out on risk.responses.
func (r *Runtime) CheckBetSize(ctx context.Context, userID string, amount float64, odds int, winProb float64) events.RiskAdvisory {
	adv := r.risk.CheckBetSize(ctx, userID, amount, odds, winProb)
	r.bus.Publish(events.New(events.TopicRiskResponses, adv))
	return adv
}

// RecordPickOutcome fetches the final score for a published signal,
// grades it idempotently, and settles the signal aggregate.
func (r *Runtime) RecordPickOutcome(ctx context.Context, signalID, source string) (grading.Record, error) {
	sig, err := r.manager.Get(ctx, signalID)
	if err != nil {
		return grading.Record{}, err
	}
	sportKey, ok := scheduler.ProviderSportKey(sig.Sport)
	if !ok {
		return grading.Record{}, fmt.Errorf("orchestrator: no provider key for %s", sig.Sport)
	}
	score, err := r.scores.FetchScore(ctx, sportKey, sig.GameID)
	if err != nil {
		return grading.Record{}, err
	}
	if !score.Completed {
		return grading.Record{}, fmt.Errorf("orchestrator: game %s not completed", sig.GameID)
	}

	rec, err := r.grading.Grade(ctx, sig, source, score)
	if err != nil {
		return grading.Record{}, err
	}
	if _, err := r.manager.GradeSignal(ctx, signalID, score.HomeScore, score.AwayScore, rec.Result); err != nil {
		return rec, err
	}
	return rec, nil
}

// OpsSnapshot is a diagnostics view: recent bus traffic plus counters.
type OpsSnapshot struct {
	RecentEvents     []events.Event `json:"recent_events"`
	EventsPublished  int64          `json:"events_published"`
	HandlerErrors    int64          `json:"handler_errors"`
	SignalsCreated   int64          `json:"signals_created"`
	SignalsPublished int64          `json:"signals_published"`
	SweepErrors      int64          `json:"sweep_errors"`
	ParlayRequests   int64          `json:"parlay_requests"`
	RiskAlerts       int64          `json:"risk_alerts"`
}

func (r *Runtime) Ops(n int) OpsSnapshot {
	m := &telemetry.Metrics
	return OpsSnapshot{
		RecentEvents:     r.bus.Recent(n),
		EventsPublished:  m.EventsPublished.Value(),
		HandlerErrors:    m.HandlerErrors.Value(),
		SignalsCreated:   m.SignalsCreated.Value(),
		SignalsPublished: m.SignalsPublished.Value(),
		SweepErrors:      m.SweepErrors.Value(),
		ParlayRequests:   m.ParlayRequests.Value(),
		RiskAlerts:       m.RiskAlerts.Value(),
	}
}

// handleParlayRequest is the parlay agent's inbound handler.
func (r *Runtime) handleParlayRequest(evt events.Event) error {
	req, ok := evt.Payload.(events.ParlayRequest)
	if !ok {
		return fmt.Errorf("orchestrator: unexpected payload on %s", evt.Topic)
	}
	r.RequestParlayAnalysis(context.Background(), parlay.Request{
		UserID:           req.UserID,
		Profile:          parlay.Profile(req.RiskProfile),
		LegCount:         req.LegCount,
		Mode:             parlay.Mode(req.Mode),
		IncludeProps:     req.IncludeProps,
		IncludeGameLines: req.IncludeGameLines,
		DFSMode:          req.DFSMode,
		AllowCrossSport:  true,
	})
	return nil
}

// handleParlayResponse lets the risk agent vet every finished parlay.
func (r *Runtime) handleParlayResponse(evt events.Event) error {
	resp, ok := evt.Payload.(events.ParlayResponse)
	if !ok {
		return nil
	}
	res, ok := resp.Result.(parlay.Result)
	if !ok || !res.Success {
		return nil
	}
	adv := r.risk.CheckParlayRisk(resp.UserID, res.ExpectedHitRate, res.UsedLegs, res.MaxCorrelation, res.EVProxy)
	if adv.AlertLevel != risk.LevelOK {
		r.bus.Publish(events.New(events.TopicRiskResponses, adv))
	}
	return nil
}

func (r *Runtime) handleMarketMovement(evt events.Event) error {
	mv, ok := evt.Payload.(events.MarketMovement)
	if !ok {
		return nil
	}
	telemetry.Infof("orchestrator: market move on %s %s (spread %+.1f, total %+.1f)",
		mv.GameID, mv.MarketKey, mv.SpreadDelta, mv.TotalDelta)
	return nil
}

// handleFeedback updates robustness bookkeeping when a pick settles.
func (r *Runtime) handleFeedback(evt events.Event) error {
	fb, ok := evt.Payload.(events.FeedbackOutcome)
	if !ok {
		return nil
	}
	telemetry.Infof("orchestrator: outcome %s for pick %s (%s)", fb.Result, fb.PickID, fb.Source)
	return nil
}

// candidateSlate maps every published signal into a parlay candidate.
func (r *Runtime) candidateSlate(ctx context.Context) ([]parlay.Candidate, error) {
	sigs, err := r.manager.SignalsInState(ctx, signal.StatePublished)
	if err != nil {
		return nil, err
	}

	var out []parlay.Candidate
	for i := range sigs {
		if c, ok := candidateFromSignal(&sigs[i]); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func candidateFromSignal(sig *signal.Signal) (parlay.Candidate, bool) {
	ev := sig.LatestEvaluation()
	if ev == nil || sig.Entry == nil {
		return parlay.Candidate{}, false
	}

	strict := "NO_PLAY"
	switch ev.State {
	case edge.StateEdge:
		strict = "PICK"
	case edge.StateLean:
		strict = "LEAN"
	}

	confidence := 0.0
	if run := latestRun(sig); run != nil {
		confidence = run.ConvergenceRate * 100
	}

	return parlay.Candidate{
		EventID:            sig.GameID,
		SportKey:           string(sig.Sport),
		MarketType:         strings.ToLower(string(sig.MarketKey)),
		StrictState:        strict,
		Side:               sideOf(ev.Action, sig.Entry.SharpSide),
		Period:             "full",
		WinProbability:     ev.CompressedProb,
		EdgePoints:         ev.CompressedEdgePct,
		Confidence:         confidence,
		VolatilityBand:     bandOf(ev.Volatility),
		DistributionStable: ev.Distribution == edge.DistStable,
		CanParlay:          strict == "PICK",
		PlayerStatusOK:     true,
	}, true
}

func latestRun(sig *signal.Signal) *signal.SimulationRun {
	if len(sig.Runs) == 0 {
		return nil
	}
	return &sig.Runs[len(sig.Runs)-1]
}

func sideOf(action sharpside.Action, sharpSide string) string {
	switch action {
	case sharpside.ActionOver:
		return "over"
	case sharpside.ActionUnder:
		return "under"
	default:
		return sharpSide
	}
}

func bandOf(v edge.Volatility) string {
	switch v {
	case edge.VolLow:
		return parlay.BandLow
	case edge.VolMedium:
		return parlay.BandMed
	default:
		return parlay.BandHigh
	}
}
