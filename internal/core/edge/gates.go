package edge

import (
	"github.com/betflow/betflow/internal/events"
)

// Gate names, in evaluation order.
const (
	GateDataIntegrity = "DATA_INTEGRITY"
	GateSimPower      = "SIM_POWER"
	GateModelValidity = "MODEL_VALIDITY"
	GateVolatility    = "VOLATILITY"
	GatePublishRCL    = "PUBLISH_RCL"
)

// Simulation power floor. Runs below it cannot support a publish.
const minSimulations = 10_000

// SubGate is one named check with its failure codes.
type SubGate struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Reasons []Code `json:"reasons,omitempty"`
}

// GateEvaluation is the conjunction of all sub-gates. Passing every one
// is required before a market can classify as PICK or LEAN.
type GateEvaluation struct {
	Passed bool      `json:"passed"`
	Gates  []SubGate `json:"gates"`
}

// Failures flattens the reasons of every failed sub-gate.
func (g GateEvaluation) Failures() []Code {
	var out []Code
	for _, sg := range g.Gates {
		if !sg.Passed {
			out = append(out, sg.Reasons...)
		}
	}
	return out
}

// EvaluateGates runs the full gate stack for one evaluated market.
// minEdgeForPublish is the wave-3 floor on compressed edge; pass 0 to
// skip the publish gate (waves 1 and 2 do).
func EvaluateGates(run events.SimulationResult, ev MarketEvaluation, minEdgeForPublish float64) GateEvaluation {
	var g GateEvaluation
	g.Passed = true

	add := func(name string, passed bool, reasons ...Code) {
		if passed {
			reasons = nil
		}
		g.Gates = append(g.Gates, SubGate{Name: name, Passed: passed, Reasons: reasons})
		g.Passed = g.Passed && passed
	}

	add(GateDataIntegrity,
		run.EventID != "" && ev.BlockReason != CodeMissingMarketData,
		CodeMissingMarketData)

	add(GateSimPower,
		run.NumSimulations >= minSimulations && run.ConvergenceRate >= 0.60,
		Code("INSUFFICIENT_SIM_POWER"))

	add(GateModelValidity,
		run.ModelVersion != "" && probsSane(run.WinProbabilities),
		Code("MODEL_OUTPUT_INVALID"))

	add(GateVolatility,
		ev.Distribution != DistUnstableExtreme,
		CodeUnstableExtreme)

	if minEdgeForPublish > 0 {
		add(GatePublishRCL,
			ev.Eligible && ev.CompressedEdgePct >= minEdgeForPublish,
			Code("EDGE_BELOW_PUBLISH_FLOOR"))
	}

	return g
}

// probsSane checks that win probabilities are present and sum to ~1.
func probsSane(probs map[string]float64) bool {
	if len(probs) == 0 {
		return false
	}
	var sum float64
	for _, p := range probs {
		if p < 0 || p > 1 {
			return false
		}
		sum += p
	}
	return sum > 0.98 && sum < 1.02
}
