package sportcfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/betflow/betflow/internal/events"
)

// MarketThresholds gates one market type. All values are percentage
// points of compressed edge unless noted.
type MarketThresholds struct {
	EligibilityMin float64 `yaml:"eligibility_min"`
	EdgeThreshold  float64 `yaml:"edge_threshold"`
	LeanMin        float64 `yaml:"lean_min"`
	LeanMax        float64 `yaml:"lean_max"`
}

// MoneylineThresholds gates moneyline markets.
type MoneylineThresholds struct {
	EdgeThreshold  float64 `yaml:"edge_threshold"`
	LeanMin        float64 `yaml:"lean_min"`
	MinWinProbEdge float64 `yaml:"min_win_prob_edge"`
}

// VolatilityBands buckets a simulation stdDev for this sport.
// stdDev < Low → LOW, < Medium → MEDIUM, < High → HIGH, else EXTREME.
type VolatilityBands struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// SportConfig holds every per-sport knob the evaluation pipeline reads.
type SportConfig struct {
	CompressionFactor float64             `yaml:"compression_factor"`
	Spread            MarketThresholds    `yaml:"spread"`
	Total             MarketThresholds    `yaml:"total"`
	Moneyline         MoneylineThresholds `yaml:"moneyline"`
	Volatility        VolatilityBands     `yaml:"volatility"`

	// Spread-size guardrails; zero means no cap.
	MaxFavoriteSpread float64 `yaml:"max_favorite_spread"`
	MaxDogSpread      float64 `yaml:"max_dog_spread"`

	// Spreads at or beyond this magnitude are "large" and demand the
	// stricter edge requirement below to reach EDGE.
	LargeSpreadCutoff          float64 `yaml:"large_spread_cutoff"`
	LargeSpreadEdgeRequirement float64 `yaml:"large_spread_edge_requirement"`

	RequiresPitcherConfirmation bool `yaml:"requires_pitcher_confirmation"`
	RequiresQBConfirmation      bool `yaml:"requires_qb_confirmation"`
	RequiresGoalieConfirmation  bool `yaml:"requires_goalie_confirmation"`
	WeatherSensitive            bool `yaml:"weather_sensitive"`

	KeyNumbers []float64 `yaml:"key_numbers"`
}

// Registry is the read-only sport threshold table. It is fully built at
// construction; Get returns copies so callers cannot mutate it.
type Registry struct {
	sports map[events.Sport]SportConfig
}

// NewRegistry builds the registry from built-in defaults, optionally
// overridden by a YAML file (applied once at load, never at runtime).
func NewRegistry(overridePath string) (*Registry, error) {
	sports := defaults()

	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read sport overrides: %w", err)
		}
		if err == nil {
			var over map[events.Sport]SportConfig
			if err := yaml.Unmarshal(data, &over); err != nil {
				return nil, fmt.Errorf("parse sport overrides: %w", err)
			}
			for sport, cfg := range over {
				if _, known := sports[sport]; !known {
					return nil, fmt.Errorf("sport overrides: unknown sport %q", sport)
				}
				sports[sport] = cfg
			}
		}
	}

	return &Registry{sports: sports}, nil
}

// Get returns the config for a sport. ok is false for unknown sports.
func (r *Registry) Get(sport events.Sport) (SportConfig, bool) {
	cfg, ok := r.sports[sport]
	return cfg, ok
}

// Sports lists every configured sport.
func (r *Registry) Sports() []events.Sport {
	out := make([]events.Sport, 0, len(r.sports))
	for s := range r.sports {
		out = append(out, s)
	}
	return out
}

func defaults() map[events.Sport]SportConfig {
	return map[events.Sport]SportConfig{
		events.SportMLB: {
			CompressionFactor: 0.25,
			Spread:            MarketThresholds{EligibilityMin: 1.0, EdgeThreshold: 4.0, LeanMin: 2.5, LeanMax: 4.0},
			Total:             MarketThresholds{EligibilityMin: 1.0, EdgeThreshold: 4.5, LeanMin: 3.0, LeanMax: 4.5},
			Moneyline:         MoneylineThresholds{EdgeThreshold: 4.0, LeanMin: 2.5, MinWinProbEdge: 0.53},
			Volatility:        VolatilityBands{Low: 0.03, Medium: 0.05, High: 0.08},
			MaxFavoriteSpread: 2.5, MaxDogSpread: 2.5,
			RequiresPitcherConfirmation: true,
			WeatherSensitive:            true,
		},
		events.SportNBA: {
			CompressionFactor: 0.30,
			Spread:            MarketThresholds{EligibilityMin: 1.5, EdgeThreshold: 3.5, LeanMin: 2.0, LeanMax: 3.5},
			Total:             MarketThresholds{EligibilityMin: 1.5, EdgeThreshold: 4.0, LeanMin: 2.5, LeanMax: 4.0},
			Moneyline:         MoneylineThresholds{EdgeThreshold: 3.5, LeanMin: 2.0, MinWinProbEdge: 0.54},
			Volatility:        VolatilityBands{Low: 0.04, Medium: 0.06, High: 0.09},
			MaxFavoriteSpread: 14.5, MaxDogSpread: 16.5,
			LargeSpreadCutoff: 9.5, LargeSpreadEdgeRequirement: 5.0,
		},
		events.SportNCAAB: {
			CompressionFactor: 0.25,
			Spread:            MarketThresholds{EligibilityMin: 1.5, EdgeThreshold: 4.0, LeanMin: 2.5, LeanMax: 4.0},
			Total:             MarketThresholds{EligibilityMin: 1.5, EdgeThreshold: 4.5, LeanMin: 3.0, LeanMax: 4.5},
			Moneyline:         MoneylineThresholds{EdgeThreshold: 4.0, LeanMin: 2.5, MinWinProbEdge: 0.55},
			Volatility:        VolatilityBands{Low: 0.05, Medium: 0.07, High: 0.10},
			MaxFavoriteSpread: 18.5, MaxDogSpread: 21.5,
			LargeSpreadCutoff: 12.5, LargeSpreadEdgeRequirement: 5.5,
		},
		events.SportNCAAF: {
			CompressionFactor: 0.22,
			Spread:            MarketThresholds{EligibilityMin: 2.0, EdgeThreshold: 4.5, LeanMin: 3.0, LeanMax: 4.5},
			Total:             MarketThresholds{EligibilityMin: 2.0, EdgeThreshold: 5.0, LeanMin: 3.5, LeanMax: 5.0},
			Moneyline:         MoneylineThresholds{EdgeThreshold: 4.5, LeanMin: 3.0, MinWinProbEdge: 0.55},
			Volatility:        VolatilityBands{Low: 0.05, Medium: 0.08, High: 0.11},
			MaxFavoriteSpread: 21.5, MaxDogSpread: 24.5,
			LargeSpreadCutoff: 10.5, LargeSpreadEdgeRequirement: 6.0,
			RequiresQBConfirmation:     true,
			WeatherSensitive:           true,
		},
		events.SportNFL: {
			CompressionFactor: 0.20,
			Spread:            MarketThresholds{EligibilityMin: 1.5, EdgeThreshold: 3.5, LeanMin: 2.0, LeanMax: 3.5},
			Total:             MarketThresholds{EligibilityMin: 1.5, EdgeThreshold: 4.0, LeanMin: 2.5, LeanMax: 4.0},
			Moneyline:         MoneylineThresholds{EdgeThreshold: 3.5, LeanMin: 2.0, MinWinProbEdge: 0.54},
			Volatility:        VolatilityBands{Low: 0.04, Medium: 0.06, High: 0.09},
			MaxFavoriteSpread: 13.5, MaxDogSpread: 16.5,
			LargeSpreadCutoff: 7.5, LargeSpreadEdgeRequirement: 5.0,
			RequiresQBConfirmation:     true,
			WeatherSensitive:           true,
			KeyNumbers:                 []float64{3, 7, 10},
		},
		events.SportNHL: {
			CompressionFactor: 0.25,
			// NHL spreads are pucklines, effectively fixed at ±1.5.
			Spread:            MarketThresholds{EligibilityMin: 1.0, EdgeThreshold: 4.0, LeanMin: 2.5, LeanMax: 4.0},
			Total:             MarketThresholds{EligibilityMin: 1.0, EdgeThreshold: 4.5, LeanMin: 3.0, LeanMax: 4.5},
			Moneyline:         MoneylineThresholds{EdgeThreshold: 4.0, LeanMin: 2.5, MinWinProbEdge: 0.53},
			Volatility:        VolatilityBands{Low: 0.03, Medium: 0.05, High: 0.08},
			MaxFavoriteSpread: 1.5, MaxDogSpread: 1.5,
			RequiresGoalieConfirmation: true,
		},
	}
}
