package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RiskLimits tunes the risk agent. Zero values are replaced with the
// defaults below so a partial YAML file stays valid.
type RiskLimits struct {
	// Bet sizing (percent of bankroll).
	WarnBankrollPct   float64 `yaml:"warn_bankroll_pct"`
	DangerBankrollPct float64 `yaml:"danger_bankroll_pct"`
	DangerSizeMult    float64 `yaml:"danger_size_mult"`

	// Fractional Kelly cap on suggested size.
	KellyCap float64 `yaml:"kelly_cap"`

	// Bankroll health drawdown thresholds (fraction of starting bankroll).
	WarnDrawdown     float64 `yaml:"warn_drawdown"`
	CriticalDrawdown float64 `yaml:"critical_drawdown"`
	WarnLossStreak   int     `yaml:"warn_loss_streak"`

	// Tilt detection.
	TiltBetsPerWindow  int     `yaml:"tilt_bets_per_window"`
	TiltWindowMinutes  int     `yaml:"tilt_window_minutes"`
	TiltOversizeMult   float64 `yaml:"tilt_oversize_mult"`
	TiltRapidSeconds   int     `yaml:"tilt_rapid_seconds"`
	TiltLossStreak     int     `yaml:"tilt_loss_streak"`
	AlertCooldownHours int     `yaml:"alert_cooldown_hours"`
}

func defaultRiskLimits() RiskLimits {
	return RiskLimits{
		WarnBankrollPct:    5,
		DangerBankrollPct:  10,
		DangerSizeMult:     3,
		KellyCap:           0.05,
		WarnDrawdown:       0.30,
		CriticalDrawdown:   0.50,
		WarnLossStreak:     5,
		TiltBetsPerWindow:  3,
		TiltWindowMinutes:  10,
		TiltOversizeMult:   3,
		TiltRapidSeconds:   120,
		TiltLossStreak:     3,
		AlertCooldownHours: 1,
	}
}

// LoadRiskLimits reads the YAML file at path; a missing file yields the
// built-in defaults.
func LoadRiskLimits(path string) (RiskLimits, error) {
	limits := defaultRiskLimits()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return limits, nil
		}
		return limits, fmt.Errorf("read risk limits: %w", err)
	}

	var file RiskLimits
	if err := yaml.Unmarshal(data, &file); err != nil {
		return limits, fmt.Errorf("parse risk limits: %w", err)
	}
	merge(&limits, file)
	return limits, nil
}

func merge(dst *RiskLimits, src RiskLimits) {
	if src.WarnBankrollPct > 0 {
		dst.WarnBankrollPct = src.WarnBankrollPct
	}
	if src.DangerBankrollPct > 0 {
		dst.DangerBankrollPct = src.DangerBankrollPct
	}
	if src.DangerSizeMult > 0 {
		dst.DangerSizeMult = src.DangerSizeMult
	}
	if src.KellyCap > 0 {
		dst.KellyCap = src.KellyCap
	}
	if src.WarnDrawdown > 0 {
		dst.WarnDrawdown = src.WarnDrawdown
	}
	if src.CriticalDrawdown > 0 {
		dst.CriticalDrawdown = src.CriticalDrawdown
	}
	if src.WarnLossStreak > 0 {
		dst.WarnLossStreak = src.WarnLossStreak
	}
	if src.TiltBetsPerWindow > 0 {
		dst.TiltBetsPerWindow = src.TiltBetsPerWindow
	}
	if src.TiltWindowMinutes > 0 {
		dst.TiltWindowMinutes = src.TiltWindowMinutes
	}
	if src.TiltOversizeMult > 0 {
		dst.TiltOversizeMult = src.TiltOversizeMult
	}
	if src.TiltRapidSeconds > 0 {
		dst.TiltRapidSeconds = src.TiltRapidSeconds
	}
	if src.TiltLossStreak > 0 {
		dst.TiltLossStreak = src.TiltLossStreak
	}
	if src.AlertCooldownHours > 0 {
		dst.AlertCooldownHours = src.AlertCooldownHours
	}
}
