package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WaveWindow bounds the commence-time window a sweep looks at, in minutes
// before game start.
type WaveWindow struct {
	FromMinutes int `yaml:"from_minutes"`
	ToMinutes   int `yaml:"to_minutes"`
}

// Waves configures the three-wave lifecycle scheduler and the publish
// gate thresholds applied at wave 3.
type Waves struct {
	Wave1IntervalMinutes int        `yaml:"wave1_interval_minutes"`
	Wave2IntervalMinutes int        `yaml:"wave2_interval_minutes"`
	Wave3IntervalMinutes int        `yaml:"wave3_interval_minutes"`
	Wave1Window          WaveWindow `yaml:"wave1_window"`
	Wave2Window          WaveWindow `yaml:"wave2_window"`
	Wave3Window          WaveWindow `yaml:"wave3_window"`

	// Wave 2 stability tolerance in edge percentage points.
	StabilityTolerancePct float64 `yaml:"stability_tolerance_pct"`

	// Wave 3 publish floor on compressed edge, percent.
	MinEdgeForPublish float64 `yaml:"min_edge_for_publish"`

	// Freeze window applied on PICK/LEAN transitions, and the market
	// moves that release it early.
	FreezeMinutes        int     `yaml:"freeze_minutes"`
	FreezeReleaseSpread  float64 `yaml:"freeze_release_spread"`
	FreezeReleaseTotal   float64 `yaml:"freeze_release_total"`
}

func defaultWaves() Waves {
	return Waves{
		Wave1IntervalMinutes:  30,
		Wave2IntervalMinutes:  15,
		Wave3IntervalMinutes:  5,
		Wave1Window:           WaveWindow{FromMinutes: 240, ToMinutes: 360},
		Wave2Window:           WaveWindow{FromMinutes: 110, ToMinutes: 130},
		Wave3Window:           WaveWindow{FromMinutes: 60, ToMinutes: 75},
		StabilityTolerancePct: 1.5,
		MinEdgeForPublish:     3.0,
		FreezeMinutes:         60,
		FreezeReleaseSpread:   1.0,
		FreezeReleaseTotal:    1.5,
	}
}

// LoadWaves reads the scheduler YAML; a missing file yields defaults.
func LoadWaves(path string) (Waves, error) {
	w := defaultWaves()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return w, fmt.Errorf("read waves config: %w", err)
	}

	var file Waves
	if err := yaml.Unmarshal(data, &file); err != nil {
		return w, fmt.Errorf("parse waves config: %w", err)
	}
	if file.Wave1IntervalMinutes > 0 {
		w.Wave1IntervalMinutes = file.Wave1IntervalMinutes
	}
	if file.Wave2IntervalMinutes > 0 {
		w.Wave2IntervalMinutes = file.Wave2IntervalMinutes
	}
	if file.Wave3IntervalMinutes > 0 {
		w.Wave3IntervalMinutes = file.Wave3IntervalMinutes
	}
	if file.Wave1Window.ToMinutes > 0 {
		w.Wave1Window = file.Wave1Window
	}
	if file.Wave2Window.ToMinutes > 0 {
		w.Wave2Window = file.Wave2Window
	}
	if file.Wave3Window.ToMinutes > 0 {
		w.Wave3Window = file.Wave3Window
	}
	if file.StabilityTolerancePct > 0 {
		w.StabilityTolerancePct = file.StabilityTolerancePct
	}
	if file.MinEdgeForPublish > 0 {
		w.MinEdgeForPublish = file.MinEdgeForPublish
	}
	if file.FreezeMinutes > 0 {
		w.FreezeMinutes = file.FreezeMinutes
	}
	if file.FreezeReleaseSpread > 0 {
		w.FreezeReleaseSpread = file.FreezeReleaseSpread
	}
	if file.FreezeReleaseTotal > 0 {
		w.FreezeReleaseTotal = file.FreezeReleaseTotal
	}
	return w, nil
}

// Wave1Interval and friends convert the minute knobs to durations.
func (w Waves) Wave1Interval() time.Duration {
	return time.Duration(w.Wave1IntervalMinutes) * time.Minute
}
func (w Waves) Wave2Interval() time.Duration {
	return time.Duration(w.Wave2IntervalMinutes) * time.Minute
}
func (w Waves) Wave3Interval() time.Duration {
	return time.Duration(w.Wave3IntervalMinutes) * time.Minute
}
