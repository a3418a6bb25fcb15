package sportcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betflow/betflow/internal/events"
)

func TestRegistryDefaults(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)

	nba, ok := r.Get(events.SportNBA)
	require.True(t, ok)
	assert.Equal(t, 0.30, nba.CompressionFactor)
	assert.Equal(t, 3.5, nba.Spread.EdgeThreshold)
	assert.Equal(t, 9.5, nba.LargeSpreadCutoff)
	assert.False(t, nba.RequiresPitcherConfirmation)

	mlb, ok := r.Get(events.SportMLB)
	require.True(t, ok)
	assert.True(t, mlb.RequiresPitcherConfirmation)
	assert.True(t, mlb.WeatherSensitive)

	nhl, ok := r.Get(events.SportNHL)
	require.True(t, ok)
	assert.Equal(t, 1.5, nhl.MaxFavoriteSpread, "pucklines are fixed at 1.5")

	_, ok = r.Get(events.Sport("cricket"))
	assert.False(t, ok)

	assert.Len(t, r.Sports(), 6)
}

func TestRegistryMissingOverrideFileUsesDefaults(t *testing.T) {
	r, err := NewRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	nba, ok := r.Get(events.SportNBA)
	require.True(t, ok)
	assert.Equal(t, 0.30, nba.CompressionFactor)
}

func TestRegistryOverrideReplacesSport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sports.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nba:
  compression_factor: 0.35
  spread:
    edge_threshold: 4.0
    lean_min: 2.5
  volatility:
    low: 0.05
    medium: 0.07
    high: 0.10
`), 0o644))

	r, err := NewRegistry(path)
	require.NoError(t, err)

	nba, ok := r.Get(events.SportNBA)
	require.True(t, ok)
	assert.Equal(t, 0.35, nba.CompressionFactor)
	assert.Equal(t, 4.0, nba.Spread.EdgeThreshold)

	// Untouched sports keep their defaults.
	nfl, ok := r.Get(events.SportNFL)
	require.True(t, ok)
	assert.Equal(t, 0.20, nfl.CompressionFactor)
}

func TestRegistryRejectsUnknownSportOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sports.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cricket:\n  compression_factor: 0.5\n"), 0o644))

	_, err := NewRegistry(path)
	assert.ErrorContains(t, err, "unknown sport")
}
