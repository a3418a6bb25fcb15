package edge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmericanToImplied(t *testing.T) {
	assert.InDelta(t, 0.5238, AmericanToImplied(-110), 0.0001)
	assert.InDelta(t, 0.4762, AmericanToImplied(110), 0.0001)
	assert.InDelta(t, 0.50, AmericanToImplied(100), 0.0001)
	assert.InDelta(t, 0.6667, AmericanToImplied(-200), 0.0001)
	assert.InDelta(t, 0.3333, AmericanToImplied(200), 0.0001)
}

func TestOddsConversionsAreInverses(t *testing.T) {
	for _, o := range []int{-450, -200, -150, -110, -105, 100, 105, 110, 150, 200, 450} {
		assert.Equal(t, o, DecimalToAmerican(AmericanToDecimal(o)), "odds %d", o)
	}
}

func TestCompress(t *testing.T) {
	// Fixed point at 0.5 regardless of factor.
	assert.Equal(t, 0.5, Compress(0.5, 0.25))
	assert.Equal(t, 0.5, Compress(0.5, 1.0))

	// Regresses toward 0.5 from both sides.
	assert.InDelta(t, 0.55, Compress(0.70, 0.25), 1e-9)
	assert.InDelta(t, 0.45, Compress(0.30, 0.25), 1e-9)

	// Monotonic in the raw probability.
	prev := -1.0
	for raw := 0.0; raw <= 1.0; raw += 0.05 {
		c := Compress(raw, 0.30)
		assert.GreaterOrEqual(t, c, prev)
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
		prev = c
	}
}
