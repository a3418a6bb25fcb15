package edge

import "math"

// AmericanToImplied converts American odds to the market's implied
// probability. Negative odds are favorites.
func AmericanToImplied(odds int) float64 {
	o := float64(odds)
	if odds < 0 {
		return -o / (-o + 100)
	}
	return 100 / (o + 100)
}

// AmericanToDecimal converts American odds to decimal (European) odds.
func AmericanToDecimal(odds int) float64 {
	if odds < 0 {
		return 1 + 100/float64(-odds)
	}
	return 1 + float64(odds)/100
}

// DecimalToAmerican is the exact inverse of AmericanToDecimal for
// integer American odds. Decimal 2.0 maps to +100.
func DecimalToAmerican(dec float64) int {
	if dec >= 2 {
		return int(math.Round((dec - 1) * 100))
	}
	return -int(math.Round(100 / (dec - 1)))
}

// Compress regresses a raw model probability toward 0.5 by the sport's
// compression factor. Simulation output runs overconfident; compression
// is what every downstream edge and threshold is quoted in.
func Compress(raw, factor float64) float64 {
	c := 0.5 + (raw-0.5)*factor
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
