package analysis

import (
	"math"
	"sort"
)

// Median returns the middle value of xs. Empty input returns 0.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	c := append([]float64(nil), xs...)
	sort.Float64s(c)
	n := len(c)
	if n%2 == 1 {
		return c[n/2]
	}
	return (c[n/2-1] + c[n/2]) / 2
}

// MAD returns the median absolute deviation, scaled to be consistent with
// the standard deviation under a normal distribution.
func MAD(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	med := Median(xs)
	devs := make([]float64, len(xs))
	for i, x := range xs {
		devs[i] = math.Abs(x - med)
	}
	return 1.4826 * Median(devs)
}

// DecayWeight is the exponential recency weight for an observation ageDays
// old, with time constant tauDays. Non-positive tau yields zero weight.
func DecayWeight(ageDays, tauDays float64) float64 {
	if tauDays <= 0 {
		return 0
	}
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / tauDays)
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func round(x float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(x*factor) / factor
}
