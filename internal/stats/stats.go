// Package stats holds the pure latency statistics used for baselines and
// anomaly thresholds: median, MAD, EWMA, P95 and the upper control limit.
// All functions are deterministic for a given ordered input.
package stats

import (
	"math"
	"sort"
)

const (
	// MADScale makes the MAD comparable to a standard deviation under
	// normality (1/Φ⁻¹(0.75)).
	MADScale = 1.4826

	// EWMAAlpha is the smoothing factor for the baseline EWMA. Chart
	// display smoothing is configured elsewhere and may differ.
	EWMAAlpha = 0.3
)

// Summary holds the baseline fields computed over one sample window.
type Summary struct {
	Window int
	Median float64
	MAD    float64
	EWMA   float64
	UCL    float64
	P95    float64
}

// Compute derives a Summary from latency samples in arrival order.
// An empty input yields the zero Summary; the detector treats a zero UCL
// as "insufficient data".
func Compute(samples []int64) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	xs := make([]float64, len(samples))
	for i, v := range samples {
		xs[i] = float64(v)
	}
	med := Median(xs)
	mad := MAD(xs, med)
	return Summary{
		Window: len(xs),
		Median: med,
		MAD:    mad,
		EWMA:   EWMA(xs, EWMAAlpha),
		UCL:    med + 3*MADScale*mad,
		P95:    P95(xs),
	}
}

// Median returns the standard median; the input is not modified.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// MAD returns the median absolute deviation from med.
func MAD(xs []float64, med float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	devs := make([]float64, len(xs))
	for i, v := range xs {
		devs[i] = math.Abs(v - med)
	}
	return Median(devs)
}

// EWMA runs the left-to-right recurrence seeded with the first sample:
// ewma_i = alpha*x_i + (1-alpha)*ewma_{i-1}.
func EWMA(xs []float64, alpha float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	ewma := xs[0]
	for _, v := range xs[1:] {
		ewma = alpha*v + (1-alpha)*ewma
	}
	return ewma
}

// P95 returns the value at rank ceil(0.95*n) in ascending order
// (1-indexed, clamped to the last element).
func P95(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(0.95 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}
