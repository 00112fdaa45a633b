// Package robust implements the median/MAD statistics behind outlier removal.
package robust

import (
	"math"
	"sync"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Consistency rescales the MAD so it estimates the standard deviation of a
// normal distribution (the 0.75 quantile of the standard normal).
const Consistency = 0.6745

var (
	cutoffOnce sync.Once
	cutoff     float64
)

// Cutoff returns the MAD-median rule threshold: the square root of the 0.975
// quantile of a chi-square distribution with one degree of freedom (~2.2414).
func Cutoff() float64 {
	cutoffOnce.Do(func() {
		cutoff = math.Sqrt(distuv.ChiSquared{K: 1}.Quantile(0.975))
	})
	return cutoff
}

// present drops NaN entries.
func present(xs []float64) stats.Float64Data {
	out := make(stats.Float64Data, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// Median returns the median of the non-missing values. Even counts average the
// two middle values. ok is false when no value is present.
func Median(xs []float64) (m float64, ok bool) {
	data := present(xs)
	if len(data) == 0 {
		return math.NaN(), false
	}
	m, err := stats.Median(data)
	if err != nil {
		return math.NaN(), false
	}
	return m, true
}

// MAD returns the median and the normalized median absolute deviation
// (raw MAD / Consistency) of the non-missing values.
func MAD(xs []float64) (median, mad float64, ok bool) {
	data := present(xs)
	if len(data) == 0 {
		return math.NaN(), math.NaN(), false
	}
	median, err := stats.Median(data)
	if err != nil {
		return math.NaN(), math.NaN(), false
	}
	raw, err := stats.MedianAbsoluteDeviationPopulation(data)
	if err != nil {
		return math.NaN(), math.NaN(), false
	}
	return median, raw / Consistency, true
}

// MADMedianRule flags x[i] when |x[i] - median| / MAD exceeds Cutoff. Missing
// values are left out of the statistics and never flagged. When MAD is zero
// any value off the median is flagged, so a column of equal values flags
// nothing.
func MADMedianRule(xs []float64) []bool {
	flags := make([]bool, len(xs))
	median, mad, ok := MAD(xs)
	if !ok || math.IsNaN(mad) {
		return flags
	}
	k := Cutoff()
	for i, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if mad == 0 {
			flags[i] = x != median
			continue
		}
		if math.Abs(x-median)/mad > k {
			flags[i] = true
		}
	}
	return flags
}
