package stats

import (
	"math"
	"sort"

	"github.com/kjstillabower/climate-outlook-service/internal/models"
	"github.com/kjstillabower/climate-outlook-service/internal/outlookerr"
)

// Comparator strings accepted by Exceedance.
const (
	CompGTE = ">="
	CompGT  = ">"
)

// Summarize computes the distribution summary for one variable across the
// sampling window. Std is the population standard deviation (divide by N,
// not N-1); with the small windows used here the two conventions differ
// materially, and the population form matches how the percentiles treat
// the window as the full population of interest.
// Returns EmptySample when values is empty; never NaN.
func Summarize(variable, unit string, values []float64) (models.VariableSummary, error) {
	n := len(values)
	if n == 0 {
		return models.VariableSummary{}, outlookerr.Newf(outlookerr.KindEmptySample, "no samples for %s", variable)
	}

	mean := Mean(values)

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(n))

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	return models.VariableSummary{
		Variable:   variable,
		Unit:       unit,
		Mean:       mean,
		Std:        std,
		P10:        Percentile(sorted, 10),
		P25:        Percentile(sorted, 25),
		P50:        Percentile(sorted, 50),
		P75:        Percentile(sorted, 75),
		P90:        Percentile(sorted, 90),
		SampleSize: n,
	}, nil
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Percentile computes the q-th percentile (0-100) of an already sorted
// sample by linear interpolation: index = q/100 * (N-1), interpolated
// between the floor and ceil ranks. Monotonically non-decreasing in q
// for any input. Panics on empty input; callers guard via Summarize.
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Exceedance computes the empirical fraction of values crossing threshold
// under the given comparator (">=" or ">"), expressed 0-100.
// Returns EmptySample when values is empty.
func Exceedance(metric string, threshold float64, comparator string, values []float64) (models.ExceedanceProbability, error) {
	if len(values) == 0 {
		return models.ExceedanceProbability{}, outlookerr.Newf(outlookerr.KindEmptySample, "no samples for %s exceedance", metric)
	}
	count := 0
	for _, v := range values {
		switch comparator {
		case CompGT:
			if v > threshold {
				count++
			}
		default:
			if v >= threshold {
				count++
			}
		}
	}
	return models.ExceedanceProbability{
		Metric:             metric,
		Threshold:          threshold,
		Comparator:         comparator,
		ProbabilityPercent: float64(count) / float64(len(values)) * 100,
	}, nil
}
