package benchmark

import (
	"fmt"
	"sort"
)

// --- Aggregation methods ---

// Aggregate names a method for collapsing per-run samples into one value.
type Aggregate string

const (
	// AggregateMedian is robust to a single outlier run. It is the
	// default whenever runs > 1 and no method is given.
	AggregateMedian Aggregate = "median"
	AggregateMean   Aggregate = "mean"
	AggregateMin    Aggregate = "min"
	AggregateMax    Aggregate = "max"
)

// ValidateAggregate returns an error if a is not a recognized method.
func ValidateAggregate(a Aggregate) error {
	switch a {
	case AggregateMedian, AggregateMean, AggregateMin, AggregateMax:
		return nil
	}
	return fmt.Errorf("invalid aggregate %q: must be one of: median, mean, min, max", a)
}

// aggregate collapses samples with the given method. samples must be
// non-empty; the runner guarantees that before calling.
func aggregate(samples []float64, method Aggregate) (float64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("no samples to aggregate")
	}
	switch method {
	case AggregateMedian:
		return median(samples), nil
	case AggregateMean:
		return mean(samples), nil
	case AggregateMin:
		sorted := sortedCopy(samples)
		return sorted[0], nil
	case AggregateMax:
		sorted := sortedCopy(samples)
		return sorted[len(sorted)-1], nil
	}
	return 0, fmt.Errorf("invalid aggregate %q", method)
}

func sortedCopy(samples []float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	sort.Float64s(out)
	return out
}

// median returns the middle sample, or the average of the two middle
// samples for even counts.
func median(samples []float64) float64 {
	sorted := sortedCopy(samples)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean(samples []float64) float64 {
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}
