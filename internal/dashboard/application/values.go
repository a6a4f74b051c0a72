package application

import (
	"errors"
	"math"
)

// ErrScopeEmpty is returned when no sites match the requested scope.
var ErrScopeEmpty = errors.New("dashboard: no sites matched the requested scope")

const (
	// powerThresholdKW is the minimum flow treated as an active source.
	powerThresholdKW = 1.0

	// sentinelU32 is the garbage value uninitialized meters report.
	sentinelU32 = 4294967295.0
)

// Scope narrows a dashboard query to a region, cluster or single site.
// Empty fields widen the scope; an all-empty scope covers every site.
type Scope struct {
	Region  string
	Cluster string
	Site    string
}

// pick returns the first present key from data. Missing keys are common:
// field names vary per meter vendor, so callers pass every known alias.
func pick(data map[string]float64, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := data[key]; ok {
			return v, true
		}
	}
	return 0, false
}

// normalizeKW converts values that are plausibly watts into kilowatts.
func normalizeKW(v float64) float64 {
	if math.Abs(v) >= 1000 {
		return v / 1000.0
	}
	return v
}

// sanitizeKW discards sentinel and implausible magnitudes and converts
// watt-scale values to kilowatts. Meters occasionally emit u32 max or NaN
// on sensor faults; those must not leak into aggregates.
func sanitizeKW(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if math.Abs(v) >= sentinelU32-0.5 {
		return 0
	}
	if math.Abs(v-sentinelU32/1000.0) <= 0.01 {
		return 0
	}
	if math.Abs(v) >= 1_000_000 {
		return 0
	}
	if math.Abs(v) >= 10_000 {
		v = v / 1000.0
	}
	return v
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
