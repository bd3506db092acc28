// Package ndvi analyzes vegetation index time series: it flags readings
// contaminated by undetected cloud or shadow using a rolling upper envelope,
// and summarizes the clean portion of the series.
package ndvi

import (
	"math"
	"sort"
	"time"
)

// Observation is one per-day vegetation index reading. A nil Value means the
// acquisition produced no usable reading ("no data", not "bad data").
type Observation struct {
	Date  time.Time `json:"date"`
	Value *float64  `json:"ndvi"`
}

// DetectorConfig holds the upper-envelope detector tunables.
type DetectorConfig struct {
	WindowDays       int
	Percentile       float64
	ThresholdBelow   float64
	ImplausibleFloor float64
}

// DetectOutliers flags readings anomalously low relative to the locally
// expected clear-sky maximum. The returned slice is positionally aligned with
// the input; nil-valued entries are never flagged. Values below the
// implausibility floor are always flagged regardless of the envelope.
func DetectOutliers(series []Observation, cfg DetectorConfig) []bool {
	flags := make([]bool, len(series))

	type point struct {
		date  time.Time
		value float64
	}
	valid := make([]point, 0, len(series))
	for _, obs := range series {
		if obs.Value != nil {
			valid = append(valid, point{date: obs.Date, value: *obs.Value})
		}
	}
	if len(valid) == 0 {
		return flags
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].date.Before(valid[j].date) })

	halfWindow := time.Duration(cfg.WindowDays) * 24 * time.Hour / 2
	envelopes := make(map[time.Time]float64, len(valid))
	for _, target := range valid {
		windowStart := target.date.Add(-halfWindow)
		windowEnd := target.date.Add(halfWindow)

		var windowValues []float64
		for _, candidate := range valid {
			if candidate.value < cfg.ImplausibleFloor {
				continue
			}
			if candidate.date.Before(windowStart) || candidate.date.After(windowEnd) {
				continue
			}
			windowValues = append(windowValues, candidate.value)
		}
		if len(windowValues) > 0 {
			envelopes[target.date] = percentile(windowValues, cfg.Percentile)
		}
	}

	for i, obs := range series {
		if obs.Value == nil {
			continue
		}
		value := *obs.Value
		if value < cfg.ImplausibleFloor {
			flags[i] = true
			continue
		}
		if envelope, ok := envelopes[obs.Date]; ok {
			flags[i] = envelope-value > cfg.ThresholdBelow
		}
	}

	return flags
}

// percentile computes the p-th percentile with linear interpolation between
// closest ranks.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
