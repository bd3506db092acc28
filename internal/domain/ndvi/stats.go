package ndvi

import (
	"math"
	"time"

	"github.com/phenosat/sitefinder/internal/domain/gaps"
)

// Analysis summarizes a vegetation index series after outlier screening.
// Flags are positionally aligned with the input series; the statistics cover
// only non-null, non-outlier readings. The full series stays available to
// callers for inspection.
type Analysis struct {
	Flags        []bool
	Observations int
	Mean         float64
	Min          float64
	Max          float64
	Range        float64
	Gaps         gaps.Stats
}

// Analyze runs outlier detection over the series and computes summary and
// gap statistics from the clean readings. gapThresholdDays is the NDVI gap
// convention, distinct from the raw-scene one.
func Analyze(series []Observation, cfg DetectorConfig, gapThresholdDays int) Analysis {
	flags := DetectOutliers(series, cfg)

	var (
		values    []float64
		usedDates []time.Time
	)
	for i, obs := range series {
		if obs.Value == nil || flags[i] {
			continue
		}
		values = append(values, *obs.Value)
		usedDates = append(usedDates, obs.Date)
	}

	analysis := Analysis{
		Flags:        flags,
		Observations: len(values),
		Gaps:         gaps.SceneStats(usedDates, gapThresholdDays),
	}
	if len(values) == 0 {
		return analysis
	}

	min, max, sum := values[0], values[0], 0.0
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	analysis.Mean = round4(sum / float64(len(values)))
	analysis.Min = round4(min)
	analysis.Max = round4(max)
	analysis.Range = round4(max - min)
	return analysis
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
