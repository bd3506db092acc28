// Package suitability reduces per-season coverage metrics to a single
// bounded score expressing how usable a site's satellite coverage is for
// spatiotemporal fusion.
package suitability

import "math"

// Inputs carries the per-season metrics consumed by the scorer.
type Inputs struct {
	S2Density     float64 // primary-sensor scenes per month
	S3Density     float64 // secondary-sensor scenes per month
	CloudMean     float64 // mean cloud cover percentage of primary scenes
	MaxGapDays    int     // worst temporal gap fed into the gap composite
	OverlapCount  int     // cross-sensor overlap days
	S2WeightedGap float64 // exponential weighted gap score, primary sensor
	S3WeightedGap float64 // exponential weighted gap score, secondary sensor
	GapCount      int     // primary-sensor gaps above the count threshold
}

// Sub-score weights. Density dominates because fusion needs raw material
// before anything else matters.
const (
	s2DensityWeight = 0.30
	s3DensityWeight = 0.30
	cloudWeight     = 0.25
	gapWeight       = 0.15

	s2DensitySaturation = 3.0 // scenes/month at which the sub-score saturates
	s3DensitySaturation = 2.0

	expectedSeasonMonths = 8.0 // growing season plus buffer, for gap frequency
)

// Score combines density, cloud and gap signals into a value in [0, 1].
// A site with zero primary-sensor density scores exactly 0: partial-credit
// math must not declare a site with no data suitable. Every sub-score is
// clamped before combination so no extreme input can push the composite out
// of range or to NaN.
func Score(in Inputs) float64 {
	if in.S2Density == 0 {
		return 0.0
	}

	s2DensityScore := math.Min(in.S2Density/s2DensitySaturation, 1.0) * s2DensityWeight
	s3DensityScore := math.Min(in.S3Density/s3DensitySaturation, 1.0) * s3DensityWeight

	cloudFactor := math.Max(0.05, 1.0-math.Pow(in.CloudMean/80.0, 1.5))
	cloudScore := cloudFactor * cloudWeight

	maxGapComponent := math.Max(0.1, 1.0-math.Pow(float64(in.MaxGapDays)/30.0, 1.2))

	weightedGapComponent := math.Max(0.1, 1.0-math.Min(in.S2WeightedGap/2.0, 1.0))

	expectedObs := math.Max(in.S2Density*expectedSeasonMonths, 1.0)
	gapFreqPenalty := 0.0
	if in.GapCount > 0 {
		gapFreqPenalty = math.Min(float64(in.GapCount)/expectedObs, 1.0)
	}
	gapFreqComponent := math.Max(0.2, 1.0-gapFreqPenalty)

	gapScore := (maxGapComponent*0.4 + weightedGapComponent*0.4 + gapFreqComponent*0.2) * gapWeight

	return clamp01(s2DensityScore + s3DensityScore + cloudScore + gapScore)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0.0
	}
	if v > 1 {
		return 1.0
	}
	return v
}
