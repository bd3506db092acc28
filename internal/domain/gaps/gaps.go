// Package gaps computes temporal-gap statistics over satellite acquisition
// dates. All functions are pure; callers may run them concurrently.
package gaps

import (
	"math"
	"sort"
	"time"
)

// UniqueDays collapses timestamps to unique UTC calendar days, sorted
// ascending. Same-day reacquisitions collapse to a single day.
func UniqueDays(times []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(times))
	days := make([]time.Time, 0, len(times))
	for _, ts := range times {
		day := ts.UTC().Truncate(24 * time.Hour)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// Between returns pairwise day differences between consecutive sorted unique
// days. Fewer than two days yields an empty list.
func Between(days []time.Time) []int {
	if len(days) < 2 {
		return nil
	}
	out := make([]int, 0, len(days)-1)
	for i := 1; i < len(days); i++ {
		out = append(out, int(days[i].Sub(days[i-1]).Hours()/24))
	}
	return out
}

// FromDates combines UniqueDays and Between.
func FromDates(times []time.Time) []int {
	return Between(UniqueDays(times))
}

// Max returns the largest gap, or 0 for an empty list.
func Max(gapList []int) int {
	max := 0
	for _, g := range gapList {
		if g > max {
			max = g
		}
	}
	return max
}

// CountOver counts gaps strictly exceeding thresholdDays.
func CountOver(gapList []int, thresholdDays int) int {
	count := 0
	for _, g := range gapList {
		if g > thresholdDays {
			count++
		}
	}
	return count
}

// WeightedScore computes the exponential weighted gap score,
// (1/T) * Σ exp(g/τ)·g over gaps exceeding thresholdDays, where T is the
// season length in days and τ controls how sharply long gaps are penalized.
// Returns 0 when no gap qualifies or season length is not positive.
func WeightedScore(gapList []int, seasonLengthDays int, tau float64, thresholdDays int) float64 {
	if seasonLengthDays <= 0 || tau <= 0 {
		return 0.0
	}
	sum := 0.0
	qualified := false
	for _, g := range gapList {
		if g <= thresholdDays {
			continue
		}
		qualified = true
		sum += math.Exp(float64(g)/tau) * float64(g)
	}
	if !qualified {
		return 0.0
	}
	return sum / float64(seasonLengthDays)
}

// Stats bundles the coarser scene-level gap statistics.
type Stats struct {
	MaxGapDays    int
	GapCount      int
	WeightedScore float64
}

// SceneStats computes the scene-level gap statistics used for raw scene and
// NDVI-filtered date lists: gaps strictly above thresholdDays, their count,
// and a quadratic score Σ g² normalized by the number of intervals between
// unique dates. Fewer than two unique dates yields zeros.
func SceneStats(times []time.Time, thresholdDays int) Stats {
	days := UniqueDays(times)
	if len(days) < 2 {
		return Stats{}
	}
	all := Between(days)
	var over []int
	for _, g := range all {
		if g > thresholdDays {
			over = append(over, g)
		}
	}
	if len(over) == 0 {
		return Stats{}
	}
	sum := 0.0
	for _, g := range over {
		sum += float64(g) * float64(g)
	}
	return Stats{
		MaxGapDays:    Max(over),
		GapCount:      len(over),
		WeightedScore: sum / float64(len(days)-1),
	}
}
