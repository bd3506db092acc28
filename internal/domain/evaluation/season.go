package evaluation

import (
	"sort"
	"time"
)

// SeasonWindow bounds one growing season for one site-year, including a
// buffer month on each side of the configured growing months where the
// calendar allows.
type SeasonWindow struct {
	Year   int
	Start  time.Time
	End    time.Time
	Months []int
}

// NewSeasonWindow builds the window for a year from the growing-season
// months. The window starts on the first day of the earliest month and ends
// on the 28th of the latest, a day every month has.
func NewSeasonWindow(year int, growingMonths []int) SeasonWindow {
	months := withBufferMonths(growingMonths)

	minMonth, maxMonth := months[0], months[len(months)-1]
	return SeasonWindow{
		Year:   year,
		Start:  time.Date(year, time.Month(minMonth), 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(year, time.Month(maxMonth), 28, 0, 0, 0, 0, time.UTC),
		Months: months,
	}
}

// LengthDays is the season span used to normalize weighted gap scores.
func (w SeasonWindow) LengthDays() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// ContainsMonth reports whether a calendar month is part of the season.
func (w SeasonWindow) ContainsMonth(m time.Month) bool {
	for _, month := range w.Months {
		if time.Month(month) == m {
			return true
		}
	}
	return false
}

// FilterInSeason keeps only scenes acquired during season months of the
// window's year.
func (w SeasonWindow) FilterInSeason(scenes []Scene) []Scene {
	var out []Scene
	for _, scene := range scenes {
		ts := scene.Time.UTC()
		if ts.Year() == w.Year && w.ContainsMonth(ts.Month()) {
			out = append(out, scene)
		}
	}
	return out
}

func withBufferMonths(growingMonths []int) []int {
	months := append([]int(nil), growingMonths...)
	sort.Ints(months)

	minMonth, maxMonth := months[0], months[len(months)-1]
	if minMonth > 1 {
		months = append(months, minMonth-1)
	}
	if maxMonth < 12 {
		months = append(months, maxMonth+1)
	}
	sort.Ints(months)
	return months
}
