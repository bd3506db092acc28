package evaluation

import "time"

// Site is one camera-network location eligible for evaluation.
type Site struct {
	ID               string     `json:"siteId"`
	Lat              float64    `json:"lat"`
	Lon              float64    `json:"lon"`
	Description      string     `json:"description,omitempty"`
	VegetationType   string     `json:"vegetationType,omitempty"`
	FirstObservation *time.Time `json:"firstObservation,omitempty"`
	LastObservation  *time.Time `json:"lastObservation,omitempty"`
}

// CandidateYears lists the growing-season years to evaluate for a site,
// derived from its observation span. Sites without span metadata fall back
// to the current year.
func CandidateYears(site Site, now time.Time) []int {
	first := now
	last := now
	if site.FirstObservation != nil && site.LastObservation != nil {
		first = *site.FirstObservation
		last = *site.LastObservation
	}
	if last.Before(first) {
		return []int{first.Year()}
	}
	years := make([]int, 0, last.Year()-first.Year()+1)
	for y := first.Year(); y <= last.Year(); y++ {
		years = append(years, y)
	}
	return years
}

// Scene is one satellite acquisition record. CloudCover is absent for
// sensors that do not report it.
type Scene struct {
	Time       time.Time
	CloudCover *float64
}
