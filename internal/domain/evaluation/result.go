package evaluation

// SensorMetrics carries per-sensor coverage statistics for one season.
// MaxGapDays is nil when the sensor produced no in-season acquisitions at
// all, which is different from a max gap of zero (a single observation or
// perfect coverage).
type SensorMetrics struct {
	Scenes           int      `json:"scenes"`
	ScenesPerMonth   float64  `json:"scenesPerMonth"`
	CloudCoverMean   float64  `json:"cloudCoverMean"`
	CloudCoverStd    float64  `json:"cloudCoverStd,omitempty"`
	MaxGapDays       *int     `json:"maxGapDays"`
	GapCount         int      `json:"gapCount"`
	WeightedGapScore float64  `json:"weightedGapScore"`
	SceneMaxGapDays  int      `json:"sceneMaxGapDays,omitempty"`
	SceneGapCount    int      `json:"sceneGapCount,omitempty"`
	SceneGapScore    float64  `json:"sceneGapScore,omitempty"`
	FirstDate        string   `json:"firstDate,omitempty"`
	LastDate         string   `json:"lastDate,omitempty"`
	OverlapDates     []string `json:"overlapDates,omitempty"`
}

// SeriesPoint is one entry of the emitted vegetation index time series.
// Value stays nil for acquisitions without a usable reading; those are never
// flagged as outliers.
type SeriesPoint struct {
	Date    string   `json:"date"`
	Value   *float64 `json:"ndvi"`
	Outlier bool     `json:"outlier"`
}

// NDVISummary carries vegetation index statistics over the clean portion of
// the series (non-null, non-outlier readings).
type NDVISummary struct {
	Observations     int           `json:"observations"`
	Mean             float64       `json:"mean"`
	Min              float64       `json:"min"`
	Max              float64       `json:"max"`
	Range            float64       `json:"range"`
	MaxGapDays       int           `json:"maxGapDays"`
	GapCount         int           `json:"gapCount"`
	WeightedGapScore float64       `json:"weightedGapScore"`
	TimeSeries       []SeriesPoint `json:"timeSeries,omitempty"`
}

// SeasonResult is the evaluation outcome for one (site, season) pair.
// Score is nil when the evaluation failed ("unknown"), which is distinct
// from a score of 0.0 ("known unsuitable"); Error is populated only in the
// former case, NoDataReason only in the no-data short-circuit.
type SeasonResult struct {
	SiteID           string        `json:"siteId"`
	Lat              float64       `json:"lat"`
	Lon              float64       `json:"lon"`
	VegetationType   string        `json:"vegetationType,omitempty"`
	Description      string        `json:"description,omitempty"`
	Year             int           `json:"year"`
	SeasonStart      string        `json:"seasonStartDate,omitempty"`
	SeasonEnd        string        `json:"seasonEndDate,omitempty"`
	SeasonLengthDays int           `json:"seasonLengthDays,omitempty"`
	Sentinel2        SensorMetrics `json:"sentinel2"`
	Sentinel3        SensorMetrics `json:"sentinel3"`
	OverlapCount     int           `json:"temporalOverlapDays"`
	NDVI             *NDVISummary  `json:"ndvi,omitempty"`
	Score            *float64      `json:"suitabilityScore"`
	NoDataReason     string        `json:"noDataReason,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// Failed reports whether the season evaluation ended in an unknown state.
func (r SeasonResult) Failed() bool {
	return r.Score == nil
}

func scorePtr(v float64) *float64 {
	return &v
}
