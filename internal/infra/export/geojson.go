// Package export renders evaluation results as GeoJSON and optionally pushes
// snapshots to object storage.
package export

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/phenosat/sitefinder/internal/domain/evaluation"
)

// FeatureCollection is the GeoJSON document emitted for a result set.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one candidate site with its per-season evaluations.
type Feature struct {
	Type       string     `json:"type"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type Properties struct {
	SiteID         string                    `json:"siteId"`
	Description    string                    `json:"description,omitempty"`
	VegetationType string                    `json:"vegetationType,omitempty"`
	BestScore      *float64                  `json:"bestScore,omitempty"`
	Seasons        []evaluation.SeasonResult `json:"seasons"`
}

// Build groups season results into one feature per site, ordered by site id.
// GeoJSON positions are [lon, lat].
func Build(results []evaluation.SeasonResult) FeatureCollection {
	bySite := make(map[string][]evaluation.SeasonResult)
	var order []string
	for _, result := range results {
		if _, ok := bySite[result.SiteID]; !ok {
			order = append(order, result.SiteID)
		}
		bySite[result.SiteID] = append(bySite[result.SiteID], result)
	}
	sort.Strings(order)

	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(order))}
	for _, siteID := range order {
		seasons := bySite[siteID]
		sort.Slice(seasons, func(i, j int) bool { return seasons[i].Year < seasons[j].Year })

		first := seasons[0]
		feature := Feature{
			Type:     "Feature",
			Geometry: Geometry{Type: "Point", Coordinates: [2]float64{first.Lon, first.Lat}},
			Properties: Properties{
				SiteID:         siteID,
				Description:    first.Description,
				VegetationType: first.VegetationType,
				BestScore:      bestScore(seasons),
				Seasons:        seasons,
			},
		}
		fc.Features = append(fc.Features, feature)
	}
	return fc
}

// WriteFile renders the collection to disk.
func WriteFile(path string, results []evaluation.SeasonResult) error {
	payload, err := json.MarshalIndent(Build(results), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func bestScore(seasons []evaluation.SeasonResult) *float64 {
	var best *float64
	for _, season := range seasons {
		if season.Score == nil {
			continue
		}
		if best == nil || *season.Score > *best {
			v := *season.Score
			best = &v
		}
	}
	return best
}
