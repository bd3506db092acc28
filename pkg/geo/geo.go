package geo

import "math"

// Bounds describes an inclusive lat/lon rectangle.
type Bounds struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// EuropeBounds is the default analysis domain for the camera network.
var EuropeBounds = Bounds{LatMin: 35.0, LatMax: 71.0, LonMin: -10.0, LonMax: 40.0}

// Contains reports whether the point lies inside the bounds.
func (b Bounds) Contains(lat, lon float64) bool {
	return b.LatMin <= lat && lat <= b.LatMax && b.LonMin <= lon && lon <= b.LonMax
}

// ValidCoordinates reports whether lat/lon are within WGS84 ranges.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// BufferBBox builds a [west, south, east, north] bounding box around a point,
// expanding by bufferKm in each direction. Longitude degrees shrink with
// latitude, hence the cosine correction.
func BufferBBox(lat, lon, bufferKm float64) [4]float64 {
	latBuffer := bufferKm / 111.0
	lonBuffer := bufferKm / (111.0 * math.Cos(lat*math.Pi/180.0))

	return [4]float64{
		lon - lonBuffer,
		lat - latBuffer,
		lon + lonBuffer,
		lat + latBuffer,
	}
}
