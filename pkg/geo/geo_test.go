package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferBBoxAtEquator(t *testing.T) {
	bbox := BufferBBox(0, 0, 111.0)

	require.InDelta(t, -1.0, bbox[0], 0.001)
	require.InDelta(t, -1.0, bbox[1], 0.001)
	require.InDelta(t, 1.0, bbox[2], 0.001)
	require.InDelta(t, 1.0, bbox[3], 0.001)
}

func TestBufferBBoxHighLatitudeWidensLongitude(t *testing.T) {
	bbox := BufferBBox(60.0, 10.0, 5.0)

	latSpan := bbox[3] - bbox[1]
	lonSpan := bbox[2] - bbox[0]
	require.Greater(t, lonSpan, latSpan)
	require.InDelta(t, lonSpan, latSpan/math.Cos(60.0*math.Pi/180.0), 0.0001)
}

func TestBoundsContains(t *testing.T) {
	require.True(t, EuropeBounds.Contains(48.5, 9.0))
	require.True(t, EuropeBounds.Contains(35.0, -10.0)) // edges are inclusive
	require.False(t, EuropeBounds.Contains(30.0, 9.0))
	require.False(t, EuropeBounds.Contains(48.5, 60.0))
}

func TestValidCoordinates(t *testing.T) {
	require.True(t, ValidCoordinates(90, 180))
	require.True(t, ValidCoordinates(-90, -180))
	require.False(t, ValidCoordinates(91, 0))
	require.False(t, ValidCoordinates(0, -181))
}
