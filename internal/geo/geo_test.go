package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// kmPerDegreeLat is the length of one degree of latitude on the haversine sphere.
const kmPerDegreeLat = EarthRadiusKm * math.Pi / 180

func TestDistance(t *testing.T) {
	testCases := []struct {
		name     string
		lat1     float64
		lng1     float64
		lat2     float64
		lng2     float64
		expected float64
		delta    float64
	}{
		{
			name: "Same point",
			lat1: 27.7172, lng1: 85.3240, lat2: 27.7172, lng2: 85.3240,
			expected: 0, delta: 1e-12,
		},
		{
			name: "Kathmandu pickup to nearby hospital",
			lat1: 27.7172, lng1: 85.3240, lat2: 27.7000, lng2: 85.3300,
			expected: 2.0, delta: 0.05,
		},
		{
			name: "One degree of latitude",
			lat1: 0, lng1: 0, lat2: 1, lng2: 0,
			expected: kmPerDegreeLat, delta: 1e-9,
		},
		{
			name: "Antipodal points",
			lat1: 0, lng1: 0, lat2: 0, lng2: 180,
			expected: math.Pi * EarthRadiusKm, delta: 1e-6,
		},
		{
			name: "150 meters north",
			lat1: 27.7000, lng1: 85.3300, lat2: 27.7000 + 0.15/kmPerDegreeLat, lng2: 85.3300,
			expected: 0.15, delta: 1e-6,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := Distance(tc.lat1, tc.lng1, tc.lat2, tc.lng2)
			assert.InDelta(t, tc.expected, d, tc.delta)
		})
	}
}

func TestDistanceIsSymmetric(t *testing.T) {
	points := [][2]float64{
		{27.7172, 85.3240},
		{-33.8688, 151.2093},
		{51.5074, -0.1278},
		{0, 0},
		{89.9, 179.9},
		{-89.9, -179.9},
	}
	for _, a := range points {
		assert.Equal(t, 0.0, Distance(a[0], a[1], a[0], a[1]))
		for _, b := range points {
			assert.InDelta(t, Distance(a[0], a[1], b[0], b[1]), Distance(b[0], b[1], a[0], a[1]), 1e-9)
		}
	}
}

func TestETAMinutes(t *testing.T) {
	assert.InDelta(t, 1.575, ETAMinutes(2.1, DefaultCruiseSpeedKmh), 1e-9)
	assert.Equal(t, 1.58, Round2(ETAMinutes(2.1, DefaultCruiseSpeedKmh)))
	assert.Equal(t, 60.0, ETAMinutes(80, 80))
	assert.Equal(t, 0.0, ETAMinutes(10, 0))
	assert.Equal(t, 0.0, ETAMinutes(10, -5))
}

func TestHasArrived(t *testing.T) {
	dstLat, dstLng := 27.7000, 85.3300
	near := dstLat + 0.15/kmPerDegreeLat
	far := dstLat + 0.5/kmPerDegreeLat

	assert.True(t, HasArrived(near, dstLng, dstLat, dstLng, LiveArrivalThresholdKm))
	assert.False(t, HasArrived(near, dstLng, dstLat, dstLng, ConfirmArrivalThresholdKm))
	assert.False(t, HasArrived(far, dstLng, dstLat, dstLng, LiveArrivalThresholdKm))
	assert.True(t, HasArrived(dstLat, dstLng, dstLat, dstLng, ConfirmArrivalThresholdKm))
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(27.7, 85.3))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.False(t, ValidCoordinate(90.1, 0))
	assert.False(t, ValidCoordinate(0, -180.5))
	assert.False(t, ValidCoordinate(math.NaN(), 0))
	assert.False(t, ValidCoordinate(0, math.Inf(1)))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 2.01, Round2(2.0149))
	assert.Equal(t, 2.02, Round2(2.015000001))
	assert.Equal(t, -1.5, Round2(-1.5))
}
