// Package geo implements the great-circle math used for ETA and arrival checks.
package geo

import "math"

const (
	// EarthRadiusKm is the mean Earth radius used by the haversine formula.
	EarthRadiusKm = 6371.0

	// DefaultCruiseSpeedKmh is the uniform speed assumed for every ETA estimate.
	DefaultCruiseSpeedKmh = 80.0

	// LiveArrivalThresholdKm is the radius at which live tracking declares arrival.
	LiveArrivalThresholdKm = 0.2

	// ConfirmArrivalThresholdKm is the tighter radius used when confirming arrival.
	ConfirmArrivalThresholdKm = 0.1
)

// Distance returns the haversine distance in kilometers between two points.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lng2 - lng1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	// Clamp rounding noise so Sqrt(1-a) never sees a negative argument.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// ETAMinutes converts a distance into minutes of travel at speedKmh.
func ETAMinutes(distanceKm, speedKmh float64) float64 {
	if speedKmh <= 0 {
		return 0
	}
	return distanceKm / speedKmh * 60
}

// HasArrived reports whether the current position lies within thresholdKm of the destination.
func HasArrived(curLat, curLng, dstLat, dstLng, thresholdKm float64) bool {
	return Distance(curLat, curLng, dstLat, dstLng) <= thresholdKm
}

// ValidCoordinate reports whether lat/lng is a finite WGS84 position.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
