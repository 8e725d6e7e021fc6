// Package parse reads the loosely formatted values accepted at the edges.
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/geo"
)

var (
	labelRe = regexp.MustCompile(`(?i)\b(?:lat(?:itude)?|lng|lon(?:gitude)?)\s*[:=]\s*`)
	sepRe   = regexp.MustCompile(`\s*[,;\s]\s*`)
)

// Coordinates parses a pickup location as sent by the booking form.
//
// Both "Latitude: 27.7172, Longitude: 85.3240" and a bare "27.7172, 85.3240" are
// accepted. The result must be a valid WGS84 position.
func Coordinates(raw string) (lat, lng float64, err error) {
	s := strings.TrimSpace(labelRe.ReplaceAllString(raw, ""))
	parts := sepRe.Split(s, -1)
	if len(parts) != 2 {
		return 0, 0, apperr.Validation("location", "invalid location format %q", raw)
	}

	lat, errLat := strconv.ParseFloat(parts[0], 64)
	lng, errLng := strconv.ParseFloat(parts[1], 64)
	if errLat != nil || errLng != nil {
		return 0, 0, apperr.Validation("location", "invalid location format %q", raw)
	}
	if !geo.ValidCoordinate(lat, lng) {
		return 0, 0, apperr.Validation("location", "coordinates out of range (%v, %v)", lat, lng)
	}
	return lat, lng, nil
}

// FormatCoordinates is the inverse of Coordinates.
func FormatCoordinates(lat, lng float64) string {
	return fmt.Sprintf("Latitude: %s, Longitude: %s",
		strconv.FormatFloat(lat, 'f', -1, 64), strconv.FormatFloat(lng, 'f', -1, 64))
}

// ID parses a positive request id.
func ID(raw string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || n == 0 {
		return 0, apperr.Validation("id", "invalid id %q", raw)
	}
	return uint(n), nil
}
