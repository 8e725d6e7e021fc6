package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ambulance-dispatch-backend/internal/apperr"
)

func TestCoordinates(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		lat       float64
		lng       float64
		expectErr bool
	}{
		{name: "Form format", raw: "Latitude: 27.7172, Longitude: 85.3240", lat: 27.7172, lng: 85.3240},
		{name: "Bare pair", raw: "27.7172, 85.3240", lat: 27.7172, lng: 85.3240},
		{name: "Short labels", raw: "lat=27.7 lng=85.3", lat: 27.7, lng: 85.3},
		{name: "Negative values", raw: "Latitude: -33.8688, Longitude: 151.2093", lat: -33.8688, lng: 151.2093},
		{name: "Surrounding whitespace", raw: "  27.7,85.3  ", lat: 27.7, lng: 85.3},
		{name: "Single value", raw: "27.7172", expectErr: true},
		{name: "Not numbers", raw: "Latitude: north, Longitude: east", expectErr: true},
		{name: "Three values", raw: "1, 2, 3", expectErr: true},
		{name: "Out of range", raw: "Latitude: 127.7, Longitude: 85.3", expectErr: true},
		{name: "Empty", raw: "", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lat, lng, err := Coordinates(tc.raw)
			if tc.expectErr {
				assert.True(t, apperr.IsValidation(err), "got %v", err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.lat, lat)
			assert.Equal(t, tc.lng, lng)
		})
	}
}

func TestFormatCoordinatesRoundTrip(t *testing.T) {
	raw := FormatCoordinates(27.7172, 85.324)
	assert.Equal(t, "Latitude: 27.7172, Longitude: 85.324", raw)

	lat, lng, err := Coordinates(raw)
	assert.NoError(t, err)
	assert.Equal(t, 27.7172, lat)
	assert.Equal(t, 85.324, lng)
}

func TestID(t *testing.T) {
	id, err := ID(" 42 ")
	assert.NoError(t, err)
	assert.Equal(t, uint(42), id)

	for _, raw := range []string{"0", "-1", "abc", ""} {
		_, err := ID(raw)
		assert.True(t, apperr.IsValidation(err), raw)
	}
}
