package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompletionDeadline(t *testing.T) {
	deadline := time.Date(2024, 3, 9, 14, 5, 30, 0, time.UTC)
	garbage := "not-a-time"
	empty := ""

	testCases := []struct {
		name      string
		value     *string
		expectOK  bool
		expectErr bool
	}{
		{name: "unset", value: nil},
		{name: "empty", value: &empty},
		{name: "valid", value: TimestampPtr(deadline), expectOK: true},
		{name: "malformed", value: &garbage, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := &AmbulanceRequest{EstimatedCompletionTime: tc.value}
			got, ok, err := r.CompletionDeadline()
			assert.Equal(t, tc.expectOK, ok)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			if ok {
				assert.True(t, deadline.Equal(got))
			}
		})
	}
}

func TestCoordinatePresence(t *testing.T) {
	lat, lng := 27.7, 85.3
	r := &AmbulanceRequest{DestinationLat: &lat}
	assert.False(t, r.HasDestination())
	r.DestinationLng = &lng
	assert.True(t, r.HasDestination())
	assert.False(t, r.HasPickup())
}
