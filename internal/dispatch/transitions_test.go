package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/model"
)

func TestCanTransitionStrict(t *testing.T) {
	testCases := []struct {
		from, to model.Status
		ok       bool
	}{
		{model.StatusPending, model.StatusNew, true},
		{model.StatusPending, model.StatusStarted, true},
		{model.StatusAssigned, model.StatusPatientReceived, true},
		{model.StatusPatientReceived, model.StatusPatientReached, true},
		{model.StatusStarted, model.StatusStarted, true},
		{model.StatusPending, model.StatusRejected, true},
		{model.StatusStarted, model.StatusRejected, true},
		{model.StatusPatientReceived, model.StatusRejected, false},
		{model.StatusStarted, model.StatusAssigned, false},
		{model.StatusPatientReached, model.StatusStarted, false},
		{model.StatusRejected, model.StatusAssigned, false},
		{model.Status("Arrived"), model.StatusStarted, true},
	}

	for _, tc := range testCases {
		t.Run(string(tc.from)+" to "+string(tc.to), func(t *testing.T) {
			err := CanTransition(tc.from, tc.to, true)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
			}
		})
	}
}

func TestCanTransitionPermissive(t *testing.T) {
	assert.NoError(t, CanTransition(model.StatusPatientReached, model.StatusPending, false))
	assert.NoError(t, CanTransition(model.StatusRejected, model.StatusStarted, false))
}

func TestCanTransitionUnknownTarget(t *testing.T) {
	err := CanTransition(model.StatusPending, model.Status("Teleported"), false)
	assert.True(t, apperr.IsValidation(err))
}
