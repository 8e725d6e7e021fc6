package dispatch

import (
	"fmt"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/model"
)

// CanTransition reports whether a request in from may be moved to to.
//
// Permissive mode accepts any known status. Strict mode accepts forward moves
// along Pending → New → Assigned → Started → Patient Received → Patient Reached
// (skipping steps is fine) and Rejected from any state before Patient Received.
// Nothing leaves Rejected or Patient Reached. Writing the current status is always
// accepted and treated as a no-op by the caller.
func CanTransition(from, to model.Status, strict bool) error {
	if !to.Valid() {
		return apperr.Validation("status", "unknown status %q", to)
	}
	if !strict || from == to {
		return nil
	}

	switch {
	case from == model.StatusRejected, from == model.StatusPatientReached:
		return invalid(from, to)
	case to == model.StatusRejected:
		if from.Rank() < model.StatusPatientReceived.Rank() {
			return nil
		}
		return invalid(from, to)
	case to.Rank() > from.Rank():
		return nil
	}
	return invalid(from, to)
}

func invalid(from, to model.Status) error {
	return fmt.Errorf("%w: %q -> %q", apperr.ErrInvalidTransition, from, to)
}
