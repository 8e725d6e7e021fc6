package dispatch

import (
	"context"
	"errors"
	"time"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/geo"
	"ambulance-dispatch-backend/internal/model"
)

const (
	VerdictArrived   = "Arrived"
	VerdictInTransit = "In Transit"

	AnchorRequestTime  = "request_time"
	AnchorStatusChange = "status_change"
)

// ArrivalCheck is a read-only arrival verdict based on elapsed time.
type ArrivalCheck struct {
	AmbulanceID         uint         `json:"ambulance_id"`
	Status              model.Status `json:"status"`
	Verdict             string       `json:"verdict"`
	Anchor              time.Time    `json:"anchor"`
	AnchorSource        string       `json:"anchor_source"`
	Deadline            *time.Time   `json:"deadline,omitempty"`
	DistanceKm          *float64     `json:"distance_km,omitempty"`
	WithinConfirmRadius bool         `json:"within_confirm_radius"`
}

// CheckArrivalOnTime compares now with anchor + EstimatedTimeMinutes.
//
// The anchor is the request time, except while the request is in Patient Received,
// where it is the most recent transition into that status. The check never writes;
// the reconciliation loop is the only time-based writer of status.
func (m *Machine) CheckArrivalOnTime(ctx context.Context, id uint) (*ArrivalCheck, error) {
	req, err := m.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	check := &ArrivalCheck{
		AmbulanceID:  req.ID,
		Status:       req.Status,
		Verdict:      VerdictInTransit,
		Anchor:       req.RequestTime.UTC(),
		AnchorSource: AnchorRequestTime,
	}

	if req.Status == model.StatusPatientReceived {
		event, err := m.store.LatestStatusEvent(ctx, id, model.StatusPatientReceived)
		switch {
		case err == nil:
			check.Anchor = event.Timestamp.UTC()
			check.AnchorSource = AnchorStatusChange
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
	}

	if req.EstimatedTimeMinutes != nil {
		deadline := check.Anchor.Add(Minutes(*req.EstimatedTimeMinutes))
		check.Deadline = &deadline
		if !m.Now().Before(deadline) {
			check.Verdict = VerdictArrived
		}
	}

	ping, err := m.store.LatestPing(ctx, id)
	switch {
	case err == nil:
		if req.HasDestination() {
			d := geo.Distance(ping.Latitude, ping.Longitude, *req.DestinationLat, *req.DestinationLng)
			check.DistanceKm = &d
			check.WithinConfirmRadius = d <= m.opts.ConfirmArrivalKm
		}
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	return check, nil
}
