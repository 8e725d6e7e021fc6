package broadcast

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a live update.
type EventType string

const (
	TypeLocationUpdate     EventType = "location_update"
	TypeStatusUpdate       EventType = "status_update"
	TypeCurrentSpeedUpdate EventType = "current_speed_update"
	TypeAverageSpeedUpdate EventType = "average_speed_update"
)

// Event is the envelope delivered to observers.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Type        EventType `json:"type"`
	AmbulanceID uint      `json:"ambulance_id"`
	Timestamp   time.Time `json:"timestamp"`
	Data        any       `json:"data"`
}

// LocationUpdate is the payload of a location_update event. Values are rounded to 2 decimals.
type LocationUpdate struct {
	AmbulanceID uint    `json:"ambulance_id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DistanceKm  float64 `json:"distance_km"`
	ETAMinutes  float64 `json:"eta_minutes"`
}

// StatusUpdate is the payload of a status_update event.
type StatusUpdate struct {
	AmbulanceID uint   `json:"ambulance_id"`
	Status      string `json:"status"`
}

// SpeedUpdate is the payload of both speed events. SpeedKmh is nil when unavailable.
type SpeedUpdate struct {
	AmbulanceID uint     `json:"ambulance_id"`
	SpeedKmh    *float64 `json:"speed_kmh"`
}

// NewEvent stamps a fresh envelope.
func NewEvent(t EventType, ambulanceID uint, data any) Event {
	return Event{
		ID:          uuid.New(),
		Type:        t,
		AmbulanceID: ambulanceID,
		Timestamp:   time.Now().UTC(),
		Data:        data,
	}
}
