package model

import (
	"time"

	"gorm.io/gorm"
)

// AmbulanceRequest is a single booking and the state of its transport.
type AmbulanceRequest struct {
	ID             uint     `gorm:"primaryKey" json:"id"`
	PatientName    string   `gorm:"size:255;not null;index" json:"patient_name"`
	Contact        string   `gorm:"size:64;not null" json:"contact"`
	PickupLocation string   `gorm:"size:512" json:"pickup_location"`
	PickupLat      *float64 `json:"pickup_lat"`
	PickupLng      *float64 `json:"pickup_lng"`
	Destination    string   `gorm:"size:512" json:"destination"`
	DestinationLat *float64 `gorm:"not null" json:"destination_lat"`
	DestinationLng *float64 `gorm:"not null" json:"destination_lng"`
	AmbulanceType  string   `gorm:"size:64" json:"ambulance_type"`
	Status         Status   `gorm:"size:32;not null;index:idx_requests_status" json:"status"`

	RequestTime          time.Time `gorm:"not null;<-:create" json:"request_time"`
	EstimatedTimeMinutes *float64  `json:"estimated_time_minutes"`
	// Derived timestamps are kept as text so malformed rows can be detected and skipped.
	EstimatedArrivalTime    *string   `gorm:"size:40" json:"estimated_arrival_time"`
	EstimatedCompletionTime *string   `gorm:"size:40" json:"estimated_completion_time"`
	EtaUnavailable          bool      `gorm:"not null;default:false" json:"eta_unavailable"`
	Arrived                 bool      `gorm:"not null;default:false" json:"arrived"`
	StatusUpdatedAt         time.Time `json:"status_updated_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasPickup reports whether pickup coordinates are known.
func (r *AmbulanceRequest) HasPickup() bool {
	return r.PickupLat != nil && r.PickupLng != nil
}

// HasDestination reports whether destination coordinates are known.
func (r *AmbulanceRequest) HasDestination() bool {
	return r.DestinationLat != nil && r.DestinationLng != nil
}

// CompletionDeadline parses EstimatedCompletionTime.
// ok is false when the field is unset; err is set when it cannot be parsed.
func (r *AmbulanceRequest) CompletionDeadline() (deadline time.Time, ok bool, err error) {
	if r.EstimatedCompletionTime == nil || *r.EstimatedCompletionTime == "" {
		return time.Time{}, false, nil
	}
	deadline, err = ParseTimestamp(*r.EstimatedCompletionTime)
	if err != nil {
		return time.Time{}, false, err
	}
	return deadline, true, nil
}
