// Package report assembles the record a report renderer consumes.
package report

import (
	"context"
	"errors"
	"strconv"
	"time"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/model"
	"ambulance-dispatch-backend/internal/store"
)

// NotAvailable stands in for every unset field.
const NotAvailable = "Not Available"

// Record is a flat, fully populated view of one request.
type Record struct {
	RequestID               uint   `json:"request_id"`
	PatientName             string `json:"patient_name"`
	Contact                 string `json:"contact"`
	PickupLocation          string `json:"pickup_location"`
	Destination             string `json:"destination"`
	AmbulanceType           string `json:"ambulance_type"`
	Status                  string `json:"status"`
	PickupLat               string `json:"pickup_lat"`
	PickupLng               string `json:"pickup_lng"`
	DestinationLat          string `json:"destination_lat"`
	DestinationLng          string `json:"destination_lng"`
	RequestTime             string `json:"request_time"`
	EstimatedTimeMinutes    string `json:"estimated_time_minutes"`
	EstimatedArrivalTime    string `json:"estimated_arrival_time"`
	EstimatedCompletionTime string `json:"estimated_completion_time"`
	LatestLatitude          string `json:"latest_latitude"`
	LatestLongitude         string `json:"latest_longitude"`
	LatestPingTime          string `json:"latest_ping_time"`
}

// Builder reads from the store.
type Builder struct {
	store store.Store
}

func NewBuilder(s store.Store) *Builder {
	return &Builder{store: s}
}

// Build loads request id and its latest ping.
func (b *Builder) Build(ctx context.Context, id uint) (*Record, error) {
	req, err := b.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		RequestID:               req.ID,
		PatientName:             text(req.PatientName),
		Contact:                 text(req.Contact),
		PickupLocation:          text(req.PickupLocation),
		Destination:             text(req.Destination),
		AmbulanceType:           text(req.AmbulanceType),
		Status:                  text(string(req.Status)),
		PickupLat:               coord(req.PickupLat),
		PickupLng:               coord(req.PickupLng),
		DestinationLat:          coord(req.DestinationLat),
		DestinationLng:          coord(req.DestinationLng),
		RequestTime:             stamp(req.RequestTime),
		EstimatedTimeMinutes:    minutes(req.EstimatedTimeMinutes),
		EstimatedArrivalTime:    storedStamp(req.EstimatedArrivalTime),
		EstimatedCompletionTime: storedStamp(req.EstimatedCompletionTime),
		LatestLatitude:          NotAvailable,
		LatestLongitude:         NotAvailable,
		LatestPingTime:          NotAvailable,
	}

	ping, err := b.store.LatestPing(ctx, id)
	switch {
	case err == nil:
		rec.LatestLatitude = coord(&ping.Latitude)
		rec.LatestLongitude = coord(&ping.Longitude)
		rec.LatestPingTime = stamp(ping.Timestamp)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	return rec, nil
}

func text(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

func coord(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}

func minutes(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return t.UTC().Format(model.ReportLayout)
}

// storedStamp reformats a persisted timestamp; unparsable values are reported unset.
func storedStamp(raw *string) string {
	if raw == nil || *raw == "" || *raw == NotAvailable {
		return NotAvailable
	}
	t, err := model.ParseTimestamp(*raw)
	if err != nil {
		return NotAvailable
	}
	return stamp(t)
}
