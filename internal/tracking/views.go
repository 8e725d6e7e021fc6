package tracking

import (
	"context"
	"errors"
	"time"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/dispatch"
	"ambulance-dispatch-backend/internal/geo"
	"ambulance-dispatch-backend/internal/model"
)

const (
	LabelOnTheWay       = "On The Way"
	LabelPatientReached = "Patient Reached"
)

// LocationView is the latest ping joined with the request's coordinates.
type LocationView struct {
	AmbulanceID    uint         `json:"ambulance_id"`
	Latitude       float64      `json:"latitude"`
	Longitude      float64      `json:"longitude"`
	Timestamp      time.Time    `json:"timestamp"`
	Status         model.Status `json:"status"`
	PatientName    string       `json:"patient_name"`
	PickupLat      *float64     `json:"pickup_lat"`
	PickupLng      *float64     `json:"pickup_lng"`
	DestinationLat *float64     `json:"destination_lat"`
	DestinationLng *float64     `json:"destination_lng"`
}

// LatestLocation returns apperr.ErrNotFound when the request has no pings.
func (p *Pipeline) LatestLocation(ctx context.Context, id uint) (*LocationView, error) {
	req, err := p.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	ping, err := p.store.LatestPing(ctx, id)
	if err != nil {
		return nil, err
	}
	return &LocationView{
		AmbulanceID:    id,
		Latitude:       ping.Latitude,
		Longitude:      ping.Longitude,
		Timestamp:      ping.Timestamp.UTC(),
		Status:         ping.Status,
		PatientName:    req.PatientName,
		PickupLat:      req.PickupLat,
		PickupLng:      req.PickupLng,
		DestinationLat: req.DestinationLat,
		DestinationLng: req.DestinationLng,
	}, nil
}

// ETAView is the live distance and ETA from the latest ping.
type ETAView struct {
	AmbulanceID uint    `json:"ambulance_id"`
	DistanceKm  float64 `json:"distance_km"`
	ETAMinutes  float64 `json:"eta_minutes"`
	Status      string  `json:"status"`
}

// LiveETA estimates at cruise speed from the latest ping to the destination.
func (p *Pipeline) LiveETA(ctx context.Context, id uint) (*ETAView, error) {
	req, err := p.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	ping, err := p.store.LatestPing(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.HasDestination() {
		return nil, apperr.ErrInvalidLocationData
	}

	d := geo.Distance(ping.Latitude, ping.Longitude, *req.DestinationLat, *req.DestinationLng)
	label := LabelOnTheWay
	if d <= p.machine.ThresholdKm(dispatch.LiveThreshold) {
		label = LabelPatientReached
	}
	return &ETAView{
		AmbulanceID: id,
		DistanceKm:  geo.Round2(d),
		ETAMinutes:  geo.Round2(geo.ETAMinutes(d, p.machine.Options().CruiseSpeedKmh)),
		Status:      label,
	}, nil
}

// TrackQuery selects a request by id or, when AmbulanceID is 0, by patient name.
// Destination, when set, is geocoded and replaces the stored destination.
type TrackQuery struct {
	AmbulanceID uint
	PatientName string
	Destination string
}

// TrackingView is the public tracking page model.
type TrackingView struct {
	AmbulanceID          uint         `json:"ambulance_id"`
	PatientName          string       `json:"patient_name"`
	Status               model.Status `json:"status"`
	Latitude             float64      `json:"latitude"`
	Longitude            float64      `json:"longitude"`
	Timestamp            time.Time    `json:"timestamp"`
	PickupLat            float64      `json:"pickup_lat"`
	PickupLng            float64      `json:"pickup_lng"`
	PickupAddress        string       `json:"pickup_address"`
	DestinationLat       float64      `json:"destination_lat"`
	DestinationLng       float64      `json:"destination_lng"`
	DestinationAddress   string       `json:"destination_address"`
	DistanceKm           float64      `json:"distance_km"`
	EstimatedTimeMinutes float64      `json:"estimated_time_minutes"`
	ArrivalTime          string       `json:"arrival_time"`
	HasArrived           bool         `json:"has_arrived"`
}

// Track builds the tracking view. Arrival is time based: request time plus the
// cruise-speed estimate from pickup to destination.
func (p *Pipeline) Track(ctx context.Context, q TrackQuery) (*TrackingView, error) {
	var (
		req *model.AmbulanceRequest
		err error
	)
	switch {
	case q.AmbulanceID != 0:
		req, err = p.store.GetRequest(ctx, q.AmbulanceID)
	case q.PatientName != "":
		req, err = p.store.FindByPatientName(ctx, q.PatientName)
	default:
		return nil, apperr.Validation("ambulance_id", "either an ambulance id or a patient name is required")
	}
	if err != nil {
		return nil, err
	}

	ping, err := p.store.LatestPing(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	var dstLat, dstLng float64
	if q.Destination != "" {
		dstLat, dstLng, err = p.geocoder.Geocode(ctx, q.Destination)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Validation("destination", "invalid destination address provided")
		}
		if err != nil {
			return nil, err
		}
	} else if req.HasDestination() {
		dstLat, dstLng = *req.DestinationLat, *req.DestinationLng
	} else {
		return nil, apperr.ErrInvalidLocationData
	}

	pickupLat, pickupLng := ping.Latitude, ping.Longitude
	if req.HasPickup() {
		pickupLat, pickupLng = *req.PickupLat, *req.PickupLng
	}

	d := geo.Distance(pickupLat, pickupLng, dstLat, dstLng)
	minutes := geo.ETAMinutes(d, p.machine.Options().CruiseSpeedKmh)
	arrival := req.RequestTime.UTC().Add(dispatch.Minutes(minutes))

	return &TrackingView{
		AmbulanceID:          req.ID,
		PatientName:          req.PatientName,
		Status:               req.Status,
		Latitude:             ping.Latitude,
		Longitude:            ping.Longitude,
		Timestamp:            ping.Timestamp.UTC(),
		PickupLat:            pickupLat,
		PickupLng:            pickupLng,
		PickupAddress:        p.geocoder.ReverseGeocode(ctx, pickupLat, pickupLng),
		DestinationLat:       dstLat,
		DestinationLng:       dstLng,
		DestinationAddress:   p.geocoder.ReverseGeocode(ctx, dstLat, dstLng),
		DistanceKm:           geo.Round2(d),
		EstimatedTimeMinutes: geo.Round2(minutes),
		ArrivalTime:          arrival.Format(model.ReportLayout),
		HasArrived:           !p.machine.Now().Before(arrival),
	}, nil
}
