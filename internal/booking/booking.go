// Package booking turns a booking form into a persisted request.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/broadcast"
	"ambulance-dispatch-backend/internal/dispatch"
	"ambulance-dispatch-backend/internal/geo"
	"ambulance-dispatch-backend/internal/geocode"
	"ambulance-dispatch-backend/internal/metrics"
	"ambulance-dispatch-backend/internal/model"
	"ambulance-dispatch-backend/internal/parse"
	"ambulance-dispatch-backend/internal/resolver"
	"ambulance-dispatch-backend/internal/store"
)

// AmbulanceTypes lists the accepted ambulance categories.
var AmbulanceTypes = []string{"basic", "advanced", "neonatal", "patient_transport"}

// Input is the booking form. Pickup coordinates come either as numbers or as
// Location text in the "Latitude: x, Longitude: y" form.
type Input struct {
	Name          string   `json:"name"`
	Contact       string   `json:"contact"`
	PickupLat     *float64 `json:"pickup_lat"`
	PickupLng     *float64 `json:"pickup_lng"`
	Location      string   `json:"location"`
	Destination   string   `json:"destination"`
	AmbulanceType string   `json:"ambulance_type"`
	RadiusM       int      `json:"radius"`
}

// FacilityFinder is the part of the resolver booking needs.
type FacilityFinder interface {
	FindNearest(ctx context.Context, lat, lng float64, radiusM int) ([]resolver.Facility, error)
}

// Service books ambulances.
type Service struct {
	store    store.Store
	finder   FacilityFinder
	geocoder geocode.Geocoder
	machine  *dispatch.Machine
	pub      broadcast.Publisher
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

func NewService(s store.Store, f FacilityFinder, g geocode.Geocoder, m *dispatch.Machine, pub broadcast.Publisher, met *metrics.Metrics, log logrus.FieldLogger) *Service {
	return &Service{
		store:    s,
		finder:   f,
		geocoder: g,
		machine:  m,
		pub:      pub,
		metrics:  met,
		log:      log,
	}
}

// Book validates in, picks a destination, stores the request with its initial
// ping and announces it as Pending.
//
// Without destination text the nearest facility is used; no facility within the
// radius returns apperr.ErrNoFacility so the caller can ask for a destination.
func (s *Service) Book(ctx context.Context, in Input) (*model.AmbulanceRequest, error) {
	lat, lng, err := s.validate(&in)
	if err != nil {
		return nil, err
	}

	dest, dstLat, dstLng, err := s.destination(ctx, in, lat, lng)
	if err != nil {
		return nil, err
	}

	now := s.machine.Now()
	opts := s.machine.Options()
	minutes := geo.ETAMinutes(geo.Distance(lat, lng, dstLat, dstLng), opts.CruiseSpeedKmh)

	req := &model.AmbulanceRequest{
		PatientName:          in.Name,
		Contact:              in.Contact,
		PickupLocation:       s.geocoder.ReverseGeocode(ctx, lat, lng),
		PickupLat:            &lat,
		PickupLng:            &lng,
		Destination:          dest,
		DestinationLat:       &dstLat,
		DestinationLng:       &dstLng,
		AmbulanceType:        in.AmbulanceType,
		Status:               model.StatusPending,
		RequestTime:          now,
		EstimatedTimeMinutes: &minutes,
		EstimatedArrivalTime: model.TimestampPtr(now.Add(dispatch.Minutes(minutes))),
		StatusUpdatedAt:      now,
	}
	initial := &model.LocationPing{Latitude: lat, Longitude: lng, Timestamp: now}

	if err := s.store.CreateRequest(ctx, req, initial); err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(model.StatusPending), dispatch.SourceBooking)
	s.pub.Publish(broadcast.NewEvent(broadcast.TypeStatusUpdate, req.ID, broadcast.StatusUpdate{
		AmbulanceID: req.ID,
		Status:      string(req.Status),
	}))
	s.log.WithFields(logrus.Fields{
		"ambulance_id": req.ID,
		"destination":  dest,
		"eta_minutes":  geo.Round2(minutes),
	}).Info("ambulance booked")
	return req, nil
}

func (s *Service) validate(in *Input) (float64, float64, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Contact = strings.TrimSpace(in.Contact)
	in.Destination = strings.TrimSpace(in.Destination)
	in.AmbulanceType = strings.ToLower(strings.TrimSpace(in.AmbulanceType))

	if in.Name == "" {
		return 0, 0, apperr.Validation("name", "is required")
	}
	if in.Contact == "" {
		return 0, 0, apperr.Validation("contact", "is required")
	}
	if !validAmbulanceType(in.AmbulanceType) {
		return 0, 0, apperr.Validation("ambulance_type", "must be one of %s", strings.Join(AmbulanceTypes, ", "))
	}
	if in.RadiusM < 0 {
		return 0, 0, apperr.Validation("radius", "must not be negative")
	}

	if in.PickupLat != nil && in.PickupLng != nil {
		lat, lng := *in.PickupLat, *in.PickupLng
		if !geo.ValidCoordinate(lat, lng) {
			return 0, 0, apperr.Validation("location", "coordinates out of range (%v, %v)", lat, lng)
		}
		return lat, lng, nil
	}
	if in.Location == "" {
		return 0, 0, apperr.Validation("location", "pickup coordinates are required")
	}
	return parse.Coordinates(in.Location)
}

func (s *Service) destination(ctx context.Context, in Input, lat, lng float64) (string, float64, float64, error) {
	if in.Destination != "" {
		dstLat, dstLng, err := s.geocoder.Geocode(ctx, in.Destination)
		if errors.Is(err, apperr.ErrNotFound) {
			return "", 0, 0, apperr.Validation("destination", "unable to geocode %q", in.Destination)
		}
		if err != nil {
			return "", 0, 0, err
		}
		return in.Destination, dstLat, dstLng, nil
	}

	facilities, err := s.finder.FindNearest(ctx, lat, lng, in.RadiusM)
	if err != nil {
		return "", 0, 0, err
	}
	if len(facilities) == 0 {
		return "", 0, 0, apperr.ErrNoFacility
	}
	f := facilities[0]
	return fmt.Sprintf("%s (%.2f km away) - %s", f.Name, f.DistanceKm, f.Address), f.Lat, f.Lng, nil
}

func validAmbulanceType(t string) bool {
	for _, v := range AmbulanceTypes {
		if v == t {
			return true
		}
	}
	return false
}
