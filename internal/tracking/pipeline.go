// Package tracking ingests live positions and serves the read paths built on them.
package tracking

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/broadcast"
	"ambulance-dispatch-backend/internal/dispatch"
	"ambulance-dispatch-backend/internal/geo"
	"ambulance-dispatch-backend/internal/geocode"
	"ambulance-dispatch-backend/internal/metrics"
	"ambulance-dispatch-backend/internal/model"
	"ambulance-dispatch-backend/internal/store"
)

// IngestResult is what a single position report produced.
type IngestResult struct {
	AmbulanceID   uint         `json:"ambulance_id"`
	Latitude      float64      `json:"latitude"`
	Longitude     float64      `json:"longitude"`
	DistanceKm    float64      `json:"distance_km"`
	ETAMinutes    float64      `json:"eta_minutes"`
	Status        model.Status `json:"status"`
	Arrived       bool         `json:"arrived"`
	StatusChanged bool         `json:"status_changed"`
}

// storageAttempts bounds the retries of each storage step of Ingest.
const storageAttempts = 2

// Pipeline handles position reports.
type Pipeline struct {
	store    store.Store
	machine  *dispatch.Machine
	pub      broadcast.Publisher
	geocoder geocode.Geocoder
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

func NewPipeline(s store.Store, m *dispatch.Machine, pub broadcast.Publisher, g geocode.Geocoder, met *metrics.Metrics, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		store:    s,
		machine:  m,
		pub:      pub,
		geocoder: g,
		metrics:  met,
		log:      log,
	}
}

// Ingest records a position for ambulanceID. A position within the live arrival
// radius of the destination promotes the request to Patient Reached before the
// location update is broadcast.
func (p *Pipeline) Ingest(ctx context.Context, ambulanceID uint, lat, lng float64) (*IngestResult, error) {
	if !geo.ValidCoordinate(lat, lng) {
		return nil, apperr.Validation("location", "invalid coordinates (%v, %v)", lat, lng)
	}

	// The ping is stored once. Each step retries on its own so a failed
	// promotion never appends the same position again.
	var req *model.AmbulanceRequest
	err := apperr.Retry(storageAttempts, func() error {
		var err error
		req, err = p.store.GetRequest(ctx, ambulanceID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.ErrUnknownAmbulance
			}
			return err
		}
		return p.store.AppendPing(ctx, &model.LocationPing{
			AmbulanceID: ambulanceID,
			Latitude:    lat,
			Longitude:   lng,
			Timestamp:   p.machine.Now(),
			Status:      req.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	if !req.HasPickup() {
		p.backfillPickup(ctx, ambulanceID, lat, lng)
	}

	result := &IngestResult{
		AmbulanceID: ambulanceID,
		Latitude:    lat,
		Longitude:   lng,
		Status:      req.Status,
		Arrived:     req.Arrived,
	}

	if req.HasDestination() {
		opts := p.machine.Options()
		d := geo.Distance(lat, lng, *req.DestinationLat, *req.DestinationLng)
		result.DistanceKm = geo.Round2(d)
		result.ETAMinutes = geo.Round2(geo.ETAMinutes(d, opts.CruiseSpeedKmh))

		if d <= p.machine.ThresholdKm(dispatch.LiveThreshold) {
			var res *dispatch.Result
			err := apperr.Retry(storageAttempts, func() error {
				var err error
				res, err = p.machine.Promote(ctx, ambulanceID, model.StatusPatientReached, dispatch.SourceIngest)
				return err
			})
			if err != nil {
				return nil, err
			}
			result.Status = res.Request.Status
			result.Arrived = res.Request.Arrived
			result.StatusChanged = res.Changed
		}
	}

	p.pub.Publish(broadcast.NewEvent(broadcast.TypeLocationUpdate, ambulanceID, broadcast.LocationUpdate{
		AmbulanceID: ambulanceID,
		Latitude:    lat,
		Longitude:   lng,
		DistanceKm:  result.DistanceKm,
		ETAMinutes:  result.ETAMinutes,
	}))
	p.metrics.ObservePing()

	p.log.WithFields(logrus.Fields{
		"ambulance_id": ambulanceID,
		"lat":          lat,
		"lng":          lng,
		"status":       result.Status,
	}).Debug("location ingested")
	return result, nil
}

// backfillPickup stores the first reported position as the pickup point.
// Failures are logged; the ping itself is already stored.
func (p *Pipeline) backfillPickup(ctx context.Context, id uint, lat, lng float64) {
	_, err := p.store.Mutate(ctx, id, func(req *model.AmbulanceRequest) error {
		if req.HasPickup() {
			return store.ErrNoChange
		}
		req.PickupLat = &lat
		req.PickupLng = &lng
		return nil
	})
	if err != nil {
		p.log.WithError(err).WithField("ambulance_id", id).Warn("could not backfill pickup coordinates")
	}
}
