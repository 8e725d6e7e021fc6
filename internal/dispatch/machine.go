// Package dispatch owns the request state machine and the fields derived on each transition.
package dispatch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/config"
	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/broadcast"
	"ambulance-dispatch-backend/internal/geo"
	"ambulance-dispatch-backend/internal/metrics"
	"ambulance-dispatch-backend/internal/model"
	"ambulance-dispatch-backend/internal/store"
)

// Writers recorded on transition metrics.
const (
	SourceAPI       = "api"
	SourceIngest    = "ingest"
	SourceReconcile = "reconcile"
	SourceBooking   = "booking"
)

// Options tunes the machine.
type Options struct {
	Strict           bool
	CruiseSpeedKmh   float64
	LiveArrivalKm    float64
	ConfirmArrivalKm float64
}

// DefaultOptions is strict mode with the reference speed and thresholds.
func DefaultOptions() Options {
	return Options{
		Strict:           true,
		CruiseSpeedKmh:   geo.DefaultCruiseSpeedKmh,
		LiveArrivalKm:    geo.LiveArrivalThresholdKm,
		ConfirmArrivalKm: geo.ConfirmArrivalThresholdKm,
	}
}

// OptionsFromConfig reads the dispatch section; zero values keep the defaults.
func OptionsFromConfig(cfg config.DispatchConfig) Options {
	opts := DefaultOptions()
	opts.Strict = cfg.Strict()
	if cfg.CruiseSpeedKmh > 0 {
		opts.CruiseSpeedKmh = cfg.CruiseSpeedKmh
	}
	if cfg.LiveArrivalKm > 0 {
		opts.LiveArrivalKm = cfg.LiveArrivalKm
	}
	if cfg.ConfirmArrivalKm > 0 {
		opts.ConfirmArrivalKm = cfg.ConfirmArrivalKm
	}
	return opts
}

// Threshold selects one of the two arrival radii.
type Threshold int

const (
	// LiveThreshold is used while tracking live pings.
	LiveThreshold Threshold = iota
	// ConfirmThreshold is used when confirming arrival against a deadline.
	ConfirmThreshold
)

// Result describes the outcome of a transition attempt.
type Result struct {
	Request  *model.AmbulanceRequest
	Previous model.Status
	Changed  bool
}

// Machine applies status transitions through the store's atomic Mutate.
type Machine struct {
	store   store.Store
	pub     broadcast.Publisher
	opts    Options
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewMachine(s store.Store, pub broadcast.Publisher, opts Options, m *metrics.Metrics, log logrus.FieldLogger) *Machine {
	return &Machine{
		store:   s,
		pub:     pub,
		opts:    opts,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Now is the machine's clock, in UTC.
func (m *Machine) Now() time.Time {
	return m.now().UTC()
}

// Options returns the settings the machine runs with.
func (m *Machine) Options() Options {
	return m.opts
}

// Apply is a user-requested transition. It honours strict mode.
//
// Entering Patient Received without pickup or destination coordinates still
// applies the status, marks the ETA unavailable and returns the result together
// with apperr.ErrInvalidLocationData.
func (m *Machine) Apply(ctx context.Context, id uint, status model.Status) (*Result, error) {
	if !status.Valid() {
		return nil, apperr.Validation("status", "unknown status %q", status)
	}

	now := m.Now()
	var prev model.Status
	etaMissing := false
	req, err := m.store.Mutate(ctx, id, func(req *model.AmbulanceRequest) error {
		prev = req.Status
		if req.Status == status {
			return store.ErrNoChange
		}
		if err := CanTransition(req.Status, status, m.opts.Strict); err != nil {
			return err
		}
		etaMissing = !m.enter(req, status, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Request: req, Previous: prev, Changed: prev != req.Status}
	if res.Changed {
		m.announce(req, prev, SourceAPI)
	}
	if etaMissing {
		m.log.WithField("ambulance_id", id).Warn("status applied without ETA: request has no pickup or destination coordinates")
		return res, apperr.ErrInvalidLocationData
	}
	return res, nil
}

// Promote is a system-driven transition used by live ingestion and the
// reconciliation loop. It ignores strict mode, never overwrites Rejected and is a
// no-op when the request already has status.
func (m *Machine) Promote(ctx context.Context, id uint, status model.Status, source string) (*Result, error) {
	return m.PromoteIf(ctx, id, status, source, nil)
}

// Guard decides, against the locked row and the transition time, whether a
// promotion still applies.
type Guard func(req *model.AmbulanceRequest, now time.Time) bool

// PromoteIf is Promote with an extra precondition evaluated inside the row lock.
// A nil guard always passes. When the guard fails the row is left untouched and
// the result reports no change.
func (m *Machine) PromoteIf(ctx context.Context, id uint, status model.Status, source string, guard Guard) (*Result, error) {
	now := m.Now()
	var prev model.Status
	req, err := m.store.Mutate(ctx, id, func(req *model.AmbulanceRequest) error {
		prev = req.Status
		if req.Status == status || req.Status == model.StatusRejected {
			return store.ErrNoChange
		}
		if guard != nil && !guard(req, now) {
			return store.ErrNoChange
		}
		m.enter(req, status, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Request: req, Previous: prev, Changed: prev != req.Status}
	if res.Changed {
		m.announce(req, prev, source)
	}
	return res, nil
}

// enter sets status and its derived fields. It returns false when an ETA was
// due but could not be computed.
func (m *Machine) enter(req *model.AmbulanceRequest, status model.Status, now time.Time) bool {
	req.Status = status
	req.StatusUpdatedAt = now

	switch status {
	case model.StatusPatientReceived:
		if !req.HasPickup() || !req.HasDestination() {
			req.EtaUnavailable = true
			req.EstimatedCompletionTime = nil
			return false
		}
		d := geo.Distance(*req.PickupLat, *req.PickupLng, *req.DestinationLat, *req.DestinationLng)
		eta := geo.ETAMinutes(d, m.opts.CruiseSpeedKmh)
		req.EstimatedTimeMinutes = &eta
		req.EstimatedCompletionTime = model.TimestampPtr(now.Add(Minutes(eta)))
		req.EtaUnavailable = false
	case model.StatusPatientReached:
		req.Arrived = true
	}
	return true
}

func (m *Machine) announce(req *model.AmbulanceRequest, prev model.Status, source string) {
	m.metrics.ObserveTransition(string(req.Status), source)
	m.log.WithFields(logrus.Fields{
		"ambulance_id": req.ID,
		"from":         prev,
		"to":           req.Status,
		"source":       source,
	}).Info("status changed")
	m.pub.Publish(broadcast.NewEvent(broadcast.TypeStatusUpdate, req.ID, broadcast.StatusUpdate{
		AmbulanceID: req.ID,
		Status:      string(req.Status),
	}))
}

// HasArrived compares the distance to the destination against the selected radius.
func (m *Machine) HasArrived(curLat, curLng, dstLat, dstLng float64, t Threshold) bool {
	return geo.HasArrived(curLat, curLng, dstLat, dstLng, m.ThresholdKm(t))
}

// ThresholdKm returns the radius behind t.
func (m *Machine) ThresholdKm(t Threshold) float64 {
	if t == ConfirmThreshold {
		return m.opts.ConfirmArrivalKm
	}
	return m.opts.LiveArrivalKm
}

// Minutes converts fractional minutes to a Duration.
func Minutes(v float64) time.Duration {
	return time.Duration(v * float64(time.Minute))
}
