package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/internal/booking"
	"ambulance-dispatch-backend/internal/broadcast"
	"ambulance-dispatch-backend/internal/dispatch"
	"ambulance-dispatch-backend/internal/report"
	"ambulance-dispatch-backend/internal/store"
	"ambulance-dispatch-backend/internal/tracking"
)

// Deps are the services the handlers are built on.
type Deps struct {
	Store      store.Store
	Machine    *dispatch.Machine
	Pipeline   *tracking.Pipeline
	Booking    *booking.Service
	Facilities booking.FacilityFinder
	Reports    *report.Builder
	Hub        *broadcast.Hub
	WebPush    *webpush.Options
	Log        logrus.FieldLogger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	machine    *dispatch.Machine
	pipeline   *tracking.Pipeline
	booking    *booking.Service
	facilities booking.FacilityFinder
	reports    *report.Builder
	hub        *broadcast.Hub
	webpush    *webpush.Options
	log        logrus.FieldLogger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		store:      d.Store,
		machine:    d.Machine,
		pipeline:   d.Pipeline,
		booking:    d.Booking,
		facilities: d.Facilities,
		reports:    d.Reports,
		hub:        d.Hub,
		webpush:    d.WebPush,
		log:        log,
	}
}
