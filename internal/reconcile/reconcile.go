// Package reconcile promotes requests whose estimated completion time has passed.
package reconcile

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/internal/dispatch"
	"ambulance-dispatch-backend/internal/metrics"
	"ambulance-dispatch-backend/internal/model"
	"ambulance-dispatch-backend/internal/store"
)

// Summary counts what one pass did.
type Summary struct {
	Scanned  int
	Promoted int
	Skipped  int
	Failed   int
}

// Service runs the reconciliation loop.
type Service struct {
	store    store.Store
	machine  *dispatch.Machine
	interval time.Duration
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

func NewService(s store.Store, m *dispatch.Machine, interval time.Duration, met *metrics.Metrics, log logrus.FieldLogger) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		store:    s,
		machine:  m,
		interval: interval,
		metrics:  met,
		log:      log,
	}
}

// Run reconciles once immediately and then on every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.log.WithField("interval", s.interval).Info("Starting reconciliation loop...")

	s.ReconcileOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Reconciliation loop shutting down.")
			return
		case <-timer.C:
			s.ReconcileOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// ReconcileOnce scans requests in Patient Received and promotes those whose
// completion deadline is not in the future. Row failures never stop the scan.
func (s *Service) ReconcileOnce(ctx context.Context) Summary {
	var sum Summary

	requests, err := s.store.ListByStatus(ctx, model.StatusPatientReceived)
	if err != nil {
		s.log.WithError(err).Error("could not list in-flight requests")
		s.metrics.ObserveReconcile("list_failed", 1)
		return sum
	}
	now := s.machine.Now()

	for i := range requests {
		if ctx.Err() != nil {
			break
		}
		req := &requests[i]
		sum.Scanned++
		entry := s.log.WithField("ambulance_id", req.ID)

		deadline, ok, err := req.CompletionDeadline()
		if err != nil {
			entry.WithError(err).Warn("skipping request with malformed estimated_completion_time")
			sum.Skipped++
			continue
		}
		if !ok {
			entry.Debug("skipping request without estimated_completion_time")
			sum.Skipped++
			continue
		}
		if now.Before(deadline) {
			continue
		}

		res, err := s.machine.PromoteIf(ctx, req.ID, model.StatusPatientReached, dispatch.SourceReconcile, stillDue)
		if err != nil {
			entry.WithError(err).Error("could not promote request")
			sum.Failed++
			continue
		}
		if res.Changed {
			sum.Promoted++
		}
	}

	s.metrics.ObserveReconcile("scanned", sum.Scanned)
	s.metrics.ObserveReconcile("promoted", sum.Promoted)
	s.metrics.ObserveReconcile("skipped", sum.Skipped)
	s.metrics.ObserveReconcile("failed", sum.Failed)
	s.log.WithFields(logrus.Fields{
		"scanned":  sum.Scanned,
		"promoted": sum.Promoted,
		"skipped":  sum.Skipped,
		"failed":   sum.Failed,
	}).Info("Reconciliation pass finished.")
	return sum
}

// stillDue re-checks the locked row, since the listing may be stale by the time
// the promotion runs.
func stillDue(req *model.AmbulanceRequest, now time.Time) bool {
	if req.Status != model.StatusPatientReceived {
		return false
	}
	deadline, ok, err := req.CompletionDeadline()
	if err != nil || !ok {
		return false
	}
	return !now.Before(deadline)
}
