// Package notification sends web push messages when a request changes status.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/config"
	"ambulance-dispatch-backend/internal/metrics"
	"ambulance-dispatch-backend/internal/model"
	"ambulance-dispatch-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job asks the pool to notify the followers of one request.
type Job struct {
	AmbulanceID uint
	Status      string
}

// Payload is the JSON body delivered to the service worker.
type Payload struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	AmbulanceID uint   `json:"ambulance_id"`
	Status      string `json:"status"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// WebPushOptions builds the VAPID options from config.
func WebPushOptions(cfg *config.PushConfig) *webpush.Options {
	return &webpush.Options{
		VAPIDPublicKey:  cfg.PublicKey,
		VAPIDPrivateKey: cfg.PrivateKey,
		Subscriber:      cfg.Subject,
		TTL:             cfg.TTL,
	}
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options, m *metrics.Metrics, log logrus.FieldLogger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		metrics: m,
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.WithField("worker", id)
	log.Debug("worker started")
	for {
		select {
		case job := <-wp.jobs:
			wp.sendNotificationsForRequest(ctx, job)
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		}
	}
}

// Dispatch queues a job. It blocks while the queue is full unless ctx ends first.
func (wp *WorkerPool) Dispatch(ctx context.Context, job Job) bool {
	select {
	case wp.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

func (wp *WorkerPool) sendNotificationsForRequest(ctx context.Context, job Job) {
	entry := wp.log.WithField("ambulance_id", job.AmbulanceID)

	subscriptions, err := wp.store.SubscriptionsForRequest(ctx, job.AmbulanceID)
	if err != nil {
		entry.WithError(err).Error("could not load subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := fmt.Sprintf("#%d", job.AmbulanceID)
	if req, err := wp.store.GetRequest(ctx, job.AmbulanceID); err != nil {
		entry.WithError(err).Warn("could not load request for notification")
	} else if req.PatientName != "" {
		label = fmt.Sprintf("#%d (%s)", job.AmbulanceID, req.PatientName)
	}

	payload, err := json.Marshal(Payload{
		Title:       "Ambulance update",
		Body:        fmt.Sprintf("Ambulance %s is now %s", label, job.Status),
		AmbulanceID: job.AmbulanceID,
		Status:      job.Status,
	})
	if err != nil {
		entry.WithError(err).Error("could not encode notification")
		return
	}

	entry.WithField("subscriptions", len(subscriptions)).Debug("sending notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.metrics.ObservePush("error")
		wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Warn("error sending notification")
		return
	}
	defer resp.Body.Close()

	// Expired subscriptions are removed.
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		wp.metrics.ObservePush("expired")
		wp.log.WithField("endpoint", sub.Endpoint).Info("subscription expired, deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Error("failed to delete expired subscription")
		}
		return
	}
	if resp.StatusCode >= http.StatusBadRequest {
		wp.metrics.ObservePush("rejected")
		return
	}
	wp.metrics.ObservePush("sent")
}
