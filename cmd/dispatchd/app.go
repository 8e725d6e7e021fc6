package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/config"
	"ambulance-dispatch-backend/internal/api"
	"ambulance-dispatch-backend/internal/booking"
	"ambulance-dispatch-backend/internal/broadcast"
	"ambulance-dispatch-backend/internal/db"
	"ambulance-dispatch-backend/internal/dispatch"
	"ambulance-dispatch-backend/internal/geocode"
	"ambulance-dispatch-backend/internal/logging"
	"ambulance-dispatch-backend/internal/metrics"
	"ambulance-dispatch-backend/internal/mw"
	"ambulance-dispatch-backend/internal/notification"
	"ambulance-dispatch-backend/internal/reconcile"
	"ambulance-dispatch-backend/internal/report"
	"ambulance-dispatch-backend/internal/resolver"
	"ambulance-dispatch-backend/internal/store"
	"ambulance-dispatch-backend/internal/tracking"
)

// app is the wired service graph.
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	store      store.Store
	hub        *broadcast.Hub
	reconciler *reconcile.Service
	relay      *notification.Relay
	limiter    *mw.IPRateLimiter
	router     *gin.Engine
}

func newApp(cfg *config.Config, log *logrus.Logger) (*app, error) {
	gormDB, err := db.Init(&cfg.Database, logging.Component(log, "db"))
	if err != nil {
		return nil, err
	}
	appStore := store.NewGormStore(gormDB)
	log.Info("data store initialized")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	hub := broadcast.NewHub(cfg.Broadcast.SubscriberBuffer, met, logging.Component(log, "broadcast"))
	machine := dispatch.NewMachine(appStore, hub, dispatch.OptionsFromConfig(cfg.Dispatch), met, logging.Component(log, "dispatch"))
	geocoder := geocode.NewClient(&cfg.Geocoder, logging.Component(log, "geocode"))
	finder := resolver.New(resolver.NewGooglePlaces(&cfg.Resolver), &cfg.Resolver, met, logging.Component(log, "resolver"))
	pipeline := tracking.NewPipeline(appStore, machine, hub, geocoder, met, logging.Component(log, "tracking"))

	a := &app{
		cfg:        cfg,
		log:        log,
		store:      appStore,
		hub:        hub,
		reconciler: reconcile.NewService(appStore, machine, cfg.Reconciler.Interval, met, logging.Component(log, "reconcile")),
		limiter:    api.NewRateLimiter(&cfg.Server),
	}

	webpushOptions := notification.WebPushOptions(&cfg.Push)
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		log.Warn("VAPID keys are not configured, web push notifications are disabled")
		webpushOptions = nil
	} else {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, met, logging.Component(log, "push"))
		a.relay = notification.NewRelay(hub, pool, logging.Component(log, "push"))
	}

	handler := api.NewHandler(api.Deps{
		Store:      appStore,
		Machine:    machine,
		Pipeline:   pipeline,
		Booking:    booking.NewService(appStore, finder, geocoder, machine, hub, met, logging.Component(log, "booking")),
		Facilities: finder,
		Reports:    report.NewBuilder(appStore),
		Hub:        hub,
		WebPush:    webpushOptions,
		Log:        logging.Component(log, "api"),
	})
	a.router = api.NewRouter(handler, &cfg.Server, a.limiter, reg)
	return a, nil
}

// start launches the background workers. They stop when ctx is cancelled.
func (a *app) start(ctx context.Context) {
	if a.cfg.Reconciler.Enabled {
		go a.reconciler.Run(ctx)
	} else {
		a.log.Info("reconciliation loop disabled")
	}
	if a.relay != nil {
		go a.relay.Run(ctx)
	}
	go a.forgetIdleClients(ctx)
}

func (a *app) forgetIdleClients(ctx context.Context) {
	ticker := time.NewTicker(limiterIdleAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Forget(limiterIdleAfter); n > 0 {
				a.log.WithField("clients", n).Debug("dropped idle rate limiters")
			}
		}
	}
}

// close ends live subscriptions and releases the database.
func (a *app) close() {
	a.hub.Close()
	if sqlDB, err := a.store.DB().DB(); err == nil {
		_ = sqlDB.Close()
	}
}
