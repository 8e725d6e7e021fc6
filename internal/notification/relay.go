package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/internal/broadcast"
)

// Relay turns status_update events from the hub into push jobs.
type Relay struct {
	hub  *broadcast.Hub
	pool *WorkerPool
	log  logrus.FieldLogger
}

func NewRelay(hub *broadcast.Hub, pool *WorkerPool, log logrus.FieldLogger) *Relay {
	return &Relay{hub: hub, pool: pool, log: log}
}

// Run starts the pool and forwards events until ctx ends or the hub closes.
func (r *Relay) Run(ctx context.Context) {
	r.pool.Start(ctx)

	sub := r.hub.Subscribe(0, broadcast.TypeStatusUpdate)
	defer sub.Close()

	r.log.Info("Push relay started.")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Push relay shutting down.")
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			su, ok := e.Data.(broadcast.StatusUpdate)
			if !ok {
				continue
			}
			r.pool.Dispatch(ctx, Job{AmbulanceID: su.AmbulanceID, Status: su.Status})
		}
	}
}
