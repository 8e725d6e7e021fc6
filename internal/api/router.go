package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"ambulance-dispatch-backend/config"
	"ambulance-dispatch-backend/internal/mw"
)

// NewRateLimiter builds the per-IP limiter used by the /api group.
func NewRateLimiter(cfg *config.ServerConfig) *mw.IPRateLimiter {
	return mw.NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
}

// NewRouter creates and configures a new Gin router. A nil limiter is built from
// cfg; a nil gatherer serves the default Prometheus registry.
func NewRouter(h *Handler, cfg *config.ServerConfig, limiter *mw.IPRateLimiter, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(mw.RequestLogger(h.log), gin.Recovery())

	if limiter == nil {
		limiter = NewRateLimiter(cfg)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	caching := mw.Cache(mw.NewCacheStore(cfg.CacheTTL), cfg.CacheTTL)

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/ws", h.ServeWS)

	api := r.Group("/api")
	api.Use(mw.RateLimiter(limiter))
	{
		api.POST("/bookings", h.CreateBooking)
		api.GET("/facilities", caching, h.GetFacilities)
		api.POST("/locations", h.PostLocation)

		api.GET("/requests", h.ListRequests)
		api.GET("/requests/:id", h.GetRequest)
		api.DELETE("/requests/:id", h.DeleteRequest)
		api.POST("/requests/:id/status", h.UpdateStatus)
		api.GET("/requests/:id/location", h.GetLocation)
		api.GET("/requests/:id/speed", h.GetSpeed)
		api.GET("/requests/:id/eta", h.GetETA)
		api.GET("/requests/:id/arrival", h.GetArrival)
		api.GET("/requests/:id/report", h.GetReport)

		api.GET("/dashboard", h.GetDashboard)
		api.GET("/tracking", h.GetTracking)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
