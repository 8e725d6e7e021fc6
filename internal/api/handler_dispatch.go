package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/booking"
	"ambulance-dispatch-backend/internal/model"
	"ambulance-dispatch-backend/internal/parse"
	"ambulance-dispatch-backend/internal/resolver"
	"ambulance-dispatch-backend/internal/tracking"
)

// CreateBooking handles POST /api/bookings.
func (h *Handler) CreateBooking(c *gin.Context) {
	var in booking.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	req, err := h.booking.Book(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// GetFacilities handles GET /api/facilities?lat=&lng=&radius=.
func (h *Handler) GetFacilities(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		h.fail(c, apperr.Validation("lat", "a number is required"))
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		h.fail(c, apperr.Validation("lng", "a number is required"))
		return
	}
	radius := 0
	if raw := c.Query("radius"); raw != "" {
		if radius, err = strconv.Atoi(raw); err != nil || radius < 0 {
			h.fail(c, apperr.Validation("radius", "a non-negative integer is required"))
			return
		}
	}

	facilities, err := h.facilities.FindNearest(c.Request.Context(), lat, lng, radius)
	if err != nil {
		h.fail(c, err)
		return
	}
	if facilities == nil {
		facilities = []resolver.Facility{}
	}
	c.JSON(http.StatusOK, gin.H{"facilities": facilities})
}

type locationRequest struct {
	AmbulanceID uint     `json:"ambulance_id" binding:"required"`
	Latitude    *float64 `json:"latitude" binding:"required"`
	Longitude   *float64 `json:"longitude" binding:"required"`
}

// PostLocation handles POST /api/locations.
func (h *Handler) PostLocation(c *gin.Context) {
	var body locationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	// Ingest retries its own storage steps; retrying it whole would store the ping twice.
	res, err := h.pipeline.Ingest(c.Request.Context(), body.AmbulanceID, *body.Latitude, *body.Longitude)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DashboardResponse groups live requests by status.
type DashboardResponse struct {
	Counts   map[model.Status]int                      `json:"counts"`
	Requests map[model.Status][]model.AmbulanceRequest `json:"requests"`
}

// GetDashboard handles GET /api/dashboard.
func (h *Handler) GetDashboard(c *gin.Context) {
	var reqs []model.AmbulanceRequest
	err := retry(func() error {
		var err error
		reqs, err = h.store.ListAll(c.Request.Context())
		return err
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := DashboardResponse{
		Counts:   make(map[model.Status]int, len(model.Statuses)),
		Requests: make(map[model.Status][]model.AmbulanceRequest, len(model.Statuses)),
	}
	for _, s := range model.Statuses {
		resp.Counts[s] = 0
		resp.Requests[s] = []model.AmbulanceRequest{}
	}
	for _, r := range reqs {
		resp.Counts[r.Status]++
		resp.Requests[r.Status] = append(resp.Requests[r.Status], r)
	}
	c.JSON(http.StatusOK, resp)
}

// GetTracking handles GET /api/tracking?ambulance_id=|patient_name=&destination=.
func (h *Handler) GetTracking(c *gin.Context) {
	q := tracking.TrackQuery{
		PatientName: c.Query("patient_name"),
		Destination: c.Query("destination"),
	}
	if raw := c.Query("ambulance_id"); raw != "" {
		id, err := parse.ID(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		q.AmbulanceID = id
	}
	view, err := h.pipeline.Track(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
