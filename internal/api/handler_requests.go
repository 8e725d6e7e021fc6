package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/dispatch"
	"ambulance-dispatch-backend/internal/model"
	"ambulance-dispatch-backend/internal/tracking"
)

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// StatusResponse reports the outcome of a status update.
type StatusResponse struct {
	Request  *model.AmbulanceRequest `json:"request"`
	Previous model.Status            `json:"previous_status"`
	Changed  bool                    `json:"changed"`
	Warning  string                  `json:"warning,omitempty"`
}

// UpdateStatus handles POST /api/requests/:id/status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var body statusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	status, err := model.ParseStatus(body.Status)
	if err != nil {
		h.fail(c, err)
		return
	}

	var res *dispatch.Result
	err = retry(func() error {
		var err error
		res, err = h.machine.Apply(c.Request.Context(), id, status)
		return err
	})
	switch {
	case errors.Is(err, apperr.ErrInvalidLocationData) && res != nil:
		c.JSON(http.StatusOK, StatusResponse{
			Request:  res.Request,
			Previous: res.Previous,
			Changed:  res.Changed,
			Warning:  "status updated but the ETA could not be computed: " + err.Error(),
		})
	case err != nil:
		h.fail(c, err)
	default:
		c.JSON(http.StatusOK, StatusResponse{Request: res.Request, Previous: res.Previous, Changed: res.Changed})
	}
}

// ListRequests handles GET /api/requests. status filters by lifecycle state,
// search matches patient name or contact.
func (h *Handler) ListRequests(c *gin.Context) {
	ctx := c.Request.Context()
	var reqs []model.AmbulanceRequest
	var err error
	if raw := c.Query("status"); raw != "" {
		status, perr := model.ParseStatus(raw)
		if perr != nil {
			h.fail(c, perr)
			return
		}
		err = retry(func() error {
			reqs, err = h.store.ListByStatus(ctx, status)
			return err
		})
	} else {
		q := c.Query("search")
		err = retry(func() error {
			reqs, err = h.store.Search(ctx, q)
			return err
		})
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if reqs == nil {
		reqs = []model.AmbulanceRequest{}
	}
	c.JSON(http.StatusOK, reqs)
}

// GetRequest handles GET /api/requests/:id.
func (h *Handler) GetRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var req *model.AmbulanceRequest
	err := retry(func() error {
		var err error
		req, err = h.store.GetRequest(c.Request.Context(), id)
		return err
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// DeleteRequest handles DELETE /api/requests/:id. The request is tombstoned and
// its history kept.
func (h *Handler) DeleteRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteRequest(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.log.WithField("ambulance_id", id).Info("request deleted")
	c.Status(http.StatusNoContent)
}

// GetLocation handles GET /api/requests/:id/location.
func (h *Handler) GetLocation(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var view *tracking.LocationView
	err := retry(func() error {
		var err error
		view, err = h.pipeline.LatestLocation(c.Request.Context(), id)
		return err
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetSpeed handles GET /api/requests/:id/speed.
func (h *Handler) GetSpeed(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	speeds, err := h.pipeline.Speeds(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, speeds)
}

// GetETA handles GET /api/requests/:id/eta.
func (h *Handler) GetETA(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	view, err := h.pipeline.LiveETA(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetArrival handles GET /api/requests/:id/arrival.
func (h *Handler) GetArrival(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	check, err := h.machine.CheckArrivalOnTime(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

// GetReport handles GET /api/requests/:id/report.
func (h *Handler) GetReport(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	rec, err := h.reports.Build(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
