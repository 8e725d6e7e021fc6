package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/parse"
)

// storageAttempts is how often a handler runs a store-backed call that failed
// with a storage error.
const storageAttempts = 2

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
	Fallback string `json:"fallback,omitempty"`
}

// fallbackManualDestination tells the client to ask the user for a destination.
const fallbackManualDestination = "manual_destination"

func (h *Handler) fail(c *gin.Context, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, ErrorResponse) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_input", Message: ve.Error(), Field: ve.Field}
	case errors.Is(err, apperr.ErrInvalidTransition):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_transition", Message: err.Error()}
	case errors.Is(err, apperr.ErrUnknownAmbulance):
		return http.StatusNotFound, ErrorResponse{Error: "unknown_ambulance", Message: err.Error()}
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()}
	case errors.Is(err, apperr.ErrResolverUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error: "resolver_unavailable", Message: err.Error(), Fallback: fallbackManualDestination,
		}
	case errors.Is(err, apperr.ErrNoFacility):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error: "no_facility", Message: err.Error(), Fallback: fallbackManualDestination,
		}
	case errors.Is(err, apperr.ErrInvalidLocationData):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid_location_data", Message: err.Error()}
	case errors.Is(err, apperr.ErrStorage):
		return http.StatusInternalServerError, ErrorResponse{Error: "storage_error", Message: "the request could not be stored, retry later"}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"}
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
}

func retry(fn func() error) error {
	return apperr.Retry(storageAttempts, fn)
}

func (h *Handler) requestID(c *gin.Context) (uint, bool) {
	id, err := parse.ID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return 0, false
	}
	return id, true
}

var errMissingCoordinates = apperr.Validation("location", "latitude and longitude are required")

func errUnknownMessage(t string) error {
	return apperr.Validation("type", "unknown message type %q", t)
}
