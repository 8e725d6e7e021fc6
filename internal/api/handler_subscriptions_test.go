package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ambulance-dispatch-backend/internal/model"
)

func TestPutSubscriptionRejectsEmptyBody(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPut, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, w).Error)
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	req := f.seed(t, model.StatusStarted, true)
	endpoint := "https://push.example.com/send/abc"

	w := f.do(t, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint":            endpoint,
		"p256dh":              "key",
		"auth":                "secret",
		"subscribed_requests": []uint{req.ID, 999},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed_requests":[`+itoa(req.ID)+`]}`, w.Body.String())

	w = f.do(t, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRawQueryParam(t *testing.T) {
	v, ok := rawQueryParam("a=1&endpoint=https%3A%2F%2Fx&b=2", "endpoint")
	assert.True(t, ok)
	assert.Equal(t, "https%3A%2F%2Fx", v)

	_, ok = rawQueryParam("a=1", "endpoint")
	assert.False(t, ok)
}
