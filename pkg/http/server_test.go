package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHandler struct{}

type testRequest struct {
	ID    string `param:"id" validate:"required"`
	Range string `query:"range" default:"today" validate:"oneof=today week1"`
}

func (testHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/panic", func(echo.Context) error { panic("boom") })
	e.GET("/items/:id", func(c echo.Context) error {
		var req testRequest
		if errs := ReadAndValidateRequest(c, &req); errs != nil {
			return BadRequestResponse(c, errs)
		}
		return SuccessResponse(c, req)
	})
	e.POST("/items/:id", func(c echo.Context) error {
		var req testRequest
		if errs := ReadAndValidateRequest(c, &req); errs != nil {
			return BadRequestResponse(c, errs)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("nothing here"))
	})
}

func newTestServer() *Server {
	reg := prometheus.NewRegistry()
	return NewServer([]Handler{testHandler{}}, WithMetrics("/metrics", reg, reg))
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestServerRecoversPanics(t *testing.T) {
	rec := serve(newTestServer(), http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReadAndValidateRequest(t *testing.T) {
	s := newTestServer()

	rec := serve(s, http.MethodGet, "/items/abc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Range":"today"`)

	rec = serve(s, http.MethodPost, "/items/abc?range=week1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Range":"week1"`)

	rec = serve(s, http.MethodGet, "/items/abc?range=decade")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"range"`)
	assert.Contains(t, rec.Body.String(), "ERR_ONEOF")
}

func TestAppErrorResponseUsesStatus(t *testing.T) {
	rec := serve(newTestServer(), http.MethodGet, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
}

func TestServerExposesMetricsAndHealth(t *testing.T) {
	s := newTestServer()
	serve(s, http.MethodGet, "/missing")

	rec := serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chartsync_http_requests_total")

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/healthz").Code)
}

func TestReadinessReportsFailingChecks(t *testing.T) {
	ok := NewServer(nil, WithMetrics("", nil, nil),
		WithReadiness("store", func(context.Context) error { return nil }))
	assert.Equal(t, http.StatusOK, serve(ok, http.MethodGet, "/readyz").Code)

	down := NewServer(nil, WithMetrics("", nil, nil),
		WithReadiness("store", func(context.Context) error { return errors.New("disk full") }))
	rec := serve(down, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk full")
	assert.Contains(t, rec.Body.String(), "ERR_UNAVAILABLE")
}
