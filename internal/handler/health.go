package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"dashboard-gateway/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// BreakerReporter exposes the upstream circuit breaker state.
type BreakerReporter interface {
	BreakerState() string
}

// StatusResponse is the body of the gateway status endpoint.
type StatusResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	BackendURL string `json:"backend_url"`
	Routes     int    `json:"routes"`
	Breaker    string `json:"circuit_breaker"`
}

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	breaker BreakerReporter
	routes  int
}

// NewHealthHandler creates a HealthHandler. breaker may be nil.
func NewHealthHandler(cfg *config.Config, v Version, breaker BreakerReporter) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, breaker: breaker}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns gateway status information.
func (h *HealthHandler) Status(c echo.Context) error {
	state := "disabled"
	if h.breaker != nil {
		state = h.breaker.BreakerState()
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Status:     "ok",
		Version:    string(h.version),
		BackendURL: h.cfg.Upstream.RedactedBaseURL(),
		Routes:     h.routes,
		Breaker:    state,
	})
}

