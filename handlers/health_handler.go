package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/release-engineering/greenwave-sub000/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the readiness check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthChecker reports readiness of a named group of dependencies
type HealthChecker func(ctx context.Context) map[string]error

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	checkers []HealthChecker
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(logger *zap.Logger, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		logger:   logger,
	}
}

// HandleHealth handles GET /api/v1/healthcheck. It only tells the service
// is running.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Health check OK"))
}

// HandleReadiness handles GET /api/v1/readiness
// Readiness check - validates that the stores and the cache are reachable
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	for _, check := range h.checkers {
		for name, err := range check(ctx) {
			if err != nil {
				h.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
				checks[name] = "unhealthy"
				allHealthy = false
				continue
			}
			checks[name] = "healthy"
		}
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
