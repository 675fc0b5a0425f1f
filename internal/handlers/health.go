package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gamefolio/backend/internal/logging"
)

const readinessTimeout = 2 * time.Second

// HealthHandler responds with service health information.
type HealthHandler struct {
	Checks map[string]ReadinessCheck
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live implements GET /healthz.
func (HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(r.Context(), w, http.StatusOK, statusResponse{Status: "ok"})
}

// Ready implements GET /readyz. Every check runs concurrently and any failure
// marks the service unavailable.
func (h HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var g errgroup.Group
	for i, name := range names {
		check := h.Checks[name]
		g.Go(func() error {
			if err := check(ctx); err != nil {
				logging.FromContext(ctx).Warn("readiness check failed", "check", name, "error", err)
				results[i] = "unavailable"
				return err
			}
			results[i] = "ok"
			return nil
		})
	}
	err := g.Wait()

	resp := readinessResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	for i, name := range names {
		resp.Checks[name] = results[i]
	}
	status := http.StatusOK
	if err != nil {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	respondJSON(r.Context(), w, status, resp)
}
