package handlers

import (
	"net/http"

	"github.com/devsignal-systems/devsignal/internal/httputil"
	"github.com/devsignal-systems/devsignal/internal/repository"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	repo repository.Repository
}

func NewHealthHandler(repo repository.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Healthz handles GET /healthz.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz. Not ready until the store answers.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
