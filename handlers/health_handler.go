package handlers

import (
	"net/http"

	"github.com/loomcast/script-gateway/services/providers"
	"github.com/loomcast/script-gateway/utils"
	"go.uber.org/zap"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	registry *providers.Registry
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(registry *providers.Registry, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		logger:   logger,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, map[string]string{"status": "ok"})
}

// Ready handles GET /ready, reporting which providers are usable
// routing candidates
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	configured := h.registry.CredentialedNames()

	status := "ok"
	code := http.StatusOK
	if len(configured) == 0 {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	_ = utils.WriteJSON(w, code, map[string]interface{}{
		"status":    status,
		"providers": configured,
	})
}
