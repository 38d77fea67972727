package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/amul-dhungel/Deepwork/api"
	"github.com/amul-dhungel/Deepwork/llm"
	"github.com/amul-dhungel/Deepwork/session"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// serviceName appears in the health body so deployments can tell backends
// apart.
const serviceName = "Deepwork AI Backend"

// HealthHandler serves liveness and the per-provider status report.
type HealthHandler struct {
	prober   *llm.Prober
	sessions *session.Store
	logger   *zap.Logger

	// probes collapses concurrent status requests into one fan-out; the
	// frontend polls this endpoint and vendor probes are expensive.
	probes singleflight.Group
}

// NewHealthHandler creates the handler.
func NewHealthHandler(prober *llm.Prober, sessions *session.Store, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		prober:   prober,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleHealth answers GET /api/health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.HealthResponse{
		Status:         "ok",
		Service:        serviceName,
		ActiveSessions: h.sessions.Count(),
	})
}

// HandleModelsStatus answers GET /api/models/status with one entry per
// provider: {"gemini": "ok", "openai": "missing_key", ...}.
func (h *HealthHandler) HandleModelsStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	v, err, shared := h.probes.Do("status", func() (any, error) {
		// Coalesced callers share this probe, so it must not die with the
		// first caller's request context.
		return h.prober.ProbeAll(context.WithoutCancel(r.Context())), nil
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	results := v.(map[string]llm.ProbeResult)
	statuses := make(map[string]string, len(results))
	for name, result := range results {
		statuses[name] = string(result.Status)
	}

	h.logger.Debug("models status probed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("shared", shared),
		zap.Int("providers", len(statuses)))
	WriteJSON(w, http.StatusOK, statuses)
}
