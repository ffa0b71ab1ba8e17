package handler

import (
	"net/http"

	"snapchart-proxy/internal/middleware"
	"snapchart-proxy/internal/model"
)

type UsageHandler struct {
	quota quotaEngine
}

func NewUsageHandler(quotaEngine quotaEngine) *UsageHandler {
	return &UsageHandler{quota: quotaEngine}
}

// Usage reports the caller's current allowance, refilling it first when the
// reset window has elapsed.
func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UIDFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrSessionInvalid)
		return
	}

	usage, err := h.quota.Check(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.UsageResponse{
		AnalysesRemaining: usage.Remaining,
		WaitMs:            usage.WaitMs,
	})
}
