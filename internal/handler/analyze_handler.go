package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"snapchart-proxy/internal/middleware"
	"snapchart-proxy/internal/model"
	"snapchart-proxy/internal/quota"
	"snapchart-proxy/pkg/apierror"
)

type quotaEngine interface {
	Check(ctx context.Context, uid string) (quota.Usage, error)
	ConsumeOne(ctx context.Context, uid string) (int, error)
}

type completionBroker interface {
	Complete(ctx context.Context, req model.AnalyzeRequest) (string, error)
}

type AnalyzeHandler struct {
	quota  quotaEngine
	broker completionBroker
}

func NewAnalyzeHandler(quotaEngine quotaEngine, broker completionBroker) *AnalyzeHandler {
	return &AnalyzeHandler{quota: quotaEngine, broker: broker}
}

// Analyze brokers one completion call. Quota is taken only after the
// upstream answered: a failed completion never costs the user a unit, and
// the pre-flight gate keeps exhausted users away from the upstream entirely.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	uid, ok := middleware.UIDFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrSessionInvalid)
		return
	}

	var payload model.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New(apierror.CodeBadRequest, "Invalid JSON body", "", http.StatusBadRequest))
		return
	}

	if err := validateAnalyzeRequest(&payload); err != nil {
		writeError(w, err)
		return
	}

	usage, err := h.quota.Check(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	if usage.Remaining <= 0 {
		writeError(w, model.ErrQuotaExhausted)
		return
	}

	answer, err := h.broker.Complete(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	// Decrement after success. The conditional update is the authoritative
	// gate; losing the race here still returns 403 without a second
	// completion call.
	if _, err := h.quota.ConsumeOne(r.Context(), uid); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.AnswerResponse{Answer: answer})
}

func validateAnalyzeRequest(payload *model.AnalyzeRequest) error {
	payload.Text = strings.TrimSpace(payload.Text)

	switch payload.Action {
	case model.ActionAnalyze:
		if payload.DataURL == "" {
			return apierror.New(apierror.CodeBadRequest, "Missing dataUrl for analyze action", "", http.StatusBadRequest)
		}
	case model.ActionAsk:
		if payload.Text == "" {
			return apierror.New(apierror.CodeBadRequest, "Missing text for ask action", "", http.StatusBadRequest)
		}
	default:
		return apierror.New(apierror.CodeBadRequest, "Unsupported action", payload.Action, http.StatusBadRequest)
	}

	if len(payload.History) > model.MaxHistoryTurns {
		payload.History = payload.History[len(payload.History)-model.MaxHistoryTurns:]
	}

	return nil
}
