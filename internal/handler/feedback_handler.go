package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"snapchart-proxy/internal/middleware"
	"snapchart-proxy/internal/model"
	"snapchart-proxy/pkg/apierror"
)

type feedbackStore interface {
	AppendFeedback(ctx context.Context, uid string, text string, now time.Time) error
}

type FeedbackHandler struct {
	store feedbackStore
	now   func() time.Time
}

func NewFeedbackHandler(store feedbackStore) *FeedbackHandler {
	return &FeedbackHandler{store: store, now: time.Now}
}

func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	uid, ok := middleware.UIDFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrSessionInvalid)
		return
	}

	var payload model.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New(apierror.CodeBadRequest, "Invalid JSON body", "", http.StatusBadRequest))
		return
	}

	payload.Text = strings.TrimSpace(payload.Text)
	if payload.Text == "" {
		writeError(w, apierror.New(apierror.CodeBadRequest, "Feedback text is required", "", http.StatusBadRequest))
		return
	}

	if err := h.store.AppendFeedback(r.Context(), uid, payload.Text, h.now().UTC()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true})
}
