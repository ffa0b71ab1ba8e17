package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"snapchart-proxy/internal/docstore"
	"snapchart-proxy/internal/model"
	"snapchart-proxy/pkg/apierror"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError converts any failure into the gateway's error vocabulary. Every
// external-dependency error lands here; nothing below this layer retries.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &apierror.APIError{
		Code:    apierror.CodeInternal,
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	var storeErr *docstore.StoreError

	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	case errors.Is(err, model.ErrSessionInvalid), errors.Is(err, model.ErrSessionCorrupt):
		status = http.StatusUnauthorized
		body.Code = apierror.CodeSessionExpired
		body.Message = "Session expired, please log in again"
	case errors.Is(err, model.ErrTokenInvalidFormat),
		errors.Is(err, model.ErrTokenExpired),
		errors.Is(err, model.ErrTokenWrongAudience),
		errors.Is(err, model.ErrTokenWrongIssuer),
		errors.Is(err, model.ErrTokenKeyNotFound),
		errors.Is(err, model.ErrTokenBadSignature):
		status = http.StatusUnauthorized
		body.Code = apierror.CodeUnauthorized
		body.Message = "Invalid ID token"
	case errors.Is(err, model.ErrQuotaExhausted):
		status = http.StatusForbidden
		body.Code = apierror.CodeQuotaExhausted
		body.Message = "Analysis limit reached, please wait for the next reset"
	case errors.Is(err, model.ErrUpstreamFailure), errors.Is(err, model.ErrEmptyAnswer):
		status = http.StatusBadGateway
		body.Code = apierror.CodeUpstreamError
		body.Message = "Analysis service unavailable"
	case errors.Is(err, model.ErrConsumeRetriesSpent):
		status = http.StatusInternalServerError
		body.Code = apierror.CodeStoreError
		body.Message = "Usage update kept conflicting, please retry"
	case errors.As(err, &storeErr):
		status = http.StatusInternalServerError
		body.Code = apierror.CodeStoreError
		body.Message = "User record store failure"
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = apierror.CodeBadRequest
		body.Message = "Invalid request body"
	default:
		// Log unclassified errors so they are visible in container logs.
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	writeJSON(w, status, model.ErrorResponse{Error: body})
}
