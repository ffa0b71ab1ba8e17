package model

import "snapchart-proxy/pkg/apierror"

type SessionResponse struct {
	SessionToken string `json:"sessionToken"`
}

type UsageResponse struct {
	AnalysesRemaining int   `json:"analysesRemaining"`
	WaitMs            int64 `json:"waitMs"`
}

type AnswerResponse struct {
	Answer string `json:"answer"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the body shape for every failed request. The extension
// keys off Error.Code; Error.Message is display text.
type ErrorResponse struct {
	Error *apierror.APIError `json:"error"`
}
