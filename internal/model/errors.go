package model

import "errors"

var (
	// Session related errors
	ErrSessionInvalid = errors.New("session invalid or expired")
	ErrSessionCorrupt = errors.New("session record corrupt")

	// Identity token errors, one per verification step
	ErrTokenInvalidFormat = errors.New("token format invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenWrongAudience = errors.New("token audience mismatch")
	ErrTokenWrongIssuer   = errors.New("token issuer mismatch")
	ErrTokenKeyNotFound   = errors.New("no key matches token key id")
	ErrTokenBadSignature  = errors.New("token signature invalid")

	// Quota related errors
	ErrQuotaExhausted = errors.New("analysis quota exhausted")

	// Store related errors
	ErrPreconditionFailed  = errors.New("store precondition failed")
	ErrConsumeRetriesSpent = errors.New("quota decrement kept conflicting")

	// Upstream completion errors
	ErrUpstreamFailure = errors.New("completion upstream failure")
	ErrEmptyAnswer     = errors.New("completion answer empty")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
