package model

import "time"

// UserRecord is the durable per-user profile kept in the document store.
// LastReset is the zero time until the first quota refill; AnalysesRemaining
// never goes negative through a successful update.
type UserRecord struct {
	Email             string    `json:"email,omitempty"`
	AnalysesRemaining int       `json:"analysesRemaining"`
	LastReset         time.Time `json:"lastReset"`
}

// TokenClaims is the decoded payload of a verified identity token.
type TokenClaims struct {
	UID   string `json:"user_id"`
	Email string `json:"email,omitempty"`
}

// Session binds an opaque bearer token to a user id. Immutable once issued;
// it disappears when the store TTL lapses.
type Session struct {
	UID string `json:"uid"`
}
