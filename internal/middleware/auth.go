package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"snapchart-proxy/internal/model"
	"snapchart-proxy/pkg/apierror"
)

type sessionVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type contextKey string

const uidContextKey contextKey = "session_uid"

// SessionMiddleware resolves the bearer session token to a uid before any
// authenticated handler runs. A missing or dead session always answers with
// the SESSION_EXPIRED code so the extension knows to re-login.
type SessionMiddleware struct {
	sessions sessionVerifier
}

func NewSessionMiddleware(sessions sessionVerifier) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeSessionExpired(w)
			return
		}

		token := strings.TrimSpace(header[7:])
		uid, err := m.sessions.Verify(r.Context(), token)
		if err != nil {
			if errors.Is(err, model.ErrSessionInvalid) || errors.Is(err, model.ErrSessionCorrupt) {
				writeSessionExpired(w)
				return
			}
			writeAuthError(w, http.StatusInternalServerError, apierror.CodeStoreError, "Session store failure")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUID(r.Context(), uid)))
	})
}

// ContextWithUID attaches a resolved uid the same way RequireSession does.
func ContextWithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, uidContextKey, uid)
}

func UIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(uidContextKey).(string)
	return uid, ok && uid != ""
}

func writeSessionExpired(w http.ResponseWriter) {
	writeAuthError(w, http.StatusUnauthorized, apierror.CodeSessionExpired, "Session expired, please log in again")
}

func writeAuthError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: &apierror.APIError{Code: code, Message: message},
	})
}
