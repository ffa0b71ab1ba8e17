package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"snapchart-proxy/internal/model"
	"snapchart-proxy/pkg/apierror"
)

type identityProvider interface {
	SignIn(ctx context.Context, email string, password string) (string, error)
	SignUp(ctx context.Context, email string, password string) (string, error)
}

type tokenVerifier interface {
	Verify(ctx context.Context, raw string) (*model.TokenClaims, error)
}

type sessionMinter interface {
	Create(ctx context.Context, uid string) (string, error)
}

type userProvisioner interface {
	EnsureUser(ctx context.Context, uid string, email string) error
}

// AuthHandler serves the unauthenticated routes. Both flows end the same
// way: provider call, identity-token verification, user record provisioning,
// session mint.
type AuthHandler struct {
	provider identityProvider
	verifier tokenVerifier
	sessions sessionMinter
	users    userProvisioner
}

func NewAuthHandler(provider identityProvider, verifier tokenVerifier, sessions sessionMinter, users userProvisioner) *AuthHandler {
	return &AuthHandler{provider: provider, verifier: verifier, sessions: sessions, users: users}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, h.provider.SignIn)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, h.provider.SignUp)
}

func (h *AuthHandler) handleCredentials(w http.ResponseWriter, r *http.Request, grant func(context.Context, string, string) (string, error)) {
	defer r.Body.Close()

	var payload model.CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New(apierror.CodeBadRequest, "Invalid JSON body", "", http.StatusBadRequest))
		return
	}

	payload.Email = strings.TrimSpace(payload.Email)
	if payload.Email == "" || payload.Password == "" {
		writeError(w, apierror.New(apierror.CodeBadRequest, "Missing email or password", "", http.StatusBadRequest))
		return
	}

	idToken, err := grant(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	claims, err := h.verifier.Verify(r.Context(), idToken)
	if err != nil {
		writeError(w, err)
		return
	}

	email := claims.Email
	if email == "" {
		email = payload.Email
	}
	if err := h.users.EnsureUser(r.Context(), claims.UID, email); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.sessions.Create(r.Context(), claims.UID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.SessionResponse{SessionToken: token})
}
