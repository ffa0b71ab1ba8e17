//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQuotaLifecycle(t *testing.T) {
	fx := newGateway(t, 3, 100*time.Millisecond, "hello")
	fx.identity.register("trader@example.com", "hunter2")

	token := login(t, fx, "trader@example.com", "hunter2")

	remaining, waitMs := usage(t, fx, token)
	require.Equal(t, 3, remaining)
	require.Zero(t, waitMs)

	// Each successful completion costs exactly one unit.
	resp, body := postJSON(t, fx.server.URL+"/analyze", token, map[string]string{"action": "ask", "text": "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var answer struct {
		Answer string `json:"answer"`
	}
	require.NoError(t, json.Unmarshal(body, &answer))
	require.Equal(t, "hello", answer.Answer)

	remaining, _ = usage(t, fx, token)
	require.Equal(t, 2, remaining)

	for i := 0; i < 2; i++ {
		resp, body = postJSON(t, fx.server.URL+"/analyze", token, map[string]string{"action": "ask", "text": "hi"})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	}

	// Depleted: the gateway answers 403 without touching the upstream.
	resp, body = postJSON(t, fx.server.URL+"/analyze", token, map[string]string{"action": "ask", "text": "hi"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Contains(t, string(body), "QUOTA_EXHAUSTED")

	remaining, waitMs = usage(t, fx, token)
	require.Zero(t, remaining)
	require.Positive(t, waitMs)

	// Once the reset window elapses the allowance refills in full.
	time.Sleep(150 * time.Millisecond)
	remaining, waitMs = usage(t, fx, token)
	require.Equal(t, 3, remaining)
	require.Zero(t, waitMs)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	fx := newGateway(t, 3, time.Hour, "hello")
	fx.identity.register("trader@example.com", "hunter2")

	resp, body := postJSON(t, fx.server.URL+"/login", "", map[string]string{
		"email":    "trader@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, string(body), "INVALID_PASSWORD")
}

func TestSignupProvisionsAFreshQuota(t *testing.T) {
	fx := newGateway(t, 5, time.Hour, "hello")

	resp, body := postJSON(t, fx.server.URL+"/signup", "", map[string]string{
		"email":    "new@example.com",
		"password": "hunter2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var parsed struct {
		SessionToken string `json:"sessionToken"`
	}
	require.NoError(t, json.Unmarshal(body, &parsed))

	remaining, _ := usage(t, fx, parsed.SessionToken)
	require.Equal(t, 5, remaining)

	// The same address cannot sign up twice.
	resp, body = postJSON(t, fx.server.URL+"/signup", "", map[string]string{
		"email":    "new@example.com",
		"password": "hunter2",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), "EMAIL_EXISTS")
}

func TestProtectedRoutesNeedALiveSession(t *testing.T) {
	fx := newGateway(t, 3, time.Hour, "hello")
	fx.identity.register("trader@example.com", "hunter2")

	resp, body := postJSON(t, fx.server.URL+"/usage", "", map[string]string{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, string(body), "SESSION_EXPIRED")

	resp, body = postJSON(t, fx.server.URL+"/usage", "never-issued", map[string]string{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, string(body), "SESSION_EXPIRED")

	// A real session dies once its TTL elapses in the store.
	token := login(t, fx, "trader@example.com", "hunter2")
	fx.redis.FastForward(25 * time.Hour)

	resp, body = postJSON(t, fx.server.URL+"/usage", token, map[string]string{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, string(body), "SESSION_EXPIRED")
}

func TestFeedbackIsPersisted(t *testing.T) {
	fx := newGateway(t, 3, time.Hour, "hello")
	fx.identity.register("trader@example.com", "hunter2")
	token := login(t, fx, "trader@example.com", "hunter2")

	resp, body := postJSON(t, fx.server.URL+"/feedback", token, map[string]string{"text": "love it"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Contains(t, string(body), `"success":true`)
	require.Equal(t, 1, fx.docs.feedbackCount())

	// Feedback never costs quota.
	remaining, _ := usage(t, fx, token)
	require.Equal(t, 3, remaining)
}

func TestRoutingSurface(t *testing.T) {
	fx := newGateway(t, 3, time.Hour, "hello")

	resp, err := http.Get(fx.server.URL + "/health")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(fx.server.URL + "/usage")
	require.NoError(t, err)
	t.Cleanup(func() { _ = getResp.Body.Close() })
	require.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)

	unknown, unknownBody := postJSON(t, fx.server.URL+"/nope", "", map[string]string{})
	require.Equal(t, http.StatusNotFound, unknown.StatusCode)
	require.Contains(t, string(unknownBody), "NOT_FOUND")
}
