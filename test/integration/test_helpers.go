//go:build integration

package integration

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"snapchart-proxy/internal/broker"
	"snapchart-proxy/internal/config"
	"snapchart-proxy/internal/docstore"
	"snapchart-proxy/internal/handler"
	"snapchart-proxy/internal/identity"
	"snapchart-proxy/internal/middleware"
	"snapchart-proxy/internal/quota"
	"snapchart-proxy/internal/router"
	"snapchart-proxy/internal/session"
)

const (
	testProjectID = "test-project"
	testIssuer    = "https://issuer.test/" + testProjectID
	testKid       = "itest-key"
)

// identityStub plays the hosted identity provider: a password grant issuing
// real RS256 identity tokens plus the JWKS endpoint the verifier fetches.
type identityStub struct {
	key    *rsa.PrivateKey
	server *httptest.Server

	mu    sync.Mutex
	users map[string]string
}

func newIdentityStub(t *testing.T) *identityStub {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	stub := &identityStub{key: key, users: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/accounts:signInWithPassword", stub.signIn)
	mux.HandleFunc("/v1/accounts:signUp", stub.signUp)
	mux.HandleFunc("/jwks", stub.serveKeys)

	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *identityStub) register(email string, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = password
}

func (s *identityStub) signIn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	s.mu.Lock()
	stored, ok := s.users[payload.Email]
	s.mu.Unlock()
	if !ok || stored != payload.Password {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"INVALID_PASSWORD"}}`))
		return
	}

	s.issueToken(w, payload.Email)
}

func (s *identityStub) signUp(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	s.mu.Lock()
	_, exists := s.users[payload.Email]
	if !exists {
		s.users[payload.Email] = payload.Password
	}
	s.mu.Unlock()
	if exists {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"EMAIL_EXISTS"}}`))
		return
	}

	s.issueToken(w, payload.Email)
}

func (s *identityStub) issueToken(w http.ResponseWriter, email string) {
	uid := "uid-" + strings.SplitN(email, "@", 2)[0]
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":     uid,
		"user_id": uid,
		"email":   email,
		"aud":     testProjectID,
		"iss":     testIssuer,
		"exp":     time.Now().Add(time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	})
	token.Header["kid"] = testKid

	signed, err := token.SignedString(s.key)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"idToken": signed, "email": email})
}

func (s *identityStub) serveKeys(w http.ResponseWriter, _ *http.Request) {
	n := base64.RawURLEncoding.EncodeToString(s.key.PublicKey.N.Bytes())
	_ = json.NewEncoder(w).Encode(map[string]any{
		"keys": []map[string]string{
			{"kty": "RSA", "alg": "RS256", "use": "sig", "kid": testKid, "n": n, "e": "AQAB"},
		},
	})
}

// docstoreStub is an in-memory stand-in for the remote document store. It
// keeps per-document revisions so conditional patches conflict the same way
// the real store does.
type docstoreStub struct {
	server *httptest.Server

	mu   sync.Mutex
	docs map[string]map[string]any // "collection/id" -> fields
	revs map[string]int
}

func newDocstoreStub(t *testing.T) *docstoreStub {
	t.Helper()

	stub := &docstoreStub{
		docs: map[string]map[string]any{},
		revs: map[string]int{},
	}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.handle))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *docstoreStub) handle(w http.ResponseWriter, r *http.Request) {
	prefix := "/projects/" + testProjectID + "/databases/(default)/documents/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	if rest == r.URL.Path {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		fields, ok := s.docs[rest]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":       prefix + rest,
			"fields":     fields,
			"updateTime": strconv.Itoa(s.revs[rest]),
		})

	case http.MethodPost:
		key := rest + "/" + r.URL.Query().Get("documentId")
		var doc struct {
			Fields map[string]any `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&doc)
		s.docs[key] = doc.Fields
		s.revs[key]++
		_, _ = w.Write([]byte(`{}`))

	case http.MethodPatch:
		fields, ok := s.docs[rest]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if want := r.URL.Query().Get("currentDocument.updateTime"); want != "" && want != strconv.Itoa(s.revs[rest]) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		var doc struct {
			Fields map[string]any `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&doc)
		for name, value := range doc.Fields {
			fields[name] = value
		}
		s.revs[rest]++
		_, _ = w.Write([]byte(`{}`))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *docstoreStub) feedbackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key := range s.docs {
		if strings.HasPrefix(key, "feedback/") {
			count++
		}
	}
	return count
}

type gatewayFixture struct {
	server   *httptest.Server
	identity *identityStub
	docs     *docstoreStub
	redis    *miniredis.Miniredis
}

// newGateway wires the full stack against stub upstreams: miniredis for
// sessions, the identity stub for tokens, the docstore stub for quota state,
// and a canned completions server answering every turn with the given text.
func newGateway(t *testing.T, initialQuota int, resetInterval time.Duration, answer string) *gatewayFixture {
	t.Helper()

	idStub := newIdentityStub(t)
	docStub := newDocstoreStub(t)

	completions := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": answer}}},
		})
	}))
	t.Cleanup(completions.Close)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	sessions := session.NewStore(redisClient, 24*time.Hour)
	store := docstore.NewWithClient(docStub.server.URL, testProjectID, nil)
	quotaEngine := quota.NewEngine(store, initialQuota, resetInterval)
	verifier := identity.NewVerifier(idStub.server.URL+"/jwks", testIssuer, testProjectID, nil)
	provider := identity.NewClient(idStub.server.URL, "test-api-key", nil)
	completionBroker := broker.New(completions.URL, "sk-test", "gpt-4.1", "You are a trading assistant.", 10*time.Second)

	cfg := &config.Config{
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     10000,
		AuthRateLimitRPM: 10000,
	}

	server := httptest.NewServer(router.New(cfg, middleware.NewSessionMiddleware(sessions), router.Handlers{
		Auth:     handler.NewAuthHandler(provider, verifier, sessions, quotaEngine),
		Usage:    handler.NewUsageHandler(quotaEngine),
		Analyze:  handler.NewAnalyzeHandler(quotaEngine, completionBroker),
		Feedback: handler.NewFeedbackHandler(store),
	}))
	t.Cleanup(server.Close)

	return &gatewayFixture{server: server, identity: idStub, docs: docStub, redis: mr}
}

func postJSON(t *testing.T, url string, sessionToken string, payload any) (*http.Response, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw := new(bytes.Buffer)
	_, err = raw.ReadFrom(resp.Body)
	require.NoError(t, err)

	return resp, raw.Bytes()
}

func login(t *testing.T, fx *gatewayFixture, email string, password string) string {
	t.Helper()

	resp, body := postJSON(t, fx.server.URL+"/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var parsed struct {
		SessionToken string `json:"sessionToken"`
	}
	require.NoError(t, json.Unmarshal(body, &parsed))
	require.NotEmpty(t, parsed.SessionToken)
	return parsed.SessionToken
}

func usage(t *testing.T, fx *gatewayFixture, sessionToken string) (int, int64) {
	t.Helper()

	resp, body := postJSON(t, fx.server.URL+"/usage", sessionToken, map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var parsed struct {
		AnalysesRemaining int   `json:"analysesRemaining"`
		WaitMs            int64 `json:"waitMs"`
	}
	require.NoError(t, json.Unmarshal(body, &parsed))
	return parsed.AnalysesRemaining, parsed.WaitMs
}
