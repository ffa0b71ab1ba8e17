package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"snapchart-proxy/pkg/apierror"
)

// Client talks to the identity provider's password-grant REST endpoints.
// Credentials never touch any other component; the gateway only ever sees
// the resulting identity token.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL string, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

type credentialsPayload struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type tokenResponse struct {
	IDToken string `json:"idToken"`
	Email   string `json:"email"`
}

type providerError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn exchanges email+password for an identity token. Provider rejections
// surface with the provider's own message so the extension can display it.
func (c *Client) SignIn(ctx context.Context, email string, password string) (string, error) {
	return c.passwordGrant(ctx, "accounts:signInWithPassword", email, password, http.StatusUnauthorized)
}

// SignUp creates the account and returns a fresh identity token.
func (c *Client) SignUp(ctx context.Context, email string, password string) (string, error) {
	return c.passwordGrant(ctx, "accounts:signUp", email, password, http.StatusBadRequest)
}

func (c *Client) passwordGrant(ctx context.Context, endpoint string, email string, password string, failStatus int) (string, error) {
	body, err := json.Marshal(credentialsPayload{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1/%s?key=%s", c.baseURL, endpoint, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		message := "Invalid credentials"
		var parsed providerError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&parsed); decodeErr == nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}

		code := apierror.CodeUnauthorized
		if failStatus == http.StatusBadRequest {
			code = apierror.CodeBadRequest
		}
		return "", apierror.New(code, message, "", failStatus)
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode identity response: %w", err)
	}
	if parsed.IDToken == "" {
		return "", fmt.Errorf("identity response missing token")
	}

	return parsed.IDToken, nil
}
