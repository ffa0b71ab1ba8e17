package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2/jwt"

	"snapchart-proxy/internal/model"
)

const datastoreScope = "https://www.googleapis.com/auth/datastore"

// StoreError is any non-success, non-404 answer from the backing store.
// Callers never retry it; the request fails as a 500.
type StoreError struct {
	Status int
	Body   string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("document store error %d: %s", e.Status, e.Body)
}

// Client is a thin adapter over the document store's REST API. Documents are
// addressed by collection/id; writes use explicit field masks so unspecified
// fields stay untouched.
type Client struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
}

// New builds a client authenticating via the service account's JWT bearer
// grant. The oauth2 transport handles token fetch and refresh.
func New(baseURL string, projectID string, serviceAccountEmail string, privateKeyPEM string, tokenURL string) *Client {
	conf := &jwt.Config{
		Email:      serviceAccountEmail,
		PrivateKey: []byte(privateKeyPEM),
		Scopes:     []string{datastoreScope},
		TokenURL:   tokenURL,
	}

	return &Client{
		baseURL:    baseURL,
		projectID:  projectID,
		httpClient: conf.Client(context.Background()),
	}
}

// NewWithClient wires an explicit HTTP client, used by tests to point at a
// stub store without the token exchange.
func NewWithClient(baseURL string, projectID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{baseURL: baseURL, projectID: projectID, httpClient: httpClient}
}

type document struct {
	Name       string           `json:"name,omitempty"`
	Fields     map[string]Value `json:"fields"`
	UpdateTime string           `json:"updateTime,omitempty"`
}

func (c *Client) documentsURL() string {
	return fmt.Sprintf("%s/projects/%s/databases/(default)/documents", c.baseURL, c.projectID)
}

// getDocument fetches collection/id. ok is false on 404.
func (c *Client) getDocument(ctx context.Context, collection string, id string) (*document, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.documentsURL()+"/"+collection+"/"+id, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("document store unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, readStoreError(resp)
	}

	var doc document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("decode document: %w", err)
	}

	return &doc, true, nil
}

// createDocument creates collection/id with the given fields.
func (c *Client) createDocument(ctx context.Context, collection string, id string, fields map[string]Value) error {
	body, err := json.Marshal(document{Fields: fields})
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/%s?documentId=%s", c.documentsURL(), collection, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("document store unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readStoreError(resp)
	}

	return nil
}

// patchDocument applies only the named fields. An empty updateTime means an
// unconditional patch; otherwise the write succeeds only if the document has
// not changed since that revision. A 404 falls back to create, so patching a
// never-seen document materializes it.
func (c *Client) patchDocument(ctx context.Context, collection string, id string, fields map[string]Value, updateTime string) error {
	body, err := json.Marshal(document{Fields: fields})
	if err != nil {
		return err
	}

	query := url.Values{}
	for name := range fields {
		query.Add("updateMask.fieldPaths", name)
	}
	if updateTime != "" {
		query.Set("currentDocument.updateTime", updateTime)
	}

	u := fmt.Sprintf("%s/%s/%s?%s", c.documentsURL(), collection, id, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("document store unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return c.createDocument(ctx, collection, id, fields)
	case http.StatusConflict, http.StatusPreconditionFailed:
		return model.ErrPreconditionFailed
	default:
		storeErr := readStoreError(resp)
		// Firestore reports a currentDocument.updateTime mismatch as a 400
		// with status FAILED_PRECONDITION, not as 409/412.
		if storeErr.failedPrecondition() {
			return model.ErrPreconditionFailed
		}
		return storeErr
	}
}

func readStoreError(resp *http.Response) *StoreError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StoreError{Status: resp.StatusCode, Body: string(body)}
}

func (e *StoreError) failedPrecondition() bool {
	var parsed struct {
		Error struct {
			Status string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &parsed); err != nil {
		return false
	}

	return parsed.Error.Status == "FAILED_PRECONDITION"
}
