package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"snapchart-proxy/internal/model"
)

const (
	maxTokens     = 1500
	temperature   = 0.2
	analyzePrompt = "Please analyze this trading chart."
)

// Broker shapes completion requests and extracts the answer text. It is the
// only component with a bounded call: the HTTP client carries a timeout so a
// stuck upstream cannot hold a request open forever.
type Broker struct {
	url          string
	apiKey       string
	model        string
	systemPrompt string
	httpClient   *http.Client
}

func New(url string, apiKey string, modelID string, systemPrompt string, timeout time.Duration) *Broker {
	return &Broker{
		url:          url,
		apiKey:       apiKey,
		model:        modelID,
		systemPrompt: systemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete runs one analyze or ask turn. Conversation state is entirely
// caller-supplied; history beyond model.MaxHistoryTurns is trimmed
// oldest-first before the request is built.
func (b *Broker) Complete(ctx context.Context, req model.AnalyzeRequest) (string, error) {
	messages := []message{{Role: "system", Content: b.systemPrompt}}

	history := req.History
	if len(history) > model.MaxHistoryTurns {
		history = history[len(history)-model.MaxHistoryTurns:]
	}
	for _, turn := range history {
		role := turn.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, message{Role: role, Content: turn.Text})
	}

	switch req.Action {
	case model.ActionAnalyze:
		messages = append(messages, message{Role: "user", Content: []contentPart{
			{Type: "text", Text: analyzePrompt},
			{Type: "image_url", ImageURL: &imageRef{URL: req.DataURL, Detail: "high"}},
		}})
	case model.ActionAsk:
		messages = append(messages, message{Role: "user", Content: []contentPart{
			{Type: "text", Text: req.Text},
		}})
	default:
		return "", fmt.Errorf("%w: unsupported action %q", model.ErrInvalidInput, req.Action)
	}

	body, err := json.Marshal(completionRequest{
		Model:       b.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d: %s", model.ErrUpstreamFailure, resp.StatusCode, string(detail))
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrUpstreamFailure, err)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", model.ErrEmptyAnswer
	}

	return parsed.Choices[0].Message.Content, nil
}
