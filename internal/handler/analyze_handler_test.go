package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"snapchart-proxy/internal/middleware"
	"snapchart-proxy/internal/model"
	"snapchart-proxy/internal/quota"
	"snapchart-proxy/pkg/apierror"
)

type fakeQuotaEngine struct {
	usage      quota.Usage
	checkErr   error
	consumeErr error
	consumed   int
}

func (f *fakeQuotaEngine) Check(_ context.Context, _ string) (quota.Usage, error) {
	return f.usage, f.checkErr
}

func (f *fakeQuotaEngine) ConsumeOne(_ context.Context, _ string) (int, error) {
	if f.consumeErr != nil {
		return 0, f.consumeErr
	}
	f.consumed++
	f.usage.Remaining--
	return f.usage.Remaining, nil
}

type fakeBroker struct {
	answer string
	err    error
	calls  int
	last   model.AnalyzeRequest
}

func (f *fakeBroker) Complete(_ context.Context, req model.AnalyzeRequest) (string, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func analyzeRequest(t *testing.T, uid string, body string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
	if uid != "" {
		req = req.WithContext(middleware.ContextWithUID(req.Context(), uid))
	}
	return req
}

func TestAnalyzeHandler_Analyze(t *testing.T) {
	t.Run("brokers an ask turn and consumes one unit", func(t *testing.T) {
		engine := &fakeQuotaEngine{usage: quota.Usage{Remaining: 5}}
		broker := &fakeBroker{answer: "hello"}
		h := NewAnalyzeHandler(engine, broker)

		rec := httptest.NewRecorder()
		h.Analyze(rec, analyzeRequest(t, "uid-123", `{"action":"ask","text":"hi"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		var body model.AnswerResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "hello", body.Answer)
		require.Equal(t, 1, engine.consumed)
	})

	t.Run("exhausted quota never reaches the broker", func(t *testing.T) {
		engine := &fakeQuotaEngine{usage: quota.Usage{Remaining: 0, WaitMs: 1000}}
		broker := &fakeBroker{answer: "hello"}
		h := NewAnalyzeHandler(engine, broker)

		rec := httptest.NewRecorder()
		h.Analyze(rec, analyzeRequest(t, "uid-123", `{"action":"ask","text":"hi"}`))

		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, apierror.CodeQuotaExhausted, decodeError(t, rec).Code)
		require.Zero(t, broker.calls)
	})

	t.Run("a failed completion costs nothing", func(t *testing.T) {
		engine := &fakeQuotaEngine{usage: quota.Usage{Remaining: 5}}
		broker := &fakeBroker{err: model.ErrUpstreamFailure}
		h := NewAnalyzeHandler(engine, broker)

		rec := httptest.NewRecorder()
		h.Analyze(rec, analyzeRequest(t, "uid-123", `{"action":"ask","text":"hi"}`))

		require.Equal(t, http.StatusBadGateway, rec.Code)
		require.Equal(t, apierror.CodeUpstreamError, decodeError(t, rec).Code)
		require.Zero(t, engine.consumed)
	})

	t.Run("losing the decrement race is still a 403", func(t *testing.T) {
		engine := &fakeQuotaEngine{usage: quota.Usage{Remaining: 1}, consumeErr: model.ErrQuotaExhausted}
		broker := &fakeBroker{answer: "hello"}
		h := NewAnalyzeHandler(engine, broker)

		rec := httptest.NewRecorder()
		h.Analyze(rec, analyzeRequest(t, "uid-123", `{"action":"ask","text":"hi"}`))

		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, 1, broker.calls)
	})

	t.Run("analyze requires a dataUrl", func(t *testing.T) {
		engine := &fakeQuotaEngine{usage: quota.Usage{Remaining: 5}}
		broker := &fakeBroker{}
		h := NewAnalyzeHandler(engine, broker)

		rec := httptest.NewRecorder()
		h.Analyze(rec, analyzeRequest(t, "uid-123", `{"action":"analyze"}`))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Zero(t, broker.calls)
	})

	t.Run("ask requires non-blank text", func(t *testing.T) {
		engine := &fakeQuotaEngine{usage: quota.Usage{Remaining: 5}}
		h := NewAnalyzeHandler(engine, &fakeBroker{})

		rec := httptest.NewRecorder()
		h.Analyze(rec, analyzeRequest(t, "uid-123", `{"action":"ask","text":"   "}`))

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown actions are rejected up front", func(t *testing.T) {
		engine := &fakeQuotaEngine{usage: quota.Usage{Remaining: 5}}
		broker := &fakeBroker{}
		h := NewAnalyzeHandler(engine, broker)

		rec := httptest.NewRecorder()
		h.Analyze(rec, analyzeRequest(t, "uid-123", `{"action":"summarize"}`))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Zero(t, broker.calls)
	})

	t.Run("oversized history is trimmed before the broker sees it", func(t *testing.T) {
		engine := &fakeQuotaEngine{usage: quota.Usage{Remaining: 5}}
		broker := &fakeBroker{answer: "ok"}
		h := NewAnalyzeHandler(engine, broker)

		turns := make([]model.HistoryTurn, model.MaxHistoryTurns+4)
		for i := range turns {
			turns[i] = model.HistoryTurn{Role: "user", Text: "turn"}
		}
		payload, err := json.Marshal(model.AnalyzeRequest{Action: model.ActionAsk, Text: "hi", History: turns})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		h.Analyze(rec, analyzeRequest(t, "uid-123", string(payload)))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, broker.last.History, model.MaxHistoryTurns)
	})

	t.Run("missing uid in context is treated as a dead session", func(t *testing.T) {
		engine := &fakeQuotaEngine{usage: quota.Usage{Remaining: 5}}
		h := NewAnalyzeHandler(engine, &fakeBroker{})

		rec := httptest.NewRecorder()
		h.Analyze(rec, analyzeRequest(t, "", `{"action":"ask","text":"hi"}`))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, apierror.CodeSessionExpired, decodeError(t, rec).Code)
	})
}
