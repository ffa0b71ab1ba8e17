package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"snapchart-proxy/internal/config"
	"snapchart-proxy/internal/handler"
	"snapchart-proxy/internal/middleware"
	"snapchart-proxy/internal/model"
	"snapchart-proxy/pkg/apierror"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Usage    *handler.UsageHandler
	Analyze  *handler.AnalyzeHandler
	Feedback *handler.FeedbackHandler
}

// New builds the gateway's route table. The API surface is POST-only JSON;
// unknown paths and wrong methods get the same JSON error shape as
// everything else.
func New(cfg *config.Config, sessionMiddleware *middleware.SessionMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/login", h.Auth.Login)
	r.Post("/signup", h.Auth.Signup)

	r.Group(func(protected chi.Router) {
		protected.Use(sessionMiddleware.RequireSession)
		protected.Post("/usage", h.Usage.Usage)
		protected.Post("/analyze", h.Analyze.Analyze)
		protected.Post("/feedback", h.Feedback.Submit)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeRouterError(w, http.StatusNotFound, apierror.CodeNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeRouterError(w, http.StatusMethodNotAllowed, apierror.CodeBadRequest, "Only POST allowed")
	})

	return r
}

func writeRouterError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: &apierror.APIError{Code: code, Message: message},
	})
}
