package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

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

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("connecting to session store", "addr", cfg.RedisAddr)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach session store: %w", err)
	}

	sessions := session.NewStore(redisClient, cfg.SessionTTL)
	store := docstore.New(cfg.DocstoreBaseURL, cfg.ProjectID, cfg.ServiceAccountEmail, cfg.ServiceAccountKey, cfg.OAuthTokenURL)
	quotaEngine := quota.NewEngine(store, cfg.InitialQuota, cfg.ResetInterval)
	verifier := identity.NewVerifier(cfg.JWKSURL, cfg.TokenIssuer, cfg.ProjectID, nil)
	provider := identity.NewClient(cfg.IdentityBaseURL, cfg.IdentityAPIKey, nil)
	completions := broker.New(cfg.CompletionsURL, cfg.CompletionAPIKey, cfg.CompletionModel, cfg.SystemPrompt, cfg.CompletionTimeout)

	sessionMiddleware := middleware.NewSessionMiddleware(sessions)

	appRouter := router.New(cfg, sessionMiddleware, router.Handlers{
		Auth:     handler.NewAuthHandler(provider, verifier, sessions, quotaEngine),
		Usage:    handler.NewUsageHandler(quotaEngine),
		Analyze:  handler.NewAnalyzeHandler(quotaEngine, completions),
		Feedback: handler.NewFeedbackHandler(store),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      appRouter,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		cleanupFuncs: []func(){
			func() {
				_ = redisClient.Close()
			},
		},
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
