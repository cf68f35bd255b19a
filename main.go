package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acmdf/vrctv/internal/config"
	"github.com/acmdf/vrctv/internal/httpapi"
	"github.com/acmdf/vrctv/internal/middleware"
	"github.com/acmdf/vrctv/internal/orchestrator"
	"github.com/acmdf/vrctv/internal/registry"
	"github.com/acmdf/vrctv/internal/rewards"
	"github.com/acmdf/vrctv/internal/streamlabs"
	"github.com/acmdf/vrctv/internal/tokenstore"
	"github.com/acmdf/vrctv/internal/twitch"
)

// requestTimeout bounds every HTTP route except the WebSocket upgrade,
// which runs for the life of the connection.
const requestTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	appConfig := config.MustLoad()
	if lvl, ok := parseLogLevel(appConfig.LogLevel); ok {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
		slog.SetDefault(logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := tokenstore.Open(ctx, appConfig.DatabasePath)
	if err != nil {
		logger.Error("failed to open token store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	twitchOAuth := twitch.NewOAuthClient(
		appConfig.TwitchClientID,
		appConfig.TwitchClientSecret,
		appConfig.TwitchRedirectURL,
		appConfig.TwitchScopes,
		logger,
	)
	streamlabsOAuth := streamlabs.NewOAuthClient(
		appConfig.StreamlabsClientID,
		appConfig.StreamlabsClientSecret,
		appConfig.StreamlabsRedirectURL,
		appConfig.StreamlabsScopes,
		logger,
	)

	reg := registry.New(logger)
	reconciler := rewards.New(logger)
	limiters := orchestrator.NewAdmissionLimiters()

	orch := orchestrator.New(
		reg,
		store,
		twitchOAuth,
		streamlabsOAuth,
		reconciler,
		limiters,
		appConfig.ClientVersion,
		logger,
	)

	app := &httpapi.App{
		Registry:        reg,
		Store:           store,
		Orchestrator:    orch,
		TwitchOAuth:     twitchOAuth,
		StreamlabsOAuth: streamlabsOAuth,
		Logger:          logger,
	}

	handler := middleware.SecurityHeaders(middleware.RequestID(withRouteTimeout(app.Handler(), requestTimeout)))

	srv := &http.Server{
		Addr:    appConfig.Addr(),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", "http://"+appConfig.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown did not complete cleanly", "error", err)
	}
}

// withRouteTimeout wraps handler with a fixed deadline, except for the
// WebSocket upgrade route, which must be allowed to run for the
// connection's lifetime.
func withRouteTimeout(handler http.Handler, d time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			handler.ServeHTTP(w, r)
			return
		}
		http.TimeoutHandler(handler, d, "request timed out").ServeHTTP(w, r)
	})
}

func parseLogLevel(level string) (slog.Level, bool) {
	switch level {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
