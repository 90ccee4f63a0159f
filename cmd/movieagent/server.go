package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"time"

	"movieagent/api"
	"movieagent/handlers"
	"movieagent/utils"
)

const shutdownTimeout = 10 * time.Second

// newHandler mounts the API on the base router.
func newHandler(a *app, limiter *api.IPRateLimiter, logger *slog.Logger) http.Handler {
	r := utils.NewRouter(a.cfg.Server.AllowedOrigins)
	r.Use(api.RequestID, api.Recover, api.AccessLog(logger))

	version := handlers.NewVersionHandler(a.providers)
	r.HandleFunc("/api/version", version.GetVersion).Methods(http.MethodGet, http.MethodOptions)

	agent := handlers.NewMovieAgentHandler(a.pipeline)
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(limiter.Middleware())
	apiRouter.HandleFunc("/movieAgent", agent.Query)
	// older front ends call the plural path
	apiRouter.HandleFunc("/movieAgents", agent.Query)
	return r
}

// serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests.
func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[movie-agent] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("[movie-agent] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
