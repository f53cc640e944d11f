// package server contains middleware & handlers for the account linking and migration web service
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musiclink/internal/linking"
	"github.com/desertthunder/musiclink/internal/metrics"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/services"
	"github.com/desertthunder/musiclink/internal/shared"
	"github.com/desertthunder/musiclink/internal/tasks"
)

const shutdownTimeout = 5 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, authentication, CORS, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers in the migration service.
// Implementations handle specific endpoints (account linking, playlist operations, migrations).
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Options wires the service's collaborators into a router.
type Options struct {
	Coordinator *linking.Coordinator
	Migrator    tasks.Migrator
	Gateways    map[models.Provider]services.Gateway
	Logger      *log.Logger
	Metrics     metrics.Recorder

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	// AuthLimit throttles the login and callback routes per client IP. A zero value disables it.
	AuthLimit RateLimitConfig
}

// New builds the service router with logging, metrics and panic recovery applied to every route.
func New(opts Options) (*BasicRouter, error) {
	if opts.Coordinator == nil || opts.Migrator == nil {
		return nil, fmt.Errorf("%w: server needs a link coordinator and a migrator", shared.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}

	api := &API{
		coordinator: opts.Coordinator,
		migrator:    opts.Migrator,
		gateways:    opts.Gateways,
		logger:      opts.Logger,
	}
	callback := NewCallbackHandler(opts.Coordinator, opts.Logger)

	limit := func(h http.Handler) http.Handler { return h }
	if opts.AuthLimit.RequestsPerWindow > 0 {
		limit = RateLimitByIP(opts.AuthLimit, opts.Logger)
	}

	router := NewBasicRouter()
	router.Use(Recover(opts.Logger), Logging(opts.Logger), Instrument(opts.Metrics))

	router.Handle(http.MethodGet, "/auth/{provider}/login", limit(http.HandlerFunc(api.Login)))
	router.Handle(http.MethodGet, "/auth/{provider}/callback", limit(callback))
	router.Handle(http.MethodPost, "/migrate", http.HandlerFunc(api.Migrate))
	router.Handle(http.MethodGet, "/search", http.HandlerFunc(api.Search))
	router.Handle(http.MethodGet, "/status", http.HandlerFunc(api.Status))
	router.Handle(http.MethodGet, "/{provider}/playlists", http.HandlerFunc(api.Playlists))
	router.Handle(http.MethodPost, "/{provider}/playlists", http.HandlerFunc(api.CreatePlaylist))
	router.Handle(http.MethodGet, "/{provider}/playlists/{id}/tracks", http.HandlerFunc(api.PlaylistTracks))
	router.Handle(http.MethodPost, "/{provider}/playlists/{id}/tracks", http.HandlerFunc(api.AddTrack))
	router.Handle(http.MethodDelete, "/{provider}/playlists/{id}/tracks/{track}", http.HandlerFunc(api.RemoveTrack))
	router.Handle(http.MethodGet, "/{provider}/saved", http.HandlerFunc(api.SavedTracks))
	router.Handle(http.MethodGet, "/health", http.HandlerFunc(api.Health))
	if opts.MetricsHandler != nil {
		router.Handle(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	return router, nil
}

// ListenAndServe listens on addr and serves handler until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *log.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return Serve(ctx, ln, handler, logger)
}

// Serve serves handler on ln until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *log.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error shutting down server", "error", err)
		return err
	}
	logger.Info("http server stopped")
	return nil
}
