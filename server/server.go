// Package server is the HTTP boundary of the render service. It turns JSON and multipart requests into
// render jobs, hands them to the dispatcher and encodes the resulting image.
package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-render/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// DefaultMaxFormSize bounds multipart request bodies.
	DefaultMaxFormSize = 1 << 30

	// DefaultMaxJSONSize bounds JSON request bodies.
	DefaultMaxJSONSize = 1 << 20

	shutdownTimeout = 30 * time.Second
)

// Renderer executes render jobs. dispatcher.Dispatcher satisfies it.
type Renderer interface {
	Render(ctx context.Context, job dispatcher.RenderJob) (*image.RGBA, error)
}

// server is the implementation of the Server interface.
type server struct {
	renderer Renderer
	router   chi.Router
	logger   log.Logger

	maxFormSize int64
	maxJSONSize int64
}

// Server routes render and health requests.
type Server interface {
	// Handler returns the routed HTTP handler.
	Handler() http.Handler

	// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
	//
	// Parameters:
	//   - ctx: cancelling it stops the server
	//   - addr: the listen address, e.g. ":3030"
	//
	// Returns:
	//   - error: the listener error, nil after a graceful shutdown
	Serve(ctx context.Context, addr string) error
}

var _ Server = &server{}

// NewServer creates a Server rendering through r with the options applied.
//
// Parameters:
//   - r: the job renderer, normally the dispatcher
//   - options: a variadic list of ServerBuilderOption functions to configure the Server
//
// Returns:
//   - Server: the configured server
func NewServer(r Renderer, options ...ServerBuilderOption) Server {
	s := &server{
		renderer:    r,
		logger:      log.New("server"),
		maxFormSize: DefaultMaxFormSize,
		maxJSONSize: DefaultMaxJSONSize,
	}

	for _, option := range options {
		option(s)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(s.logRequests)
	router.Get("/health", s.handleHealth)
	router.Post("/render", s.handleRender)
	router.Post("/render-form", s.handleRenderForm)
	s.router = router
	return s
}

func (s *server) Handler() http.Handler {
	return s.router
}

func (s *server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Noticef("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// logRequests logs method, path, status and duration of every request.
func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debugf("%s %s -> %d (%d bytes) in %v", r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start))
	})
}
