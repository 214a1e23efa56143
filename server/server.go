// Package server exposes the editor over an HTTP JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/minios-linux/lokedit/editor"
	"github.com/minios-linux/lokedit/logging"
)

// MaxUploadMemory is the multipart form memory limit for /api/import.
// Larger uploads spill to temporary files.
const MaxUploadMemory = 32 << 20

// Options configures a Server.
type Options struct {
	// Locales is the catalogue served at /api/locales.
	Locales json.RawMessage
	// WebDir holds the web UI files; /i18n bundles are read from WebDir/i18n.
	// Empty disables /i18n.
	WebDir      string
	CORSOrigins []string
	Log         *slog.Logger
	// Registry receives the server metrics. Nil creates a private one.
	Registry *prometheus.Registry
	// Now stamps export file names. Defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	editor  *editor.Manager
	locales json.RawMessage
	web     afero.Fs
	log     *slog.Logger
	now     func() time.Time

	registry *prometheus.Registry
	metrics  *metrics
	router   chi.Router
}

// New builds the server and its routes around m.
func New(m *editor.Manager, opts Options) *Server {
	s := &Server{
		editor:   m,
		locales:  opts.Locales,
		log:      opts.Log,
		now:      opts.Now,
		registry: opts.Registry,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if opts.WebDir != "" {
		s.web = afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), opts.WebDir))
	}

	s.metrics = newMetrics(s.registry, m)
	m.Subscribe(func(c editor.Change) {
		s.metrics.observeChange(c)
		s.log.Debug("state changed", "change", c)
	})

	s.router = s.routes(opts.CORSOrigins)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(origins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(routeEscaped)

	if len(origins) > 0 {
		corsConfig := cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{"Content-Disposition"},
			MaxAge:         300,
		})
		r.Use(corsConfig.Handler)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/keys", s.getKeys)
		r.Post("/keys", s.addKey)
		r.Delete("/keys/{key}", s.deleteKey)

		r.Get("/translations", s.getTranslations)
		r.Post("/translations", s.addLanguage)
		r.Get("/translations/{name}", s.getTranslation)
		r.Delete("/translations/{name}", s.deleteTranslation)
		r.Put("/translations/{name}/values/{key}", s.setValue)

		r.Post("/import", s.importFiles)
		r.Get("/export", s.exportArchive)

		r.Get("/selection", s.getSelection)
		r.Put("/selection", s.setSelection)
		r.Delete("/selection", s.deleteSelection)

		r.Get("/language", s.getLanguage)
		r.Put("/language", s.setLanguage)

		r.Get("/locales", s.getLocales)
	})

	r.Get("/i18n/{bundle}", s.getBundle)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// routeEscaped makes chi match routes against the escaped request path.
// Without it chi uses the decoded path unless the URL carried an escaped
// slash, and urlParam would decode parameters a second time.
func routeEscaped(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			rctx.RoutePath = r.URL.EscapedPath()
		}
		next.ServeHTTP(w, r)
	})
}

// logRequests logs each request once it completes and feeds the request
// metrics.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.observeRequest(r.Method, route, status, elapsed)

		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.log.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
