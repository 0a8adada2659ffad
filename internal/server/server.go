// Package server exposes the table operations over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/export"
	"github.com/koustreak/tablegate/internal/logger"
	"github.com/koustreak/tablegate/internal/metrics"
	"github.com/koustreak/tablegate/internal/tables"
)

// Options wires the server to its collaborators. Exporter may be nil, in
// which case the export routes are not mounted.
type Options struct {
	DB       database.DB
	Exporter *export.Exporter
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

// Server is the HTTP facade.
type Server struct {
	db       database.DB
	tables   *tables.Service
	exporter *export.Exporter
	metrics  *metrics.Metrics
	log      *logger.Logger

	router chi.Router
	routes []Route
}

// Route documents one endpoint on /docs.
type Route struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// New builds the router. Missing Metrics or Logger get working defaults.
func New(opts Options) *Server {
	s := &Server{
		db:       opts.DB,
		tables:   tables.NewService(opts.DB),
		exporter: opts.Exporter,
		metrics:  opts.Metrics,
		log:      opts.Logger,
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.log == nil {
		s.log = logger.New(nil)
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(requestContext(s.log))
	r.Use(accessLog(s.metrics))
	r.Use(cors)
	r.Use(middleware.Recoverer)

	handle := func(method, path, desc string, h http.HandlerFunc) {
		r.Method(method, path, h)
		s.routes = append(s.routes, Route{Method: method, Path: path, Description: desc})
	}

	handle(http.MethodGet, "/", "service entry point", s.handleRoot)
	handle(http.MethodGet, "/docs", "this route listing", s.handleDocs)
	handle(http.MethodGet, "/healthz", "database and object store liveness", s.handleHealth)
	handle(http.MethodGet, "/metrics", "Prometheus metrics", s.metrics.Handler().ServeHTTP)

	handle(http.MethodGet, "/api/tables", "list tables", s.handleListTables)
	handle(http.MethodGet, "/api/tables/{table}/columns", "list columns of a table", s.handleColumns)
	handle(http.MethodGet, "/api/tables/{table}/data", "page through rows; query: page, limit, search", s.handleData)
	handle(http.MethodPost, "/api/tables/{table}/data", "insert a row", s.handleInsert)
	handle(http.MethodPut, "/api/tables/{table}/data/{id}", "update a row by primary key", s.handleUpdate)
	handle(http.MethodDelete, "/api/tables/{table}/data/{id}", "delete a row by primary key", s.handleDelete)

	if s.exporter != nil {
		handle(http.MethodPost, "/api/tables/{table}/export", "export rows as JSON lines; query: search", s.handleExport)
		handle(http.MethodGet, "/api/tables/{table}/exports", "list stored exports of a table", s.handleListExports)
		handle(http.MethodGet, "/api/tables/{table}/exports/{key}", "metadata and a fresh link for one export", s.handleStatExport)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Routes lists the mounted endpoints in registration order.
func (s *Server) Routes() []Route {
	return s.routes
}

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
