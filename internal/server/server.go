// Package server exposes the orchestrator over a small JSON HTTP API, for
// front ends that do not link the Go packages directly.
//
// Routes:
//
//	GET    /health
//	GET    /connections
//	POST   /connections                          {name, dialect, connectionString}
//	PATCH  /connections/{id}                     {name}
//	DELETE /connections/{id}?active={id}
//	GET    /connections/{id}/tables
//	GET    /connections/{id}/tables/{table}      columns and first page (throttled)
//	GET    /connections/{id}/tables/{table}/rows ?offset&q&filter&sort&dir
//	DELETE /connections/{id}/cache
//	DELETE /connections/{id}/cache/{table}
//	POST   /connections/{id}/query               {sql}
//	GET    /connections/{id}/history             ?limit
//
// {table} is "name" or "schema.name".
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/dbbrowse/internal/effects"
	"github.com/koustreak/dbbrowse/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Server serves the HTTP API.
type Server struct {
	orch   *effects.Orchestrator
	log    *logger.Logger
	router chi.Router
}

// New builds the router.
func New(orch *effects.Orchestrator, log *logger.Logger) *Server {
	s := &Server{
		orch: orch,
		log:  logger.OrNop(log).Component("server"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.health)

	r.Route("/connections", func(r chi.Router) {
		r.Get("/", s.listConnections)
		r.Post("/", s.createConnection)

		r.Route("/{id}", func(r chi.Router) {
			r.Patch("/", s.renameConnection)
			r.Delete("/", s.deleteConnection)

			r.Get("/tables", s.listTables)
			r.Get("/tables/{table}", s.openTable)
			r.Get("/tables/{table}/rows", s.tableRows)

			r.Delete("/cache", s.clearConnectionCache)
			r.Delete("/cache/{table}", s.clearTableCache)

			r.Post("/query", s.executeQuery)
			r.Get("/history", s.history)
		})
	})
	return r
}

// logRequests logs one line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Any("duration_ms", time.Since(start).Milliseconds()).
			Logger().Debug("request")
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWith("listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
