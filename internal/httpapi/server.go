// Package httpapi exposes the fetch pipeline and the query log over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/xdb/internal/logger"
	"github.com/koustreak/xdb/internal/query"
	"github.com/koustreak/xdb/internal/querylog"
	"github.com/koustreak/xdb/internal/schema"
)

// Server routes requests to a single Executor. The Executor owns one
// connection, so calls into it are serialized.
type Server struct {
	router chi.Router

	mu      sync.Mutex
	exec    *query.Executor
	log     querylog.Recorder
	schema  schema.Reader
	lg      *logger.Logger
	timeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithTimeout bounds every database call made for a request.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithSchema replaces the default information_schema reader.
func WithSchema(r schema.Reader) Option {
	return func(s *Server) { s.schema = r }
}

// New builds the router. log may be nil, in which case the /log routes
// answer 404. A nil lg disables request logging.
func New(exec *query.Executor, log querylog.Recorder, lg *logger.Logger, opts ...Option) *Server {
	s := &Server{
		exec:   exec,
		log:    log,
		schema: schema.NewInspector(exec),
		lg:     lg,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if lg != nil {
		r.Use(s.logRequests)
	}

	r.Post("/fetch/{mode}", s.handleFetch)
	r.Post("/exec", s.handleExec)

	r.Route("/log", func(r chi.Router) {
		r.Get("/", s.handleLogEntries)
		r.Delete("/", s.handleLogReset)
		r.Put("/active", s.handleLogActive)
	})

	r.Get("/tables", s.handleTables)
	r.Get("/tables/{table}", s.handleTable)

	r.Get("/healthz", s.handleHealth)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// withExecutor runs fn holding the executor lock, under the request timeout.
func (s *Server) withExecutor(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.lg.HTTPEvent().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
