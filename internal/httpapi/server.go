// Package httpapi exposes the streaming facade over REST.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
	"github.com/HMasataka/streamhub/pkg/gateway"
)

// StreamService is the facade the REST API drives
type StreamService interface {
	gateway.StreamService
	GetSubscriptions(ctx context.Context, streamID domain.StreamID) ([]domain.StreamSubscription, error)
}

// HealthReporter reports the push-connection statistics
type HealthReporter interface {
	GetStats() domain.HubStats
}

// Options configures the API server
type Options struct {
	Logger      *logging.Logger
	RateLimiter *RateLimiter
	Health      HealthReporter
	Metrics     http.Handler
	WebSocket   http.Handler
}

// Option configures Options
type Option func(*Options)

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithRateLimiter limits /streams requests per remote address
func WithRateLimiter(rl *RateLimiter) Option {
	return func(o *Options) {
		o.RateLimiter = rl
	}
}

// WithHealth sets the source of /healthz
func WithHealth(h HealthReporter) Option {
	return func(o *Options) {
		o.Health = h
	}
}

// WithMetrics mounts h on /metrics
func WithMetrics(h http.Handler) Option {
	return func(o *Options) {
		o.Metrics = h
	}
}

// WithWebSocket mounts h on /ws
func WithWebSocket(h http.Handler) Option {
	return func(o *Options) {
		o.WebSocket = h
	}
}

// Server serves the REST API
type Server struct {
	service StreamService
	router  chi.Router
	options Options
	logger  *logging.Logger
	errors  *errors.DefaultHandler
}

// NewServer builds the router
func NewServer(service StreamService, opts ...Option) *Server {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}

	logger := options.Logger.WithFields(map[string]any{"component": "httpapi"})
	s := &Server{
		service: service,
		options: options,
		logger:  logger,
		errors:  errors.NewDefaultHandler(logger.Logger),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if s.options.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.options.Metrics)
	}
	if s.options.WebSocket != nil {
		r.Method(http.MethodGet, "/ws", s.options.WebSocket)
	}

	r.Route("/streams", func(r chi.Router) {
		if s.options.RateLimiter != nil {
			r.Use(s.options.RateLimiter.Middleware)
		}

		r.Post("/", s.establish)
		r.Get("/", s.list)

		r.Route("/{streamID}", func(r chi.Router) {
			r.Use(streamContext)

			r.Get("/", s.get)
			r.Get("/statistics", s.statistics)
			r.Post("/publish", s.publish)
			r.Get("/subscriptions", s.subscriptions)
			r.Post("/subscriptions", s.subscribe)
			r.Delete("/subscriptions/{clientID}", s.unsubscribe)
			r.Post("/stop", s.transition(s.service.StopStream))
			r.Post("/pause", s.transition(s.service.PauseStream))
			r.Post("/resume", s.transition(s.service.ResumeStream))
		})
	})

	return r
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger stores a request-scoped logger in the request context and
// logs the request once it is served.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		logger := s.logger.WithFields(map[string]any{"request_id": middleware.GetReqID(r.Context())})
		next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), logger)))

		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func streamContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithStreamID(r.Context(), chi.URLParam(r, "streamID"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
