// File: internal/api/server.go
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/backend"
	"github.com/xkilldash9x/pilot/internal/config"
	"github.com/xkilldash9x/pilot/internal/router"
	"github.com/xkilldash9x/pilot/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxTurnBytes bounds a turn body.
const maxTurnBytes = 1 << 20

// Turns runs model turns. *service.Runtime implements it.
type Turns interface {
	HandleText(ctx context.Context, text string) (*service.TurnResult, error)
}

// HealthReporter reports the lifecycle state of each backend.
// *router.Router implements it.
type HealthReporter interface {
	States() map[schemas.BackendSource]router.BackendState
}

// StateCapturer snapshots an open backend. *router.Router implements it.
type StateCapturer interface {
	Capture(ctx context.Context, source schemas.BackendSource) (backend.State, error)
}

// Deps are the collaborators the server exposes over HTTP. State, Metrics and
// Events are optional; their routes are only registered when set.
type Deps struct {
	Turns    Turns
	Health   HealthReporter
	State    StateCapturer
	Recorder RequestRecorder
	Metrics  http.Handler
	Events   http.HandlerFunc
}

// Server holds the HTTP surface of the runtime.
type Server struct {
	deps    Deps
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewServer creates a server. A non-positive rate limit disables limiting.
func NewServer(cfg config.ServerConfig, deps Deps, logger *zap.Logger) *Server {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Server{
		deps:    deps,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("api"),
	}
}

// Routes configures all HTTP routes.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(s.logger, s.deps.Recorder))

	// Turn endpoints drive the backends and are rate limited.
	limited := RateLimitMiddleware(s.limiter)
	r.Handle("/v1/turns", limited(http.HandlerFunc(s.PostTurn))).Methods(http.MethodPost)
	r.Handle("/v1/turns/markup", limited(http.HandlerFunc(s.PostTurnMarkup))).Methods(http.MethodPost)
	if s.deps.State != nil {
		// A capture takes a screenshot, so it shares the turn budget.
		r.Handle("/v1/state/{source}", limited(http.HandlerFunc(s.GetState))).Methods(http.MethodGet)
	}

	if s.deps.Events != nil {
		r.HandleFunc("/v1/events", s.deps.Events).Methods(http.MethodGet)
	}
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", s.Health).Methods(http.MethodGet)

	return r
}
