// Package server exposes the gateway operations over JSON/HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/services/bridged/middleware"
	"stakebridge/services/bridged/node"
	"stakebridge/services/bridged/stream"
	"stakebridge/storage/audit"
)

const (
	maxBodyBytes = 1 << 20
	// ScopeRootsWrite is required on tokens posting consensus state roots.
	ScopeRootsWrite = "roots:write"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Node    *node.Node
	Journal *audit.Journal
	// Relayer is the caller assumed when a request names none.
	Relayer   common.Address
	Logger    *slog.Logger
	Tracer    trace.Tracer
	RateLimit middleware.RateLimit
	Auth      middleware.AuthConfig
	// Stream feeds GET /v1/events/ws; nil disables the endpoint.
	Stream *stream.Hub
	// StreamOrigins lists the origin patterns accepted on websocket upgrades.
	// Empty allows same-origin requests only.
	StreamOrigins []string
}

// Server routes HTTP requests to the node.
type Server struct {
	node    *node.Node
	journal *audit.Journal
	relayer common.Address
	logger  *slog.Logger

	stream        *stream.Hub
	streamOrigins []string

	router http.Handler
}

// New constructs the HTTP router.
func New(cfg Config) (*Server, error) {
	if cfg.Node == nil {
		return nil, errors.New("server: node required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		node:          cfg.Node,
		journal:       cfg.Journal,
		relayer:       cfg.Relayer,
		logger:        logger,
		stream:        cfg.Stream,
		streamOrigins: cfg.StreamOrigins,
	}
	srv.router = srv.buildRouter(cfg)
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	limiter := middleware.NewRateLimiter(cfg.RateLimit, s.logger)
	auth := middleware.NewAuthenticator(cfg.Auth, s.logger)
	obs := middleware.NewObservability("bridged", cfg.Tracer, s.logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(obs.Middleware)

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(limiter.Middleware("bridged"))

		api.Post("/link/initiate", s.InitiateLink)
		api.Post("/link/progress", s.ProgressLink)
		api.Post("/stake", s.Stake)
		api.Post("/stake/progress", s.ProgressStake)
		api.Post("/stake/revert", s.RevertStake)
		api.Post("/stake/revert/progress", s.ProgressRevertStake)
		api.Post("/redeem/confirm", s.ConfirmRedemption)
		api.Post("/unstake/progress", s.ProgressUnstake)
		api.Post("/redeem/revert/confirm", s.ConfirmRevertRedemption)
		api.Post("/gateway/prove", s.ProveGateway)

		api.Get("/messages/{box}/{hash}", s.GetMessage)
		api.Get("/process/{account}", s.GetProcess)
		api.Get("/balances/{symbol}/{account}", s.GetBalance)
		api.Get("/roots/{height}", s.GetRoot)
		api.With(auth.Middleware(ScopeRootsWrite)).Post("/roots", s.CommitRoot)
		api.Get("/audit", s.ListAudit)
		api.Get("/events/ws", s.StreamEvents)
	})
	return otelhttp.NewHandler(r, "bridged")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("bridged: encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

func statusFor(class bridgeerrors.Class) int {
	switch class {
	case bridgeerrors.ClassInvalid:
		return http.StatusBadRequest
	case bridgeerrors.ClassNotFound:
		return http.StatusNotFound
	case bridgeerrors.ClassConflict:
		return http.StatusConflict
	case bridgeerrors.ClassUnprocessable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a bridge failure to its HTTP status. Internal failures are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	class := bridgeerrors.Classify(err)
	status := statusFor(class)
	if status == http.StatusInternalServerError {
		s.logger.Error("bridged: request failed",
			"route", r.URL.Path,
			"requestid", middleware.RequestIDFrom(r),
			"error", err)
		s.writeJSON(w, status, errorResponse{Error: "internal error", Class: string(class)})
		return
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Class: string(class)})
}

func decode(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return invalidf("decode request: %v", err)
	}
	return nil
}

func (s *Server) callerOr(raw string) string {
	if raw == "" && s.relayer != (common.Address{}) {
		return s.relayer.Hex()
	}
	return raw
}
