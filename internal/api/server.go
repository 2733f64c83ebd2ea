// Package api exposes stored panels, adjusted series, pipeline runs and
// model searches over HTTP, and streams pipeline progress over a websocket.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"jpx-stock-lab/internal/app"
	"jpx-stock-lab/internal/config"
	"jpx-stock-lab/internal/frame"
	"jpx-stock-lab/internal/modelsearch"
	"jpx-stock-lab/internal/observability"
	"jpx-stock-lab/internal/pipeline"
	"jpx-stock-lab/internal/storage"
	"jpx-stock-lab/internal/tsprep"
)

// ErrRunInProgress is returned when a pipeline run is requested while one is active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	stores  *app.Stores
	cfg     *config.Config
	hub     *Hub
	logger  zerolog.Logger
	metrics *observability.Metrics
	clock   func() time.Time

	validate *validator.Validate
	runMu    sync.Mutex
}

// NewServer creates a server. metrics may be nil.
func NewServer(stores *app.Stores, cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) *Server {
	logger = logger.With().Str("component", "api").Logger()
	return &Server{
		stores:   stores,
		cfg:      cfg,
		hub:      NewHub(logger, metrics),
		logger:   logger,
		metrics:  metrics,
		clock:    func() time.Time { return time.Now().UTC() },
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Hub returns the progress stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", observability.Handler())
	r.Get("/ws/pipeline", s.hub.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(s.limitBody)

		r.Get("/securities", s.listSecurities)
		r.Route("/securities/{code}", func(r chi.Router) {
			r.Get("/prices", s.getPrices)
			r.Get("/adjusted", s.getAdjusted)
			r.Get("/features", s.getFeatures)
			r.Get("/hurst", s.getHurst)
			r.Get("/frame", s.getFrame)
		})

		r.Post("/pipeline/runs", s.createPipelineRun)

		r.Post("/search/runs", s.createSearchRun)
		r.Route("/search/runs/{runID}", func(r chi.Router) {
			r.Get("/trials", s.getTrials)
			r.Get("/best", s.getBestTrial)
		})
	})
	return r
}

// instrument logs every request and records its route-level metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.RecordHTTP(route, r.Method, strconv.Itoa(status), elapsed.Seconds())
		}
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("request served")
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.MaxBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":      "ok",
		"backend":     s.cfg.Storage.Backend,
		"subscribers": s.hub.Subscribers(),
	})
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, pipeline.ErrEmptyPanel):
		return http.StatusNotFound
	case errors.Is(err, ErrRunInProgress),
		errors.Is(err, storage.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, modelsearch.ErrUnknownFamily),
		errors.Is(err, modelsearch.ErrInvalidParam),
		errors.Is(err, tsprep.ErrInvalidArgument),
		errors.Is(err, frame.ErrColumnNotFound):
		return http.StatusBadRequest
	case errors.Is(err, modelsearch.ErrEmptyDataset),
		errors.Is(err, modelsearch.ErrNoSuccessfulTrial),
		errors.Is(err, modelsearch.ErrSingleClass),
		errors.Is(err, tsprep.ErrInsufficientData),
		errors.Is(err, tsprep.ErrDegenerateSeries):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	reqID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", reqID).Str("path", r.URL.Path).Msg("request failed")
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error(), RequestID: reqID})
}

// badRequest reports a malformed query or body.
func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Error: err.Error(), RequestID: middleware.GetReqID(r.Context())})
}
