package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
)

// HumidityService is the pipeline as seen by the HTTP layer.
type HumidityService interface {
	sharedobs.ReadinessChecker
	Latest() (domain.HumidityMap, bool)
	Execute(ctx context.Context, params domain.Params) (domain.HumidityMap, error)
	Count(ctx context.Context, params domain.Params) (domain.TimeWindow, int, error)
}

// ParamsFunc returns the configured run parameters for the current moment.
type ParamsFunc func() (domain.Params, error)

// Server exposes health, readiness, metrics and humidity map endpoints.
type Server struct {
	httpServer *http.Server
	svc        HumidityService
	params     ParamsFunc
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /humidity and /grids routes.
func NewServer(addr string, svc HumidityService, params ParamsFunc, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		params: params,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(svc))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /humidity/latest", s.handleLatest)
	mux.HandleFunc("GET /humidity/legend", s.handleLegend)
	mux.HandleFunc("POST /humidity/run", s.handleRun)
	mux.HandleFunc("GET /grids/count", s.handleCount)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	m, ok := s.svc.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no humidity map has been computed yet")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleLegend(w http.ResponseWriter, _ *http.Request) {
	if m, ok := s.svc.Latest(); ok {
		writeJSON(w, http.StatusOK, m.Legend)
		return
	}
	p, err := s.params()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, domain.NewLegend(p.Ramp))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	p, err := s.requestParams(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	m, err := s.svc.Execute(r.Context(), p)
	if err != nil && m.ID == "" {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err != nil {
		// Computed but not published.
		s.logger.Warn("humidity map served unpublished", "id", m.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, m)
}

type countResponse struct {
	Window domain.TimeWindow `json:"window"`
	Region domain.Region     `json:"region"`
	Count  int               `json:"count"`
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	p, err := s.requestParams(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	window, n, err := s.svc.Count(r.Context(), p)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Window: window, Region: p.Region, Count: n})
}

// requestParams applies the end, lookback and region query parameters on
// top of the configured defaults.
func (s *Server) requestParams(r *http.Request) (domain.Params, error) {
	p, err := s.params()
	if err != nil {
		return domain.Params{}, err
	}
	q := r.URL.Query()
	if v := q.Get("end"); v != "" {
		end, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return domain.Params{}, invalid("end must be YYYY-MM-DD")
		}
		p.EndDate = end
	}
	if v := q.Get("lookback"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.Params{}, invalid("lookback must be an integer")
		}
		p.LookbackDays = n
	}
	if v := q.Get("region"); v != "" {
		region, err := domain.ParseRegion(v)
		if err != nil {
			return domain.Params{}, err
		}
		p.Region = region
	}
	return p, nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfiguration, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
