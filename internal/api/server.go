package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/signalsfoundry/loranet-simulator/core"
	"github.com/signalsfoundry/loranet-simulator/internal/logging"
	"github.com/signalsfoundry/loranet-simulator/model"
)

// Server is the read-mostly HTTP control surface over a running
// simulation. Every read handler serves a snapshot copy; the only mutating
// endpoints are the radio reconfiguration and the rain injection.
type Server struct {
	sim     *core.Simulation
	log     logging.Logger
	metrics http.Handler
	router  chi.Router
	server  *http.Server
}

// NewServer builds the router. metrics may be nil if no collector is
// registered; the /metrics route is then omitted.
func NewServer(sim *core.Simulation, log logging.Logger, metrics http.Handler) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		sim:     sim,
		log:     log,
		metrics: metrics,
		router:  chi.NewRouter(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/stats", s.handleNetworkStats)
		r.Get("/environment", s.handleEnvironment)
		r.Get("/gateway/packets", s.handleGatewayPackets)
		r.Get("/devices", s.handleDevices)
		r.Get("/devices/{name}", s.handleDeviceStats)
		r.Get("/devices/{name}/history", s.handleDeviceHistory)
		r.Put("/devices/{name}/radio", s.handleReconfigure)
		r.Post("/rain", s.handleInjectRain)
	})

	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the server on addr and blocks until shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	s.log.Info(context.Background(), "api listening", logging.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, log := logging.WithRequestLogger(r.Context(), s.log)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		log.Debug(ctx, "request served",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.String("duration", time.Since(start).String()),
		)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"sim_time_seconds": s.sim.Now(),
		"horizon_seconds":  s.sim.Horizon(),
		"gateway_uptime":   s.sim.GatewayUptime(),
		"devices":          s.sim.DeviceNames(),
	})
}

func (s *Server) handleNetworkStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.sim.NetworkStats())
}

func (s *Server) handleEnvironment(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.sim.Environment())
}

func (s *Server) handleGatewayPackets(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.sim.GatewayPackets())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.sim.DeviceNames())
}

func (s *Server) handleDeviceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sim.DeviceStats(chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.sim.DeviceHistory(chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	var patch model.RadioConfigPatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := chi.URLParam(r, "name")
	if err := s.sim.ReconfigureDevice(name, patch); err != nil {
		if errors.Is(err, core.ErrDeviceNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := s.sim.DeviceStats(name)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats.Radio)
}

type rainRequest struct {
	IntensityMMH    float64 `json:"intensity_mmh"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (s *Server) handleInjectRain(w http.ResponseWriter, r *http.Request) {
	var req rainRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IntensityMMH <= 0 || req.DurationSeconds <= 0 {
		s.respondError(w, http.StatusBadRequest, "intensity and duration must be positive")
		return
	}
	s.sim.InjectRain(req.IntensityMMH, req.DurationSeconds)
	s.respondJSON(w, http.StatusAccepted, map[string]any{
		"intensity_mmh":    req.IntensityMMH,
		"duration_seconds": req.DurationSeconds,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.log.Error(context.Background(), "marshal response failed", logging.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
