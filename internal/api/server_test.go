package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/signalsfoundry/loranet-simulator/core"
	"github.com/signalsfoundry/loranet-simulator/internal/logging"
	"github.com/signalsfoundry/loranet-simulator/model"
)

func newTestServer(t *testing.T) (*Server, *core.Simulation) {
	t.Helper()
	sim, err := core.NewSimulation(core.SimulationConfig{
		Seed:     1,
		HorizonS: 3600,
		Season:   model.SeasonDry,
		Devices: []core.DeviceConfig{
			{Name: "node-1", DistanceM: 100, InitialTemp: 28, Radio: model.DefaultRadioConfig()},
			{Name: "node-2", DistanceM: 400, InitialTemp: 28, Radio: model.DefaultRadioConfig()},
		},
	})
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	sim.AdvanceTo(1800)
	return NewServer(sim, logging.Noop(), nil), sim
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	s, sim := newTestServer(t)

	rec := get(t, s, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		SimTime float64  `json:"sim_time_seconds"`
		Horizon float64  `json:"horizon_seconds"`
		Devices []string `json:"devices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SimTime != sim.Now() || body.Horizon != 3600 {
		t.Errorf("time fields wrong: %+v", body)
	}
	if len(body.Devices) != 2 {
		t.Errorf("devices = %v, want two names", body.Devices)
	}
}

func TestDeviceEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/v1/devices/node-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats model.DeviceStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Name != "node-1" || stats.PacketsSent == 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	rec = get(t, s, "/api/v1/devices/node-1/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", rec.Code)
	}
	var history []model.CycleRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != stats.PacketsSent {
		t.Errorf("history rows %d != packets sent %d", len(history), stats.PacketsSent)
	}

	if rec := get(t, s, "/api/v1/devices/ghost"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestNetworkStatsAndEnvironment(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats map[string]model.DeviceStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(stats) != 2 {
		t.Errorf("stats for %d devices, want 2", len(stats))
	}

	rec = get(t, s, "/api/v1/environment")
	if rec.Code != http.StatusOK {
		t.Fatalf("environment status = %d", rec.Code)
	}
	var env model.EnvironmentConditions
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode environment: %v", err)
	}
	if env.Humidity < 40 || env.Humidity > 100 {
		t.Errorf("humidity %v out of range", env.Humidity)
	}
}

func TestReconfigureEndpoint(t *testing.T) {
	s, sim := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/devices/node-2/radio",
		strings.NewReader(`{"spreading_factor": 11}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	stats, err := sim.DeviceStats("node-2")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Radio.SpreadingFactor != 11 {
		t.Errorf("spreading factor = %d after PUT, want 11", stats.Radio.SpreadingFactor)
	}

	// Out-of-range values are rejected, not clamped.
	req = httptest.NewRequest(http.MethodPut, "/api/v1/devices/node-2/radio",
		strings.NewReader(`{"spreading_factor": 13}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid SF status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/devices/ghost/radio",
		strings.NewReader(`{"spreading_factor": 9}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/devices/node-2/radio",
		strings.NewReader(`{"frequency": 868}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", rec.Code)
	}
}

func TestInjectRainEndpoint(t *testing.T) {
	s, sim := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rain",
		strings.NewReader(`{"intensity_mmh": 30, "duration_seconds": 1800}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if env := sim.Environment(); !env.IsRaining || env.RainIntensity != 30 {
		t.Errorf("rain not active after injection: %+v", env)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/rain",
		strings.NewReader(`{"intensity_mmh": -1, "duration_seconds": 10}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative intensity status = %d, want 400", rec.Code)
	}
}
