package core

import (
	"strings"
	"testing"

	"github.com/signalsfoundry/loranet-simulator/model"
)

const sampleScenario = `{
  "seed": 42,
  "horizon_seconds": 86400,
  "season": "rainy",
  "vegetation_density": 0.8,
  "start_hour": 6,
  "devices": [
    {"name": "node-1", "distance_m": 100, "initial_temp": 27.5},
    {"name": "node-2", "distance_m": 400, "initial_temp": 28.5,
     "tx_interval_seconds": 600,
     "radio": {"spreading_factor": 10, "bandwidth_khz": 125, "coding_rate": 5, "tx_power_dbm": 17}}
  ]
}`

func TestLoadScenario(t *testing.T) {
	cfg, err := LoadScenario(strings.NewReader(sampleScenario))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	if cfg.Seed != 42 || cfg.HorizonS != 86400 || cfg.Season != model.SeasonRainy {
		t.Errorf("header fields wrong: %+v", cfg)
	}
	if cfg.VegetationDensity != 0.8 || cfg.StartHour != 6 {
		t.Errorf("environment fields wrong: %+v", cfg)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("parsed %d devices, want 2", len(cfg.Devices))
	}

	first := cfg.Devices[0]
	if first.ID != 1 || first.Name != "node-1" || first.DistanceM != 100 {
		t.Errorf("first device wrong: %+v", first)
	}
	if first.Radio != model.DefaultRadioConfig() {
		t.Errorf("device without a radio block should get defaults, got %+v", first.Radio)
	}
	if first.TxIntervalS != 0 {
		t.Errorf("unset interval should stay 0 (the device applies the default), got %v", first.TxIntervalS)
	}

	second := cfg.Devices[1]
	if second.ID != 2 || second.Radio.SpreadingFactor != 10 || second.Radio.TxPowerDBm != 17 {
		t.Errorf("second device wrong: %+v", second)
	}
	if second.TxIntervalS != 600 {
		t.Errorf("interval = %v, want 600", second.TxIntervalS)
	}
}

func TestLoadScenarioRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"malformed json", `{"seed": 1,`},
		{"unknown field", `{"seed": 1, "horizon_seconds": 10, "season": "dry", "grid": true,
			"devices": [{"name": "n", "distance_m": 1}]}`},
		{"unknown season", `{"horizon_seconds": 10, "season": "monsoon",
			"devices": [{"name": "n", "distance_m": 1}]}`},
		{"fails validation", `{"horizon_seconds": 10, "season": "dry", "devices": []}`},
		{"bad radio", `{"horizon_seconds": 10, "season": "dry",
			"devices": [{"name": "n", "distance_m": 1,
			"radio": {"spreading_factor": 6, "bandwidth_khz": 125, "coding_rate": 5, "tx_power_dbm": 14}}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadScenario(strings.NewReader(tc.json)); err == nil {
				t.Error("bad scenario accepted")
			}
		})
	}
}

func TestLoadScenarioFileMissing(t *testing.T) {
	if _, err := LoadScenarioFile("testdata/definitely-not-there.json"); err == nil {
		t.Error("missing file accepted")
	}
}
