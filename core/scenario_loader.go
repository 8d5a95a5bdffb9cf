package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/signalsfoundry/loranet-simulator/model"
)

// Internal JSON shapes stay unexported so the file format can evolve
// without touching the public config types.
type scenarioJSON struct {
	Seed              int64        `json:"seed"`
	HorizonSeconds    float64      `json:"horizon_seconds"`
	Season            string       `json:"season"`
	VegetationDensity float64      `json:"vegetation_density"`
	StartHour         float64      `json:"start_hour"`
	Devices           []deviceJSON `json:"devices"`
}

type deviceJSON struct {
	Name              string             `json:"name"`
	DistanceM         float64            `json:"distance_m"`
	InitialTemp       float64            `json:"initial_temp"`
	TxIntervalSeconds float64            `json:"tx_interval_seconds"`
	Radio             *model.RadioConfig `json:"radio"` // nil = defaults
}

// LoadScenario reads a JSON scenario from r and returns a validated
// SimulationConfig. It fails on JSON errors and on anything
// SimulationConfig.Validate rejects.
func LoadScenario(r io.Reader) (SimulationConfig, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return SimulationConfig{}, fmt.Errorf("scenario: decode failed: %w", err)
	}

	season, err := model.ParseSeason(payload.Season)
	if err != nil {
		return SimulationConfig{}, fmt.Errorf("scenario: %w", err)
	}

	cfg := SimulationConfig{
		Seed:              payload.Seed,
		HorizonS:          payload.HorizonSeconds,
		Season:            season,
		VegetationDensity: payload.VegetationDensity,
		StartHour:         payload.StartHour,
	}
	for i, d := range payload.Devices {
		radio := model.DefaultRadioConfig()
		if d.Radio != nil {
			radio = *d.Radio
		}
		cfg.Devices = append(cfg.Devices, DeviceConfig{
			ID:          i + 1,
			Name:        d.Name,
			DistanceM:   d.DistanceM,
			InitialTemp: d.InitialTemp,
			TxIntervalS: d.TxIntervalSeconds,
			Radio:       radio,
		})
	}

	if err := cfg.Validate(); err != nil {
		return SimulationConfig{}, fmt.Errorf("scenario: %w", err)
	}
	return cfg, nil
}

// LoadScenarioFile is LoadScenario against a file path.
func LoadScenarioFile(path string) (SimulationConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return SimulationConfig{}, fmt.Errorf("scenario: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadScenario(f)
}
