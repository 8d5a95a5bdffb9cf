package core

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/signalsfoundry/loranet-simulator/model"
)

// ErrDeviceNotFound indicates a device name that is not part of the
// simulation.
var ErrDeviceNotFound = errors.New("device not found")

// SimulationConfig is the complete input of one run, supplied once at
// construction. Season and every other parameter are explicit; nothing is
// derived from the wall clock.
type SimulationConfig struct {
	Seed              int64
	HorizonS          float64
	Season            model.Season
	VegetationDensity float64 // [0,1]
	StartHour         float64 // local hour of day at t=0
	Devices           []DeviceConfig
}

// Validate rejects configurations the simulation cannot honour.
func (c SimulationConfig) Validate() error {
	if c.HorizonS <= 0 {
		return fmt.Errorf("horizon %.1f s must be positive", c.HorizonS)
	}
	if c.Season != model.SeasonRainy && c.Season != model.SeasonDry {
		return fmt.Errorf("unknown season %q", c.Season)
	}
	if c.VegetationDensity < 0 || c.VegetationDensity > 1 {
		return fmt.Errorf("vegetation density %.2f out of [0,1]", c.VegetationDensity)
	}
	if c.StartHour < 0 || c.StartHour >= 24 {
		return fmt.Errorf("start hour %.1f out of [0,24)", c.StartHour)
	}
	if len(c.Devices) == 0 {
		return errors.New("at least one device is required")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Name == "" {
			return fmt.Errorf("device %d: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate device name %q", d.Name)
		}
		seen[d.Name] = true
		if d.DistanceM <= 0 {
			return fmt.Errorf("device %q: distance %.1f m must be positive", d.Name, d.DistanceM)
		}
		if err := d.Radio.Validate(); err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
	}
	return nil
}

// Simulation composes one environment, one gateway, and N devices on a
// shared scheduler and drives the run. It is the only concurrency boundary
// in the core: every event dispatch happens under its write lock, and all
// snapshot accessors copy state under the read lock, so a presentation
// thread may poll while the run advances on a worker.
type Simulation struct {
	mu sync.RWMutex

	cfg     SimulationConfig
	sched   *Scheduler
	rng     *rand.Rand
	env     *Environment
	gateway *Gateway
	devices []*Device
	byName  map[string]*Device
	em      emitter
}

// NewSimulation validates cfg, builds all components, and schedules their
// initial events. Nothing runs until Run or AdvanceTo.
func NewSimulation(cfg SimulationConfig) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}

	s := &Simulation{
		cfg:    cfg,
		sched:  NewScheduler(),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		byName: make(map[string]*Device, len(cfg.Devices)),
	}
	notify := s.em.emit

	s.env = NewEnvironment(s.sched, s.rng, cfg.Season, cfg.VegetationDensity, cfg.StartHour)
	s.env.notify = notify

	s.gateway = NewGateway(s.sched, s.rng, s.env)
	s.gateway.notify = notify

	budget := DefaultLinkBudget()
	for i, dc := range cfg.Devices {
		if dc.ID == 0 {
			dc.ID = i + 1
		}
		d := NewDevice(s.sched, s.rng, s.env, s.gateway, budget, dc)
		d.notify = notify
		d.sensor.notify = notify
		s.devices = append(s.devices, d)
		s.byName[d.Name()] = d
		s.gateway.RegisterDevice(d)
	}

	s.env.Start()
	s.gateway.Start()
	for _, d := range s.devices {
		d.Start()
	}
	return s, nil
}

// Subscribe registers an observer for domain events. Observers run
// synchronously inside the dispatch loop; subscribe before driving the
// run.
func (s *Simulation) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.em.subscribe(o)
}

// Run advances the simulation to its configured horizon.
func (s *Simulation) Run() {
	s.AdvanceTo(s.cfg.HorizonS)
}

// AdvanceTo dispatches events up to and including simulated time t. Each
// event runs under the write lock, so snapshot readers interleave safely.
// Stopping early has no side effects on recorded history.
func (s *Simulation) AdvanceTo(t float64) {
	if t > s.cfg.HorizonS {
		t = s.cfg.HorizonS
	}
	for {
		s.mu.Lock()
		ok := s.sched.Step(t)
		s.mu.Unlock()
		if !ok {
			return
		}
	}
}

// Now returns the current simulated time in seconds.
func (s *Simulation) Now() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched.Now()
}

// Horizon returns the configured end of the run in simulated seconds.
func (s *Simulation) Horizon() float64 { return s.cfg.HorizonS }

// DeviceNames lists devices in configuration order.
func (s *Simulation) DeviceNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.devices))
	for i, d := range s.devices {
		names[i] = d.Name()
	}
	return names
}

// NetworkStats returns the derived metrics of every registered device.
func (s *Simulation) NetworkStats() map[string]model.DeviceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gateway.Stats()
}

// DeviceStats returns the derived metrics of one device.
func (s *Simulation) DeviceStats(name string) (model.DeviceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byName[name]
	if !ok {
		return model.DeviceStats{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}
	return d.Stats(), nil
}

// DeviceHistory returns a copy of one device's cycle log.
func (s *Simulation) DeviceHistory(name string) ([]model.CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}
	return d.History(), nil
}

// GatewayPackets returns a copy of the gateway's received-packet log.
func (s *Simulation) GatewayPackets() []model.PacketRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gateway.Received()
}

// GatewayUptime returns the gateway's current availability in percent.
func (s *Simulation) GatewayUptime() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gateway.Uptime()
}

// Environment returns a rounded snapshot of the current weather.
func (s *Simulation) Environment() model.EnvironmentConditions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.env.Conditions()
}

// ReconfigureDevice applies a partial radio change to the named device,
// effective from its next cycle. Out-of-range values are rejected.
func (s *Simulation) ReconfigureDevice(name string, patch model.RadioConfigPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}
	return d.Reconfigure(patch)
}

// InjectRain forces a rain episode of the given intensity (mm/h) and
// duration (simulated seconds), for scenario scripting.
func (s *Simulation) InjectRain(intensity, duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env.StartRain(intensity, duration)
}
