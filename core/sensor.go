package core

import (
	"math"
	"math/rand"
)

// Sensor failure model constants.
const (
	// sensorFailureCheckInterval is the minimum simulated time between
	// malfunction rolls, in seconds.
	sensorFailureCheckInterval = 60.0
	// sensorFailureHumidityKnee is the humidity (%) above which
	// condensation can start a malfunction episode.
	sensorFailureHumidityKnee = 85.0
)

// Sensor models a DS18B20-class temperature probe attached to exactly one
// device. It tracks ambient temperature with thermal inertia and, under
// sustained high humidity, can enter a bounded malfunction episode during
// which it returns undefined or wildly wrong readings.
type Sensor struct {
	sched  *Scheduler
	rng    *rand.Rand
	env    *Environment
	notify func(DomainEvent)
	owner  string // owning device name, for diagnostics

	temperature float64
	noise       float64

	lastFailureCheck float64
	malfunctioning   bool
	malfunctionUntil float64
}

// NewSensor builds a sensor reading against env, starting at initialTemp.
func NewSensor(sched *Scheduler, rng *rand.Rand, env *Environment, owner string, initialTemp float64) *Sensor {
	s := &Sensor{
		sched:            sched,
		rng:              rng,
		env:              env,
		owner:            owner,
		temperature:      initialTemp,
		noise:            0.5,
		lastFailureCheck: -sensorFailureCheckInterval,
	}
	sched.Handle(EventSensorRecover, func(ev ScheduledEvent) {
		ev.Payload.(*Sensor).endMalfunction()
	})
	return s
}

// Read samples the sensor. ok is false for an undefined reading (the
// sensor answered garbage the ADC could not frame); a malfunctioning
// sensor may also return an in-band but wildly wrong value with ok true.
// Valid readings are rounded to one decimal digit.
func (s *Sensor) Read() (value float64, ok bool) {
	now := s.sched.Now()

	// Roll for a new malfunction episode at most once per check interval.
	if !s.malfunctioning && now-s.lastFailureCheck >= sensorFailureCheckInterval {
		s.lastFailureCheck = now
		humidity := s.env.Humidity()
		if humidity > sensorFailureHumidityKnee {
			p := math.Pow((humidity-sensorFailureHumidityKnee)/30, 3)
			if s.rng.Float64() < p {
				duration := float64(5+s.rng.Intn(26)) * 60 // 5..30 minutes
				s.malfunctioning = true
				s.malfunctionUntil = now + duration
				s.sched.MustSchedule(duration, EventSensorRecover, s)
				s.publish(DomainEvent{
					Time:   now,
					Type:   EvSensorFailed,
					Device: s.owner,
					Fields: map[string]any{
						"duration_minutes": duration / 60,
						"humidity":         round1(humidity),
					},
				})
			}
		}
	}

	if s.malfunctioning {
		if s.rng.Float64() < 0.3 {
			return 0, false
		}
		return round1(s.uniform(10, 50)), true
	}

	// Thermal inertia: the probe trails ambient, it never jumps.
	s.temperature = s.temperature*0.9 + s.env.Temperature()*0.1

	// Measurement noise doubles under rain (electrical interference on
	// the probe wire).
	noiseFactor := 1.0
	if s.env.IsRaining() {
		noiseFactor = 2.0
	}
	reading := s.temperature + s.uniform(-s.noise, s.noise)*noiseFactor
	return round1(reading), true
}

// Malfunctioning reports whether an episode is currently active.
func (s *Sensor) Malfunctioning() bool { return s.malfunctioning }

func (s *Sensor) endMalfunction() {
	if !s.malfunctioning {
		return
	}
	s.malfunctioning = false
	s.publish(DomainEvent{Time: s.sched.Now(), Type: EvSensorRecovered, Device: s.owner})
}

func (s *Sensor) publish(ev DomainEvent) {
	if s.notify != nil {
		s.notify(ev)
	}
}

func (s *Sensor) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}
