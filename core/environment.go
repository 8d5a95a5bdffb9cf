package core

import (
	"math"
	"math/rand"

	"github.com/signalsfoundry/loranet-simulator/model"
)

// EnvironmentInterval is how often the weather state is recomputed, in
// simulated seconds.
const EnvironmentInterval = 600

// SeasonParams are the climate baselines fixed by the season at
// construction. They are immutable for the lifetime of a simulation.
type SeasonParams struct {
	BaseTemp          float64 // °C
	TempVariation     float64 // diurnal amplitude, °C
	BaseHumidity      float64 // %
	HumidityVariation float64 // %
	RainProbability   float64
	MaxRainIntensity  float64 // mm/h
}

func seasonParams(season model.Season) SeasonParams {
	if season == model.SeasonRainy {
		return SeasonParams{
			BaseTemp:          28.0,
			TempVariation:     3.5,
			BaseHumidity:      90.0,
			HumidityVariation: 8.0,
			RainProbability:   0.65,
			MaxRainIntensity:  35.0,
		}
	}
	return SeasonParams{
		BaseTemp:          32.0,
		TempVariation:     6.5,
		BaseHumidity:      70.0,
		HumidityVariation: 15.0,
		RainProbability:   0.15,
		MaxRainIntensity:  15.0,
	}
}

// Environment owns the weather state. It is the single writer: every 600
// simulated seconds its tick event recomputes temperature and humidity and
// rolls for rain onset; consumers (devices, sensors, gateway) only read.
type Environment struct {
	sched  *Scheduler
	rng    *rand.Rand
	notify func(DomainEvent)

	season     model.Season
	params     SeasonParams
	vegetation float64 // [0,1], 0 open field .. 1 dense canopy
	startHour  float64 // hour of day at simulated t=0

	temperature   float64
	humidity      float64
	isRaining     bool
	rainIntensity float64
}

// NewEnvironment builds the weather process. It registers its event
// handlers but does not enqueue anything until Start.
func NewEnvironment(sched *Scheduler, rng *rand.Rand, season model.Season, vegetation, startHour float64) *Environment {
	p := seasonParams(season)
	e := &Environment{
		sched:       sched,
		rng:         rng,
		season:      season,
		params:      p,
		vegetation:  vegetation,
		startHour:   startHour,
		temperature: p.BaseTemp,
		humidity:    p.BaseHumidity,
	}
	sched.Handle(EventEnvironmentTick, func(ev ScheduledEvent) {
		ev.Payload.(*Environment).tick()
	})
	sched.Handle(EventEndRain, func(ev ScheduledEvent) {
		ev.Payload.(*Environment).endRain()
	})
	return e
}

// Start schedules the first weather update.
func (e *Environment) Start() {
	e.sched.MustSchedule(EnvironmentInterval, EventEnvironmentTick, e)
}

func (e *Environment) tick() {
	// Diurnal temperature cycle over the simulated day. The sine peaks
	// around midday; outside air lags behind, which the sensors model
	// with thermal inertia.
	hour := math.Mod(e.startHour+e.sched.Now()/3600.0, 24)
	diurnal := math.Sin((hour - 6) * math.Pi / 12)

	e.temperature = e.params.BaseTemp +
		diurnal*e.params.TempVariation +
		e.uniform(-0.5, 0.5)

	// Humidity runs inverse to the diurnal factor. Clamped to [40,100]:
	// this climate never dries out further, and 100% is physical.
	humidity := e.params.BaseHumidity -
		diurnal*e.params.HumidityVariation +
		e.uniform(-3.0, 3.0)
	e.humidity = math.Max(40, math.Min(100, humidity))

	// Rain onset is a Bernoulli trial scaled by how saturated the air is.
	humidityFactor := math.Max(0, (e.humidity-60)/40)
	if e.rng.Float64() < e.params.RainProbability*humidityFactor {
		intensity := e.uniform(2.0, e.params.MaxRainIntensity)
		durationMin := 10 + e.rng.Intn(171) // 10..180 minutes
		e.StartRain(intensity, float64(durationMin)*60)
	}

	e.sched.MustSchedule(EnvironmentInterval, EventEnvironmentTick, e)
}

// StartRain begins a rain episode of the given intensity (mm/h) lasting
// duration simulated seconds, after which a scheduled event clears it.
// Exposed so scenarios and tests can inject weather directly.
func (e *Environment) StartRain(intensity, duration float64) {
	e.isRaining = true
	e.rainIntensity = intensity
	e.sched.MustSchedule(duration, EventEndRain, e)
	e.publish(DomainEvent{
		Time: e.sched.Now(),
		Type: EvRainStarted,
		Fields: map[string]any{
			"intensity_mmh":    intensity,
			"duration_minutes": duration / 60,
		},
	})
}

func (e *Environment) endRain() {
	if !e.isRaining {
		return
	}
	e.isRaining = false
	e.rainIntensity = 0
	e.publish(DomainEvent{Time: e.sched.Now(), Type: EvRainStopped})
}

// AttenuationFactor is the aggregate RF penalty (dB) from rain, humidity
// above 50%, and vegetation density. Pure read; consumed by the link
// budget on every device cycle.
func (e *Environment) AttenuationFactor() float64 {
	var rain float64
	if e.isRaining {
		rain = e.rainIntensity * 0.2
	}
	humidity := math.Max(0, e.humidity-50) * 0.05
	return rain + humidity + e.vegetation*5
}

// Season reports the immutable season this environment was built with.
func (e *Environment) Season() model.Season { return e.season }

// Temperature returns the current ambient temperature in °C.
func (e *Environment) Temperature() float64 { return e.temperature }

// Humidity returns the current relative humidity in %.
func (e *Environment) Humidity() float64 { return e.humidity }

// IsRaining reports whether a rain episode is active.
func (e *Environment) IsRaining() bool { return e.isRaining }

// RainIntensity returns the active rain intensity in mm/h, 0 when dry.
func (e *Environment) RainIntensity() float64 { return e.rainIntensity }

// Conditions returns a rounded read-only snapshot of the current weather.
func (e *Environment) Conditions() model.EnvironmentConditions {
	var rain float64
	if e.isRaining {
		rain = round1(e.rainIntensity)
	}
	return model.EnvironmentConditions{
		Time:          e.sched.Now(),
		Temperature:   round1(e.temperature),
		Humidity:      round1(e.humidity),
		IsRaining:     e.isRaining,
		RainIntensity: rain,
		AttenuationDB: math.Round(e.AttenuationFactor()*100) / 100,
	}
}

func (e *Environment) publish(ev DomainEvent) {
	if e.notify != nil {
		e.notify(ev)
	}
}

func (e *Environment) uniform(lo, hi float64) float64 {
	return lo + e.rng.Float64()*(hi-lo)
}

// round1 rounds to one decimal digit, the precision this class of sensor
// and radio reports at.
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
