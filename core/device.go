package core

import (
	"math"
	"math/rand"

	"github.com/signalsfoundry/loranet-simulator/model"
)

// DeviceConfig describes one sensor node at construction time.
type DeviceConfig struct {
	ID          int
	Name        string
	DistanceM   float64 // to the gateway
	InitialTemp float64
	Radio       model.RadioConfig
	TxIntervalS float64 // 0 means the 300 s default
}

// DefaultTxInterval is the time between transmit cycles in simulated
// seconds.
const DefaultTxInterval = 300.0

// Device is one battery-powered sensor node. Every txInterval it runs a
// cycle: read the sensor, run the link budget, account energy, and either
// transmit (scheduling a gateway delivery after the simulated airtime) or
// record the loss. All mutation happens inside the dispatch loop; external
// readers go through the orchestrator's snapshot accessors.
type Device struct {
	sched   *Scheduler
	rng     *rand.Rand
	env     *Environment
	gateway *Gateway
	budget  *LinkBudget
	notify  func(DomainEvent)

	id         int
	name       string
	distanceM  float64
	radio      model.RadioConfig
	txInterval float64
	sensor     *Sensor

	battery        float64 // percent, clamped [0,100]
	drainRate      float64 // percent per unit of scaled energy
	hasPowerIssues bool
	lowBatteryWarn bool

	packetsSent     int
	packetsReceived int
	energyUsed      float64 // mWh, monotonically non-decreasing
	lastRSSI        float64
	lastSNR         float64
	lastRecSF       int
	latencies       []float64 // seconds, delivered packets only

	history []model.CycleRecord
}

// NewDevice builds a device and its sensor against the shared environment.
// The radio configuration must already be valid.
func NewDevice(sched *Scheduler, rng *rand.Rand, env *Environment, gw *Gateway, budget *LinkBudget, cfg DeviceConfig) *Device {
	interval := cfg.TxIntervalS
	if interval <= 0 {
		interval = DefaultTxInterval
	}
	d := &Device{
		sched:      sched,
		rng:        rng,
		env:        env,
		gateway:    gw,
		budget:     budget,
		id:         cfg.ID,
		name:       cfg.Name,
		distanceM:  cfg.DistanceM,
		radio:      cfg.Radio,
		txInterval: interval,
		sensor:     NewSensor(sched, rng, env, cfg.Name, cfg.InitialTemp),
		battery:    100,
		drainRate:  0.01,
		lastRecSF:  cfg.Radio.SpreadingFactor,
	}
	sched.Handle(EventDeviceCycle, func(ev ScheduledEvent) {
		ev.Payload.(*Device).runCycle()
	})
	return d
}

// Start schedules the first transmit cycle one interval from now.
func (d *Device) Start() {
	d.sched.MustSchedule(d.txInterval, EventDeviceCycle, d)
}

// ID returns the numeric device identifier.
func (d *Device) ID() int { return d.id }

// Name returns the device name used for lookups and diagnostics.
func (d *Device) Name() string { return d.name }

// Radio returns the current radio configuration.
func (d *Device) Radio() model.RadioConfig { return d.radio }

// Reconfigure applies a partial radio change, rejecting out-of-range
// values. The new configuration takes effect on the next cycle.
func (d *Device) Reconfigure(patch model.RadioConfigPatch) error {
	next, err := patch.Apply(d.radio)
	if err != nil {
		return err
	}
	d.radio = next
	d.publish(DomainEvent{
		Time:   d.sched.Now(),
		Type:   EvReconfigured,
		Device: d.name,
		Fields: map[string]any{
			"sf":           next.SpreadingFactor,
			"bw_khz":       next.BandwidthKHz,
			"cr":           next.CodingRate,
			"tx_power_dbm": next.TxPowerDBm,
		},
	})
	return nil
}

// runCycle is one pass of the SLEEP → SENSE → LINK_BUDGET →
// {TRANSMIT_SUCCESS | TRANSMIT_LOST | SENSOR_FAULT} machine.
func (d *Device) runCycle() {
	d.sched.MustSchedule(d.txInterval, EventDeviceCycle, d)
	now := d.sched.Now()

	// SENSE
	reading, ok := d.sensor.Read()

	// LINK_BUDGET
	est := d.budget.Estimate(d.radio, d.distanceM, d.env, d.battery, d.rng)
	d.lastRecSF = est.RecommendedSF

	// Energy accounting: one transmission plus the sleep period behind it.
	ambient := d.env.Temperature()
	txEnergy := TransmitEnergyMWh(d.radio, est.AirtimeS, ambient)
	if d.env.Humidity() > 90 && d.rng.Float64() < 0.05 {
		// Condensation on the supply rail: inconsistent draw.
		if !d.hasPowerIssues {
			d.hasPowerIssues = true
			d.publish(DomainEvent{Time: now, Type: EvPowerSupplyFault, Device: d.name})
		}
		txEnergy *= 1.5 + d.rng.Float64()
	} else {
		d.hasPowerIssues = false
	}
	energy := txEnergy + SleepEnergyMWh(math.Max(d.txInterval-est.AirtimeS, 0), ambient)
	d.energyUsed += energy
	d.updateBattery(energy)

	// An attempt is an attempt: the sent counter and the history row are
	// recorded whether or not anything leaves the antenna.
	d.packetsSent++
	latency := est.AirtimeS + d.rng.Float64()*0.5

	var tempPtr *float64
	if ok {
		v := reading
		tempPtr = &v
	}
	var rain float64
	if d.env.IsRaining() {
		rain = round1(d.env.RainIntensity())
	}
	d.history = append(d.history, model.CycleRecord{
		Time:          now,
		Temperature:   tempPtr,
		Humidity:      round1(d.env.Humidity()),
		RainIntensity: rain,
		RSSI:          est.RSSI,
		SNR:           est.SNR,
		LatencyMs:     latency * 1000,
		EnergyMWh:     d.energyUsed,
	})

	// SENSOR_FAULT: nothing to transmit this cycle.
	if !ok {
		d.publish(DomainEvent{Time: now, Type: EvSensorFaultSkip, Device: d.name})
		return
	}

	if d.rng.Float64() > est.LossProbability {
		// TRANSMIT_SUCCESS. The device has no acknowledgment channel: it
		// counts the packet as delivered now, even if the gateway later
		// drops it while unavailable.
		d.packetsReceived++
		d.lastRSSI = est.RSSI
		d.lastSNR = est.SNR
		d.latencies = append(d.latencies, latency)
		d.sched.MustSchedule(latency, EventPacketDelivery, &Delivery{
			Gateway:     d.gateway,
			Device:      d,
			Temperature: reading,
			RSSI:        est.RSSI,
			SNR:         est.SNR,
			LatencyS:    latency,
		})
		d.publish(DomainEvent{
			Time:   now,
			Type:   EvTransmitSuccess,
			Device: d.name,
			Fields: map[string]any{
				"rssi":             est.RSSI,
				"snr":              est.SNR,
				"latency_ms":       latency * 1000,
				"battery":          d.battery,
				"loss_probability": est.LossProbability,
			},
		})
		return
	}

	// TRANSMIT_LOST. The cause is diagnostic only; it never feeds back
	// into the simulation state.
	d.publish(DomainEvent{
		Time:   now,
		Type:   EvTransmitLost,
		Device: d.name,
		Fields: map[string]any{
			"cause":            d.classifyLoss(),
			"loss_probability": est.LossProbability,
		},
	})
}

func (d *Device) updateBattery(energyMWh float64) {
	drain := d.drainRate * (energyMWh * 30)
	if t := d.env.Temperature(); t > 32 {
		drain *= 1 + (t-32)*0.1
	}
	d.battery = math.Max(0, math.Min(100, d.battery-drain))

	if d.battery < 20 && !d.lowBatteryWarn {
		d.lowBatteryWarn = true
		d.publish(DomainEvent{
			Time:   d.sched.Now(),
			Type:   EvLowBattery,
			Device: d.name,
			Fields: map[string]any{"battery": d.battery},
		})
	}
}

// classifyLoss picks the most plausible loss cause, by priority.
func (d *Device) classifyLoss() string {
	switch {
	case d.env.IsRaining() && d.env.RainIntensity() > 20:
		return "heavy rain"
	case d.env.Humidity() > 90:
		return "high humidity"
	case d.distanceM > 300 && d.radio.SpreadingFactor < 10:
		return "distance/SF mismatch"
	case d.battery < 15:
		return "low battery"
	default:
		return "unknown"
	}
}

// Stats derives the read-only metric set. Ratio metrics are 0 when no
// packets have been sent; jitter is 0 with fewer than two deliveries.
func (d *Device) Stats() model.DeviceStats {
	var pdr, plr float64
	if d.packetsSent > 0 {
		pdr = float64(d.packetsReceived) / float64(d.packetsSent)
		plr = 1 - pdr
	}
	return model.DeviceStats{
		DeviceID:        d.id,
		Name:            d.name,
		DistanceM:       d.distanceM,
		PacketsSent:     d.packetsSent,
		PacketsReceived: d.packetsReceived,
		PDR:             pdr,
		PLR:             plr,
		AvgLatencyMs:    d.averageLatencyMs(),
		JitterMs:        d.jitterMs(),
		LastRSSI:        d.lastRSSI,
		LastSNR:         d.lastSNR,
		EnergyMWh:       d.energyUsed,
		AirtimeMs:       Airtime(d.radio, d.budget.PayloadBytes) * 1000,
		BatteryPercent:  d.battery,
		RecommendedSF:   d.lastRecSF,
		Radio:           d.radio,
	}
}

func (d *Device) averageLatencyMs() float64 {
	if len(d.latencies) == 0 {
		return 0
	}
	sum := 0.0
	for _, l := range d.latencies {
		sum += l
	}
	return sum * 1000 / float64(len(d.latencies))
}

func (d *Device) jitterMs() float64 {
	if len(d.latencies) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(d.latencies); i++ {
		sum += math.Abs(d.latencies[i] - d.latencies[i-1])
	}
	return sum * 1000 / float64(len(d.latencies)-1)
}

// History returns a copy of the append-only cycle log.
func (d *Device) History() []model.CycleRecord {
	out := make([]model.CycleRecord, len(d.history))
	copy(out, d.history)
	return out
}

func (d *Device) publish(ev DomainEvent) {
	if d.notify != nil {
		d.notify(ev)
	}
}
