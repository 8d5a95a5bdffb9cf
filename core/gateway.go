package core

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/signalsfoundry/loranet-simulator/model"
)

// GatewayCheckInterval is how often gateway availability is re-evaluated,
// in simulated seconds.
const GatewayCheckInterval = 900.0

// Delivery is the payload of an EventPacketDelivery: a packet in flight
// between a device's transmit decision and the gateway's receive check.
type Delivery struct {
	Gateway     *Gateway
	Device      *Device
	Temperature float64
	RSSI        float64
	SNR         float64
	LatencyS    float64
}

// Gateway is the sink of the network. Its availability degrades
// stochastically with the weather: storms can knock it out entirely,
// sustained high humidity degrades it. While below nominal uptime it
// silently drops a share of arriving packets; devices never learn about
// those drops (there is no acknowledgment path), so gateway-side losses
// are invisible to device-side PDR by design.
type Gateway struct {
	sched  *Scheduler
	rng    *rand.Rand
	env    *Environment
	notify func(DomainEvent)

	devices  []*Device
	received []model.PacketRecord
	uptime   float64 // percent, [0,100]
}

// NewGateway builds the gateway against the shared environment.
func NewGateway(sched *Scheduler, rng *rand.Rand, env *Environment) *Gateway {
	g := &Gateway{
		sched:  sched,
		rng:    rng,
		env:    env,
		uptime: 100,
	}
	sched.Handle(EventGatewayCheck, func(ev ScheduledEvent) {
		ev.Payload.(*Gateway).checkAvailability()
	})
	sched.Handle(EventGatewayRestore, func(ev ScheduledEvent) {
		ev.Payload.(*Gateway).restore()
	})
	sched.Handle(EventPacketDelivery, func(ev ScheduledEvent) {
		del := ev.Payload.(*Delivery)
		del.Gateway.receive(del)
	})
	return g
}

// Start schedules the first availability check.
func (g *Gateway) Start() {
	g.sched.MustSchedule(GatewayCheckInterval, EventGatewayCheck, g)
}

// RegisterDevice adds a device to the authoritative registry used by
// Stats. Registration order is preserved.
func (g *Gateway) RegisterDevice(d *Device) {
	g.devices = append(g.devices, d)
}

// Uptime returns the current availability in percent.
func (g *Gateway) Uptime() float64 { return g.uptime }

// checkAvailability runs the NOMINAL / STORM_OUTAGE / DEGRADED sub-state
// machine. The next check is scheduled 900 s after any recovery completes,
// so an outage is never re-rolled while still in effect.
func (g *Gateway) checkAvailability() {
	now := g.sched.Now()
	switch {
	case g.env.IsRaining() && g.env.RainIntensity() > 25 && g.rng.Float64() < 0.2:
		downtime := (5 + g.rng.Float64()*15) * 60 // 5..20 minutes
		g.uptime = 0
		g.publish(DomainEvent{
			Time: now,
			Type: EvGatewayOutage,
			Fields: map[string]any{
				"duration_minutes": downtime / 60,
				"rain_mmh":         round1(g.env.RainIntensity()),
			},
		})
		g.sched.MustSchedule(downtime, EventGatewayRestore, g)
		g.sched.MustSchedule(downtime+GatewayCheckInterval, EventGatewayCheck, g)

	case g.env.Humidity() > 90 && g.rng.Float64() < 0.1:
		g.uptime = 70 + g.rng.Float64()*20
		g.publish(DomainEvent{
			Time: now,
			Type: EvGatewayDegraded,
			Fields: map[string]any{
				"uptime":   g.uptime,
				"humidity": round1(g.env.Humidity()),
			},
		})
		g.sched.MustSchedule(30*60, EventGatewayRestore, g)
		g.sched.MustSchedule(30*60+GatewayCheckInterval, EventGatewayCheck, g)

	default:
		g.sched.MustSchedule(GatewayCheckInterval, EventGatewayCheck, g)
	}
}

func (g *Gateway) restore() {
	if g.uptime == 100 {
		return
	}
	g.uptime = 100
	g.publish(DomainEvent{Time: g.sched.Now(), Type: EvGatewayRestored})
}

// receive is the delivery endpoint. Below nominal uptime a uniform draw
// above uptime/100 silently discards the packet; otherwise it is appended
// to the received log with the full environment snapshot attached.
func (g *Gateway) receive(del *Delivery) {
	if g.uptime < 100 && g.rng.Float64() > g.uptime/100 {
		g.publish(DomainEvent{
			Time:   g.sched.Now(),
			Type:   EvGatewayDropped,
			Device: del.Device.Name(),
			Fields: map[string]any{"uptime": g.uptime},
		})
		return
	}

	radio := del.Device.Radio()
	rec := model.PacketRecord{
		ID:              uuid.Must(uuid.NewRandomFromReader(g.rng)).String(),
		Time:            g.sched.Now(),
		DeviceID:        del.Device.ID(),
		DeviceName:      del.Device.Name(),
		Temperature:     del.Temperature,
		RSSI:            del.RSSI,
		SNR:             del.SNR,
		LatencyMs:       del.LatencyS * 1000,
		SpreadingFactor: radio.SpreadingFactor,
		BandwidthKHz:    radio.BandwidthKHz,
		CodingRate:      radio.CodingRate,
		Environment:     g.env.Conditions(),
	}
	g.received = append(g.received, rec)
	g.publish(DomainEvent{
		Time:   rec.Time,
		Type:   EvGatewayReceived,
		Device: rec.DeviceName,
		Fields: map[string]any{
			"temperature": rec.Temperature,
			"rssi":        rec.RSSI,
			"snr":         rec.SNR,
			"latency_ms":  rec.LatencyMs,
		},
	})
}

// Received returns a copy of the received-packet log.
func (g *Gateway) Received() []model.PacketRecord {
	out := make([]model.PacketRecord, len(g.received))
	copy(out, g.received)
	return out
}

// Stats returns the derived metric set for every registered device.
func (g *Gateway) Stats() map[string]model.DeviceStats {
	stats := make(map[string]model.DeviceStats, len(g.devices))
	for _, d := range g.devices {
		stats[d.Name()] = d.Stats()
	}
	return stats
}

func (g *Gateway) publish(ev DomainEvent) {
	if g.notify != nil {
		g.notify(ev)
	}
}
