package core

// Domain event types emitted by the simulation. State transitions publish
// these; narration, metrics, and external forwarders are pure subscribers
// and never sit inline with the simulation logic.
const (
	EvRainStarted      = "rain_started"
	EvRainStopped      = "rain_stopped"
	EvSensorFailed     = "sensor_malfunction"
	EvSensorRecovered  = "sensor_recovered"
	EvSensorFaultSkip  = "sensor_fault_skip"
	EvTransmitSuccess  = "transmit_success"
	EvTransmitLost     = "transmit_lost"
	EvPowerSupplyFault = "power_supply_fault"
	EvLowBattery       = "low_battery"
	EvGatewayOutage    = "gateway_storm_outage"
	EvGatewayDegraded  = "gateway_degraded"
	EvGatewayRestored  = "gateway_restored"
	EvGatewayReceived  = "gateway_received"
	EvGatewayDropped   = "gateway_dropped"
	EvReconfigured     = "device_reconfigured"
)

// DomainEvent is a structured record of a state transition: a kind plus
// the fields a subscriber needs to narrate or count it.
type DomainEvent struct {
	Time   float64        `json:"time"` // simulated seconds
	Type   string         `json:"type"`
	Device string         `json:"device,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Observer consumes domain events. Observers run synchronously inside the
// dispatch loop and must not block.
type Observer func(ev DomainEvent)

// emitter fans events out to subscribers. The zero value drops everything,
// so components can emit unconditionally.
type emitter struct {
	observers []Observer
}

func (e *emitter) subscribe(o Observer) {
	e.observers = append(e.observers, o)
}

func (e *emitter) emit(ev DomainEvent) {
	for _, o := range e.observers {
		o(ev)
	}
}
