package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/loranet-simulator/core"
)

// SimCollector bundles Prometheus metrics for one simulation run. It is fed
// exclusively through its Observer, so it stays a passive subscriber of the
// domain event stream and never reaches into simulation state.
type SimCollector struct {
	gatherer prometheus.Gatherer

	TransmissionsTotal  *prometheus.CounterVec
	GatewayPacketsTotal *prometheus.CounterVec
	RainEpisodesTotal   prometheus.Counter
	SensorFailuresTotal *prometheus.CounterVec

	GatewayUptime prometheus.Gauge
	DeviceBattery *prometheus.GaugeVec
	SimulatedTime prometheus.Gauge

	TransmitLatency *prometheus.HistogramVec
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	transmissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_transmissions_total",
		Help: "Device-side transmission outcomes, labeled by device and outcome (success, lost, fault_skip).",
	}, []string{"device", "outcome"})
	transmissions, err := registerCounterVec(reg, transmissions, "sim_transmissions_total")
	if err != nil {
		return nil, err
	}

	gatewayPackets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_gateway_packets_total",
		Help: "Gateway-side packet outcomes, labeled by device and outcome (received, dropped).",
	}, []string{"device", "outcome"})
	gatewayPackets, err = registerCounterVec(reg, gatewayPackets, "sim_gateway_packets_total")
	if err != nil {
		return nil, err
	}

	rain, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_rain_episodes_total",
		Help: "Number of rain episodes started, injected ones included.",
	}), "sim_rain_episodes_total")
	if err != nil {
		return nil, err
	}

	sensorFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_sensor_failures_total",
		Help: "Sensor malfunction episodes, labeled by device.",
	}, []string{"device"})
	sensorFailures, err = registerCounterVec(reg, sensorFailures, "sim_sensor_failures_total")
	if err != nil {
		return nil, err
	}

	uptime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_gateway_uptime_percent",
		Help: "Current gateway availability in percent.",
	}), "sim_gateway_uptime_percent")
	if err != nil {
		return nil, err
	}
	uptime.Set(100)

	battery := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_device_battery_percent",
		Help: "Last reported battery level per device.",
	}, []string{"device"})
	battery, err = registerGaugeVec(reg, battery, "sim_device_battery_percent")
	if err != nil {
		return nil, err
	}

	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_time_seconds",
		Help: "Simulated time of the most recent domain event.",
	}), "sim_time_seconds")
	if err != nil {
		return nil, err
	}

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_transmit_latency_seconds",
		Help:    "End-to-end packet latency (airtime plus network delay) for successful transmissions.",
		Buckets: []float64{0.025, 0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.75, 1},
	}, []string{"device"})
	latency, err = registerHistogramVec(reg, latency, "sim_transmit_latency_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:            gatherer,
		TransmissionsTotal:  transmissions,
		GatewayPacketsTotal: gatewayPackets,
		RainEpisodesTotal:   rain,
		SensorFailuresTotal: sensorFailures,
		GatewayUptime:       uptime,
		DeviceBattery:       battery,
		SimulatedTime:       simTime,
		TransmitLatency:     latency,
	}, nil
}

// Observer returns the domain event subscriber that keeps the metrics
// current. Subscribe it before driving the run.
func (c *SimCollector) Observer() core.Observer {
	return func(ev core.DomainEvent) {
		if c == nil {
			return
		}
		c.SimulatedTime.Set(ev.Time)

		switch ev.Type {
		case core.EvTransmitSuccess:
			c.TransmissionsTotal.WithLabelValues(ev.Device, "success").Inc()
			if v, ok := ev.Fields["battery"].(float64); ok {
				c.DeviceBattery.WithLabelValues(ev.Device).Set(v)
			}
			if v, ok := ev.Fields["latency_ms"].(float64); ok {
				c.TransmitLatency.WithLabelValues(ev.Device).Observe(v / 1000)
			}
		case core.EvTransmitLost:
			c.TransmissionsTotal.WithLabelValues(ev.Device, "lost").Inc()
		case core.EvSensorFaultSkip:
			c.TransmissionsTotal.WithLabelValues(ev.Device, "fault_skip").Inc()
		case core.EvGatewayReceived:
			c.GatewayPacketsTotal.WithLabelValues(ev.Device, "received").Inc()
		case core.EvGatewayDropped:
			c.GatewayPacketsTotal.WithLabelValues(ev.Device, "dropped").Inc()
		case core.EvRainStarted:
			c.RainEpisodesTotal.Inc()
		case core.EvSensorFailed:
			c.SensorFailuresTotal.WithLabelValues(ev.Device).Inc()
		case core.EvGatewayOutage:
			c.GatewayUptime.Set(0)
		case core.EvGatewayDegraded:
			if v, ok := ev.Fields["uptime"].(float64); ok {
				c.GatewayUptime.Set(v)
			}
		case core.EvGatewayRestored:
			c.GatewayUptime.Set(100)
		}
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
