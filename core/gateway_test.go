package core

import (
	"math/rand"
	"testing"

	"github.com/signalsfoundry/loranet-simulator/model"
)

func newTestGateway(seed int64) (*Gateway, *Environment, *Scheduler) {
	sched := NewScheduler()
	rng := rand.New(rand.NewSource(seed))
	env := NewEnvironment(sched, rng, model.SeasonRainy, 0, 0)
	gw := NewGateway(sched, rng, env)
	return gw, env, sched
}

func TestGatewayReceiveNominal(t *testing.T) {
	gw, env, sched := newTestGateway(1)
	rng := rand.New(rand.NewSource(2))
	d := NewDevice(sched, rng, env, gw, DefaultLinkBudget(), DeviceConfig{
		ID: 4, Name: "node-4", DistanceM: 150, Radio: model.DefaultRadioConfig(),
	})
	env.isRaining = true
	env.rainIntensity = 12.34

	gw.receive(&Delivery{
		Gateway:     gw,
		Device:      d,
		Temperature: 27.5,
		RSSI:        -91.2,
		SNR:         4.1,
		LatencyS:    0.25,
	})

	recs := gw.Received()
	if len(recs) != 1 {
		t.Fatalf("received %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ID == "" {
		t.Error("packet record has no ID")
	}
	if rec.DeviceID != 4 || rec.DeviceName != "node-4" {
		t.Errorf("device identity = (%d, %q), want (4, node-4)", rec.DeviceID, rec.DeviceName)
	}
	if rec.Temperature != 27.5 || rec.RSSI != -91.2 || rec.SNR != 4.1 {
		t.Errorf("measurement fields not carried through: %+v", rec)
	}
	if rec.LatencyMs != 250 {
		t.Errorf("latency = %v ms, want 250", rec.LatencyMs)
	}
	if rec.SpreadingFactor != 7 || rec.BandwidthKHz != 125 || rec.CodingRate != 5 {
		t.Errorf("radio snapshot wrong: %+v", rec)
	}
	if !rec.Environment.IsRaining || rec.Environment.RainIntensity != 12.3 {
		t.Errorf("environment snapshot wrong: %+v", rec.Environment)
	}
}

func TestGatewayDropsDuringOutage(t *testing.T) {
	gw, env, sched := newTestGateway(3)
	rng := rand.New(rand.NewSource(4))
	d := NewDevice(sched, rng, env, gw, DefaultLinkBudget(), DeviceConfig{
		ID: 1, Name: "node-1", DistanceM: 100, Radio: model.DefaultRadioConfig(),
	})

	var drops int
	gw.notify = func(ev DomainEvent) {
		if ev.Type == EvGatewayDropped {
			drops++
		}
	}

	gw.uptime = 0
	for i := 0; i < 20; i++ {
		gw.receive(&Delivery{Gateway: gw, Device: d, Temperature: 25})
	}

	if len(gw.Received()) != 0 {
		t.Errorf("gateway at 0%% uptime accepted %d packets", len(gw.Received()))
	}
	if drops != 20 {
		t.Errorf("got %d drop events, want 20", drops)
	}
}

func TestGatewayStormOutageAndRecovery(t *testing.T) {
	gw, env, sched := newTestGateway(11)
	env.isRaining = true
	env.rainIntensity = 30
	env.humidity = 85 // keep the degraded branch out of the picture

	var outageAt, restoredAt float64 = -1, -1
	gw.notify = func(ev DomainEvent) {
		switch ev.Type {
		case EvGatewayOutage:
			if outageAt < 0 {
				outageAt = ev.Time
			}
		case EvGatewayRestored:
			if restoredAt < 0 {
				restoredAt = ev.Time
			}
		case EvGatewayDegraded:
			t.Fatalf("degraded event at humidity %.0f", env.Humidity())
		}
	}

	gw.Start()
	for sched.Step(48 * 3600) {
		if gw.Uptime() < 0 || gw.Uptime() > 100 {
			t.Fatalf("uptime %.2f out of [0,100] at t=%.0f", gw.Uptime(), sched.Now())
		}
		if outageAt >= 0 && restoredAt < 0 && gw.Uptime() != 0 {
			t.Fatalf("uptime %.2f during an active outage at t=%.0f", gw.Uptime(), sched.Now())
		}
		if restoredAt >= 0 {
			break
		}
	}

	if outageAt < 0 {
		t.Fatal("no storm outage in 48 simulated hours of 30 mm/h rain")
	}
	if restoredAt < 0 {
		t.Fatal("outage never recovered")
	}
	downtime := restoredAt - outageAt
	if downtime < 5*60 || downtime > 20*60 {
		t.Errorf("outage lasted %.0f s, want 5..20 minutes", downtime)
	}
	if gw.Uptime() != 100 {
		t.Errorf("uptime = %.2f after recovery, want 100", gw.Uptime())
	}
}

func TestGatewayDegradedUnderHumidity(t *testing.T) {
	gw, env, sched := newTestGateway(13)
	env.isRaining = false
	env.rainIntensity = 0
	env.humidity = 95

	var degradedAt, restoredAt float64 = -1, -1
	var degradedUptime float64
	gw.notify = func(ev DomainEvent) {
		switch ev.Type {
		case EvGatewayDegraded:
			if degradedAt < 0 {
				degradedAt = ev.Time
				degradedUptime = ev.Fields["uptime"].(float64)
			}
		case EvGatewayRestored:
			if restoredAt < 0 {
				restoredAt = ev.Time
			}
		}
	}

	gw.Start()
	for sched.Step(96 * 3600) {
		if restoredAt >= 0 {
			break
		}
	}

	if degradedAt < 0 {
		t.Fatal("no degraded period in 96 simulated hours above 90% humidity")
	}
	if degradedUptime < 70 || degradedUptime >= 90 {
		t.Errorf("degraded uptime = %.2f, want [70,90)", degradedUptime)
	}
	if restoredAt-degradedAt != 30*60 {
		t.Errorf("degraded period lasted %.0f s, want exactly 1800", restoredAt-degradedAt)
	}
}
