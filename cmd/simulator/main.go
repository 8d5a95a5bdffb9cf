package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/loranet-simulator/core"
	"github.com/signalsfoundry/loranet-simulator/internal/api"
	"github.com/signalsfoundry/loranet-simulator/internal/config"
	"github.com/signalsfoundry/loranet-simulator/internal/integration"
	"github.com/signalsfoundry/loranet-simulator/internal/logging"
	"github.com/signalsfoundry/loranet-simulator/internal/observability"
	"github.com/signalsfoundry/loranet-simulator/timectrl"
)

func main() {
	configPath := flag.String("config", "", "runtime configuration YAML (optional)")
	scenarioPath := flag.String("scenario", "configs/scenario.json", "scenario JSON")
	validate := flag.Bool("validate", false, "parse the scenario and config, then exit")
	seed := flag.Int64("seed", 0, "override the scenario seed (0 keeps the file value)")
	horizon := flag.Duration("horizon", 0, "override the scenario horizon (0 keeps the file value)")
	realtime := flag.Bool("realtime", false, "pace the run against the wall clock")
	speedup := flag.Float64("speedup", 0, "simulated seconds per wall second in realtime mode")
	flag.Parse()

	if err := run(*configPath, *scenarioPath, *validate, *seed, *horizon, *realtime, *speedup); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, scenarioPath string, validate bool, seed int64, horizon time.Duration, realtime bool, speedup float64) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if realtime {
		cfg.Run.Realtime = true
	}
	if speedup > 0 {
		cfg.Run.Speedup = speedup
	}

	scenario, err := core.LoadScenarioFile(scenarioPath)
	if err != nil {
		return err
	}
	if seed != 0 {
		scenario.Seed = seed
	}
	if horizon > 0 {
		scenario.HorizonS = horizon.Seconds()
	}

	if validate {
		fmt.Printf("ok: %d devices, season %s, horizon %.0f s\n",
			len(scenario.Devices), scenario.Season, scenario.HorizonS)
		return nil
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "loranet-simulator",
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	sim, err := core.NewSimulation(scenario)
	if err != nil {
		return err
	}
	sim.Subscribe(narrator(log))

	collector, err := observability.NewSimCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	sim.Subscribe(collector.Observer())

	if cfg.NATS.Enabled {
		forwarder, err := integration.NewForwarder(integration.Options{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			MaxReconnects: cfg.NATS.MaxReconnects,
		}, log)
		if err != nil {
			return err
		}
		defer forwarder.Close()
		sim.Subscribe(forwarder.Observer())
	}

	if cfg.API.Enabled {
		server := api.NewServer(sim, log, collector.Handler())
		go func() {
			if err := server.ListenAndServe(cfg.API.Addr()); err != nil {
				log.Error(ctx, "api server failed", logging.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	log.Info(ctx, "starting run",
		logging.String("scenario", scenarioPath),
		logging.Int("devices", len(scenario.Devices)),
		logging.String("season", string(scenario.Season)),
		logging.Float64("horizon_s", scenario.HorizonS),
		logging.Bool("realtime", cfg.Run.Realtime),
	)

	if cfg.Run.Realtime {
		pacer := timectrl.NewPacer(sim, 100*time.Millisecond, cfg.Run.Speedup)
		done := pacer.Start(sim.Horizon())
		select {
		case <-ctx.Done():
			pacer.Stop()
			<-done
		case <-done:
		}
	} else {
		sim.Run()
	}

	printSummary(sim)
	return nil
}

// narrator logs domain events as they happen, one line per event.
func narrator(log logging.Logger) core.Observer {
	ctx := context.Background()
	return func(ev core.DomainEvent) {
		fields := []logging.Field{logging.Float64("t", ev.Time)}
		if ev.Device != "" {
			fields = append(fields, logging.String("device", ev.Device))
		}
		for k, v := range ev.Fields {
			fields = append(fields, logging.Any(k, v))
		}
		switch ev.Type {
		case core.EvTransmitSuccess, core.EvGatewayReceived:
			log.Debug(ctx, ev.Type, fields...)
		case core.EvGatewayOutage, core.EvGatewayDropped, core.EvSensorFailed,
			core.EvPowerSupplyFault, core.EvLowBattery:
			log.Warn(ctx, ev.Type, fields...)
		default:
			log.Info(ctx, ev.Type, fields...)
		}
	}
}

func printSummary(sim *core.Simulation) {
	stats := sim.NetworkStats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\n=== Run summary (t = %.0f s) ===\n", sim.Now())
	for _, name := range names {
		s := stats[name]
		fmt.Printf("%-10s dist=%4.0fm SF%d  sent=%4d recv=%4d PDR=%5.1f%%  "+
			"lat=%6.1fms jit=%5.1fms  energy=%7.2fmWh batt=%5.1f%%\n",
			s.Name, s.DistanceM, s.Radio.SpreadingFactor,
			s.PacketsSent, s.PacketsReceived, s.PDR*100,
			s.AvgLatencyMs, s.JitterMs, s.EnergyMWh, s.BatteryPercent)
	}

	env := sim.Environment()
	rain := "dry"
	if env.IsRaining {
		rain = fmt.Sprintf("raining %.1f mm/h", env.RainIntensity)
	}
	fmt.Printf("environment: %.1f°C, %.1f%% humidity, %s, attenuation %.2f dB\n",
		env.Temperature, env.Humidity, rain, env.AttenuationDB)
	fmt.Printf("gateway: uptime %.1f%%, %d packets logged\n",
		sim.GatewayUptime(), len(sim.GatewayPackets()))
}
