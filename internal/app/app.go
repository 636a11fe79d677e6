package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	server "crowdmarch/server"
	servernet "crowdmarch/server/internal/net"
	"crowdmarch/server/internal/nav"
	"crowdmarch/server/internal/observability"
	"crowdmarch/server/internal/telemetry"
	"crowdmarch/server/internal/world"
	"crowdmarch/server/logging"
	loggingSinks "crowdmarch/server/logging/sinks"
)

const defaultTuningPath = "crowdmarch.yaml"

type Config struct {
	Addr          string
	TuningPath    string
	ClientDir     string
	Logger        telemetry.Logger
	Observability observability.Config
}

// Run wires the logging router, hub, and HTTP surface, then serves until
// the listener fails or the context is cancelled.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	logConfig := logging.DefaultConfig()
	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)},
	})
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			telemetryLogger.Printf("close logging router: %v", cerr)
		}
	}()

	tuningPath := cfg.TuningPath
	if tuningPath == "" {
		tuningPath = defaultTuningPath
	}
	if raw := os.Getenv("CROWDMARCH_TUNING"); raw != "" {
		tuningPath = raw
	}
	tuning, err := nav.LoadTuning(tuningPath)
	if err != nil {
		telemetryLogger.Printf("tuning %s rejected, using defaults: %v", tuningPath, err)
	}

	hubCfg := server.DefaultHubConfig()
	hubCfg.Tuning = tuning
	hubCfg.Loop.TickRate = tuning.TickRate
	hubCfg.Logger = telemetryLogger

	if raw := os.Getenv("SCENARIO"); raw != "" {
		hubCfg.World.Scenario = world.ScenarioName(raw)
	}
	if raw := os.Getenv("AGENT_COUNT"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			hubCfg.World.AgentCount = value
		} else {
			telemetryLogger.Printf("invalid AGENT_COUNT=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("JOURNAL_PATH"); raw != "" {
		hubCfg.JournalPath = raw
	}

	observabilityCfg := cfg.Observability
	if raw := os.Getenv("ENABLE_PPROF_TRACE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			observabilityCfg.EnablePprofTrace = value
		} else {
			telemetryLogger.Printf("invalid ENABLE_PPROF_TRACE=%q: %v", raw, err)
		}
	}

	hub, err := server.NewHub(hubCfg, router)
	if err != nil {
		return fmt.Errorf("construct hub: %w", err)
	}
	stop := make(chan struct{})
	go hub.RunSimulation(stop)
	defer close(stop)

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		ClientDir:     cfg.ClientDir,
		Observability: observabilityCfg,
	})

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	if raw := os.Getenv("ADDR"); raw != "" {
		addr = raw
	}

	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	telemetryLogger.Printf("server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
