// Flightdeck - operator console for the drone simulator backend.
// Streams commands at a fixed rate, mirrors telemetry and camera frames to
// the operator UI and keeps the control mode in sync with the backend.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-flightdeck/internal/config"
	"github.com/teslashibe/go-flightdeck/internal/log"
	"github.com/teslashibe/go-flightdeck/pkg/console"
	"github.com/teslashibe/go-flightdeck/pkg/web"
)

func main() {
	cfg := parseFlags()
	log.Init(cfg.Logging.Level)

	app, err := console.New(cfg)
	if err != nil {
		log.L().Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		log.L().Fatalf("Initialization failed: %v", err)
	}
	defer app.Close()

	if cfg.Bridge.Enabled {
		bridge := web.NewServer(cfg.Bridge.Listen, app)
		bridge.StartAsync()
		defer bridge.Shutdown()
	}

	if err := app.Run(ctx); err != nil {
		log.L().Fatalf("Runtime error: %v", err)
	}
}

// parseFlags loads the config file and applies command line overrides.
func parseFlags() config.Config {
	configPath := flag.String("config", config.Env("FLIGHTDECK_CONFIG", ""), "Path to YAML config file")
	wsURL := flag.String("ws-url", "", "Backend realtime websocket URL")
	apiURL := flag.String("api-url", "", "Backend REST base URL")
	listen := flag.String("listen", "", "Operator bridge listen address")
	noBridge := flag.Bool("no-bridge", false, "Disable the operator bridge")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flightLog := flag.String("flight-log", "", "Record telemetry to this sqlite file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.L().Fatalf("Configuration error: %v", err)
	}

	if *wsURL != "" {
		cfg.Link.URL = *wsURL
	}
	if *apiURL != "" {
		cfg.API.BaseURL = *apiURL
	}
	if *listen != "" {
		cfg.Bridge.Listen = *listen
	}
	if *noBridge {
		cfg.Bridge.Enabled = false
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *flightLog != "" {
		cfg.FlightLog.Path = *flightLog
	}

	if err := cfg.Validate(); err != nil {
		log.L().Fatalf("Configuration error: %v", err)
	}
	return cfg
}
