// simbackend - in-process drone simulator speaking the flightdeck backend
// protocol, for local development without the real simulator.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-flightdeck/internal/log"
	"github.com/teslashibe/go-flightdeck/pkg/simbackend"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:8000", "Listen address")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	log.Init(*logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := simbackend.New()
	addr, err := srv.Start(*listen)
	if err != nil {
		log.L().Fatalf("Listen failed: %v", err)
	}
	log.Info("simulator running", "addr", addr.String())

	srv.Simulate(ctx, simbackend.DefaultPhysics)

	if err := srv.Shutdown(); err != nil {
		log.Warn("shutdown", "error", err)
	}
}
