// Package config parses the hub's command-line flags into a Config.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Config holds every flag the hub accepts (§6).
type Config struct {
	GRPCHost string
	GRPCPort int
	HTTPHost string
	HTTPPort int

	SweepInterval  time.Duration
	OfflineAfter   time.Duration
	EventBufferLen int

	// OTelEnabled turns on the OpenTelemetry-backed Metrics/Tracer
	// implementation (§4.8); when false every component uses the no-op
	// implementation instead.
	OTelEnabled bool
}

// Load parses os.Args[1:]-style arguments (passed explicitly so main
// and tests can both call it) into a Config, applying the documented
// defaults for anything not set.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("grpc-hub", flag.ContinueOnError)

	cfg := Config{}
	fs.StringVar(&cfg.GRPCHost, "grpc-host", "0.0.0.0", "address the gRPC surface binds to")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", 50099, "port the gRPC surface listens on")
	fs.StringVar(&cfg.HTTPHost, "http-host", "0.0.0.0", "address the HTTP/JSON surface binds to")
	fs.IntVar(&cfg.HTTPPort, "http-port", 8080, "port the HTTP/JSON surface listens on")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", 10*time.Second, "liveness sweep cadence")
	fs.DurationVar(&cfg.OfflineAfter, "offline-after", 30*time.Second, "heartbeat staleness before a record is marked offline")
	fs.IntVar(&cfg.EventBufferLen, "event-buffer", 64, "per-subscriber event channel buffer size")
	fs.BoolVar(&cfg.OTelEnabled, "otel", false, "export metrics and traces via OpenTelemetry instead of discarding them")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: parse flags: %w", err)
	}

	if cfg.GRPCPort <= 0 || cfg.GRPCPort > 65535 {
		return Config{}, fmt.Errorf("config: grpc-port %d out of range", cfg.GRPCPort)
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return Config{}, fmt.Errorf("config: http-port %d out of range", cfg.HTTPPort)
	}

	return cfg, nil
}
