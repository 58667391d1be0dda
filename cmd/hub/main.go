// Command hub runs the service registry and discovery hub: the gRPC
// and HTTP/JSON surfaces, the liveness monitor, and the event bus, all
// wired against one in-memory registry store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/lengoman/grpc-hub/internal/config"
	"github.com/lengoman/grpc-hub/internal/eventbus"
	"github.com/lengoman/grpc-hub/internal/monitor"
	"github.com/lengoman/grpc-hub/internal/proxy"
	"github.com/lengoman/grpc-hub/internal/registry"
	"github.com/lengoman/grpc-hub/internal/rpc"
	"github.com/lengoman/grpc-hub/internal/telemetry"
	"github.com/lengoman/grpc-hub/internal/wire"

	"github.com/lengoman/grpc-hub/internal/httpapi"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log.Info("config loaded",
		"grpc_addr", fmt.Sprintf("%s:%d", cfg.GRPCHost, cfg.GRPCPort),
		"http_addr", fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort),
		"sweep_interval", cfg.SweepInterval,
		"offline_after", cfg.OfflineAfter,
	)

	telemetryLogger := telemetry.NewSlogLogger(log)
	telemetryMetrics := telemetry.NewNoopMetrics()
	telemetryTracer := telemetry.NewNoopTracer()
	if cfg.OTelEnabled {
		telemetryMetrics = telemetry.NewOTelMetrics("grpc-hub")
		telemetryTracer = telemetry.NewOTelTracer("grpc-hub")
	}

	bus := eventbus.New("connected to grpc-hub", cfg.EventBufferLen, telemetryLogger, eventbus.WithMetrics(telemetryMetrics))
	store := registry.New(bus)
	px := proxy.New(proxy.WithMetrics(telemetryMetrics), proxy.WithTracer(telemetryTracer))
	defer px.Close()

	wr, err := wire.Register()
	if err != nil {
		log.Error("failed to build protobuf descriptors", "error", err)
		os.Exit(1)
	}

	rpcServer, err := rpc.NewServer(store, bus, px, wr, telemetryLogger)
	if err != nil {
		log.Error("failed to construct rpc server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon := monitor.New(store, monitor.Config{Interval: cfg.SweepInterval, OfflineAfter: cfg.OfflineAfter}, telemetryLogger, monitor.WithMetrics(telemetryMetrics))
	go mon.Run(ctx)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("received shutdown signal")
		cancel()
	}()

	grpcServer := grpc.NewServer()
	rpcServer.Register(grpcServer)

	grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPCHost, cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Error("failed to bind grpc listener", "addr", grpcAddr, "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort),
		Handler: httpapi.New(store, bus, px, telemetryLogger).Mux(),
	}

	go func() {
		log.Info("grpc surface listening", "addr", grpcAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc surface failed", "error", err)
		}
	}()

	go func() {
		log.Info("http surface listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http surface failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	grpcServer.GracefulStop()
	_ = httpServer.Shutdown(context.Background())
}
