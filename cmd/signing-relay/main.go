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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"

	relayapi "github.com/aegis-sign/custody/internal/api"
	"github.com/aegis-sign/custody/internal/client"
	"github.com/aegis-sign/custody/internal/config"
	"github.com/aegis-sign/custody/internal/logging"
)

func main() {
	app := &cli.App{
		Name:  "signing-relay",
		Usage: "validate signing requests locally and relay them to the custody platform",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the relay YAML config",
				EnvVars: []string{"CUSTODY_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override relay.log_level (debug, info, warn, error)",
			},
		},
		Action: action,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "signing-relay: %v\n", err)
		os.Exit(1)
	}
}

func action(cctx *cli.Context) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl := cctx.String("log-level"); lvl != "" {
		cfg.Relay.LogLevel = lvl
	}
	zl, logger, err := logging.New(cfg.Relay.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("signing relay stopped", "error", err)
		return err
	}
	return nil
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.HasToken() {
		logger.Warn("no default api token configured; callers must send X-Mtoken")
	}
	custody, err := client.New(cfg.ClientConfig(), client.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("configure custody client: %w", err)
	}
	defer func() { _ = custody.Close() }()

	backend, err := relayapi.NewClientBackend(custody, relayapi.WithCallTimeout(cfg.GRPC.CallTimeout))
	if err != nil {
		return err
	}

	// HTTP server wiring
	mux := http.NewServeMux()
	relayapi.NewHTTPHandler(backend,
		relayapi.WithHandlerLogger(logger),
		relayapi.WithMaxBodyBytes(cfg.Relay.MaxBodyBytes),
	).Register(mux)
	mux.Handle("/debug/client", relayapi.DebugHandler(backend))
	mux.Handle("/metrics", promhttp.Handler())
	httpSrv := &http.Server{
		Addr:    cfg.Relay.Listen,
		Handler: mux,
	}
	go func() {
		logger.Info("HTTP relay listening", "addr", httpSrv.Addr, "transport", cfg.Transport)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server closed unexpectedly", "error", err)
			stop()
		}
	}()

	// gRPC relay wiring; an empty grpc_listen disables it.
	var grpcSrv *grpc.Server
	if cfg.Relay.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.Relay.GRPCListen)
		if err != nil {
			return fmt.Errorf("listen for gRPC: %w", err)
		}
		grpcSrv = grpc.NewServer()
		relayapi.NewGRPCServer(backend).Register(grpcSrv)
		go func() {
			logger.Info("gRPC relay listening", "addr", cfg.Relay.GRPCListen)
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc server closed unexpectedly", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down relay")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Relay.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	return nil
}
