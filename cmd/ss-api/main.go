package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ScanSentry/internal/api"
	"ScanSentry/internal/config"
	"ScanSentry/internal/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "scansentry.api"

func main() {
	configPath := flag.String("c", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}

	log := logger.Must(cfg.Logging, false)
	defer log.Sync()

	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: api.NewRouter(cfg.Storage.LogDirectory, log.Named("api")),
	}
	go func() {
		log.Info("API server starting", zap.String("addr", server.Addr), zap.String("log_directory", cfg.Storage.LogDirectory))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Could not listen", zap.String("addr", server.Addr), zap.Error(err))
		}
	}()

	healthServer := health.NewServer()
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.API.GRPCListenAddr)
	if err != nil {
		log.Fatal("Failed to listen for gRPC", zap.String("addr", cfg.API.GRPCListenAddr), zap.Error(err))
	}
	go func() {
		log.Info("gRPC health service starting", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("API server shutting down")

	healthServer.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	log.Info("API server exited")
}
