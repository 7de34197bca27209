package main

import (
	"fmt"
	"net"

	pb "regatta-live/src/grpc_control"
	"regatta-live/src/interfaces"
	"regatta-live/src/logger"
	"regatta-live/src/models"
	"regatta-live/src/server"

	"google.golang.org/grpc"
)

type runningServers struct {
	http interfaces.IGatewayServer
	grpc *grpc.Server
}

// -----------------------------------------------------------------------------

// startServers orchestrates the startup of all server components
func startServers(app *components, cfg *models.MConfig, appLogger *logger.Logger) *runningServers {
	running := &runningServers{
		http: server.NewAPIServer(cfg, appLogger.Named("Gateway"), app.registry, app.replay),
	}

	// 1. HTTP gateway
	go func() {
		if err := running.http.Start(); err != nil {
			appLogger.Critical("Server failed: %v", err)
		}
	}()

	// 2. gRPC Control Server
	if cfg.GrpcPort > 0 {
		addr := fmt.Sprintf("%s:%d", cfg.GrpcHost, cfg.GrpcPort)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			appLogger.Critical("failed to listen for gRPC: %v", err)
		}

		running.grpc = grpc.NewServer()
		controlService := pb.NewControlService(app.registry, appLogger.Named("ControlService"))
		pb.RegisterRaceControlServer(running.grpc, controlService)

		go func() {
			appLogger.Info("Starting gRPC Control Server on %s", addr)
			if err := running.grpc.Serve(lis); err != nil {
				appLogger.Error("gRPC server stopped: %v", err)
			}
		}()
	}

	return running
}

// -----------------------------------------------------------------------------

func (r *runningServers) stop(appLogger *logger.Logger) {
	if err := r.http.Stop(); err != nil {
		appLogger.Warning("HTTP shutdown: %v", err)
	}
	if r.grpc != nil {
		r.grpc.GracefulStop()
	}
}
