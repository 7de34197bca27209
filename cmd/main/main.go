package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"regatta-live/src/config"
	"regatta-live/src/logger"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.MConfig, config.Name)

	// Storage, registry and replay
	app, err := setupComponents(config.MConfig, appLogger)
	if err != nil {
		appLogger.Critical("Failed to start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background maintenance
	go app.registry.RunEviction(ctx)
	go runRetention(ctx, app.db, appLogger.Named("Retention"))

	// HTTP gateway and gRPC control
	servers := startServers(app, config.MConfig, appLogger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	appLogger.Info("Shutting down...")
	cancel()

	servers.stop(appLogger)
	app.close(appLogger)
	appLogger.Info("Shutdown complete")
}
