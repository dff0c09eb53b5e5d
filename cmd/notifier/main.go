package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poidh_notification_service/internal/app"
	"poidh_notification_service/internal/infra/config"
	idb "poidh_notification_service/internal/infra/database"
	"poidh_notification_service/internal/infra/httpserver"
	"poidh_notification_service/internal/infra/logger"
	"poidh_notification_service/internal/infra/neynar"
	"poidh_notification_service/internal/infra/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	log := logger.Get()
	log.Infof("Configuration loaded. LogLevel: %s, Environment: %s, PollInterval: %s", cfg.LogLevel, cfg.Environment, cfg.PollInterval)

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to database: %v", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully.")

	// Initialize Repository and Neynar client
	eventRepo := idb.NewPostgresEventRepository(db)
	neynarClient := neynar.NewClient(cfg.NeynarAPIKey, log)

	// Initialize DispatchService and its scheduler
	dispatchService := app.NewDispatchService(eventRepo, neynarClient, neynarClient, log, cfg.PollWindow)
	dispatchScheduler := scheduler.NewDispatchScheduler(dispatchService, log, cfg.PollInterval)
	dispatchScheduler.Start()

	// Health/echo HTTP surface
	server := httpserver.New(cfg.HTTPPort, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("FATAL: HTTP server failed: %v", err)
		}
	}()

	log.Info("Application setup complete. Dispatcher is running.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down application...")
	dispatchScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown: %v", err)
	}

	log.Info("Application shut down gracefully.")
}
