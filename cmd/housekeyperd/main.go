package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"housekeyper-backend/config"
	"housekeyper-backend/internal/alert"
	"housekeyper-backend/internal/api"
	"housekeyper-backend/internal/db"
	"housekeyper-backend/internal/ingest"
	"housekeyper-backend/internal/mqttclient"
	"housekeyper-backend/internal/notification"
	"housekeyper-backend/internal/rules"
	"housekeyper-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "housekeyperd ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	// Push notifications are optional; without VAPID keys the alert path
	// still persists and publishes, it just skips web push.
	var (
		webpushOptions *webpush.Options
		workerPool     *notification.WorkerPool
	)
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
		logger.Println("push notification workers started")
	} else {
		logger.Println("VAPID keys not configured; push notifications disabled")
	}

	// Connect to the broker and wire the ingestion pipeline.
	mqttClient := mqttclient.New(&cfg.Broker)
	if err := mqttClient.Connect(); err != nil {
		logger.Fatalf("failed to connect to broker at %s:%d: %v", cfg.Broker.Host, cfg.Broker.Port, err)
	}
	defer mqttClient.Disconnect()

	engine := rules.NewEngine()
	emitter := alert.NewEmitter(appStore, mqttClient, workerPool)
	pipeline := ingest.New(appStore, engine, emitter)

	for _, topic := range []string{ingest.TopicTelemetry, ingest.TopicRelayState} {
		if err := mqttClient.Subscribe(topic, pipeline.Handle); err != nil {
			logger.Fatalf("failed to subscribe to %s: %v", topic, err)
		}
	}
	logger.Printf("ingesting from mqtt://%s:%d | db=%s", cfg.Broker.Host, cfg.Broker.Port, cfg.Database.Path)

	// Read API for external consumers.
	router := api.NewRouter(&cfg.Server, appStore, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Println("Server gracefully stopped")
}
