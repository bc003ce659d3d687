package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"jobsift/internal/api/handlers"
	"jobsift/internal/api/routes"
	"jobsift/internal/config"
	"jobsift/internal/llm"
	"jobsift/internal/logging"
	"jobsift/internal/mail"
	"jobsift/internal/storage"
	"jobsift/internal/syncer"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging
	if err := logging.InitializeLogging(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseLogging()

	logger := logging.GetGlobalLogger()
	logger.Info("Starting jobsift")

	// Open the database and run migrations
	db, err := storage.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to open database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to run migrations", map[string]interface{}{"error": err.Error()})
	}

	// Initialize LLM manager; a missing API key degrades to deterministic
	// fallbacks instead of failing startup
	llmManager := llm.NewManager(cfg)
	if err := llmManager.Start(); err != nil {
		logger.Fatal("Failed to start LLM manager", map[string]interface{}{"error": err.Error()})
	}

	// Optional artifact uploader
	var uploader syncer.Uploader
	if cfg.SpacesConfigured() {
		spaces, err := storage.NewSpacesClient(cfg)
		if err != nil {
			logger.Fatal("Failed to initialize Spaces client", map[string]interface{}{"error": err.Error()})
		}
		uploader = spaces
	} else {
		logger.Warn("Artifact upload disabled, Spaces credentials not configured")
	}

	// Optional run history backend
	var history *syncer.History
	var historyReader handlers.HistoryReader
	var historyRecorder syncer.HistoryRecorder
	if cfg.RedisConfigured() {
		history, err = syncer.NewHistory(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
		defer history.Close()
		historyReader = history
		historyRecorder = history
	} else {
		logger.Warn("Run history disabled, Redis not configured")
	}

	orchestrator := syncer.NewOrchestrator(
		cfg,
		db,
		mail.NewSessionManager(cfg.Mailbox.DialTimeout),
		mail.NewNormalizer(cfg.Mailbox.MaxLinks),
		llmManager,
		llmManager,
		uploader,
		historyRecorder,
	)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	routes.SetupRoutes(e, cfg, orchestrator, historyReader)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := llmManager.Stop(); err != nil {
			logger.Error("Error stopping LLM manager", map[string]interface{}{"error": err.Error()})
		}

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down server", map[string]interface{}{"error": err.Error()})
		}

		logger.Info("Server shutdown complete")
	}()

	// Start server
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting", map[string]interface{}{"address": address})

	if err := e.Start(address); err != nil {
		logger.Error("Server stopped", map[string]interface{}{"error": err.Error()})
	}
}
