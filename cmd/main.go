package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/api"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/cli"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/services"
	"github.com/joho/godotenv"
)

const (
	shutdownGrace = 30 * time.Second
	logRetention  = 7 * 24 * time.Hour
)

func main() {
	// .env 不存在时忽略，正式环境直接用环境变量
	godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// 首次启动时落盘一份配置，便于直接修改
	cfgPath := filepath.Join(cfg.DataDir, "config.json")
	if _, err := os.Stat("config.json"); os.IsNotExist(err) {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			if err := cfg.Save(cfgPath); err != nil {
				log.Printf("[Main] failed to write config file: %v", err)
			}
		}
	}

	// Initialize database
	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Check if running CLI command
	if len(os.Args) > 1 {
		cli.Execute(db, cfg)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	logService := services.NewLogServiceWithLevel(db, cfg.LogLevel)
	classifier := services.NewClassifier(cfg.AI)
	indexer := services.NewIndexService(db, logService)
	notifier := services.NewNotifier(cfg.SlackWebhookURL, cfg.ExternalWebhookURL, logService)
	pipeline := services.NewPipeline(classifier, indexer, notifier, logService)
	scanner := services.NewBackfillScanner(pipeline, logService)
	supervisor := services.NewSupervisor(cfg, services.DialIMAP, scanner, pipeline, logService)

	// 清理过期日志，避免日志表无限增长
	if removed, err := logService.CleanupOldLogs(logRetention); err != nil {
		log.Printf("[Main] log cleanup failed: %v", err)
	} else if removed > 0 {
		log.Printf("[Main] removed %d expired log entries", removed)
	}

	if !notifier.Configured() {
		log.Printf("[Main] no notification targets configured, Interested emails stay local")
	}

	// Consume pipeline events for the server log
	go func() {
		for event := range pipeline.Events() {
			switch {
			case event.Indexed:
				log.Printf("[Ingest] %s: %s -> %s (%.2f)", event.AccountID, event.Subject, event.Category, event.Score)
			case event.Duplicate:
				log.Printf("[Ingest] %s: duplicate %s skipped", event.AccountID, event.DocID)
			}
		}
	}()

	if len(cfg.Accounts) == 0 {
		log.Printf("[Main] no accounts configured, serving the query API only")
	}
	supervisor.Start(ctx)

	router := api.SetupRouter(cfg, indexer, supervisor, logService)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Printf("Starting OneBox server on port %s", cfg.APIPort)
		log.Printf("Data directory: %s", cfg.DataDir)
		log.Printf("Database path: %s", cfg.DatabasePath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[Main] shutting down...")

	cancel()
	supervisor.Stop(shutdownGrace)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] server shutdown error: %v", err)
	}
	log.Println("[Main] bye")
}
