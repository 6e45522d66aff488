package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"couponbot/internal/api"
	"couponbot/internal/bot"
	"couponbot/internal/config"
	"couponbot/internal/ingest"
	"couponbot/internal/ocr"
	"couponbot/internal/storage"
	"couponbot/internal/webhook"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.WithFields(logrus.Fields{
		"badgerdb_path": cfg.BadgerDBPath,
		"api_addr":      cfg.APIListenAddr,
	}).Info("Configuration loaded successfully")

	// --- Initialize Components ---
	log.Info("Initializing components...")

	// Database
	repo, err := storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		log.Info("Closing database...")
		if err := repo.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()

	// Extraction pipeline
	engine := ocr.NewTesseractExtractor(cfg.OCRLanguageList()...)
	extractor := ocr.NewExtractor(
		engine,
		time.Duration(cfg.DownloadTimeoutSeconds)*time.Second,
		time.Duration(cfg.OCRTimeoutSeconds)*time.Second,
		log,
	)
	ingestor := ingest.NewIngestor(repo, log)
	notifier := webhook.NewNotifier(cfg.WebhookURL, 10*time.Second, log)

	// Bot Handler
	botHandler, err := bot.NewHandler(cfg, repo, ingestor, extractor, notifier, log)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram bot handler: %v", err)
	}

	// Query API for the web app
	apiServer := api.NewServer(cfg.APIListenAddr, cfg.APIKey, repo, log)

	// --- Application Startup ---
	log.Info("Starting couponbot...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("API server failed")
			stop()
		}
	}()

	go botHandler.Start(ctx)

	log.Info("couponbot is running. Press Ctrl+C to exit.")

	// --- Wait for Shutdown Signal ---
	<-ctx.Done()

	// --- Graceful Shutdown ---
	log.Info("Shutting down couponbot...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("API server forced to shut down")
	}

	// The deferred repo.Close() will run now.
	log.Info("couponbot shut down gracefully.")
}
