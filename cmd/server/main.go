package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/vision-rehab-cdss-server/internal/api"
	"github.com/vision-rehab-cdss-server/internal/config"
	"github.com/vision-rehab-cdss-server/internal/outcome"
	"github.com/vision-rehab-cdss-server/internal/service"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	kb, err := config.LoadKnowledgeBase(cfg.Knowledge.RulesDir)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load knowledge base")
	}
	logger.WithFields(logrus.Fields{
		"rules":      len(kb.Rules),
		"guardrails": len(kb.Guardrails),
	}).Info("Knowledge base loaded")

	store, err := newStore(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open outcome store")
	}
	defer store.Close()

	evaluator := service.NewEvaluator(logger, kb, store)
	server := api.NewServer(cfg, logger, evaluator)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting vision-rehab CDSS server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// newStore opens the configured backend and wraps it with the summary cache.
func newStore(cfg *config.Config) (outcome.Store, error) {
	var backend outcome.Store
	var err error

	switch cfg.Store.Backend {
	case "postgres":
		backend, err = outcome.NewPostgresStoreFromURL(cfg.Store.PostgresURL)
	default:
		backend, err = outcome.NewSQLiteStore(cfg.Store.SQLitePath)
	}
	if err != nil {
		return nil, err
	}

	return outcome.NewCachedStore(backend, cfg.Store.SummaryCacheSize, cfg.Store.SummaryCacheTTL), nil
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
