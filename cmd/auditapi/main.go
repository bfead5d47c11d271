package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"seo-audit/pkg/api"
	"seo-audit/pkg/config"
	"seo-audit/pkg/orchestrate"
	"seo-audit/pkg/queue"
	"seo-audit/pkg/rules"
	"seo-audit/pkg/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logJSON := flag.Bool("log-json", false, "Emit logs as JSON")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if *logJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, using info", *logLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	warnings, err := cfg.Validate()
	for _, warning := range warnings {
		logger.Warn(warning)
	}
	if err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	store, err := storage.NewBadgerStore(cfg.StateDir, logger)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	jobQueue := queue.NewQueue(cfg.Queue, logger)
	defer jobQueue.Close()

	// The API only schedules jobs; the worker runs them, so no crawl
	// runner, scorer, or notifier is wired here.
	svc := orchestrate.NewService(store, jobQueue, nil, nil, nil, rules.NewEngine(logger), cfg, logger)
	server := api.NewServer(store, svc, logger)

	httpServer := &http.Server{
		Addr:         cfg.APIListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("HTTP shutdown failed: %v", err)
		}
	}()

	logger.WithField("addr", cfg.APIListenAddr).Info("API listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server exited: %v", err)
	}
	logger.Info("API shut down cleanly")
}
