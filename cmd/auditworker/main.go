package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"seo-audit/pkg/config"
	"seo-audit/pkg/fetch"
	"seo-audit/pkg/notify"
	"seo-audit/pkg/orchestrate"
	"seo-audit/pkg/queue"
	"seo-audit/pkg/rules"
	"seo-audit/pkg/score"
	"seo-audit/pkg/storage"
	"seo-audit/pkg/watch"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logJSON := flag.Bool("log-json", false, "Emit logs as JSON")
	watchSites := flag.Bool("watch", false, "Also run the periodic re-audit scheduler")
	watchTick := flag.Duration("watch-tick", time.Minute, "How often the re-audit scheduler checks for due sites")
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

	httpClient := fetch.NewClient(cfg.HTTPClientSettings, logger)
	fetcher := fetch.NewFetcher(httpClient, cfg, logger)
	runner := orchestrate.NewDefaultCrawlRunner(fetcher, httpClient, cfg.FetchBatchSize, logger)
	scorer := score.NewClient(cfg.Scorer, httpClient, logger)
	engine := rules.NewEngine(logger)
	notifier := notify.NewLogNotifier(logger)

	svc := orchestrate.NewService(store, jobQueue, runner, scorer, notifier, engine, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *watchSites {
		scheduler := watch.NewScheduler(store, svc, cfg, *watchTick, logger)
		go func() {
			if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("Re-audit scheduler exited: %v", err)
			}
		}()
	}

	if err := svc.RunConsumer(ctx, orchestrate.QueueSource{Queue: jobQueue}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Consumer exited: %v", err)
	}
	logger.Info("Worker shut down cleanly")
}
