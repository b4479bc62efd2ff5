package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homepulse/internal/alerts"
	"homepulse/internal/api"
	"homepulse/internal/baseline"
	"homepulse/internal/config"
	"homepulse/internal/engine"
	"homepulse/internal/ingest"
	"homepulse/internal/logging"
	"homepulse/internal/model"
	"homepulse/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "homepulse.yaml", "path to config file")
	flag.Parse()

	manager, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting homepulse", "version", version, "config", manager.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("open storage", "err", err)
		os.Exit(1)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			logger.Error("init storage", "err", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	baselines := baseline.NewStore(0)
	repo := alerts.NewStore(cfg.Alerts.StoreLimit)
	groups := alerts.NewGrouper(cfg.Grouping.Window, cfg.Grouping.MemberCap, cfg.Alerts.GroupsLimit)
	eng := engine.NewEngine(cfg, logger, baselines, repo, groups, store)

	samples := make(chan model.MetricSample, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, samples)

	parser := ingest.NewParser()
	ingest.StartREST(ctx, manager, samples, logger)
	ingest.StartKafka(ctx, manager, parser, samples, logger)
	ingest.StartFileTail(ctx, manager, parser, samples, logger)

	api.Start(ctx, manager, repo, groups, baselines, eng, store, logger, version)

	stop := make(chan struct{})
	go manager.Watch(3*time.Second,
		func(next *config.Config) {
			logger.Info("config reloaded", "path", manager.Path())
			eng.UpdateConfig(next)
		},
		func(err error) {
			logger.Warn("config reload failed", "err", err)
		},
		stop,
	)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info("shutting down")
	close(stop)
	cancel()
	time.Sleep(500 * time.Millisecond)
}
