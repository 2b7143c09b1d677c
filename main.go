package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/aggregate"
	"github.com/Mulfari/btrader-sub000/internal/archive"
	"github.com/Mulfari/btrader-sub000/internal/channel"
	"github.com/Mulfari/btrader-sub000/internal/fetcher"
	"github.com/Mulfari/btrader-sub000/internal/repository"
	"github.com/Mulfari/btrader-sub000/internal/scheduler"
	"github.com/Mulfari/btrader-sub000/internal/service"
	"github.com/Mulfari/btrader-sub000/internal/stream"
	"github.com/Mulfari/btrader-sub000/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if cfg.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.CloudWatch.Region, cfg.CloudWatch.Namespace)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Service.Name,
		"version": cfg.Service.Version,
		"symbols": strings.Join(cfg.Trading.Symbols, ","),
	}).Info("starting market data service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.StartReport(ctx, log, 30*time.Second)

	channels := channel.NewChannels(
		cfg.Channels.TradeBuffer,
		cfg.Channels.BookBuffer,
		cfg.Channels.LiquidationBuffer,
	)
	go channels.StartMetricsReporting(ctx)

	repo := repository.NewMemoryRepository()

	gateway := stream.NewGateway(cfg.Source.Bybit, channels, cfg.Trading.Symbols)
	aggregator := aggregate.NewAggregator(cfg.Aggregator, channels, repo)
	fetchers := fetcher.NewFetchers(cfg.Fetchers, cfg.Source.Bybit, cfg.Trading.Symbols, repo)
	sched := scheduler.NewScheduler(cfg.Scheduler, cfg.Analytics, cfg.Trading.Symbols, repo)

	var archiver *archive.Archiver
	if cfg.Storage.S3.Enabled {
		archiver, err = archive.NewArchiver(cfg.Storage, cfg.Service)
		if err != nil {
			log.WithError(err).Error("failed to create archiver")
			os.Exit(1)
		}
		aggregator.SetArchive(archiver)
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archiver")
	}

	svc := service.NewService(gateway, aggregator, fetchers, sched, repo)

	if archiver != nil {
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start archiver")
			os.Exit(1)
		}
	}
	if err := aggregator.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start aggregator")
		os.Exit(1)
	}
	if err := gateway.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start stream gateway")
		os.Exit(1)
	}
	if err := fetchers.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start metric fetchers")
		os.Exit(1)
	}
	if err := sched.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start analytics scheduler")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	// SIGHUP triggers a manual analytics run, SIGUSR1 pauses the whole
	// pipeline, SIGUSR2 resumes it.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)

	var sig os.Signal
loop:
	for sig = range sigChan {
		switch sig {
		case syscall.SIGHUP:
			svc.RunManualAnalysis(ctx)
		case syscall.SIGUSR1:
			svc.PauseAll()
		case syscall.SIGUSR2:
			svc.ResumeAll()
		default:
			break loop
		}
	}
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")

	done := make(chan struct{})
	go func() {
		log.Info("stopping analytics scheduler")
		sched.Stop()

		log.Info("stopping metric fetchers")
		fetchers.Stop()

		log.Info("stopping stream gateway")
		gateway.Stop()

		log.Info("stopping aggregator")
		aggregator.Stop()

		if archiver != nil {
			log.Info("stopping archiver")
			archiver.Stop()
		}

		channels.Close()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	cancel()
	log.Info("market data service stopped")
}
