package service

import (
	"context"
	"time"

	"github.com/Mulfari/btrader-sub000/internal/aggregate"
	"github.com/Mulfari/btrader-sub000/internal/fetcher"
	"github.com/Mulfari/btrader-sub000/internal/models"
	"github.com/Mulfari/btrader-sub000/internal/repository"
	"github.com/Mulfari/btrader-sub000/internal/scheduler"
	"github.com/Mulfari/btrader-sub000/internal/stream"
	"github.com/Mulfari/btrader-sub000/logger"
)

// Status aggregates the runtime state of every pipeline component.
type Status struct {
	Gateway          stream.Status
	AggregatorPaused bool
	FetchersPaused   bool
	SchedulerPaused  bool
	Scheduler        scheduler.Stats
}

// Service is the read and control facade over the pipeline. It owns no
// goroutines of its own; every call delegates to the component or the
// repository.
type Service struct {
	gateway    *stream.Gateway
	aggregator *aggregate.Aggregator
	fetchers   *fetcher.Fetchers
	scheduler  *scheduler.Scheduler
	repo       repository.Repository
	log        *logger.Log
}

// NewService wires the facade over the running components.
func NewService(gw *stream.Gateway, agg *aggregate.Aggregator, f *fetcher.Fetchers, sched *scheduler.Scheduler, repo repository.Repository) *Service {
	return &Service{
		gateway:    gw,
		aggregator: agg,
		fetchers:   f,
		scheduler:  sched,
		repo:       repo,
		log:        logger.GetLogger(),
	}
}

// CurrentAccumulator returns the in-progress one-second window for a symbol.
func (s *Service) CurrentAccumulator(symbol string) (models.TradeWindow, bool) {
	return s.aggregator.Snapshot(symbol)
}

// Status reports the state of every component.
func (s *Service) Status() Status {
	return Status{
		Gateway:          s.gateway.Status(),
		AggregatorPaused: s.aggregator.Paused(),
		FetchersPaused:   s.fetchers.Paused(),
		SchedulerPaused:  s.scheduler.Paused(),
		Scheduler:        s.scheduler.GetStats(),
	}
}

// VolumeProfile returns the latest generated profile for symbol/timeframe.
func (s *Service) VolumeProfile(ctx context.Context, symbol string, timeframe models.Timeframe) (models.VolumeProfileSummary, []models.VolumeProfileLevel, error) {
	return s.repo.LatestVolumeProfile(ctx, symbol, timeframe)
}

// FearGreedIndex returns the latest sentiment snapshot for a symbol.
func (s *Service) FearGreedIndex(ctx context.Context, symbol string) (models.SentimentSnapshot, error) {
	return s.repo.LatestSentimentSnapshot(ctx, symbol)
}

// FearGreedHistory returns snapshots covering the last given number of days,
// oldest first.
func (s *Service) FearGreedHistory(ctx context.Context, symbol string, days int) ([]models.SentimentSnapshot, error) {
	if days <= 0 {
		days = 1
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.repo.SentimentHistory(ctx, symbol, since)
}

// PauseAll suspends ingestion, aggregation, polling and scheduled analytics
// in one step. In-progress aggregation windows are discarded.
func (s *Service) PauseAll() {
	s.gateway.Pause()
	s.aggregator.Pause()
	s.fetchers.Pause()
	s.scheduler.Pause()
	s.log.WithComponent("service").Info("all components paused")
}

// ResumeAll restarts everything PauseAll stopped.
func (s *Service) ResumeAll() {
	s.gateway.Resume()
	s.aggregator.Resume()
	s.fetchers.Resume()
	s.scheduler.Resume()
	s.log.WithComponent("service").Info("all components resumed")
}

// RunManualAnalysis triggers one immediate analytics cycle.
func (s *Service) RunManualAnalysis(ctx context.Context) {
	s.log.WithComponent("service").Info("manual analytics run requested")
	s.scheduler.TriggerManual(ctx)
}

// UpdateSymbols changes the tracked symbol set across all components. The
// stream resubscribes, pollers and the scheduler pick the set up on their
// next cycle.
func (s *Service) UpdateSymbols(symbols []string) {
	s.gateway.UpdateSymbols(symbols)
	s.fetchers.UpdateSymbols(symbols)
	s.scheduler.UpdateSymbols(symbols)
	s.log.WithComponent("service").WithFields(logger.Fields{"symbols": symbols}).Info("tracked symbols updated")
}

// SchedulerStats exposes scheduler counters.
func (s *Service) SchedulerStats() scheduler.Stats {
	return s.scheduler.GetStats()
}
