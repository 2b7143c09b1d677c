package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appconfig "github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/analytics/feargreed"
	"github.com/Mulfari/btrader-sub000/internal/analytics/volumeprofile"
	"github.com/Mulfari/btrader-sub000/internal/models"
	"github.com/Mulfari/btrader-sub000/internal/repository"
	"github.com/Mulfari/btrader-sub000/logger"
)

const (
	// pruneWeekday and pruneHour pin the weekly retention sweep to Sunday
	// 02:00 UTC, the quietest stretch of the crypto week.
	pruneWeekday = time.Sunday
	pruneHour    = 2
)

// Stats counts scheduler activity since start.
type Stats struct {
	Runs               int64
	SymbolRuns         int64
	SkippedNoNewData   int64
	SkippedFreshOutput int64
	Errors             int64
	ProfilesGenerated  int64
	SnapshotsGenerated int64
	LastRun            time.Time
	LastPrune          time.Time
	PrunedRecords      int64
}

// Scheduler drives the periodic analytics cycle: volume profiles and the
// fear & greed index per symbol, plus the weekly retention sweep. Symbols are
// processed in parallel and failures stay isolated to the symbol and task
// that produced them.
type Scheduler struct {
	cfg        appconfig.SchedulerConfig
	timeframes []models.Timeframe
	repo       repository.Repository
	profiles   *volumeprofile.Generator
	sentiment  *feargreed.Engine
	log        *logger.Log

	mu      sync.RWMutex
	symbols []string
	running bool
	paused  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stats   Stats
	// lastSeen tracks the newest trade-window timestamp processed per
	// symbol, backing the new-data guard.
	lastSeen map[string]time.Time
}

// NewScheduler constructs the analytics scheduler.
func NewScheduler(cfg appconfig.SchedulerConfig, analytics appconfig.AnalyticsConfig, symbols []string, repo repository.Repository) *Scheduler {
	timeframes := make([]models.Timeframe, 0, len(analytics.VolumeProfile.Timeframes))
	for _, tf := range analytics.VolumeProfile.Timeframes {
		timeframes = append(timeframes, models.Timeframe(tf))
	}
	return &Scheduler{
		cfg:        cfg,
		timeframes: timeframes,
		repo:       repo,
		profiles:   volumeprofile.NewGenerator(analytics.VolumeProfile),
		sentiment:  feargreed.NewEngine(analytics.FearGreed),
		symbols:    append([]string(nil), symbols...),
		lastSeen:   make(map[string]time.Time),
		log:        logger.GetLogger(),
	}
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.log.WithComponent("scheduler").WithFields(logger.Fields{
		"interval":       s.cfg.Interval.String(),
		"freshness":      s.cfg.Freshness.String(),
		"retention_days": s.cfg.RetentionDays,
	}).Info("analytics scheduler started")
	return nil
}

// Stop cancels the tick loop and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.WithComponent("scheduler").Info("analytics scheduler stopped")
}

// Pause suspends scheduled cycles. Manual triggers still run.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.log.WithComponent("scheduler").Info("analytics scheduler paused")
}

// Resume re-enables scheduled cycles.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.log.WithComponent("scheduler").Info("analytics scheduler resumed")
}

// Paused reports whether scheduled cycles are suspended.
func (s *Scheduler) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// UpdateSymbols replaces the analysed symbol set.
func (s *Scheduler) UpdateSymbols(symbols []string) {
	s.mu.Lock()
	s.symbols = append([]string(nil), symbols...)
	s.mu.Unlock()
}

// GetStats returns a snapshot of scheduler counters.
func (s *Scheduler) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// TriggerManual runs one analytics cycle immediately. The new-data guard is
// bypassed so a manual run always reconsiders every symbol; the input
// freshness guard and the per-output regeneration guard still apply.
func (s *Scheduler) TriggerManual(ctx context.Context) {
	s.runCycle(ctx, time.Now().UTC(), true)
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	// Align the first tick to the next interval boundary so cycles land on
	// round wall-clock times (12:00, 12:05, ...).
	now := time.Now().UTC()
	wait := now.Truncate(s.cfg.Interval).Add(s.cfg.Interval).Sub(now)
	select {
	case <-ctx.Done():
		return
	case <-time.After(wait):
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if !s.Paused() {
		s.runCycle(ctx, time.Now().UTC(), false)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.Paused() {
				continue
			}
			s.runCycle(ctx, now.UTC(), false)
			s.maybePrune(ctx, now.UTC())
		}
	}
}

// runCycle executes one analytics pass over all symbols in parallel.
func (s *Scheduler) runCycle(ctx context.Context, now time.Time, manual bool) {
	symbols := s.currentSymbols()
	entry := s.log.WithComponent("scheduler")

	start := time.Now()
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			s.runSymbol(ctx, entry, symbol, now, manual)
		}(symbol)
	}
	wg.Wait()

	s.mu.Lock()
	s.stats.Runs++
	s.stats.LastRun = now
	s.mu.Unlock()

	logger.LogPerformanceEntry(entry, "scheduler", "analytics_cycle", time.Since(start), logger.Fields{
		"symbols": len(symbols),
		"manual":  manual,
	})
}

func (s *Scheduler) runSymbol(ctx context.Context, entry *logger.Entry, symbol string, now time.Time, manual bool) {
	latest, err := s.repo.LatestTradeWindow(ctx, symbol)
	if err != nil {
		if !errors.Is(err, repository.ErrNoData) {
			s.countError()
			entry.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Error("failed to read latest window")
		}
		return
	}

	if !manual && !s.hasNewData(symbol, latest.Timestamp) {
		s.mu.Lock()
		s.stats.SkippedNoNewData++
		s.mu.Unlock()
		entry.WithFields(logger.Fields{"symbol": symbol}).Debug("no new data since last cycle, skipping")
		return
	}

	// Stale ingestion means every downstream read would describe a market
	// that no longer exists; the whole symbol is skipped.
	if now.Sub(latest.Timestamp) > s.cfg.Freshness {
		entry.WithFields(logger.Fields{
			"symbol":     symbol,
			"window_age": now.Sub(latest.Timestamp).String(),
		}).Warn("trade data stale, skipping analytics for symbol")
		return
	}

	s.generateProfiles(ctx, entry, symbol, latest.VWAP, now)
	s.generateSentiment(ctx, entry, symbol, now)

	s.mu.Lock()
	s.stats.SymbolRuns++
	s.lastSeen[symbol] = latest.Timestamp
	s.mu.Unlock()
}

func (s *Scheduler) hasNewData(symbol string, latest time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen, ok := s.lastSeen[symbol]
	return !ok || latest.After(seen)
}

func (s *Scheduler) generateProfiles(ctx context.Context, entry *logger.Entry, symbol string, currentPrice float64, now time.Time) {
	for _, tf := range s.timeframes {
		duration, ok := tf.Duration()
		if !ok {
			s.countError()
			entry.WithFields(logger.Fields{"timeframe": string(tf)}).Error("unknown volume profile timeframe")
			continue
		}

		// Profiles younger than the freshness bound are not regenerated, so
		// back-to-back cycles (scheduled or manual) cannot emit duplicate
		// generations for the same short window.
		if prev, _, err := s.repo.LatestVolumeProfile(ctx, symbol, tf); err == nil && now.Sub(prev.GeneratedAt) < s.cfg.Freshness {
			s.mu.Lock()
			s.stats.SkippedFreshOutput++
			s.mu.Unlock()
			continue
		}

		windows, err := s.repo.TradeWindowsSince(ctx, symbol, now.Add(-duration))
		if err != nil {
			s.countError()
			entry.WithError(err).WithFields(logger.Fields{"symbol": symbol, "timeframe": string(tf)}).Error("failed to read trade windows")
			continue
		}

		summary, levels, err := s.profiles.Generate(symbol, tf, windows, currentPrice, now)
		if err != nil {
			if errors.Is(err, volumeprofile.ErrNoTrades) {
				continue
			}
			s.countError()
			entry.WithError(err).WithFields(logger.Fields{"symbol": symbol, "timeframe": string(tf)}).Error("volume profile generation failed")
			continue
		}

		if err := s.repo.SaveVolumeProfile(ctx, summary, levels); err != nil {
			s.countError()
			entry.WithError(err).WithFields(logger.Fields{"symbol": symbol, "timeframe": string(tf)}).Error("failed to persist volume profile")
			continue
		}
		s.mu.Lock()
		s.stats.ProfilesGenerated++
		s.mu.Unlock()
	}
}

func (s *Scheduler) generateSentiment(ctx context.Context, entry *logger.Entry, symbol string, now time.Time) {
	// Same regeneration guard as the profiles: a snapshot younger than the
	// freshness bound stands as-is.
	if prev, err := s.repo.LatestSentimentSnapshot(ctx, symbol); err == nil && now.Sub(prev.Timestamp) < s.cfg.Freshness {
		s.mu.Lock()
		s.stats.SkippedFreshOutput++
		s.mu.Unlock()
		entry.WithFields(logger.Fields{"symbol": symbol}).Debug("recent sentiment snapshot exists, skipping regeneration")
		return
	}

	inputs := s.collectSentimentInputs(ctx, symbol, now)
	snapshot := s.sentiment.Evaluate(symbol, inputs, now)

	if err := s.repo.SaveSentimentSnapshot(ctx, snapshot); err != nil {
		s.countError()
		entry.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Error("failed to persist sentiment snapshot")
		return
	}
	s.mu.Lock()
	s.stats.SnapshotsGenerated++
	s.mu.Unlock()

	entry.WithFields(logger.Fields{
		"symbol": symbol,
		"score":  snapshot.Score,
		"level":  string(snapshot.Level),
		"signal": string(snapshot.TradingSignal),
	}).Info("sentiment snapshot generated")
}

// collectSentimentInputs gathers component inputs, applying the freshness
// guard: anything older than the configured bound is withheld so the engine
// scores that component neutral instead of trusting stale data.
func (s *Scheduler) collectSentimentInputs(ctx context.Context, symbol string, now time.Time) feargreed.Inputs {
	var in feargreed.Inputs
	fresh := func(t time.Time) bool { return now.Sub(t) <= s.cfg.Freshness }

	if funding, err := s.repo.LatestFundingRate(ctx, symbol); err == nil {
		// Funding settles hourly at best; its own poll interval is the
		// freshness bound here.
		if now.Sub(funding.Timestamp) <= 2*time.Hour {
			in.Funding = &funding
		}
	}
	if ratio, err := s.repo.LatestLongShortRatio(ctx, symbol); err == nil && fresh(ratio.Timestamp) {
		in.LongShort = &ratio
	}
	if value, err := s.repo.LiquidationValueSince(ctx, symbol, now.Add(-time.Hour)); err == nil {
		in.LiquidationValue = &value
	}
	if oi, err := s.repo.LatestOpenInterest(ctx, symbol); err == nil && fresh(oi.Timestamp) {
		in.OpenInterest = &oi
		if prev, err := s.repo.OpenInterestAt(ctx, symbol, now.Add(-24*time.Hour)); err == nil {
			in.OpenInterest24h = &prev
		}
	}
	if windows, err := s.repo.LatestTradeWindows(ctx, symbol, 100); err == nil {
		in.Windows = windows
	}
	if book, err := s.repo.LatestOrderbookSample(ctx, symbol); err == nil && fresh(book.Timestamp) {
		in.Book = &book
	}
	if prev, err := s.repo.SentimentSnapshotAt(ctx, symbol, now.Add(-time.Hour)); err == nil {
		in.Prev1h = &prev
	}
	if prev, err := s.repo.SentimentSnapshotAt(ctx, symbol, now.Add(-24*time.Hour)); err == nil {
		in.Prev24h = &prev
	}
	return in
}

// maybePrune runs the retention sweep when the tick lands inside the weekly
// prune slot and the last sweep is at least a day old.
func (s *Scheduler) maybePrune(ctx context.Context, now time.Time) {
	if now.Weekday() != pruneWeekday || now.Hour() != pruneHour {
		return
	}
	s.mu.RLock()
	last := s.stats.LastPrune
	s.mu.RUnlock()
	if now.Sub(last) < 24*time.Hour {
		return
	}

	cutoff := now.AddDate(0, 0, -s.cfg.RetentionDays)
	removed, err := s.repo.PruneAnalytics(ctx, cutoff)
	if err != nil {
		s.countError()
		s.log.WithComponent("scheduler").WithError(err).Error("retention prune failed")
		return
	}

	s.mu.Lock()
	s.stats.LastPrune = now
	s.stats.PrunedRecords += int64(removed)
	s.mu.Unlock()

	s.log.WithComponent("scheduler").WithFields(logger.Fields{
		"cutoff":  cutoff.Format(time.RFC3339),
		"removed": removed,
	}).Info("retention prune completed")
}

func (s *Scheduler) currentSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.symbols...)
}

func (s *Scheduler) countError() {
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
}
