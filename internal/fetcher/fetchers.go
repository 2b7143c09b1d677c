package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/repository"
	"github.com/Mulfari/btrader-sub000/logger"
)

// Fetchers runs the periodic REST pollers for open interest, funding rate
// and long/short account ratio. Each metric runs on its own ticker loop; the
// first fetch fires immediately on Start so downstream analytics never wait a
// full interval for data.
type Fetchers struct {
	cfg    appconfig.FetchersConfig
	source appconfig.BybitSourceConfig
	repo   repository.Repository
	client *restClient
	log    *logger.Log

	mu      sync.RWMutex
	symbols []string
	running bool
	paused  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFetchers constructs the poller group for the given symbols.
func NewFetchers(cfg appconfig.FetchersConfig, source appconfig.BybitSourceConfig, symbols []string, repo repository.Repository) *Fetchers {
	return &Fetchers{
		cfg:     cfg,
		source:  source,
		repo:    repo,
		client:  newRestClient(source, cfg),
		symbols: append([]string(nil), symbols...),
		log:     logger.GetLogger(),
	}
}

// Start launches one goroutine per enabled metric.
func (f *Fetchers) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("fetchers already running")
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.running = true
	f.mu.Unlock()

	entry := f.log.WithComponent("fetchers")

	if f.cfg.OpenInterest.Enabled {
		f.wg.Add(1)
		go f.runLoop(ctx, "open_interest", f.cfg.OpenInterest.Interval, f.fetchOpenInterest)
	}
	if f.cfg.Funding.Enabled {
		f.wg.Add(1)
		go f.runLoop(ctx, "funding", f.cfg.Funding.Interval, f.fetchFunding)
	}
	if f.cfg.LongShortRatio.Enabled {
		f.wg.Add(1)
		go f.runLoop(ctx, "long_short_ratio", f.cfg.LongShortRatio.Interval, f.fetchLongShortRatio)
	}

	entry.WithFields(logger.Fields{
		"open_interest":    f.cfg.OpenInterest.Enabled,
		"funding":          f.cfg.Funding.Enabled,
		"long_short_ratio": f.cfg.LongShortRatio.Enabled,
		"symbols":          len(f.symbols),
	}).Info("metric fetchers started")
	return nil
}

// Stop cancels all poll loops and waits for them to drain.
func (f *Fetchers) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	cancel := f.cancel
	f.mu.Unlock()

	cancel()
	f.wg.Wait()
	f.log.WithComponent("fetchers").Info("metric fetchers stopped")
}

// Pause suspends polling without tearing down the loops. Ticks that fire
// while paused are skipped.
func (f *Fetchers) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
	f.log.WithComponent("fetchers").Info("metric fetchers paused")
}

// Resume re-enables polling after Pause.
func (f *Fetchers) Resume() {
	f.mu.Lock()
	f.paused = false
	f.mu.Unlock()
	f.log.WithComponent("fetchers").Info("metric fetchers resumed")
}

// Paused reports whether polling is currently suspended.
func (f *Fetchers) Paused() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.paused
}

// UpdateSymbols replaces the polled symbol set. Takes effect on the next
// tick of each loop.
func (f *Fetchers) UpdateSymbols(symbols []string) {
	f.mu.Lock()
	f.symbols = append([]string(nil), symbols...)
	f.mu.Unlock()
	f.log.WithComponent("fetchers").WithFields(logger.Fields{"symbols": symbols}).Info("fetcher symbols updated")
}

func (f *Fetchers) currentSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.symbols...)
}

// runLoop drives one metric: an immediate fetch, then one per interval. A
// failing symbol never stops the loop or blocks the other symbols.
func (f *Fetchers) runLoop(ctx context.Context, name string, interval time.Duration, fetch func(ctx context.Context, symbol string) error) {
	defer f.wg.Done()

	entry := f.log.WithComponent("fetcher_" + name)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.fetchAll(ctx, entry, name, fetch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.fetchAll(ctx, entry, name, fetch)
		}
	}
}

func (f *Fetchers) fetchAll(ctx context.Context, entry *logger.Entry, name string, fetch func(ctx context.Context, symbol string) error) {
	if f.Paused() {
		return
	}

	start := time.Now()
	for _, symbol := range f.currentSymbols() {
		if ctx.Err() != nil {
			return
		}
		if err := fetch(ctx, symbol); err != nil {
			entry.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Error("fetch failed")
			continue
		}
		logger.IncrementSampleWrite(1)
	}
	logger.LogPerformanceEntry(entry, "fetcher_"+name, "fetch_cycle", time.Since(start), nil)
}
