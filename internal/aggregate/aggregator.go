package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/channel"
	"github.com/Mulfari/btrader-sub000/internal/models"
	"github.com/Mulfari/btrader-sub000/internal/repository"
	"github.com/Mulfari/btrader-sub000/logger"
)

// tradeAccumulator collects one symbol's trades between flushes.
type tradeAccumulator struct {
	buyVolume  float64
	sellVolume float64
	buyCount   int
	sellCount  int
	notional   float64
	volume     float64
	firstPrice float64
	high       float64
	low        float64
}

func (a *tradeAccumulator) add(t models.Trade) {
	if a.buyCount+a.sellCount == 0 {
		a.firstPrice = t.Price
		a.high = t.Price
		a.low = t.Price
	}
	if t.Side == models.TradeSideBuy {
		a.buyVolume += t.Volume
		a.buyCount++
	} else {
		a.sellVolume += t.Volume
		a.sellCount++
	}
	a.notional += t.Price * t.Volume
	a.volume += t.Volume
	if t.Price > a.high {
		a.high = t.Price
	}
	if t.Price < a.low {
		a.low = t.Price
	}
}

// window materialises the accumulator into a TradeWindow stamped with the
// flush boundary. VWAP falls back to the first trade price when all trades
// carried zero volume.
func (a *tradeAccumulator) window(symbol string, boundary time.Time) models.TradeWindow {
	vwap := a.firstPrice
	if a.volume > 0 {
		vwap = a.notional / a.volume
	}
	return models.TradeWindow{
		Symbol:     symbol,
		Timestamp:  boundary,
		BuyVolume:  a.buyVolume,
		SellVolume: a.sellVolume,
		BuyCount:   a.buyCount,
		SellCount:  a.sellCount,
		VWAP:       vwap,
		PriceHigh:  a.high,
		PriceLow:   a.low,
	}
}

// Aggregator consumes the stream channels and persists fixed one-second
// aggregates. Trade accumulators are swapped out atomically on flush so the
// consumer never writes into a window being persisted. Top-of-book is state,
// not a windowed quantity; it is sampled on flush and never reset.
// ArchiveSink receives flushed trade windows for cold storage. Optional; a
// nil sink disables archival.
type ArchiveSink interface {
	Add(w models.TradeWindow)
}

type Aggregator struct {
	cfg     appconfig.AggregatorConfig
	ch      *channel.Channels
	repo    repository.Repository
	archive ArchiveSink
	log     *logger.Log

	mu      sync.Mutex
	trades  map[string]*tradeAccumulator
	books   map[string]models.TopOfBook
	paused  bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewAggregator constructs the windowed aggregator.
func NewAggregator(cfg appconfig.AggregatorConfig, ch *channel.Channels, repo repository.Repository) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		ch:     ch,
		repo:   repo,
		trades: make(map[string]*tradeAccumulator),
		books:  make(map[string]models.TopOfBook),
		log:    logger.GetLogger(),
	}
}

// SetArchive attaches a cold-storage sink for flushed windows. Must be
// called before Start.
func (a *Aggregator) SetArchive(sink ArchiveSink) {
	a.archive = sink
}

// Start launches the consume and flush loops.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("aggregator already running")
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.running = true
	a.mu.Unlock()

	a.wg.Add(2)
	go a.consumeLoop(ctx)
	go a.flushLoop(ctx)

	a.log.WithComponent("aggregator").WithFields(logger.Fields{
		"trade_flush_interval": a.cfg.TradeFlushInterval.String(),
		"book_flush_interval":  a.cfg.BookFlushInterval.String(),
	}).Info("aggregator started")
	return nil
}

// Stop cancels the loops and performs one final trade flush so the last
// partial window is not lost.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	a.mu.Unlock()

	cancel()
	a.wg.Wait()
	a.flushTrades(context.Background(), time.Now().UTC())
	a.log.WithComponent("aggregator").Info("aggregator stopped")
}

// Pause discards any in-progress accumulator contents and suspends
// aggregation until Resume. Partial windows from before the pause would mix
// stale and fresh data, so they are dropped rather than flushed.
func (a *Aggregator) Pause() {
	a.mu.Lock()
	a.paused = true
	a.trades = make(map[string]*tradeAccumulator)
	a.mu.Unlock()
	a.log.WithComponent("aggregator").Info("aggregator paused, partial windows discarded")
}

// Resume re-enables aggregation after Pause.
func (a *Aggregator) Resume() {
	a.mu.Lock()
	a.paused = false
	a.mu.Unlock()
	a.log.WithComponent("aggregator").Info("aggregator resumed")
}

// Paused reports whether aggregation is suspended.
func (a *Aggregator) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

// Snapshot returns the in-progress window for a symbol without disturbing
// the accumulator.
func (a *Aggregator) Snapshot(symbol string) (models.TradeWindow, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.trades[symbol]
	if !ok {
		return models.TradeWindow{}, false
	}
	return acc.window(symbol, time.Now().UTC().Truncate(time.Second)), true
}

func (a *Aggregator) consumeLoop(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-a.ch.Trades:
			if !ok {
				return
			}
			a.addTrade(t)
		case b, ok := <-a.ch.Books:
			if !ok {
				return
			}
			a.setBook(b)
		case l, ok := <-a.ch.Liquidations:
			if !ok {
				return
			}
			a.saveLiquidation(ctx, l)
		}
	}
}

func (a *Aggregator) addTrade(t models.Trade) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.paused {
		return
	}
	acc, ok := a.trades[t.Symbol]
	if !ok {
		acc = &tradeAccumulator{}
		a.trades[t.Symbol] = acc
	}
	acc.add(t)
}

func (a *Aggregator) setBook(b models.TopOfBook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.paused {
		return
	}
	a.books[b.Symbol] = b
}

func (a *Aggregator) saveLiquidation(ctx context.Context, l models.LiquidationEvent) {
	if a.Paused() {
		return
	}
	if err := a.repo.SaveLiquidation(ctx, l); err != nil {
		a.log.WithComponent("aggregator").WithError(err).Error("failed to persist liquidation")
	}
}

func (a *Aggregator) flushLoop(ctx context.Context) {
	defer a.wg.Done()

	tradeTicker := time.NewTicker(a.cfg.TradeFlushInterval)
	bookTicker := time.NewTicker(a.cfg.BookFlushInterval)
	defer tradeTicker.Stop()
	defer bookTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tradeTicker.C:
			a.flushTrades(ctx, now.UTC())
		case now := <-bookTicker.C:
			a.flushBooks(ctx, now.UTC())
		}
	}
}

// takeTrades swaps the live accumulator map for an empty one. The caller
// owns the returned map exclusively and can persist it without holding the
// lock.
func (a *Aggregator) takeTrades() map[string]*tradeAccumulator {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.paused {
		return nil
	}
	taken := a.trades
	a.trades = make(map[string]*tradeAccumulator, len(taken))
	return taken
}

func (a *Aggregator) flushTrades(ctx context.Context, now time.Time) {
	taken := a.takeTrades()
	if len(taken) == 0 {
		return
	}

	boundary := now.Truncate(time.Second)
	for symbol, acc := range taken {
		w := acc.window(symbol, boundary)
		if err := a.repo.SaveTradeWindow(ctx, w); err != nil {
			a.log.WithComponent("aggregator").WithError(err).WithFields(logger.Fields{
				"symbol": symbol,
			}).Error("failed to persist trade window")
			continue
		}
		if a.archive != nil {
			a.archive.Add(w)
		}
		logger.IncrementWindowFlush(w.BuyCount + w.SellCount)
	}
}

func (a *Aggregator) flushBooks(ctx context.Context, now time.Time) {
	a.mu.Lock()
	if a.paused {
		a.mu.Unlock()
		return
	}
	snapshot := make([]models.TopOfBook, 0, len(a.books))
	for _, b := range a.books {
		snapshot = append(snapshot, b)
	}
	a.mu.Unlock()

	boundary := now.Truncate(time.Second)
	for _, b := range snapshot {
		sample := bookSample(b, boundary)
		if err := a.repo.SaveOrderbookSample(ctx, sample); err != nil {
			a.log.WithComponent("aggregator").WithError(err).WithFields(logger.Fields{
				"symbol": b.Symbol,
			}).Error("failed to persist orderbook sample")
		}
	}
}

// bookSample derives spread, mid price and size imbalance from top-of-book
// state.
func bookSample(b models.TopOfBook, boundary time.Time) models.OrderbookSample {
	sample := models.OrderbookSample{
		Symbol:    b.Symbol,
		Timestamp: boundary,
		BidPrice:  b.BidPrice,
		AskPrice:  b.AskPrice,
		BidSize:   b.BidSize,
		AskSize:   b.AskSize,
		Spread:    b.AskPrice - b.BidPrice,
		MidPrice:  (b.AskPrice + b.BidPrice) / 2,
	}
	if total := b.BidSize + b.AskSize; total > 0 {
		sample.Imbalance = b.BidSize / total
	}
	return sample
}
