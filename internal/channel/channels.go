package channel

import (
	"context"
	"sync"
	"time"

	"github.com/Mulfari/btrader-sub000/internal/models"
	"github.com/Mulfari/btrader-sub000/logger"
)

// Stats keeps send/drop counters for one channel.
type Stats struct {
	Sent    int64
	Dropped int64
}

// Channels groups the buffered streams connecting the ingestion gateway with
// the windowed aggregator. Sends never block: when a buffer is full the
// message is counted as dropped and discarded.
type Channels struct {
	Trades       chan models.Trade
	Books        chan models.TopOfBook
	Liquidations chan models.LiquidationEvent

	mu        sync.RWMutex
	tradeStat Stats
	bookStat  Stats
	liqStat   Stats
	log       *logger.Log
}

// NewChannels constructs the stream channel group.
func NewChannels(tradeBuffer, bookBuffer, liquidationBuffer int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Trades:       make(chan models.Trade, tradeBuffer),
		Books:        make(chan models.TopOfBook, bookBuffer),
		Liquidations: make(chan models.LiquidationEvent, liquidationBuffer),
		log:          log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"trade_buffer":       tradeBuffer,
		"book_buffer":        bookBuffer,
		"liquidation_buffer": liquidationBuffer,
	}).Info("stream channels initialized")

	return c
}

// Close releases all channels. Callers must stop producers first.
func (c *Channels) Close() {
	close(c.Trades)
	close(c.Books)
	close(c.Liquidations)
	c.log.WithComponent("channels").Info("stream channels closed")
}

// SendTrade attempts to enqueue a trade without blocking.
func (c *Channels) SendTrade(ctx context.Context, t models.Trade) bool {
	select {
	case c.Trades <- t:
		c.increment(&c.tradeStat, true)
		logger.RecordChannelMessage("trades", 1)
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(&c.tradeStat, false)
		return false
	}
}

// SendBook attempts to enqueue a top-of-book update without blocking.
func (c *Channels) SendBook(ctx context.Context, b models.TopOfBook) bool {
	select {
	case c.Books <- b:
		c.increment(&c.bookStat, true)
		logger.RecordChannelMessage("books", 1)
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(&c.bookStat, false)
		return false
	}
}

// SendLiquidation attempts to enqueue a liquidation event without blocking.
func (c *Channels) SendLiquidation(ctx context.Context, l models.LiquidationEvent) bool {
	select {
	case c.Liquidations <- l:
		c.increment(&c.liqStat, true)
		logger.RecordChannelMessage("liquidations", 1)
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(&c.liqStat, false)
		return false
	}
}

func (c *Channels) increment(s *Stats, sent bool) {
	c.mu.Lock()
	if sent {
		s.Sent++
	} else {
		s.Dropped++
	}
	c.mu.Unlock()
}

// GetStats returns a snapshot of all channel counters.
func (c *Channels) GetStats() (trades, books, liquidations Stats) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tradeStat, c.bookStat, c.liqStat
}

// StartMetricsReporting periodically emits channel occupancy and drop
// counters until the context is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trades, books, liqs := c.GetStats()
			c.log.LogMetric("channels", "trade_messages_sent", trades.Sent, "counter", logger.Fields{})
			c.log.LogMetric("channels", "trade_messages_dropped", trades.Dropped, "counter", logger.Fields{})
			c.log.WithComponent("channels").WithFields(logger.Fields{
				"trades_sent":          trades.Sent,
				"trades_dropped":       trades.Dropped,
				"books_sent":           books.Sent,
				"books_dropped":        books.Dropped,
				"liquidations_sent":    liqs.Sent,
				"liquidations_dropped": liqs.Dropped,
				"trade_channel_len":    len(c.Trades),
				"trade_channel_cap":    cap(c.Trades),
				"book_channel_len":     len(c.Books),
				"book_channel_cap":     cap(c.Books),
			}).Info("channel metrics")
		}
	}
}
