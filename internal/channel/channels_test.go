package channel

import (
	"context"
	"testing"
	"time"

	"github.com/Mulfari/btrader-sub000/internal/models"
)

func TestSendTradeCountsDrops(t *testing.T) {
	c := NewChannels(1, 1, 1)
	ctx := context.Background()

	trade := models.Trade{Symbol: "BTCUSDT", Side: models.TradeSideBuy, Price: 100, Volume: 1, Timestamp: time.Now()}
	if !c.SendTrade(ctx, trade) {
		t.Fatalf("first send should succeed")
	}
	if c.SendTrade(ctx, trade) {
		t.Fatalf("second send should drop, buffer is full")
	}

	trades, _, _ := c.GetStats()
	if trades.Sent != 1 || trades.Dropped != 1 {
		t.Fatalf("unexpected stats: %+v", trades)
	}
}

func TestSendCancelledContext(t *testing.T) {
	c := NewChannels(1, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Fill the buffer so the send has to consult the context.
	c.Books <- models.TopOfBook{Symbol: "BTCUSDT"}
	if c.SendBook(ctx, models.TopOfBook{Symbol: "BTCUSDT"}) {
		t.Fatalf("send should fail with cancelled context")
	}
}
