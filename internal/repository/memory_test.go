package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mulfari/btrader-sub000/internal/models"
)

func ts(sec int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(sec) * time.Second)
}

func TestTradeWindowReads(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		w := models.TradeWindow{Symbol: "BTCUSDT", Timestamp: ts(i), BuyVolume: float64(i)}
		if err := r.SaveTradeWindow(ctx, w); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	since, err := r.TradeWindowsSince(ctx, "BTCUSDT", ts(3))
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("expected 2 windows since ts(3), got %d", len(since))
	}

	latest, err := r.LatestTradeWindow(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !latest.Timestamp.Equal(ts(4)) {
		t.Fatalf("latest timestamp %v", latest.Timestamp)
	}

	last2, err := r.LatestTradeWindows(ctx, "BTCUSDT", 2)
	if err != nil || len(last2) != 2 {
		t.Fatalf("last2: %v %d", err, len(last2))
	}
	if last2[0].Timestamp.After(last2[1].Timestamp) {
		t.Fatalf("expected chronological order")
	}

	if _, err := r.LatestTradeWindow(ctx, "ETHUSDT"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestOpenInterestAt(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := models.OpenInterestSample{Symbol: "BTCUSDT", Timestamp: ts(i * 60), OpenInterest: float64(i)}
		if err := r.SaveOpenInterest(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := r.OpenInterestAt(ctx, "BTCUSDT", ts(90))
	if err != nil {
		t.Fatalf("at: %v", err)
	}
	if got.OpenInterest != 1 {
		t.Fatalf("expected sample at ts(60), got %+v", got)
	}

	if _, err := r.OpenInterestAt(ctx, "BTCUSDT", ts(-1)); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData before first sample, got %v", err)
	}
}

func TestLiquidationValueSince(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		e := models.LiquidationEvent{Symbol: "BTCUSDT", Timestamp: ts(i), Value: 100}
		if err := r.SaveLiquidation(ctx, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	total, err := r.LiquidationValueSince(ctx, "BTCUSDT", ts(2))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 200 {
		t.Fatalf("expected 200, got %v", total)
	}
}

func TestVolumeProfileGenerations(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	first := models.VolumeProfileSummary{Symbol: "BTCUSDT", Timeframe: models.Timeframe1h, GenerationID: "g1", GeneratedAt: ts(0)}
	second := models.VolumeProfileSummary{Symbol: "BTCUSDT", Timeframe: models.Timeframe1h, GenerationID: "g2", GeneratedAt: ts(60)}

	if err := r.SaveVolumeProfile(ctx, first, []models.VolumeProfileLevel{{GenerationID: "g1"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := r.SaveVolumeProfile(ctx, second, []models.VolumeProfileLevel{{GenerationID: "g2"}, {GenerationID: "g2"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	summary, levels, err := r.LatestVolumeProfile(ctx, "BTCUSDT", models.Timeframe1h)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if summary.GenerationID != "g2" || len(levels) != 2 {
		t.Fatalf("expected newest generation, got %s with %d levels", summary.GenerationID, len(levels))
	}
}

func TestPruneAnalytics(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	old := models.SentimentSnapshot{Symbol: "BTCUSDT", Timestamp: ts(0)}
	fresh := models.SentimentSnapshot{Symbol: "BTCUSDT", Timestamp: ts(1000)}
	if err := r.SaveSentimentSnapshot(ctx, old); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := r.SaveSentimentSnapshot(ctx, fresh); err != nil {
		t.Fatalf("save: %v", err)
	}

	oldProfile := models.VolumeProfileSummary{Symbol: "BTCUSDT", Timeframe: models.Timeframe5m, GeneratedAt: ts(0)}
	if err := r.SaveVolumeProfile(ctx, oldProfile, []models.VolumeProfileLevel{{}, {}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	removed, err := r.PruneAnalytics(ctx, ts(500))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	// one snapshot plus two profile levels
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}

	latest, err := r.LatestSentimentSnapshot(ctx, "BTCUSDT")
	if err != nil || !latest.Timestamp.Equal(ts(1000)) {
		t.Fatalf("fresh snapshot should survive: %v %v", err, latest.Timestamp)
	}
	if _, _, err := r.LatestVolumeProfile(ctx, "BTCUSDT", models.Timeframe5m); !errors.Is(err, ErrNoData) {
		t.Fatalf("pruned profile should be gone, got %v", err)
	}
}
