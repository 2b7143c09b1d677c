package service

import (
	"context"
	"testing"
	"time"

	appconfig "github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/aggregate"
	"github.com/Mulfari/btrader-sub000/internal/channel"
	"github.com/Mulfari/btrader-sub000/internal/fetcher"
	"github.com/Mulfari/btrader-sub000/internal/models"
	"github.com/Mulfari/btrader-sub000/internal/repository"
	"github.com/Mulfari/btrader-sub000/internal/scheduler"
	"github.com/Mulfari/btrader-sub000/internal/stream"
)

func newTestService(t *testing.T) (*Service, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	ch := channel.NewChannels(16, 16, 16)

	gw := stream.NewGateway(appconfig.BybitSourceConfig{WSURL: "wss://example.invalid/v5/public/linear"}, ch, []string{"BTCUSDT"})
	agg := aggregate.NewAggregator(appconfig.AggregatorConfig{TradeFlushInterval: time.Second, BookFlushInterval: time.Second}, ch, repo)
	fetchers := fetcher.NewFetchers(appconfig.FetchersConfig{Timeout: time.Second}, appconfig.BybitSourceConfig{RestURL: "https://example.invalid"}, []string{"BTCUSDT"}, repo)
	sched := scheduler.NewScheduler(
		appconfig.SchedulerConfig{Interval: 5 * time.Minute, Freshness: 6 * time.Minute, RetentionDays: 30},
		appconfig.AnalyticsConfig{
			VolumeProfile: appconfig.VolumeProfileConfig{Levels: 20, ValueAreaPct: 70, Timeframes: []string{"5m"}},
			FearGreed: appconfig.FearGreedConfig{Weights: appconfig.ComponentWeights{
				FundingRate: 20, LongShortRatio: 15, Liquidations: 20,
				OpenInterestChange: 15, Volume: 10, Volatility: 10, OrderbookImbalance: 10,
			}},
		},
		[]string{"BTCUSDT"}, repo,
	)

	return NewService(gw, agg, fetchers, sched, repo), repo
}

func TestPauseAllAndResumeAll(t *testing.T) {
	svc, _ := newTestService(t)

	svc.PauseAll()
	st := svc.Status()
	if !st.Gateway.Paused || !st.AggregatorPaused || !st.FetchersPaused || !st.SchedulerPaused {
		t.Fatalf("pause-all status %+v", st)
	}

	svc.ResumeAll()
	st = svc.Status()
	if st.Gateway.Paused || st.AggregatorPaused || st.FetchersPaused || st.SchedulerPaused {
		t.Fatalf("resume-all status %+v", st)
	}
}

func TestReadsDelegateToRepository(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	snap := models.SentimentSnapshot{Symbol: "BTCUSDT", Timestamp: time.Now().UTC(), Score: 42}
	if err := repo.SaveSentimentSnapshot(ctx, snap); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := svc.FearGreedIndex(ctx, "BTCUSDT")
	if err != nil || got.Score != 42 {
		t.Fatalf("index read: %v %+v", err, got)
	}

	history, err := svc.FearGreedHistory(ctx, "BTCUSDT", 7)
	if err != nil || len(history) != 1 {
		t.Fatalf("history read: %v %d", err, len(history))
	}

	if _, _, err := svc.VolumeProfile(ctx, "BTCUSDT", models.Timeframe5m); err == nil {
		t.Fatalf("missing profile must surface the repository error")
	}
}

func TestRunManualAnalysisProducesSnapshot(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 20; i++ {
		w := models.TradeWindow{
			Symbol:    "BTCUSDT",
			Timestamp: now.Add(-time.Duration(20-i) * time.Second),
			BuyVolume: 1, SellVolume: 1, BuyCount: 1, SellCount: 1,
			VWAP: 100, PriceHigh: 100, PriceLow: 100,
		}
		if err := repo.SaveTradeWindow(ctx, w); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	svc.RunManualAnalysis(ctx)

	if _, err := svc.FearGreedIndex(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("manual run produced no snapshot: %v", err)
	}
	if stats := svc.SchedulerStats(); stats.SymbolRuns != 1 {
		t.Fatalf("scheduler stats %+v", stats)
	}
}

func TestUpdateSymbolsPropagates(t *testing.T) {
	svc, _ := newTestService(t)

	svc.UpdateSymbols([]string{"ETHUSDT"})
	st := svc.Status()
	if len(st.Gateway.Symbols) != 1 || st.Gateway.Symbols[0] != "ETHUSDT" {
		t.Fatalf("gateway symbols %v", st.Gateway.Symbols)
	}
}

func TestCurrentAccumulatorEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	if _, ok := svc.CurrentAccumulator("BTCUSDT"); ok {
		t.Fatalf("no trades yet, accumulator must be empty")
	}
}
