package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Mulfari/btrader-sub000/internal/models"
)

// ErrNoData is returned by read operations when no record satisfies the
// query. Callers decide whether that is fatal (volume profile) or maps to a
// neutral default (fear & greed components).
var ErrNoData = errors.New("no data")

// Repository is the append-only persistence boundary. Every record is
// immutable once written; reads always resolve the latest generation by
// timestamp. Implementations must be safe for concurrent use.
type Repository interface {
	SaveTradeWindow(ctx context.Context, w models.TradeWindow) error
	SaveOrderbookSample(ctx context.Context, s models.OrderbookSample) error
	SaveOpenInterest(ctx context.Context, s models.OpenInterestSample) error
	SaveFundingRate(ctx context.Context, s models.FundingRateSample) error
	SaveLongShortRatio(ctx context.Context, s models.LongShortRatioSample) error
	SaveLiquidation(ctx context.Context, e models.LiquidationEvent) error
	SaveVolumeProfile(ctx context.Context, summary models.VolumeProfileSummary, levels []models.VolumeProfileLevel) error
	SaveSentimentSnapshot(ctx context.Context, s models.SentimentSnapshot) error

	TradeWindowsSince(ctx context.Context, symbol string, since time.Time) ([]models.TradeWindow, error)
	LatestTradeWindows(ctx context.Context, symbol string, limit int) ([]models.TradeWindow, error)
	LatestTradeWindow(ctx context.Context, symbol string) (models.TradeWindow, error)
	LatestOrderbookSample(ctx context.Context, symbol string) (models.OrderbookSample, error)
	LatestOpenInterest(ctx context.Context, symbol string) (models.OpenInterestSample, error)
	// OpenInterestAt returns the newest sample at or before t.
	OpenInterestAt(ctx context.Context, symbol string, t time.Time) (models.OpenInterestSample, error)
	LatestFundingRate(ctx context.Context, symbol string) (models.FundingRateSample, error)
	FundingRatesSince(ctx context.Context, symbol string, since time.Time) ([]models.FundingRateSample, error)
	LatestLongShortRatio(ctx context.Context, symbol string) (models.LongShortRatioSample, error)
	LongShortRatiosSince(ctx context.Context, symbol string, since time.Time) ([]models.LongShortRatioSample, error)
	// LiquidationValueSince sums the quote value of liquidations after since.
	LiquidationValueSince(ctx context.Context, symbol string, since time.Time) (float64, error)
	LatestVolumeProfile(ctx context.Context, symbol string, timeframe models.Timeframe) (models.VolumeProfileSummary, []models.VolumeProfileLevel, error)
	LatestSentimentSnapshot(ctx context.Context, symbol string) (models.SentimentSnapshot, error)
	// SentimentSnapshotAt returns the newest snapshot at or before t.
	SentimentSnapshotAt(ctx context.Context, symbol string, t time.Time) (models.SentimentSnapshot, error)
	SentimentHistory(ctx context.Context, symbol string, since time.Time) ([]models.SentimentSnapshot, error)

	// PruneAnalytics deletes volume-profile and sentiment generations older
	// than the cutoff and returns the number of removed records.
	PruneAnalytics(ctx context.Context, olderThan time.Time) (int, error)
}
