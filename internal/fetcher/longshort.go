package fetcher

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/Mulfari/btrader-sub000/internal/models"
)

const (
	// Long-ratio buckets for crowd sentiment.
	ratioExtremeGreedBand = 0.70
	ratioGreedBand        = 0.60
	ratioFearBand         = 0.40
	ratioExtremeFearBand  = 0.30

	// ratioDivergenceGap is how far the long share must sit from its daily
	// mean before an extreme reading counts as a fresh crowd rush.
	ratioDivergenceGap = 0.05

	// defaultRatioHistoryLimit covers 24 hours of 5-minute points.
	defaultRatioHistoryLimit = 288
)

type accountRatioResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		BuyRatio  string `json:"buyRatio"`
		SellRatio string `json:"sellRatio"`
		Timestamp string `json:"timestamp"`
	} `json:"list"`
}

// fetchLongShortRatio polls the account long/short ratio history, derives
// sentiment and crowd-chasing metrics against the daily mean and stores the
// newest sample.
func (f *Fetchers) fetchLongShortRatio(ctx context.Context, symbol string) error {
	limit := f.cfg.LongShortRatio.Limit
	if limit <= 0 {
		limit = defaultRatioHistoryLimit
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("period", f.cfg.LongShortRatio.Period)
	params.Set("limit", strconv.Itoa(limit))

	var result accountRatioResult
	if err := f.client.get(ctx, "/v5/market/account-ratio", params, &result); err != nil {
		return err
	}
	if len(result.List) == 0 {
		return fmt.Errorf("empty account-ratio response for %s", symbol)
	}

	// Rows are newest first: the head is the current reading, the whole page
	// backs the daily average.
	longRatio, err := strconv.ParseFloat(result.List[0].BuyRatio, 64)
	if err != nil {
		return fmt.Errorf("bad buy ratio %q: %w", result.List[0].BuyRatio, err)
	}
	shortRatio, err := strconv.ParseFloat(result.List[0].SellRatio, 64)
	if err != nil {
		return fmt.Errorf("bad sell ratio %q: %w", result.List[0].SellRatio, err)
	}

	history := make([]float64, 0, len(result.List))
	for _, row := range result.List {
		v, err := strconv.ParseFloat(row.BuyRatio, 64)
		if err != nil {
			continue
		}
		history = append(history, v)
	}
	avg24h := averageRates(history, len(history))

	sample := models.LongShortRatioSample{
		Symbol:           symbol,
		Timestamp:        time.Now().UTC(),
		LongRatio:        longRatio,
		ShortRatio:       shortRatio,
		Avg24h:           avg24h,
		SentimentScore:   (longRatio - 0.5) * 200,
		Sentiment:        classifyRatio(longRatio),
		FomoPanicLevel:   fomoPanicLevel(longRatio),
		ContrarianSignal: contrarianSignal(longRatio, avg24h),
	}
	if shortRatio > 0 {
		sample.Ratio = longRatio / shortRatio
	}
	return f.repo.SaveLongShortRatio(ctx, sample)
}

// contrarianSignal fires when the crowd is extreme and got there fast: the
// long share sits in an extreme band and has pulled well away from its daily
// mean. An extreme the market has held all day is positioning, not a rush.
func contrarianSignal(longRatio, avg24h float64) bool {
	if longRatio < ratioExtremeGreedBand && longRatio > ratioExtremeFearBand {
		return false
	}
	return math.Abs(longRatio-avg24h) > ratioDivergenceGap
}

// classifyRatio buckets the long-account share into sentiment labels.
func classifyRatio(longRatio float64) models.RatioSentiment {
	switch {
	case longRatio >= ratioExtremeGreedBand:
		return models.RatioExtremeGreed
	case longRatio >= ratioGreedBand:
		return models.RatioGreed
	case longRatio <= ratioExtremeFearBand:
		return models.RatioExtremeFear
	case longRatio <= ratioFearBand:
		return models.RatioFear
	default:
		return models.RatioNeutral
	}
}

// fomoPanicLevel is zero inside the neutral band and grows linearly as the
// crowd piles into one side: positive for long-chasing FOMO, negative for
// panic shorting. Capped at +-100.
func fomoPanicLevel(longRatio float64) float64 {
	switch {
	case longRatio > ratioGreedBand:
		return math.Min((longRatio-ratioGreedBand)*250, 100)
	case longRatio < ratioFearBand:
		return math.Max(-(ratioFearBand-longRatio)*250, -100)
	default:
		return 0
	}
}
