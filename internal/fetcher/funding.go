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
	// Funding classification bands on the per-interval rate.
	fundingModerateRate = 0.0005
	fundingHeavyRate    = 0.001
	// Beyond extremeFundingRate positioning is crowded enough that a snap
	// reversal becomes likely.
	extremeFundingRate = 0.002
	// fundingDivergenceGap is 0.1 percentage points between the current rate
	// and its daily average.
	fundingDivergenceGap = 0.001

	// fundingHistoryLimit covers 24 hours of 8h funding intervals with room
	// for schedule drift.
	fundingHistoryLimit = 6
)

type fundingHistoryResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		Rate      string `json:"fundingRate"`
		Timestamp string `json:"fundingRateTimestamp"`
	} `json:"list"`
}

// fetchFunding polls the current funding rate plus enough history to compute
// the 8h and 24h rolling averages, classifies the reading and stores it.
func (f *Fetchers) fetchFunding(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)

	var tickers tickersResult
	if err := f.client.get(ctx, "/v5/market/tickers", params, &tickers); err != nil {
		return err
	}
	if len(tickers.List) == 0 {
		return fmt.Errorf("empty tickers response for %s", symbol)
	}
	t := tickers.List[0]

	current, err := strconv.ParseFloat(t.FundingRate, 64)
	if err != nil {
		return fmt.Errorf("bad funding rate %q: %w", t.FundingRate, err)
	}
	predicted := current
	if t.PredictedRate != "" {
		if v, err := strconv.ParseFloat(t.PredictedRate, 64); err == nil {
			predicted = v
		}
	}
	markPrice, _ := strconv.ParseFloat(t.MarkPrice, 64)

	avg8h, avg24h := current, current
	if history, err := f.fundingHistory(ctx, symbol); err == nil && len(history) > 0 {
		avg8h = averageRates(history, 1)
		avg24h = averageRates(history, 3)
	}

	sentiment, bias := classifyFunding(current)
	sample := models.FundingRateSample{
		Symbol:         symbol,
		Timestamp:      time.Now().UTC(),
		CurrentRate:    current,
		PredictedRate:  predicted,
		MarkPrice:      markPrice,
		Avg8h:          avg8h,
		Avg24h:         avg24h,
		Sentiment:      sentiment,
		Bias:           bias,
		IsExtreme:      math.Abs(current) > extremeFundingRate,
		ReversalSignal: fundingReversal(current, avg8h, avg24h),
	}
	return f.repo.SaveFundingRate(ctx, sample)
}

// fundingHistory returns recent settled funding rates, newest first.
func (f *Fetchers) fundingHistory(ctx context.Context, symbol string) ([]float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(fundingHistoryLimit))

	var result fundingHistoryResult
	if err := f.client.get(ctx, "/v5/market/funding/history", params, &result); err != nil {
		return nil, err
	}

	rates := make([]float64, 0, len(result.List))
	for _, item := range result.List {
		rate, err := strconv.ParseFloat(item.Rate, 64)
		if err != nil {
			continue
		}
		rates = append(rates, rate)
	}
	return rates, nil
}

// averageRates averages the newest n settled rates.
func averageRates(rates []float64, n int) float64 {
	if n > len(rates) {
		n = len(rates)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range rates[:n] {
		sum += r
	}
	return sum / float64(n)
}

// classifyFunding buckets the rate into crowd-positioning sentiment and names
// which side pays.
func classifyFunding(rate float64) (models.FundingSentiment, models.FundingBias) {
	var sentiment models.FundingSentiment
	switch {
	case rate > fundingHeavyRate:
		sentiment = models.FundingBullishHeavy
	case rate > fundingModerateRate:
		sentiment = models.FundingBullishModerate
	case rate >= -fundingModerateRate:
		sentiment = models.FundingNeutral
	case rate >= -fundingHeavyRate:
		sentiment = models.FundingBearishModerate
	default:
		sentiment = models.FundingBearishHeavy
	}

	bias := models.BiasBalanced
	switch {
	case rate > fundingModerateRate:
		bias = models.BiasLongsPay
	case rate < -fundingModerateRate:
		bias = models.BiasShortsPay
	}
	return sentiment, bias
}

// fundingReversal fires when positioning looks ripe to snap back: either the
// current rate and its 8h average sit beyond the heavy band on the same side,
// or the current rate has pulled more than 0.1 percentage points away from
// the daily average.
func fundingReversal(current, avg8h, avg24h float64) bool {
	if current*avg8h > 0 && math.Abs(current) > fundingHeavyRate && math.Abs(avg8h) > fundingHeavyRate {
		return true
	}
	return math.Abs(current-avg24h) > fundingDivergenceGap
}
