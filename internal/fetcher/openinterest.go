package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Mulfari/btrader-sub000/internal/models"
	"github.com/Mulfari/btrader-sub000/internal/repository"
)

type openInterestResult struct {
	Symbol string `json:"symbol"`
	List   []struct {
		OpenInterest string `json:"openInterest"`
		Timestamp    string `json:"timestamp"`
	} `json:"list"`
}

type tickersResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		LastPrice     string `json:"lastPrice"`
		MarkPrice     string `json:"markPrice"`
		FundingRate   string `json:"fundingRate"`
		PredictedRate string `json:"predictedFundingRate"`
	} `json:"list"`
}

// fetchOpenInterest polls the newest open-interest reading for one symbol and
// stores it together with its delta against the previous sample.
func (f *Fetchers) fetchOpenInterest(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("intervalTime", "5min")
	params.Set("limit", "1")

	var result openInterestResult
	if err := f.client.get(ctx, "/v5/market/open-interest", params, &result); err != nil {
		return err
	}
	if len(result.List) == 0 {
		return fmt.Errorf("empty open-interest response for %s", symbol)
	}

	oi, err := strconv.ParseFloat(result.List[0].OpenInterest, 64)
	if err != nil {
		return fmt.Errorf("bad open-interest value %q: %w", result.List[0].OpenInterest, err)
	}

	price, _ := f.lastPrice(ctx, symbol)

	sample := models.OpenInterestSample{
		Symbol:       symbol,
		Timestamp:    time.Now().UTC(),
		OpenInterest: oi,
		Price:        price,
	}

	prev, err := f.repo.LatestOpenInterest(ctx, symbol)
	switch {
	case err == nil:
		sample.DeltaOI = oi - prev.OpenInterest
	case errors.Is(err, repository.ErrNoData):
		// First sample for the symbol; delta stays zero.
	default:
		return err
	}

	return f.repo.SaveOpenInterest(ctx, sample)
}

// lastPrice resolves the symbol's last traded price from the tickers
// endpoint. Failures are tolerable; the open-interest sample is still useful
// without a price.
func (f *Fetchers) lastPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var result tickersResult
	if err := f.client.get(ctx, "/v5/market/tickers", params, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("empty tickers response for %s", symbol)
	}
	return strconv.ParseFloat(result.List[0].LastPrice, 64)
}
