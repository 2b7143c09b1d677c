package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	appconfig "github.com/Mulfari/btrader-sub000/config"
)

// restClient wraps the exchange market-data REST API. All fetchers share one
// client so the rate limiter covers the process as a whole.
type restClient struct {
	http     *http.Client
	limiter  *rate.Limiter
	baseURL  string
	category string
}

// envelope is the exchange's common response wrapper. retCode zero means
// success; anything else carries the error in retMsg.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func newRestClient(src appconfig.BybitSourceConfig, cfg appconfig.FetchersConfig) *restClient {
	transport := &http.Transport{
		MaxIdleConns:    src.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost: src.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout: src.ConnectionPool.IdleConnTimeout,
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = rps
	}

	return &restClient{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		baseURL:  src.RestURL,
		category: src.Category,
	}
}

// get performs a rate-limited GET against the given API path and decodes the
// result payload into out.
func (c *restClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("category", c.category)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse response envelope: %w", err)
	}
	if env.RetCode != 0 {
		return fmt.Errorf("api error %d: %s", env.RetCode, env.RetMsg)
	}

	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to parse result payload: %w", err)
	}
	return nil
}
