package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appconfig "github.com/Mulfari/btrader-sub000/config"
)

func testClient(baseURL string) *restClient {
	src := appconfig.BybitSourceConfig{RestURL: baseURL, Category: "linear"}
	cfg := appconfig.FetchersConfig{Timeout: 2 * time.Second, RequestsPerSecond: 100, BurstSize: 100}
	return newRestClient(src, cfg)
}

func TestClientGetDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("category"); got != "linear" {
			t.Errorf("category query %q", got)
		}
		if r.URL.Path != "/v5/market/tickers" {
			t.Errorf("path %s", r.URL.Path)
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{"symbol":"BTCUSDT","lastPrice":"100.5","fundingRate":"0.0001","markPrice":"100.4"}]}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	var result tickersResult
	if err := c.get(context.Background(), "/v5/market/tickers", map[string][]string{"symbol": {"BTCUSDT"}}, &result); err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(result.List) != 1 || result.List[0].LastPrice != "100.5" {
		t.Fatalf("result %+v", result)
	}
}

func TestClientGetAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	var out struct{}
	err := c.get(context.Background(), "/v5/market/tickers", map[string][]string{}, &out)
	if err == nil || !strings.Contains(err.Error(), "10001") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestClientGetHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	var out struct{}
	if err := c.get(context.Background(), "/v5/market/tickers", map[string][]string{}, &out); err == nil {
		t.Fatalf("expected status error")
	}
}
