package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
service:
  name: btrader-market
  version: 1.0.0
trading:
  symbols: [BTCUSDT]
channels:
  trade_buffer: 100
  book_buffer: 100
  liquidation_buffer: 10
source:
  bybit:
    ws_url: wss://stream.bybit.com/v5/public/linear
    rest_url: https://api.bybit.com
    category: linear
fetchers:
  timeout: 5s
  requests_per_second: 5
  burst_size: 5
  open_interest:
    enabled: true
    interval: 30s
  funding:
    enabled: true
    interval: 1h
  long_short_ratio:
    enabled: true
    interval: 5m
    period: 5min
analytics:
  volume_profile:
    levels: 50
    value_area_pct: 70
    timeframes: [5m, 1h]
  fear_greed:
    weights:
      funding_rate: 20
      long_short_ratio: 15
      liquidations: 20
      open_interest_change: 15
      volume: 10
      volatility: 10
      orderbook_imbalance: 10
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfigValid(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Service.Name != "btrader-market" {
		t.Fatalf("unexpected service name %q", cfg.Service.Name)
	}
	if cfg.Source.Bybit.ReconnectDelay != 5*time.Second {
		t.Fatalf("expected default reconnect delay, got %v", cfg.Source.Bybit.ReconnectDelay)
	}
	if cfg.Aggregator.TradeFlushInterval != time.Second {
		t.Fatalf("expected default trade flush interval, got %v", cfg.Aggregator.TradeFlushInterval)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("expected default scheduler interval, got %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.RetentionDays != 30 {
		t.Fatalf("expected default retention, got %d", cfg.Scheduler.RetentionDays)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "no symbols",
			mutate:  func(s string) string { return strings.Replace(s, "symbols: [BTCUSDT]", "symbols: []", 1) },
			wantErr: "trading.symbols",
		},
		{
			name:    "bad level count",
			mutate:  func(s string) string { return strings.Replace(s, "levels: 50", "levels: 500", 1) },
			wantErr: "volume_profile.levels",
		},
		{
			name:    "weights do not sum",
			mutate:  func(s string) string { return strings.Replace(s, "funding_rate: 20", "funding_rate: 25", 1) },
			wantErr: "weights must sum to 100",
		},
		{
			name:    "missing ws url",
			mutate:  func(s string) string { return strings.Replace(s, "ws_url: wss://stream.bybit.com/v5/public/linear", "ws_url: \"\"", 1) },
			wantErr: "ws_url",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeTempConfig(t, tc.mutate(validYAML)))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestS3EnvOverride(t *testing.T) {
	yaml := validYAML + `
storage:
  s3:
    enabled: true
    bucket: from-file
    region: us-east-1
    access_key_id: file-key
    secret_access_key: file-secret
`
	t.Setenv("S3_BUCKET", "from-env")
	t.Setenv("AWS_ACCESS_KEY_ID", "env-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := LoadConfig(writeTempConfig(t, yaml))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Storage.S3.Bucket != "from-env" {
		t.Fatalf("bucket not overridden: %q", cfg.Storage.S3.Bucket)
	}
	if cfg.Storage.S3.AccessKeyID != "env-key" || cfg.Storage.S3.Region != "eu-west-1" {
		t.Fatalf("credentials not overridden")
	}
}
