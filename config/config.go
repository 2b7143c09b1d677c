package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Trading    TradingConfig    `yaml:"trading"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Source     SourceConfig     `yaml:"source"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Fetchers   FetchersConfig   `yaml:"fetchers"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type TradingConfig struct {
	Symbols []string `yaml:"symbols"`
}

type ChannelsConfig struct {
	TradeBuffer       int `yaml:"trade_buffer"`
	BookBuffer        int `yaml:"book_buffer"`
	LiquidationBuffer int `yaml:"liquidation_buffer"`
}

type SourceConfig struct {
	Bybit BybitSourceConfig `yaml:"bybit"`
}

type BybitSourceConfig struct {
	WSURL          string               `yaml:"ws_url"`
	RestURL        string               `yaml:"rest_url"`
	Category       string               `yaml:"category"`
	ReconnectDelay time.Duration        `yaml:"reconnect_delay"`
	KeepAlive      time.Duration        `yaml:"keep_alive"`
	Liquidations   bool                 `yaml:"liquidations"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type AggregatorConfig struct {
	TradeFlushInterval time.Duration `yaml:"trade_flush_interval"`
	BookFlushInterval  time.Duration `yaml:"book_flush_interval"`
}

type FetchersConfig struct {
	Timeout           time.Duration      `yaml:"timeout"`
	RequestsPerSecond int                `yaml:"requests_per_second"`
	BurstSize         int                `yaml:"burst_size"`
	OpenInterest      PollConfig         `yaml:"open_interest"`
	Funding           PollConfig         `yaml:"funding"`
	LongShortRatio    LongShortRatioPoll `yaml:"long_short_ratio"`
}

type PollConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Limit    int           `yaml:"limit"`
}

type LongShortRatioPoll struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Period   string        `yaml:"period"`
	Limit    int           `yaml:"limit"`
}

type AnalyticsConfig struct {
	VolumeProfile VolumeProfileConfig `yaml:"volume_profile"`
	FearGreed     FearGreedConfig     `yaml:"fear_greed"`
}

type VolumeProfileConfig struct {
	Levels       int      `yaml:"levels"`
	ValueAreaPct float64  `yaml:"value_area_pct"`
	Timeframes   []string `yaml:"timeframes"`
}

type FearGreedConfig struct {
	Weights ComponentWeights `yaml:"weights"`
}

type ComponentWeights struct {
	FundingRate        float64 `yaml:"funding_rate"`
	LongShortRatio     float64 `yaml:"long_short_ratio"`
	Liquidations       float64 `yaml:"liquidations"`
	OpenInterestChange float64 `yaml:"open_interest_change"`
	Volume             float64 `yaml:"volume"`
	Volatility         float64 `yaml:"volatility"`
	OrderbookImbalance float64 `yaml:"orderbook_imbalance"`
}

// Sum reports the combined weight across all seven components.
func (w ComponentWeights) Sum() float64 {
	return w.FundingRate + w.LongShortRatio + w.Liquidations +
		w.OpenInterestChange + w.Volume + w.Volatility + w.OrderbookImbalance
}

type SchedulerConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Freshness     time.Duration `yaml:"freshness"`
	RetentionDays int           `yaml:"retention_days"`
}

type StorageConfig struct {
	S3      S3Config      `yaml:"s3"`
	Archive ArchiveConfig `yaml:"archive"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ArchiveConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBuffer     int           `yaml:"max_buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Source: SourceConfig{
			Bybit: BybitSourceConfig{
				ReconnectDelay: 5 * time.Second,
				KeepAlive:      20 * time.Second,
			},
		},
		Aggregator: AggregatorConfig{
			TradeFlushInterval: time.Second,
			BookFlushInterval:  time.Second,
		},
		Scheduler: SchedulerConfig{
			Interval:      5 * time.Minute,
			Freshness:     6 * time.Minute,
			RetentionDays: 30,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}
	if cfg.Service.Version == "" {
		return fmt.Errorf("service.version is required")
	}

	if len(cfg.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols must list at least one symbol")
	}

	if cfg.Channels.TradeBuffer <= 0 {
		return fmt.Errorf("channels.trade_buffer must be greater than 0")
	}
	if cfg.Channels.BookBuffer <= 0 {
		return fmt.Errorf("channels.book_buffer must be greater than 0")
	}

	if cfg.Source.Bybit.WSURL == "" {
		return fmt.Errorf("source.bybit.ws_url is required")
	}
	if cfg.Source.Bybit.RestURL == "" {
		return fmt.Errorf("source.bybit.rest_url is required")
	}
	if cfg.Source.Bybit.ReconnectDelay <= 0 {
		return fmt.Errorf("source.bybit.reconnect_delay must be greater than 0")
	}

	if cfg.Aggregator.TradeFlushInterval <= 0 {
		return fmt.Errorf("aggregator.trade_flush_interval must be greater than 0")
	}
	if cfg.Aggregator.BookFlushInterval <= 0 {
		return fmt.Errorf("aggregator.book_flush_interval must be greater than 0")
	}

	if cfg.Fetchers.OpenInterest.Enabled && cfg.Fetchers.OpenInterest.Interval <= 0 {
		return fmt.Errorf("fetchers.open_interest.interval must be greater than 0")
	}
	if cfg.Fetchers.Funding.Enabled && cfg.Fetchers.Funding.Interval <= 0 {
		return fmt.Errorf("fetchers.funding.interval must be greater than 0")
	}
	if cfg.Fetchers.LongShortRatio.Enabled && cfg.Fetchers.LongShortRatio.Interval <= 0 {
		return fmt.Errorf("fetchers.long_short_ratio.interval must be greater than 0")
	}

	if n := cfg.Analytics.VolumeProfile.Levels; n < 10 || n > 200 {
		return fmt.Errorf("analytics.volume_profile.levels must be between 10 and 200")
	}
	if p := cfg.Analytics.VolumeProfile.ValueAreaPct; p <= 0 || p > 100 {
		return fmt.Errorf("analytics.volume_profile.value_area_pct must be in (0,100]")
	}
	if len(cfg.Analytics.VolumeProfile.Timeframes) == 0 {
		return fmt.Errorf("analytics.volume_profile.timeframes must list at least one timeframe")
	}

	if sum := cfg.Analytics.FearGreed.Weights.Sum(); sum != 100 {
		return fmt.Errorf("analytics.fear_greed.weights must sum to 100, got %v", sum)
	}

	if cfg.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than 0")
	}
	if cfg.Scheduler.Freshness <= 0 {
		return fmt.Errorf("scheduler.freshness must be greater than 0")
	}
	if cfg.Scheduler.RetentionDays <= 0 {
		return fmt.Errorf("scheduler.retention_days must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
	}

	return nil
}
