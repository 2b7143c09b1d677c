package archive

import (
	"strings"
	"testing"
	"time"

	appconfig "github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/models"
)

func TestNewArchiverRequiresS3(t *testing.T) {
	_, err := NewArchiver(appconfig.StorageConfig{}, appconfig.ServiceConfig{})
	if err == nil {
		t.Fatalf("disabled S3 must be rejected")
	}
}

func TestGenerateS3KeyPartitions(t *testing.T) {
	batch := windowBatch{
		Symbol:    "btcusdt",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	key := generateS3Key(batch)

	if !strings.HasPrefix(key, "trade_windows/symbol=BTCUSDT/date=2025-06-01/") {
		t.Fatalf("key %s", key)
	}
	if !strings.HasSuffix(key, "_windows.parquet") {
		t.Fatalf("key %s", key)
	}
	if strings.Contains(key, "\\") {
		t.Fatalf("key must use forward slashes: %s", key)
	}
}

func TestCreateParquetRoundTrip(t *testing.T) {
	batch := windowBatch{
		Symbol:    "BTCUSDT",
		Timestamp: time.Now().UTC(),
		Entries: []models.TradeWindow{
			{Symbol: "BTCUSDT", Timestamp: time.Now().UTC(), BuyVolume: 3, SellVolume: 1, BuyCount: 2, SellCount: 1, VWAP: 100.75, PriceHigh: 102, PriceLow: 100},
		},
		RecordCount: 1,
	}

	data, size, err := createParquet(batch)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if size == 0 || int64(len(data)) != size {
		t.Fatalf("size %d, data %d", size, len(data))
	}
	// Parquet files end with the PAR1 magic.
	if !strings.HasSuffix(string(data), "PAR1") {
		t.Fatalf("output is not a parquet file")
	}
}
