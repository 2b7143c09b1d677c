package volumeprofile

import (
	"errors"
	"math"
	"testing"
	"time"

	appconfig "github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/models"
)

func newTestGenerator(levels int) *Generator {
	return NewGenerator(appconfig.VolumeProfileConfig{Levels: levels, ValueAreaPct: 70})
}

func window(vwap, buy, sell float64, buyCount, sellCount int) models.TradeWindow {
	return models.TradeWindow{
		Symbol:     "BTCUSDT",
		Timestamp:  time.Now(),
		VWAP:       vwap,
		BuyVolume:  buy,
		SellVolume: sell,
		BuyCount:   buyCount,
		SellCount:  sellCount,
	}
}

func TestGenerateEmptyWindows(t *testing.T) {
	g := newTestGenerator(10)
	_, _, err := g.Generate("BTCUSDT", models.Timeframe1h, nil, 100, time.Now())
	if !errors.Is(err, ErrNoTrades) {
		t.Fatalf("expected ErrNoTrades, got %v", err)
	}
}

func TestGeneratePOCAndValueArea(t *testing.T) {
	g := newTestGenerator(10)
	windows := []models.TradeWindow{
		window(100, 10, 5, 3, 2),  // level near the bottom
		window(100.5, 20, 20, 10, 10),
		window(109, 1, 1, 1, 1),   // thin top level stretches the range
		window(100.4, 30, 10, 8, 4),
	}

	summary, levels, err := g.Generate("BTCUSDT", models.Timeframe1h, windows, 105, time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if summary.RangeLow != 100 || summary.RangeHigh != 109 {
		t.Fatalf("range %v..%v", summary.RangeLow, summary.RangeHigh)
	}

	var poc *models.VolumeProfileLevel
	for i := range levels {
		if levels[i].IsPOC {
			if poc != nil {
				t.Fatalf("more than one POC level")
			}
			poc = &levels[i]
		}
	}
	if poc == nil {
		t.Fatalf("no POC level marked")
	}
	// The first bucket holds the 100/100.4/100.5 windows: 95 of 97 units.
	if poc.TotalVolume != 95 {
		t.Fatalf("POC volume %v", poc.TotalVolume)
	}
	if summary.POCPrice != poc.PriceLevel {
		t.Fatalf("summary POC %v vs level %v", summary.POCPrice, poc.PriceLevel)
	}
	if !poc.IsValueArea {
		t.Fatalf("POC must belong to the value area")
	}

	covered := 0.0
	for _, lvl := range levels {
		if lvl.IsValueArea {
			covered += lvl.VolumePct
		}
	}
	if covered < 70 {
		t.Fatalf("value area covers only %.1f%%", covered)
	}
}

func TestGenerateSinglePrice(t *testing.T) {
	g := newTestGenerator(25)
	windows := []models.TradeWindow{
		window(100, 5, 5, 2, 2),
		window(100, 3, 0, 1, 0),
	}

	summary, levels, err := g.Generate("BTCUSDT", models.Timeframe5m, windows, 100, time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(levels) != 1 {
		t.Fatalf("expected a single level, got %d", len(levels))
	}
	if !levels[0].IsPOC || !levels[0].IsValueArea {
		t.Fatalf("single level must be POC and value area: %+v", levels[0])
	}
	if summary.TotalVolume != 13 {
		t.Fatalf("total volume %v", summary.TotalVolume)
	}
}

func TestClassifyLevels(t *testing.T) {
	cases := []struct {
		name    string
		level   float64
		current float64
		buy     float64
		sell    float64
		want    models.LevelType
	}{
		{"magnet within one percent", 100.5, 100, 1, 1, models.LevelMagnet},
		{"resistance above with buy dominance", 110, 100, 10, 2, models.LevelResistance},
		{"support below with sell dominance", 90, 100, 2, 10, models.LevelSupport},
		{"above but sell dominated", 110, 100, 2, 10, models.LevelNeutral},
		{"below but buy dominated", 90, 100, 10, 2, models.LevelNeutral},
	}

	for _, tc := range cases {
		if got := classify(tc.level, tc.current, tc.buy, tc.sell); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestStrengthScore(t *testing.T) {
	// 8% share, all buys, 40 trades: 50 (capped) would need 5% share*10>=50;
	// here 8*10 caps at 50, imbalance contributes 25, count contributes 4.
	got := strength(8, 100, 0, 40)
	if math.Abs(got-79) > 1e-9 {
		t.Fatalf("strength = %v, want 79", got)
	}

	if s := strength(0.1, 1, 1, 1); s >= 10 {
		t.Fatalf("thin balanced level should score low, got %v", s)
	}
	if s := strength(50, 1000, 0, 1000); s != 100 {
		t.Fatalf("dominant level should cap at 100, got %v", s)
	}
}
