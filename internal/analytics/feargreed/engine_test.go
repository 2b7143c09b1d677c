package feargreed

import (
	"math"
	"testing"
	"time"

	appconfig "github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/models"
)

func defaultWeights() appconfig.FearGreedConfig {
	return appconfig.FearGreedConfig{Weights: appconfig.ComponentWeights{
		FundingRate:        20,
		LongShortRatio:     15,
		Liquidations:       20,
		OpenInterestChange: 15,
		Volume:             10,
		Volatility:         10,
		OrderbookImbalance: 10,
	}}
}

func TestFundingScore(t *testing.T) {
	cases := []struct {
		rate float64
		want float64
	}{
		{0, 50},
		{0.0003, 56},
		{0.0005, 60},
		{0.001, 80},
		{0.0015, 100}, // min(80+0.0015*20000, 100)
		{-0.0003, 44},
		{-0.001, 20},
		{-0.002, 0},
	}
	for _, tc := range cases {
		if got := fundingScore(tc.rate); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("fundingScore(%v) = %v, want %v", tc.rate, got, tc.want)
		}
	}
}

func TestLiquidationIntensity(t *testing.T) {
	if got := liquidationIntensity(0); got != 0 {
		t.Fatalf("zero value: %v", got)
	}
	if got := liquidationIntensity(100_000); got != 20 {
		t.Fatalf("light band edge: %v", got)
	}
	if got := liquidationIntensity(1_000_000); got != 60 {
		t.Fatalf("heavy band edge: %v", got)
	}
	if got := liquidationIntensity(10_000_000); got != 100 {
		t.Fatalf("saturated: %v", got)
	}
}

func TestEvaluateAllMissingIsNeutral(t *testing.T) {
	e := NewEngine(defaultWeights())
	snap := e.Evaluate("BTCUSDT", Inputs{}, time.Now())

	if snap.Score != 50 {
		t.Fatalf("cold-start score %v, want 50", snap.Score)
	}
	if snap.Level != models.SentimentNeutral {
		t.Fatalf("level %s", snap.Level)
	}
	if snap.TradingSignal != models.SignalHold {
		t.Fatalf("signal %s", snap.TradingSignal)
	}
	if snap.IsCapitulation || snap.IsEuphoria {
		t.Fatalf("flags must stay unset without data")
	}
}

func TestEvaluateWeightedComposite(t *testing.T) {
	e := NewEngine(defaultWeights())
	liq := 0.0
	in := Inputs{
		Funding:          &models.FundingRateSample{CurrentRate: 0.0015}, // component 100
		LongShort:        &models.LongShortRatioSample{LongRatio: 0.8},   // component 80
		LiquidationValue: &liq,                                           // component 100
		Book:             &models.OrderbookSample{Imbalance: 0.9},        // component 90
	}
	snap := e.Evaluate("BTCUSDT", in, time.Now())

	// 100*20 + 80*15 + 100*20 + 50*15 + 50*10 + 50*10 + 90*10, over 100.
	want := (100*20.0 + 80*15 + 100*20 + 50*15 + 50*10 + 50*10 + 90*10) / 100
	if math.Abs(snap.Score-want) > 1e-9 {
		t.Fatalf("score %v, want %v", snap.Score, want)
	}
	if snap.Level != models.SentimentExtremeGreed {
		t.Fatalf("level %s", snap.Level)
	}
	if !snap.IsEuphoria {
		t.Fatalf("score >= 80 with saturated funding should flag euphoria")
	}
	if snap.DominantFactor != "funding_rate" && snap.DominantFactor != "liquidations" {
		t.Fatalf("dominant factor %s", snap.DominantFactor)
	}
}

func TestEvaluateCapitulation(t *testing.T) {
	e := NewEngine(defaultWeights())
	liq := 6_000_000.0
	in := Inputs{
		Funding:          &models.FundingRateSample{CurrentRate: -0.002}, // component 0
		LongShort:        &models.LongShortRatioSample{LongRatio: 0.1},   // component 10
		LiquidationValue: &liq,                                           // intensity 100, component 0
		Book:             &models.OrderbookSample{Imbalance: 0.05},       // component 5
		OpenInterest:     &models.OpenInterestSample{OpenInterest: 60},
		OpenInterest24h:  &models.OpenInterestSample{OpenInterest: 100}, // -40% -> 0
	}
	snap := e.Evaluate("BTCUSDT", in, time.Now())

	if snap.Score > 20 {
		t.Fatalf("score %v, want deep fear", snap.Score)
	}
	if !snap.IsCapitulation {
		t.Fatalf("heavy liquidations at extreme fear should flag capitulation")
	}
	if snap.Level != models.SentimentExtremeFear {
		t.Fatalf("level %s", snap.Level)
	}
	if snap.TradingSignal != models.SignalStrongBuy {
		t.Fatalf("signal %s, want strong_buy without a confirming downtrend", snap.TradingSignal)
	}
}

func TestTrendFromWindows(t *testing.T) {
	rising := make([]models.TradeWindow, trendWindowCount)
	for i := range rising {
		rising[i] = models.TradeWindow{VWAP: 100 + float64(i)} // +9% over the run
	}
	dir, strength := trendFromWindows(rising)
	if dir != models.TrendBullish {
		t.Fatalf("direction %s", dir)
	}
	if strength < 8 || strength > 10 {
		t.Fatalf("strength %v", strength)
	}

	flat := []models.TradeWindow{{VWAP: 100}, {VWAP: 100.5}}
	if dir, _ := trendFromWindows(flat); dir != models.TrendSideways {
		t.Fatalf("flat tape should be sideways, got %s", dir)
	}

	if dir, _ := trendFromWindows(nil); dir != models.TrendSideways {
		t.Fatalf("no windows should be sideways, got %s", dir)
	}
}

func TestDominantFactorMaxScore(t *testing.T) {
	c := models.ComponentScores{
		FundingRate:        5,
		LongShortRatio:     50,
		Liquidations:       60,
		OpenInterestChange: 80,
		Volume:             50,
		Volatility:         50,
		OrderbookImbalance: 50,
	}
	// FundingRate sits furthest from neutral, but open interest holds the
	// highest individual score and must win.
	if got := dominantFactor(c); got != "open_interest_change" {
		t.Fatalf("dominant factor %s", got)
	}
}

func TestTradingSignalMatrix(t *testing.T) {
	cases := []struct {
		level models.SentimentLevel
		trend models.TrendDirection
		want  models.TradingSignal
	}{
		{models.SentimentExtremeFear, models.TrendSideways, models.SignalStrongBuy},
		{models.SentimentExtremeFear, models.TrendBearish, models.SignalBuy},
		{models.SentimentFear, models.TrendBullish, models.SignalBuy},
		{models.SentimentFear, models.TrendSideways, models.SignalHold},
		{models.SentimentNeutral, models.TrendBullish, models.SignalHold},
		{models.SentimentGreed, models.TrendBearish, models.SignalSell},
		{models.SentimentGreed, models.TrendBullish, models.SignalHold},
		{models.SentimentExtremeGreed, models.TrendSideways, models.SignalStrongSell},
		{models.SentimentExtremeGreed, models.TrendBullish, models.SignalSell},
	}
	for _, tc := range cases {
		if got := tradingSignal(tc.level, tc.trend); got != tc.want {
			t.Errorf("%s/%s: got %s, want %s", tc.level, tc.trend, got, tc.want)
		}
	}
}

func TestContrarianStrength(t *testing.T) {
	if got := contrarianStrength(50); got != 0 {
		t.Fatalf("neutral strength %v", got)
	}
	if got := contrarianStrength(70); got != 40 {
		t.Fatalf("moderate strength %v", got)
	}
	if got := contrarianStrength(10); got != 100 {
		t.Fatalf("extreme strength should amplify and clamp, got %v", got)
	}
}

func TestScoreChanges(t *testing.T) {
	e := NewEngine(defaultWeights())
	prev1h := &models.SentimentSnapshot{Score: 40}
	prev24h := &models.SentimentSnapshot{Score: 65}
	snap := e.Evaluate("BTCUSDT", Inputs{Prev1h: prev1h, Prev24h: prev24h}, time.Now())

	if snap.ScoreChange1h != 10 {
		t.Fatalf("1h change %v", snap.ScoreChange1h)
	}
	if snap.ScoreChange24h != -15 {
		t.Fatalf("24h change %v", snap.ScoreChange24h)
	}
}
