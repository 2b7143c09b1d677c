package feargreed

import (
	"math"
	"time"

	appconfig "github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/models"
)

// neutralScore is substituted for any component whose input is missing so a
// cold start converges to the middle of the index instead of a fake extreme.
const neutralScore = 50.0

const (
	// Funding-rate bands, per funding interval. Above the heavy band longs
	// pay aggressively and the score saturates toward extreme greed.
	fundingNeutralBand = 0.0005
	fundingHeavyBand   = 0.001

	// Liquidation value bands in quote currency per rolling hour.
	liquidationLightValue = 100_000.0
	liquidationHeavyValue = 1_000_000.0
	liquidationMaxValue   = 5_000_000.0

	// trendWindowCount VWAPs feed the trend call; moves beyond trendBandPct
	// percent are directional, anything inside is sideways.
	trendWindowCount = 10
	trendBandPct     = 2.0

	// recentVolumeCount windows form the activity numerator for the volume
	// component; the full input set is the baseline.
	recentVolumeCount = 10

	capitulationIntensity = 80.0
	euphoriaFundingScore  = 80.0
)

// Inputs carries everything one index evaluation needs. Nil pointers and
// empty slices mean the source had no fresh data; the affected component
// falls back to neutral.
type Inputs struct {
	Funding   *models.FundingRateSample
	LongShort *models.LongShortRatioSample
	// LiquidationValue is the summed quote value liquidated over the past
	// hour.
	LiquidationValue *float64
	OpenInterest     *models.OpenInterestSample
	// OpenInterest24h is the sample closest to 24 hours before now.
	OpenInterest24h *models.OpenInterestSample
	// Windows are recent one-second trade windows in chronological order.
	Windows []models.TradeWindow
	Book    *models.OrderbookSample
	Prev1h  *models.SentimentSnapshot
	Prev24h *models.SentimentSnapshot
}

// Engine computes the composite fear & greed index from weighted component
// scores. It is stateless; every evaluation works purely from its inputs.
type Engine struct {
	weights appconfig.ComponentWeights
}

// NewEngine constructs an Engine with the configured component weights. The
// weights are validated to sum to 100 at config load.
func NewEngine(cfg appconfig.FearGreedConfig) *Engine {
	return &Engine{weights: cfg.Weights}
}

// Evaluate produces one sentiment snapshot for the symbol.
func (e *Engine) Evaluate(symbol string, in Inputs, now time.Time) models.SentimentSnapshot {
	components := models.ComponentScores{
		FundingRate:        neutralScore,
		LongShortRatio:     neutralScore,
		Liquidations:       neutralScore,
		OpenInterestChange: neutralScore,
		Volume:             neutralScore,
		Volatility:         neutralScore,
		OrderbookImbalance: neutralScore,
	}

	liqIntensity := 0.0
	if in.Funding != nil {
		components.FundingRate = fundingScore(in.Funding.CurrentRate)
	}
	if in.LongShort != nil {
		components.LongShortRatio = clampScore(in.LongShort.LongRatio * 100)
	}
	if in.LiquidationValue != nil {
		liqIntensity = liquidationIntensity(*in.LiquidationValue)
		// Inverted: heavy liquidations read as fear.
		components.Liquidations = 100 - liqIntensity
	}
	if in.OpenInterest != nil && in.OpenInterest24h != nil && in.OpenInterest24h.OpenInterest > 0 {
		pct := (in.OpenInterest.OpenInterest - in.OpenInterest24h.OpenInterest) / in.OpenInterest24h.OpenInterest * 100
		components.OpenInterestChange = clampScore(neutralScore + pct*2.5)
	}
	if len(in.Windows) > 0 {
		components.Volume = volumeScore(in.Windows)
		components.Volatility = volatilityScore(in.Windows)
	}
	if in.Book != nil {
		components.OrderbookImbalance = clampScore(in.Book.Imbalance * 100)
	}

	w := e.weights
	score := (components.FundingRate*w.FundingRate +
		components.LongShortRatio*w.LongShortRatio +
		components.Liquidations*w.Liquidations +
		components.OpenInterestChange*w.OpenInterestChange +
		components.Volume*w.Volume +
		components.Volatility*w.Volatility +
		components.OrderbookImbalance*w.OrderbookImbalance) / 100
	score = clampScore(score)

	level := sentimentLevel(score)
	trend, trendStrength := trendFromWindows(in.Windows)

	snapshot := models.SentimentSnapshot{
		Symbol:             symbol,
		Timestamp:          now,
		Score:              score,
		Level:              level,
		Components:         components,
		DominantFactor:     dominantFactor(components),
		TrendDirection:     trend,
		TrendStrength:      trendStrength,
		TradingSignal:      tradingSignal(level, trend),
		ContrarianStrength: contrarianStrength(score),
		IsCapitulation:     score <= 20 && liqIntensity >= capitulationIntensity,
		IsEuphoria:         score >= 80 && components.FundingRate >= euphoriaFundingScore,
	}
	if in.Prev1h != nil {
		snapshot.ScoreChange1h = score - in.Prev1h.Score
	}
	if in.Prev24h != nil {
		snapshot.ScoreChange24h = score - in.Prev24h.Score
	}
	return snapshot
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// fundingScore maps the per-interval funding rate onto [0,100]. Positive
// rates mean longs pay, which reads as greed.
func fundingScore(rate float64) float64 {
	switch {
	case rate > fundingHeavyBand:
		return math.Min(80+rate*20000, 100)
	case rate > fundingNeutralBand:
		return 60 + (rate-fundingNeutralBand)*40000
	case rate >= -fundingNeutralBand:
		return neutralScore + rate*20000
	case rate >= -fundingHeavyBand:
		return 40 + (rate+fundingNeutralBand)*40000
	default:
		return math.Max(20+rate*20000, 0)
	}
}

// liquidationIntensity maps hourly liquidation value onto [0,100], rising
// with value.
func liquidationIntensity(value float64) float64 {
	switch {
	case value <= 0:
		return 0
	case value <= liquidationLightValue:
		return value / liquidationLightValue * 20
	case value <= liquidationHeavyValue:
		return 20 + (value-liquidationLightValue)/(liquidationHeavyValue-liquidationLightValue)*40
	default:
		return math.Min(60+(value-liquidationHeavyValue)/(liquidationMaxValue-liquidationHeavyValue)*40, 100)
	}
}

// volumeScore compares recent window volume against the baseline of the full
// input set. Activity above baseline reads as greed.
func volumeScore(windows []models.TradeWindow) float64 {
	if len(windows) <= recentVolumeCount {
		return neutralScore
	}
	baseline := 0.0
	for _, w := range windows {
		baseline += w.TotalVolume()
	}
	baseline /= float64(len(windows))
	if baseline == 0 {
		return neutralScore
	}

	recent := 0.0
	for _, w := range windows[len(windows)-recentVolumeCount:] {
		recent += w.TotalVolume()
	}
	recent /= recentVolumeCount

	return clampScore(neutralScore + (recent/baseline-1)*50)
}

// volatilityScore reads the VWAP range of the input windows as a percentage
// of the mean price. Wide ranges score low (fear), calm tape scores high.
func volatilityScore(windows []models.TradeWindow) float64 {
	min, max, sum, n := math.MaxFloat64, 0.0, 0.0, 0
	for _, w := range windows {
		if w.VWAP <= 0 {
			continue
		}
		if w.VWAP < min {
			min = w.VWAP
		}
		if w.VWAP > max {
			max = w.VWAP
		}
		sum += w.VWAP
		n++
	}
	if n == 0 {
		return neutralScore
	}
	mean := sum / float64(n)
	rangePct := (max - min) / mean * 100
	return clampScore(100 - rangePct*20)
}

func sentimentLevel(score float64) models.SentimentLevel {
	switch {
	case score < 20:
		return models.SentimentExtremeFear
	case score < 40:
		return models.SentimentFear
	case score < 60:
		return models.SentimentNeutral
	case score < 80:
		return models.SentimentGreed
	default:
		return models.SentimentExtremeGreed
	}
}

// trendFromWindows derives price direction from the last trendWindowCount
// window VWAPs. Strength is the absolute percentage move.
func trendFromWindows(windows []models.TradeWindow) (models.TrendDirection, float64) {
	recent := windows
	if len(recent) > trendWindowCount {
		recent = recent[len(recent)-trendWindowCount:]
	}
	if len(recent) < 2 || recent[0].VWAP <= 0 {
		return models.TrendSideways, 0
	}

	change := (recent[len(recent)-1].VWAP - recent[0].VWAP) / recent[0].VWAP * 100
	switch {
	case change > trendBandPct:
		return models.TrendBullish, change
	case change < -trendBandPct:
		return models.TrendBearish, -change
	default:
		return models.TrendSideways, math.Abs(change)
	}
}

func dominantFactor(c models.ComponentScores) string {
	type factor struct {
		name  string
		score float64
	}
	factors := []factor{
		{"funding_rate", c.FundingRate},
		{"long_short_ratio", c.LongShortRatio},
		{"liquidations", c.Liquidations},
		{"open_interest_change", c.OpenInterestChange},
		{"volume", c.Volume},
		{"volatility", c.Volatility},
		{"orderbook_imbalance", c.OrderbookImbalance},
	}

	best := factors[0]
	for _, f := range factors[1:] {
		if f.score > best.score {
			best = f
		}
	}
	return best.name
}

// tradingSignal follows the contrarian reading of the index: extremes fade
// the crowd unless the trend already confirms the move.
func tradingSignal(level models.SentimentLevel, trend models.TrendDirection) models.TradingSignal {
	switch level {
	case models.SentimentExtremeFear:
		if trend == models.TrendBearish {
			return models.SignalBuy
		}
		return models.SignalStrongBuy
	case models.SentimentFear:
		if trend == models.TrendBullish {
			return models.SignalBuy
		}
		return models.SignalHold
	case models.SentimentGreed:
		if trend == models.TrendBearish {
			return models.SignalSell
		}
		return models.SignalHold
	case models.SentimentExtremeGreed:
		if trend == models.TrendBullish {
			return models.SignalSell
		}
		return models.SignalStrongSell
	default:
		return models.SignalHold
	}
}

// contrarianStrength grows with distance from neutral and is amplified once
// the score enters an extreme band.
func contrarianStrength(score float64) float64 {
	strength := math.Abs(score-neutralScore) * 2
	if score <= 20 || score >= 80 {
		strength *= 1.25
	}
	return clampScore(strength)
}
