package models

import "time"

// Timeframe names a supported volume-profile window duration.
type Timeframe string

const (
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Duration converts the timeframe label into a time.Duration. Unknown labels
// report ok=false.
func (t Timeframe) Duration() (time.Duration, bool) {
	switch t {
	case Timeframe5m:
		return 5 * time.Minute, true
	case Timeframe15m:
		return 15 * time.Minute, true
	case Timeframe1h:
		return time.Hour, true
	case Timeframe4h:
		return 4 * time.Hour, true
	case Timeframe1d:
		return 24 * time.Hour, true
	}
	return 0, false
}

// LevelType classifies a volume-profile price level relative to the current
// price and its buy/sell dominance.
type LevelType string

const (
	LevelMagnet     LevelType = "magnet"
	LevelResistance LevelType = "resistance"
	LevelSupport    LevelType = "support"
	LevelNeutral    LevelType = "neutral"
)

// VolumeProfileLevel is one price bucket of a generated volume profile.
type VolumeProfileLevel struct {
	Symbol       string
	Timeframe    Timeframe
	GenerationID string
	GeneratedAt  time.Time
	PriceLevel   float64
	TotalVolume  float64
	BuyVolume    float64
	SellVolume   float64
	TradeCount   int
	// VolumePct is this level's share of the profile's total volume, 0..100.
	VolumePct   float64
	IsPOC       bool
	IsValueArea bool
	// IsHighVolumeNode marks levels holding more than 5% of total volume,
	// IsLowVolumeNode marks levels holding less than 1%.
	IsHighVolumeNode bool
	IsLowVolumeNode  bool
	LevelType        LevelType
	// Strength is a 0-100 composite of volume share, buy/sell imbalance and
	// trade count.
	Strength float64
}

// VolumeProfileSummary describes one profile generation as a whole.
type VolumeProfileSummary struct {
	Symbol        string
	Timeframe     Timeframe
	GenerationID  string
	GeneratedAt   time.Time
	POCPrice      float64
	ValueAreaHigh float64
	ValueAreaLow  float64
	RangeHigh     float64
	RangeLow      float64
	TotalVolume   float64
	LevelCount    int
	CurrentPrice  float64
}

// SentimentLevel buckets the composite fear & greed score.
type SentimentLevel string

const (
	SentimentExtremeFear  SentimentLevel = "extreme_fear"
	SentimentFear         SentimentLevel = "fear"
	SentimentNeutral      SentimentLevel = "neutral"
	SentimentGreed        SentimentLevel = "greed"
	SentimentExtremeGreed SentimentLevel = "extreme_greed"
)

// TrendDirection describes recent price direction derived from window VWAPs.
type TrendDirection string

const (
	TrendBullish  TrendDirection = "bullish"
	TrendBearish  TrendDirection = "bearish"
	TrendSideways TrendDirection = "sideways"
)

// TradingSignal is the actionable label derived from sentiment level and
// trend.
type TradingSignal string

const (
	SignalStrongBuy  TradingSignal = "strong_buy"
	SignalBuy        TradingSignal = "buy"
	SignalHold       TradingSignal = "hold"
	SignalSell       TradingSignal = "sell"
	SignalStrongSell TradingSignal = "strong_sell"
)

// ComponentScores holds the seven weighted fear & greed component scores,
// each in [0,100].
type ComponentScores struct {
	FundingRate        float64
	LongShortRatio     float64
	Liquidations       float64
	OpenInterestChange float64
	Volume             float64
	Volatility         float64
	OrderbookImbalance float64
}

// SentimentSnapshot is one generation of the composite fear & greed index.
type SentimentSnapshot struct {
	Symbol    string
	Timestamp time.Time
	// Score is the weighted composite in [0,100]; 0 is extreme fear.
	Score      float64
	Level      SentimentLevel
	Components ComponentScores
	// DominantFactor names the component with the highest individual score.
	DominantFactor string
	TrendDirection TrendDirection
	// TrendStrength is the absolute percentage move behind the trend call.
	TrendStrength      float64
	TradingSignal      TradingSignal
	ContrarianStrength float64
	// ScoreChange1h and ScoreChange24h compare this score against the
	// snapshots closest to one hour and one day earlier; zero when no prior
	// snapshot exists.
	ScoreChange1h  float64
	ScoreChange24h float64
	IsCapitulation bool
	IsEuphoria     bool
}
