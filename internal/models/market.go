package models

import "time"

// TradeSide identifies the aggressor side of a public trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade is a single public trade event received from the exchange stream.
type Trade struct {
	Symbol    string
	Side      TradeSide
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// TopOfBook is the latest best bid/ask observed for a symbol. It represents
// current state, not a windowed quantity, so it is overwritten in place.
type TopOfBook struct {
	Symbol    string
	BidPrice  float64
	BidSize   float64
	AskPrice  float64
	AskSize   float64
	UpdateID  int64
	Seq       int64
	Timestamp time.Time
}

// TradeWindow is a fixed one-second aggregate of trades for a symbol. The
// timestamp is aligned to the second boundary the flush timer fired on.
type TradeWindow struct {
	Symbol     string
	Timestamp  time.Time
	BuyVolume  float64
	SellVolume float64
	BuyCount   int
	SellCount  int
	VWAP       float64
	PriceHigh  float64
	PriceLow   float64
}

// TotalVolume returns the combined buy and sell volume of the window.
func (w TradeWindow) TotalVolume() float64 {
	return w.BuyVolume + w.SellVolume
}

// OrderbookSample is a periodic snapshot of top-of-book derived metrics.
type OrderbookSample struct {
	Symbol    string
	Timestamp time.Time
	BidPrice  float64
	AskPrice  float64
	BidSize   float64
	AskSize   float64
	Spread    float64
	MidPrice  float64
	// Imbalance is bidSize/(bidSize+askSize), in [0,1].
	Imbalance float64
}

// OpenInterestSample is one open-interest observation with its delta against
// the previous sample for the same symbol.
type OpenInterestSample struct {
	Symbol       string
	Timestamp    time.Time
	OpenInterest float64
	DeltaOI      float64
	Price        float64
}

// FundingSentiment classifies the funding rate into coarse crowd-positioning
// buckets.
type FundingSentiment string

const (
	FundingBullishHeavy    FundingSentiment = "bullish_heavy"
	FundingBullishModerate FundingSentiment = "bullish_moderate"
	FundingNeutral         FundingSentiment = "neutral"
	FundingBearishModerate FundingSentiment = "bearish_moderate"
	FundingBearishHeavy    FundingSentiment = "bearish_heavy"
)

// FundingBias names the side currently paying funding.
type FundingBias string

const (
	BiasLongsPay  FundingBias = "longs_pay"
	BiasShortsPay FundingBias = "shorts_pay"
	BiasBalanced  FundingBias = "balanced"
)

// FundingRateSample captures a funding-rate poll together with short-history
// rolling averages and derived classification.
type FundingRateSample struct {
	Symbol         string
	Timestamp      time.Time
	CurrentRate    float64
	PredictedRate  float64
	MarkPrice      float64
	Avg8h          float64
	Avg24h         float64
	Sentiment      FundingSentiment
	Bias           FundingBias
	IsExtreme      bool
	ReversalSignal bool
}

// RatioSentiment classifies long/short account positioning.
type RatioSentiment string

const (
	RatioExtremeGreed RatioSentiment = "extreme_greed"
	RatioGreed        RatioSentiment = "greed"
	RatioNeutral      RatioSentiment = "neutral"
	RatioFear         RatioSentiment = "fear"
	RatioExtremeFear  RatioSentiment = "extreme_fear"
)

// LongShortRatioSample captures one long/short account-ratio poll.
type LongShortRatioSample struct {
	Symbol     string
	Timestamp  time.Time
	LongRatio  float64
	ShortRatio float64
	// Ratio is longRatio/shortRatio.
	Ratio float64
	// Avg24h is the mean long-account share over the trailing day.
	Avg24h float64
	// SentimentScore is (longRatio-0.5)*200, in [-100,100].
	SentimentScore float64
	Sentiment      RatioSentiment
	// FomoPanicLevel is positive when the crowd chases longs (FOMO) and
	// negative when it dumps into shorts (panic).
	FomoPanicLevel   float64
	ContrarianSignal bool
}

// LiquidationEvent is a single forced liquidation observed on the public
// liquidation stream.
type LiquidationEvent struct {
	Symbol    string
	Timestamp time.Time
	Side      TradeSide
	Price     float64
	Volume    float64
	// Value is Price*Volume in quote currency.
	Value float64
}
