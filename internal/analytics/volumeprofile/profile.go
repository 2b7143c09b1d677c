package volumeprofile

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	appconfig "github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/models"
)

// ErrNoTrades is returned when the requested timeframe holds no trade data.
// A profile is never generated from an empty window.
var ErrNoTrades = errors.New("no trades in requested window")

const (
	// magnetBandPct is the distance from the current price, as a fraction,
	// within which a level is classified as a magnet.
	magnetBandPct = 0.01
	// highVolumeNodePct and lowVolumeNodePct bound the volume share that
	// marks a level as a high or low volume node.
	highVolumeNodePct = 5.0
	lowVolumeNodePct  = 1.0
)

// Generator builds volume profiles from trade-window aggregates. Each window
// contributes its VWAP as the representative price for its volume.
type Generator struct {
	levels       int
	valueAreaPct float64
}

// NewGenerator constructs a Generator from the analytics configuration.
func NewGenerator(cfg appconfig.VolumeProfileConfig) *Generator {
	return &Generator{
		levels:       cfg.Levels,
		valueAreaPct: cfg.ValueAreaPct,
	}
}

type bucket struct {
	total  float64
	buy    float64
	sell   float64
	trades int
}

// Generate bins the given windows into equal-width price levels and derives
// POC, value area and per-level classification. The windows are expected to
// already be limited to the requested timeframe.
func (g *Generator) Generate(symbol string, timeframe models.Timeframe, windows []models.TradeWindow, currentPrice float64, now time.Time) (models.VolumeProfileSummary, []models.VolumeProfileLevel, error) {
	if len(windows) == 0 {
		return models.VolumeProfileSummary{}, nil, fmt.Errorf("%s %s: %w", symbol, timeframe, ErrNoTrades)
	}

	minPrice, maxPrice := windows[0].VWAP, windows[0].VWAP
	for _, w := range windows {
		if w.VWAP < minPrice {
			minPrice = w.VWAP
		}
		if w.VWAP > maxPrice {
			maxPrice = w.VWAP
		}
	}

	levelCount := g.levels
	width := (maxPrice - minPrice) / float64(levelCount)
	if width == 0 {
		// Every trade printed at one price; a single level carries it all.
		levelCount = 1
	}

	buckets := make([]bucket, levelCount)
	totalVolume := 0.0
	for _, w := range windows {
		idx := 0
		if width > 0 {
			idx = int(math.Floor((w.VWAP - minPrice) / width))
			if idx >= levelCount {
				idx = levelCount - 1
			}
		}
		b := &buckets[idx]
		b.total += w.TotalVolume()
		b.buy += w.BuyVolume
		b.sell += w.SellVolume
		b.trades += w.BuyCount + w.SellCount
		totalVolume += w.TotalVolume()
	}

	if totalVolume == 0 {
		return models.VolumeProfileSummary{}, nil, fmt.Errorf("%s %s: %w", symbol, timeframe, ErrNoTrades)
	}

	generationID := uuid.New().String()

	// Collect non-empty levels; empty buckets carry no information.
	levels := make([]models.VolumeProfileLevel, 0, levelCount)
	pocIdx := -1
	for i, b := range buckets {
		if b.total == 0 {
			continue
		}
		price := minPrice + (float64(i)+0.5)*width
		if width == 0 {
			price = minPrice
		}
		share := b.total / totalVolume * 100

		lvl := models.VolumeProfileLevel{
			Symbol:           symbol,
			Timeframe:        timeframe,
			GenerationID:     generationID,
			GeneratedAt:      now,
			PriceLevel:       price,
			TotalVolume:      b.total,
			BuyVolume:        b.buy,
			SellVolume:       b.sell,
			TradeCount:       b.trades,
			VolumePct:        share,
			IsHighVolumeNode: share > highVolumeNodePct,
			IsLowVolumeNode:  share < lowVolumeNodePct,
			LevelType:        classify(price, currentPrice, b.buy, b.sell),
			Strength:         strength(share, b.buy, b.sell, b.trades),
		}
		levels = append(levels, lvl)
		if pocIdx == -1 || lvl.TotalVolume > levels[pocIdx].TotalVolume {
			pocIdx = len(levels) - 1
		}
	}
	levels[pocIdx].IsPOC = true

	markValueArea(levels, g.valueAreaPct)

	summary := models.VolumeProfileSummary{
		Symbol:       symbol,
		Timeframe:    timeframe,
		GenerationID: generationID,
		GeneratedAt:  now,
		POCPrice:     levels[pocIdx].PriceLevel,
		RangeHigh:    maxPrice,
		RangeLow:     minPrice,
		TotalVolume:  totalVolume,
		LevelCount:   len(levels),
		CurrentPrice: currentPrice,
	}
	for _, lvl := range levels {
		if !lvl.IsValueArea {
			continue
		}
		if summary.ValueAreaLow == 0 || lvl.PriceLevel < summary.ValueAreaLow {
			summary.ValueAreaLow = lvl.PriceLevel
		}
		if lvl.PriceLevel > summary.ValueAreaHigh {
			summary.ValueAreaHigh = lvl.PriceLevel
		}
	}

	return summary, levels, nil
}

// markValueArea flags the smallest set of levels, taken in descending volume
// order, whose cumulative share reaches the configured percentage.
func markValueArea(levels []models.VolumeProfileLevel, targetPct float64) {
	order := make([]int, len(levels))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return levels[order[a]].VolumePct > levels[order[b]].VolumePct
	})

	cumulative := 0.0
	for _, idx := range order {
		if cumulative >= targetPct {
			break
		}
		levels[idx].IsValueArea = true
		cumulative += levels[idx].VolumePct
	}
}

func classify(level, current, buy, sell float64) models.LevelType {
	if current > 0 && math.Abs(level-current)/current <= magnetBandPct {
		return models.LevelMagnet
	}
	if level > current && buy > sell {
		return models.LevelResistance
	}
	if level < current && sell > buy {
		return models.LevelSupport
	}
	return models.LevelNeutral
}

// strength scores a level 0-100 from its volume share, buy/sell imbalance
// and trade count.
func strength(sharePct, buy, sell float64, trades int) float64 {
	score := math.Min(sharePct*10, 50)
	if buy+sell > 0 {
		score += math.Min(math.Abs(buy-sell)/(buy+sell)*25, 25)
	}
	score += math.Min(float64(trades)/10, 25)
	return score
}
