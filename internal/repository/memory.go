package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mulfari/btrader-sub000/internal/models"
)

// profileGeneration keeps one volume-profile generation together so reads
// never observe a summary without its levels.
type profileGeneration struct {
	summary models.VolumeProfileSummary
	levels  []models.VolumeProfileLevel
}

// MemoryRepository is the in-process Repository implementation. Records are
// held in per-symbol slices ordered by timestamp; producers append in arrival
// order so inserts are O(1) in the common case.
type MemoryRepository struct {
	mu sync.RWMutex

	windows      map[string][]models.TradeWindow
	books        map[string][]models.OrderbookSample
	openInterest map[string][]models.OpenInterestSample
	funding      map[string][]models.FundingRateSample
	longShort    map[string][]models.LongShortRatioSample
	liquidations map[string][]models.LiquidationEvent
	profiles     map[string]map[models.Timeframe][]profileGeneration
	sentiments   map[string][]models.SentimentSnapshot
}

// NewMemoryRepository builds an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		windows:      make(map[string][]models.TradeWindow),
		books:        make(map[string][]models.OrderbookSample),
		openInterest: make(map[string][]models.OpenInterestSample),
		funding:      make(map[string][]models.FundingRateSample),
		longShort:    make(map[string][]models.LongShortRatioSample),
		liquidations: make(map[string][]models.LiquidationEvent),
		profiles:     make(map[string]map[models.Timeframe][]profileGeneration),
		sentiments:   make(map[string][]models.SentimentSnapshot),
	}
}

func (r *MemoryRepository) SaveTradeWindow(_ context.Context, w models.TradeWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows[w.Symbol] = append(r.windows[w.Symbol], w)
	return nil
}

func (r *MemoryRepository) SaveOrderbookSample(_ context.Context, s models.OrderbookSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books[s.Symbol] = append(r.books[s.Symbol], s)
	return nil
}

func (r *MemoryRepository) SaveOpenInterest(_ context.Context, s models.OpenInterestSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openInterest[s.Symbol] = append(r.openInterest[s.Symbol], s)
	return nil
}

func (r *MemoryRepository) SaveFundingRate(_ context.Context, s models.FundingRateSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funding[s.Symbol] = append(r.funding[s.Symbol], s)
	return nil
}

func (r *MemoryRepository) SaveLongShortRatio(_ context.Context, s models.LongShortRatioSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.longShort[s.Symbol] = append(r.longShort[s.Symbol], s)
	return nil
}

func (r *MemoryRepository) SaveLiquidation(_ context.Context, e models.LiquidationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liquidations[e.Symbol] = append(r.liquidations[e.Symbol], e)
	return nil
}

func (r *MemoryRepository) SaveVolumeProfile(_ context.Context, summary models.VolumeProfileSummary, levels []models.VolumeProfileLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byTimeframe, ok := r.profiles[summary.Symbol]
	if !ok {
		byTimeframe = make(map[models.Timeframe][]profileGeneration)
		r.profiles[summary.Symbol] = byTimeframe
	}
	gen := profileGeneration{summary: summary, levels: append([]models.VolumeProfileLevel(nil), levels...)}
	byTimeframe[summary.Timeframe] = append(byTimeframe[summary.Timeframe], gen)
	return nil
}

func (r *MemoryRepository) SaveSentimentSnapshot(_ context.Context, s models.SentimentSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentiments[s.Symbol] = append(r.sentiments[s.Symbol], s)
	return nil
}

func (r *MemoryRepository) TradeWindowsSince(_ context.Context, symbol string, since time.Time) ([]models.TradeWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.windows[symbol]
	idx := sort.Search(len(all), func(i int) bool { return !all[i].Timestamp.Before(since) })
	if idx == len(all) {
		return nil, nil
	}
	out := make([]models.TradeWindow, len(all)-idx)
	copy(out, all[idx:])
	return out, nil
}

func (r *MemoryRepository) LatestTradeWindows(_ context.Context, symbol string, limit int) ([]models.TradeWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.windows[symbol]
	if len(all) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]models.TradeWindow, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

func (r *MemoryRepository) LatestTradeWindow(_ context.Context, symbol string) (models.TradeWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.windows[symbol]
	if len(all) == 0 {
		return models.TradeWindow{}, ErrNoData
	}
	return all[len(all)-1], nil
}

func (r *MemoryRepository) LatestOrderbookSample(_ context.Context, symbol string) (models.OrderbookSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.books[symbol]
	if len(all) == 0 {
		return models.OrderbookSample{}, ErrNoData
	}
	return all[len(all)-1], nil
}

func (r *MemoryRepository) LatestOpenInterest(_ context.Context, symbol string) (models.OpenInterestSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.openInterest[symbol]
	if len(all) == 0 {
		return models.OpenInterestSample{}, ErrNoData
	}
	return all[len(all)-1], nil
}

func (r *MemoryRepository) OpenInterestAt(_ context.Context, symbol string, t time.Time) (models.OpenInterestSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.openInterest[symbol]
	idx := sort.Search(len(all), func(i int) bool { return all[i].Timestamp.After(t) })
	if idx == 0 {
		return models.OpenInterestSample{}, ErrNoData
	}
	return all[idx-1], nil
}

func (r *MemoryRepository) LatestFundingRate(_ context.Context, symbol string) (models.FundingRateSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.funding[symbol]
	if len(all) == 0 {
		return models.FundingRateSample{}, ErrNoData
	}
	return all[len(all)-1], nil
}

func (r *MemoryRepository) FundingRatesSince(_ context.Context, symbol string, since time.Time) ([]models.FundingRateSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.funding[symbol]
	idx := sort.Search(len(all), func(i int) bool { return !all[i].Timestamp.Before(since) })
	if idx == len(all) {
		return nil, nil
	}
	out := make([]models.FundingRateSample, len(all)-idx)
	copy(out, all[idx:])
	return out, nil
}

func (r *MemoryRepository) LatestLongShortRatio(_ context.Context, symbol string) (models.LongShortRatioSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.longShort[symbol]
	if len(all) == 0 {
		return models.LongShortRatioSample{}, ErrNoData
	}
	return all[len(all)-1], nil
}

func (r *MemoryRepository) LongShortRatiosSince(_ context.Context, symbol string, since time.Time) ([]models.LongShortRatioSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.longShort[symbol]
	idx := sort.Search(len(all), func(i int) bool { return !all[i].Timestamp.Before(since) })
	if idx == len(all) {
		return nil, nil
	}
	out := make([]models.LongShortRatioSample, len(all)-idx)
	copy(out, all[idx:])
	return out, nil
}

func (r *MemoryRepository) LiquidationValueSince(_ context.Context, symbol string, since time.Time) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0.0
	for _, e := range r.liquidations[symbol] {
		if !e.Timestamp.Before(since) {
			total += e.Value
		}
	}
	return total, nil
}

func (r *MemoryRepository) LatestVolumeProfile(_ context.Context, symbol string, timeframe models.Timeframe) (models.VolumeProfileSummary, []models.VolumeProfileLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gens := r.profiles[symbol][timeframe]
	if len(gens) == 0 {
		return models.VolumeProfileSummary{}, nil, ErrNoData
	}
	latest := gens[len(gens)-1]
	levels := make([]models.VolumeProfileLevel, len(latest.levels))
	copy(levels, latest.levels)
	return latest.summary, levels, nil
}

func (r *MemoryRepository) LatestSentimentSnapshot(_ context.Context, symbol string) (models.SentimentSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sentiments[symbol]
	if len(all) == 0 {
		return models.SentimentSnapshot{}, ErrNoData
	}
	return all[len(all)-1], nil
}

func (r *MemoryRepository) SentimentSnapshotAt(_ context.Context, symbol string, t time.Time) (models.SentimentSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sentiments[symbol]
	idx := sort.Search(len(all), func(i int) bool { return all[i].Timestamp.After(t) })
	if idx == 0 {
		return models.SentimentSnapshot{}, ErrNoData
	}
	return all[idx-1], nil
}

func (r *MemoryRepository) SentimentHistory(_ context.Context, symbol string, since time.Time) ([]models.SentimentSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sentiments[symbol]
	idx := sort.Search(len(all), func(i int) bool { return !all[i].Timestamp.Before(since) })
	if idx == len(all) {
		return nil, nil
	}
	out := make([]models.SentimentSnapshot, len(all)-idx)
	copy(out, all[idx:])
	return out, nil
}

func (r *MemoryRepository) PruneAnalytics(_ context.Context, olderThan time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for symbol, byTimeframe := range r.profiles {
		for tf, gens := range byTimeframe {
			kept := gens[:0]
			for _, g := range gens {
				if g.summary.GeneratedAt.Before(olderThan) {
					removed += len(g.levels)
					continue
				}
				kept = append(kept, g)
			}
			byTimeframe[tf] = kept
		}
		r.profiles[symbol] = byTimeframe
	}

	for symbol, snaps := range r.sentiments {
		idx := sort.Search(len(snaps), func(i int) bool { return !snaps[i].Timestamp.Before(olderThan) })
		if idx > 0 {
			removed += idx
			r.sentiments[symbol] = append([]models.SentimentSnapshot(nil), snaps[idx:]...)
		}
	}

	return removed, nil
}
