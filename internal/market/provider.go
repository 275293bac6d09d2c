package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"arena/internal/logger"
	"arena/internal/pkg/symbol"
)

// ProviderConfig selects the two horizons sampled for every symbol.
type ProviderConfig struct {
	ShortInterval string
	LongInterval  string
	Limit         int
	SeriesWindow  int
	// Concurrency caps parallel symbol fetches.
	Concurrency int
	Timeout     time.Duration
}

func (c ProviderConfig) withDefaults() ProviderConfig {
	if c.ShortInterval == "" {
		c.ShortInterval = "15m"
	}
	if c.LongInterval == "" {
		c.LongInterval = "4h"
	}
	if c.Limit <= 0 {
		c.Limit = 120
	}
	if c.SeriesWindow <= 0 {
		c.SeriesWindow = 10
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	return c
}

// Provider builds snapshots from a Source. Fetch failures degrade to an empty
// snapshot for that symbol and never surface as errors.
type Provider struct {
	source Source
	cfg    ProviderConfig

	mu   sync.RWMutex
	last map[string]float64
}

func NewProvider(source Source, cfg ProviderConfig) *Provider {
	return &Provider{
		source: source,
		cfg:    cfg.withDefaults(),
		last:   make(map[string]float64),
	}
}

// Snapshot returns one entry per requested symbol.
func (p *Provider) Snapshot(ctx context.Context, symbols []string, asOf time.Time) map[string]Snapshot {
	symbols = symbol.NormalizeList(symbols)
	out := make(map[string]Snapshot, len(symbols))
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Concurrency)
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			snap, err := p.build(ctx, sym, asOf)
			if err != nil {
				logger.Warnf("market: snapshot %s via %s failed: %v", sym, p.source.Name(), err)
				snap = Snapshot{Symbol: sym, AsOf: asOf}
			}
			mu.Lock()
			out[sym] = snap
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	for sym, snap := range out {
		if !snap.Empty() {
			p.last[sym] = snap.Current.Price
		}
	}
	p.mu.Unlock()
	return out
}

func (p *Provider) build(ctx context.Context, sym string, asOf time.Time) (snap Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	short, err := p.source.FetchHistory(ctx, sym, p.cfg.ShortInterval, p.cfg.Limit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s candles: %w", p.cfg.ShortInterval, err)
	}
	if len(short) == 0 {
		return Snapshot{}, fmt.Errorf("%s candles: empty", p.cfg.ShortInterval)
	}
	snap = Snapshot{Symbol: sym, AsOf: asOf, Source: p.source.Name()}
	snap.Current, snap.Intraday = BuildIntraday(p.cfg.ShortInterval, short, p.cfg.SeriesWindow)

	long, err := p.source.FetchHistory(ctx, sym, p.cfg.LongInterval, p.cfg.Limit)
	if err != nil {
		logger.Warnf("market: %s %s candles failed: %v", sym, p.cfg.LongInterval, err)
		snap.LongTerm = LongTermContext{Interval: p.cfg.LongInterval}
	} else {
		snap.LongTerm = BuildLongTerm(p.cfg.LongInterval, long, p.cfg.SeriesWindow)
	}
	if fs, ok := p.source.(FundingSource); ok {
		if rate, err := fs.GetFundingRate(ctx, sym); err == nil {
			snap.FundingRate = rate
		} else {
			logger.Debugf("market: funding %s: %v", sym, err)
		}
	}
	return snap, nil
}

// LatestPrice serves the last snapshot price, fetching a fresh candle when none is cached.
func (p *Provider) LatestPrice(ctx context.Context, sym string) (float64, error) {
	sym = symbol.Normalize(sym)
	p.mu.RLock()
	px, ok := p.last[sym]
	p.mu.RUnlock()
	if ok && px > 0 {
		return px, nil
	}
	candles, err := p.source.FetchHistory(ctx, sym, p.cfg.ShortInterval, 1)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 || candles[len(candles)-1].Close <= 0 {
		return 0, fmt.Errorf("no price for %s", sym)
	}
	px = candles[len(candles)-1].Close
	p.mu.Lock()
	p.last[sym] = px
	p.mu.Unlock()
	return px, nil
}
