package exchange

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arena/internal/logger"
	"arena/internal/pkg/symbol"
)

// PaperConfig tunes the simulator.
type PaperConfig struct {
	// SlippageBps moves fills against the taker, in basis points.
	SlippageBps float64
	// FeeRate is charged on notional, e.g. 0.0004 for 4 bps.
	FeeRate float64
	// MaxLeverage rejects orders above it; zero disables the check.
	MaxLeverage float64
}

// Paper fills market orders at the quoted price. It keeps net positions so
// restarts and reduce-only checks behave like a real venue.
type Paper struct {
	name   string
	prices PriceSource
	cfg    PaperConfig
	nowFn  func() time.Time

	mu        sync.Mutex
	positions map[string]*Position
}

func NewPaper(name string, prices PriceSource, cfg PaperConfig) *Paper {
	if strings.TrimSpace(name) == "" {
		name = "paper"
	}
	return &Paper{
		name:      name,
		prices:    prices,
		cfg:       cfg,
		nowFn:     time.Now,
		positions: make(map[string]*Position),
	}
}

func (p *Paper) Name() string { return p.name }

// Seed installs positions recovered from a ledger, replacing current state.
func (p *Paper) Seed(positions []Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions = make(map[string]*Position, len(positions))
	for _, pos := range positions {
		if pos.Quantity == 0 {
			continue
		}
		cp := pos
		cp.Symbol = symbol.Normalize(cp.Symbol)
		p.positions[cp.Symbol] = &cp
	}
}

func (p *Paper) Submit(ctx context.Context, req OrderRequest) (Fill, error) {
	sym := symbol.Normalize(req.Symbol)
	if sym == "" {
		return Fill{}, fmt.Errorf("%w: empty symbol", ErrRejected)
	}
	if req.Quantity <= 0 || math.IsNaN(req.Quantity) {
		return Fill{}, fmt.Errorf("%w: quantity %.8f", ErrRejected, req.Quantity)
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return Fill{}, fmt.Errorf("%w: side %q", ErrRejected, req.Side)
	}
	if p.cfg.MaxLeverage > 0 && req.Leverage > p.cfg.MaxLeverage {
		return Fill{}, fmt.Errorf("%w: leverage %.1f above max %.1f", ErrRejected, req.Leverage, p.cfg.MaxLeverage)
	}
	var price decimal.Decimal
	if req.Price > 0 {
		price = decimal.NewFromFloat(req.Price)
	} else {
		if p.prices == nil {
			return Fill{}, fmt.Errorf("%w: no price source", ErrRejected)
		}
		quote, err := p.prices.LatestPrice(ctx, sym)
		if err != nil {
			return Fill{}, fmt.Errorf("%w: price for %s: %v", ErrRejected, sym, err)
		}
		if quote <= 0 {
			return Fill{}, fmt.Errorf("%w: no price for %s", ErrRejected, sym)
		}
		price = p.slipped(quote, req.Side)
	}
	qty := decimal.NewFromFloat(req.Quantity)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.applyLocked(sym, req, price); err != nil {
		return Fill{}, err
	}
	fee := qty.Mul(price).Mul(decimal.NewFromFloat(p.cfg.FeeRate))
	fill := Fill{
		OrderID:   uuid.NewString(),
		Symbol:    sym,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     price.InexactFloat64(),
		Fee:       fee.InexactFloat64(),
		Timestamp: p.nowFn().UTC(),
	}
	logger.Debugf("paper[%s]: filled %s %s %.6f @ %.6f", p.name, fill.Side, sym, fill.Quantity, fill.Price)
	return fill, nil
}

func (p *Paper) slipped(quote float64, side Side) decimal.Decimal {
	price := decimal.NewFromFloat(quote)
	if p.cfg.SlippageBps <= 0 {
		return price
	}
	adj := price.Mul(decimal.NewFromFloat(p.cfg.SlippageBps)).Div(decimal.NewFromInt(10000))
	if side == SideBuy {
		return price.Add(adj)
	}
	return price.Sub(adj)
}

func (p *Paper) applyLocked(sym string, req OrderRequest, price decimal.Decimal) error {
	signed := decimal.NewFromFloat(req.Quantity)
	if req.Side == SideSell {
		signed = signed.Neg()
	}
	pos, ok := p.positions[sym]
	if req.ReduceOnly {
		if !ok {
			return fmt.Errorf("%w: reduce-only with no position in %s", ErrRejected, sym)
		}
		cur := decimal.NewFromFloat(pos.Quantity)
		if cur.Sign() == signed.Sign() || signed.Abs().GreaterThan(cur.Abs()) {
			return fmt.Errorf("%w: reduce-only would increase or flip %s", ErrRejected, sym)
		}
	}
	if !ok {
		p.positions[sym] = &Position{
			Symbol:     sym,
			Quantity:   signed.InexactFloat64(),
			EntryPrice: price.InexactFloat64(),
			Leverage:   req.Leverage,
		}
		return nil
	}
	cur := decimal.NewFromFloat(pos.Quantity)
	next := cur.Add(signed)
	switch {
	case next.IsZero():
		delete(p.positions, sym)
	case cur.Sign() == signed.Sign():
		// same direction: volume-weighted entry
		entry := decimal.NewFromFloat(pos.EntryPrice).Mul(cur.Abs()).Add(price.Mul(signed.Abs())).Div(next.Abs())
		pos.EntryPrice = entry.InexactFloat64()
		pos.Quantity = next.InexactFloat64()
	case next.Sign() != cur.Sign():
		pos.Quantity = next.InexactFloat64()
		pos.EntryPrice = price.InexactFloat64()
		pos.Leverage = req.Leverage
	default:
		pos.Quantity = next.InexactFloat64()
	}
	return nil
}

func (p *Paper) ListOpenPositions(ctx context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}
