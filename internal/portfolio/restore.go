package portfolio

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"arena/internal/decision"
	"arena/internal/gateway/exchange"
	"arena/internal/logger"
	"arena/internal/pkg/symbol"
)

// ReplayPositions folds a ledger (oldest first) into the positions still open at its end.
func ReplayPositions(ledger []Trade) []exchange.Position {
	open := make(map[string]exchange.Position)
	for _, t := range ledger {
		sym := symbol.Normalize(t.Symbol)
		switch {
		case t.Action.IsOpen():
			qty := t.Quantity
			if t.Side == exchange.SideSell {
				qty = -qty
			}
			open[sym] = exchange.Position{Symbol: sym, Quantity: qty, EntryPrice: t.Price, Leverage: t.Leverage}
		case t.Action == decision.ActionClose:
			delete(open, sym)
		}
	}
	out := make([]exchange.Position, 0, len(open))
	for _, pos := range open {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Restore rebuilds state after a restart: cash, realized returns and history come
// from the ledger (oldest first); open positions come from the exchange, which is
// authoritative. Positions the ledger does not know are adopted at their venue entry.
func (p *Portfolio) Restore(ctx context.Context, ledger []Trade) error {
	p.mu.Lock()
	p.cash = p.initialCash
	p.realized = decimal.Zero
	p.returns = nil
	p.trades = nil
	p.positions = make(map[string]*position)
	booked := make(map[string]*position)
	for _, t := range ledger {
		sym := symbol.Normalize(t.Symbol)
		margin := decimal.NewFromFloat(t.Margin)
		fee := decimal.NewFromFloat(t.Fee)
		switch {
		case t.Action.IsOpen():
			qty := decimal.NewFromFloat(t.Quantity)
			if t.Side == exchange.SideSell {
				qty = qty.Neg()
			}
			entry := decimal.NewFromFloat(t.Price)
			pos := &position{
				symbol:   sym,
				qty:      qty,
				entry:    entry,
				mark:     entry,
				leverage: decimal.NewFromFloat(t.Leverage),
				margin:   margin,
				openedAt: t.ExecutedAt,
			}
			if t.Decision != nil {
				pos.confidence = t.Decision.Confidence
				pos.riskUSD = t.Decision.RiskUSD
			}
			booked[sym] = pos
			p.cash = p.cash.Sub(margin).Sub(fee)
		case t.Action == decision.ActionClose:
			pnl := decimal.NewFromFloat(t.RealizedPnL)
			delete(booked, sym)
			p.cash = p.cash.Add(margin).Add(pnl).Sub(fee)
			p.realized = p.realized.Add(pnl).Sub(fee)
			if !p.initialCash.IsZero() {
				p.returns = append(p.returns, pnl.Sub(fee).Div(p.initialCash).InexactFloat64())
			}
		}
		p.appendTradeLocked(t)
	}
	p.mu.Unlock()

	live, err := p.ex.ListOpenPositions(ctx)
	if err != nil {
		// fall back to the ledger view
		p.mu.Lock()
		p.positions = booked
		p.mu.Unlock()
		return fmt.Errorf("list positions on %s: %w", p.ex.Name(), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, lp := range live {
		sym := symbol.Normalize(lp.Symbol)
		if lp.Quantity == 0 {
			continue
		}
		if pos, ok := booked[sym]; ok {
			pos.qty = decimal.NewFromFloat(lp.Quantity)
			if lp.EntryPrice > 0 {
				pos.entry = decimal.NewFromFloat(lp.EntryPrice)
			}
			p.positions[sym] = pos
			delete(booked, sym)
			continue
		}
		lev := lp.Leverage
		if lev <= 0 {
			lev = 1
		}
		qty := decimal.NewFromFloat(lp.Quantity)
		entry := decimal.NewFromFloat(lp.EntryPrice)
		margin := qty.Abs().Mul(entry).Div(decimal.NewFromFloat(lev))
		p.positions[sym] = &position{
			symbol:   sym,
			qty:      qty,
			entry:    entry,
			mark:     entry,
			leverage: decimal.NewFromFloat(lev),
			margin:   margin,
			openedAt: p.opts.Now().UTC(),
		}
		p.cash = p.cash.Sub(margin)
		logger.Warnf("portfolio[%s]: adopted untracked %s position qty=%s", p.agentID, sym, qty.String())
	}
	for sym, pos := range booked {
		// gone on the venue: release its margin
		p.cash = p.cash.Add(pos.margin)
		logger.Warnf("portfolio[%s]: ledger position %s not on %s, dropped", p.agentID, sym, p.ex.Name())
	}
	logger.Infof("portfolio[%s]: restored cash=%s positions=%d trades=%d", p.agentID, p.cash.StringFixed(2), len(p.positions), len(ledger))
	return nil
}
