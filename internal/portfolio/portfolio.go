// Package portfolio tracks cash, leveraged positions and the trade ledger of one agent.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arena/internal/decision"
	"arena/internal/exitplan"
	"arena/internal/gateway/exchange"
	"arena/internal/logger"
	"arena/internal/pkg/symbol"
)

const (
	defaultMaintenanceMargin = 0.005
	defaultHistoryLimit      = 500
	defaultCurveLimit        = 2000
)

// Options wires the portfolio's collaborators. Only Exchange is required.
type Options struct {
	Prices   exchange.PriceSource
	Plans    PlanBook
	Recorder TradeRecorder
	// RiskFreeRate is the per-observation baseline subtracted in the Sharpe ratio.
	RiskFreeRate float64
	// MaintenanceMarginRate feeds the liquidation price estimate.
	MaintenanceMarginRate float64
	HistoryLimit          int
	Now                   func() time.Time
}

type position struct {
	symbol     string
	qty        decimal.Decimal // signed
	entry      decimal.Decimal
	leverage   decimal.Decimal
	margin     decimal.Decimal
	mark       decimal.Decimal
	confidence float64
	riskUSD    float64
	openedAt   time.Time
}

func (p *position) long() bool { return p.qty.Sign() > 0 }

func (p *position) unrealized(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.entry).Mul(p.qty)
}

// Portfolio is safe for concurrent use; the owning agent is its only writer.
type Portfolio struct {
	agentID string
	ex      exchange.Exchange
	opts    Options

	mu          sync.RWMutex
	initialCash decimal.Decimal
	cash        decimal.Decimal
	realized    decimal.Decimal
	positions   map[string]*position
	trades      []Trade
	returns     []float64
	curve       []Point
}

func New(agentID string, initialCash float64, ex exchange.Exchange, opts Options) *Portfolio {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaintenanceMarginRate <= 0 {
		opts.MaintenanceMarginRate = defaultMaintenanceMargin
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	cash := decimal.NewFromFloat(initialCash)
	return &Portfolio{
		agentID:     agentID,
		ex:          ex,
		opts:        opts,
		initialCash: cash,
		cash:        cash,
		positions:   make(map[string]*position),
	}
}

func (p *Portfolio) AgentID() string { return p.agentID }

// ExecuteTrade applies a validated decision. hold is recorded without side effects.
func (p *Portfolio) ExecuteTrade(ctx context.Context, d decision.TradeDecision) (Trade, error) {
	if err := d.Validate(); err != nil {
		return Trade{}, err
	}
	d.Symbol = symbol.Normalize(d.Symbol)
	switch {
	case d.Action == decision.ActionHold:
		return p.recordHold(ctx, d), nil
	case d.Action.IsOpen():
		return p.open(ctx, d)
	case d.Action == decision.ActionClose:
		return p.close(ctx, d.Symbol, "decision", &d, 0)
	default:
		return Trade{}, fmt.Errorf("%w: %s", decision.ErrUnknownAction, d.Action)
	}
}

func (p *Portfolio) recordHold(ctx context.Context, d decision.TradeDecision) Trade {
	t := Trade{
		ID:         uuid.NewString(),
		AgentID:    p.agentID,
		Symbol:     d.Symbol,
		Action:     decision.ActionHold,
		Reason:     d.Justification,
		Decision:   &d,
		ExecutedAt: p.opts.Now().UTC(),
	}
	p.mu.Lock()
	p.appendTradeLocked(t)
	p.mu.Unlock()
	p.persist(ctx, t)
	return t
}

func (p *Portfolio) open(ctx context.Context, d decision.TradeDecision) (Trade, error) {
	qty := decimal.NewFromFloat(d.Quantity)
	lev := decimal.NewFromFloat(d.Leverage)

	p.mu.RLock()
	_, exists := p.positions[d.Symbol]
	cash := p.cash
	p.mu.RUnlock()
	if exists {
		return Trade{}, fmt.Errorf("%w: %s", ErrPositionExists, d.Symbol)
	}
	if p.opts.Prices != nil {
		if quote, err := p.opts.Prices.LatestPrice(ctx, d.Symbol); err == nil && quote > 0 {
			need := qty.Mul(decimal.NewFromFloat(quote)).Div(lev)
			if need.GreaterThan(cash) {
				return Trade{}, fmt.Errorf("%w: %s needs margin %s, cash %s", ErrInsufficientCash, d.Symbol, need.StringFixed(2), cash.StringFixed(2))
			}
		}
	}

	side := exchange.SideBuy
	if d.Action == decision.ActionOpenShort {
		side = exchange.SideSell
	}
	fill, err := p.ex.Submit(ctx, exchange.OrderRequest{
		Symbol:   d.Symbol,
		Side:     side,
		Quantity: d.Quantity,
		Leverage: d.Leverage,
		ClientID: uuid.NewString(),
	})
	if err != nil {
		return Trade{}, fmt.Errorf("open %s: %w", d.Symbol, err)
	}
	price := decimal.NewFromFloat(fill.Price)
	fee := decimal.NewFromFloat(fill.Fee)
	margin := qty.Mul(price).Div(lev)

	p.mu.Lock()
	if margin.Add(fee).GreaterThan(p.cash) {
		p.mu.Unlock()
		p.unwind(ctx, d.Symbol, side, d.Quantity)
		return Trade{}, fmt.Errorf("%w: %s margin %s at fill, cash %s", ErrInsufficientCash, d.Symbol, margin.StringFixed(2), cash.StringFixed(2))
	}
	signed := qty
	if side == exchange.SideSell {
		signed = qty.Neg()
	}
	now := p.opts.Now().UTC()
	p.positions[d.Symbol] = &position{
		symbol:     d.Symbol,
		qty:        signed,
		entry:      price,
		leverage:   lev,
		margin:     margin,
		mark:       price,
		confidence: d.Confidence,
		riskUSD:    d.RiskUSD,
		openedAt:   now,
	}
	p.cash = p.cash.Sub(margin).Sub(fee)
	t := Trade{
		ID:         uuid.NewString(),
		AgentID:    p.agentID,
		Symbol:     d.Symbol,
		Action:     d.Action,
		Side:       side,
		Quantity:   d.Quantity,
		Price:      fill.Price,
		Leverage:   d.Leverage,
		Margin:     margin.InexactFloat64(),
		Fee:        fill.Fee,
		Reason:     d.Justification,
		Decision:   &d,
		ExecutedAt: now,
	}
	p.appendTradeLocked(t)
	p.mu.Unlock()

	p.persist(ctx, t)
	logger.Infof("portfolio[%s]: %s %s qty=%.6f @ %.4f lev=%.1fx margin=%.2f", p.agentID, d.Action, d.Symbol, d.Quantity, fill.Price, d.Leverage, t.Margin)
	return t, nil
}

// unwind reverses a fill that could not be booked.
func (p *Portfolio) unwind(ctx context.Context, sym string, side exchange.Side, qty float64) {
	_, err := p.ex.Submit(ctx, exchange.OrderRequest{Symbol: sym, Side: side.Opposite(), Quantity: qty, ReduceOnly: true})
	if err != nil {
		logger.Errorf("portfolio[%s]: unwind %s failed: %v", p.agentID, sym, err)
	}
}

// close flattens sym; a positive level executes at that trigger price.
func (p *Portfolio) close(ctx context.Context, sym, reason string, d *decision.TradeDecision, level float64) (Trade, error) {
	p.mu.RLock()
	pos, ok := p.positions[sym]
	var snapshot position
	if ok {
		snapshot = *pos
	}
	p.mu.RUnlock()
	if !ok {
		return Trade{}, fmt.Errorf("%w: %s", ErrNoOpenPosition, sym)
	}
	side := exchange.SideSell
	if !snapshot.long() {
		side = exchange.SideBuy
	}
	qty := snapshot.qty.Abs()
	fill, err := p.ex.Submit(ctx, exchange.OrderRequest{
		Symbol:     sym,
		Side:       side,
		Quantity:   qty.InexactFloat64(),
		Price:      level,
		ReduceOnly: true,
		ClientID:   uuid.NewString(),
	})
	if err != nil {
		return Trade{}, fmt.Errorf("close %s: %w", sym, err)
	}
	price := decimal.NewFromFloat(fill.Price)
	fee := decimal.NewFromFloat(fill.Fee)
	pnl := snapshot.unrealized(price)
	// losses beyond the posted margin are not charged to cash
	if pnl.Add(snapshot.margin).Sign() < 0 {
		pnl = snapshot.margin.Neg()
	}

	p.mu.Lock()
	delete(p.positions, sym)
	p.cash = p.cash.Add(snapshot.margin).Add(pnl).Sub(fee)
	p.realized = p.realized.Add(pnl).Sub(fee)
	if !p.initialCash.IsZero() {
		p.returns = append(p.returns, pnl.Sub(fee).Div(p.initialCash).InexactFloat64())
	}
	action := decision.ActionClose
	t := Trade{
		ID:          uuid.NewString(),
		AgentID:     p.agentID,
		Symbol:      sym,
		Action:      action,
		Side:        side,
		Quantity:    qty.InexactFloat64(),
		Price:       fill.Price,
		Leverage:    snapshot.leverage.InexactFloat64(),
		Margin:      snapshot.margin.InexactFloat64(),
		RealizedPnL: pnl.InexactFloat64(),
		Fee:         fill.Fee,
		Reason:      reason,
		Decision:    d,
		ExecutedAt:  p.opts.Now().UTC(),
	}
	p.appendTradeLocked(t)
	p.mu.Unlock()

	p.persist(ctx, t)
	if p.opts.Plans != nil {
		if err := p.opts.Plans.RemovePlan(ctx, sym); err != nil {
			logger.Warnf("portfolio[%s]: remove exit plan %s: %v", p.agentID, sym, err)
		}
	}
	logger.Infof("portfolio[%s]: close %s qty=%.6f @ %.4f pnl=%.2f reason=%s", p.agentID, sym, t.Quantity, t.Price, t.RealizedPnL, reason)
	return t, nil
}

func (p *Portfolio) appendTradeLocked(t Trade) {
	p.trades = append(p.trades, t)
	if over := len(p.trades) - p.opts.HistoryLimit; over > 0 {
		p.trades = append([]Trade(nil), p.trades[over:]...)
	}
}

func (p *Portfolio) persist(ctx context.Context, t Trade) {
	if p.opts.Recorder == nil {
		return
	}
	if err := p.opts.Recorder.RecordTrade(ctx, t); err != nil {
		logger.Warnf("portfolio[%s]: record trade %s: %v", p.agentID, t.ID, err)
	}
}

// HasPosition reports whether sym is currently held.
func (p *Portfolio) HasPosition(sym string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.positions[symbol.Normalize(sym)]
	return ok
}

// Position returns a copy of the open position for sym.
func (p *Portfolio) Position(sym string) (Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[symbol.Normalize(sym)]
	if !ok {
		return Position{}, false
	}
	return p.exportLocked(pos), true
}

// MarkToMarket re-prices every open position and closes those whose exit plan
// or liquidation level is breached. Re-running with the same prices is a no-op.
func (p *Portfolio) MarkToMarket(ctx context.Context, prices map[string]float64) []Trade {
	type exit struct {
		symbol string
		reason string
		level  float64
	}
	var exits []exit

	p.mu.Lock()
	syms := make([]string, 0, len(p.positions))
	for s := range p.positions {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	for _, s := range syms {
		pos := p.positions[s]
		px, ok := prices[s]
		if !ok || px <= 0 {
			continue
		}
		pos.mark = decimal.NewFromFloat(px)
		if liq := p.liquidationLocked(pos); liq > 0 && ((pos.long() && px <= liq) || (!pos.long() && px >= liq)) {
			exits = append(exits, exit{s, "liquidation", liq})
			continue
		}
		if p.opts.Plans == nil {
			continue
		}
		plan, ok := p.opts.Plans.Get(s)
		if !ok {
			continue
		}
		switch plan.Evaluate(pos.long(), px) {
		case exitplan.TriggerProfitTarget:
			exits = append(exits, exit{s, string(exitplan.TriggerProfitTarget), plan.ProfitTarget})
		case exitplan.TriggerStopLoss:
			exits = append(exits, exit{s, string(exitplan.TriggerStopLoss), plan.StopLoss})
		}
	}
	p.mu.Unlock()

	var closed []Trade
	for _, e := range exits {
		t, err := p.close(ctx, e.symbol, e.reason, nil, e.level)
		if err != nil {
			if !errors.Is(err, ErrNoOpenPosition) {
				logger.Errorf("portfolio[%s]: autonomous close %s (%s): %v", p.agentID, e.symbol, e.reason, err)
			}
			continue
		}
		closed = append(closed, t)
	}

	return closed
}

// RecordEquity appends the current equity to the curve; called once per cycle.
func (p *Portfolio) RecordEquity() Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt := Point{At: p.opts.Now().UTC(), Equity: p.equityLocked().InexactFloat64()}
	p.curve = append(p.curve, pt)
	if over := len(p.curve) - defaultCurveLimit; over > 0 {
		p.curve = append([]Point(nil), p.curve[over:]...)
	}
	return pt
}

func (p *Portfolio) liquidationLocked(pos *position) float64 {
	if pos.leverage.Sign() <= 0 {
		return 0
	}
	inv := decimal.NewFromInt(1).Div(pos.leverage)
	mmr := decimal.NewFromFloat(p.opts.MaintenanceMarginRate)
	var liq decimal.Decimal
	if pos.long() {
		liq = pos.entry.Mul(decimal.NewFromInt(1).Sub(inv).Add(mmr))
	} else {
		liq = pos.entry.Mul(decimal.NewFromInt(1).Add(inv).Sub(mmr))
	}
	if liq.Sign() <= 0 {
		return 0
	}
	return liq.InexactFloat64()
}

func (p *Portfolio) equityLocked() decimal.Decimal {
	eq := p.cash
	for _, pos := range p.positions {
		eq = eq.Add(pos.margin).Add(pos.unrealized(pos.mark))
	}
	return eq
}

func (p *Portfolio) exportLocked(pos *position) Position {
	out := Position{
		Symbol:           pos.symbol,
		Side:             SideLong,
		Quantity:         pos.qty.InexactFloat64(),
		EntryPrice:       pos.entry.InexactFloat64(),
		CurrentPrice:     pos.mark.InexactFloat64(),
		Leverage:         pos.leverage.InexactFloat64(),
		Margin:           pos.margin.InexactFloat64(),
		LiquidationPrice: p.liquidationLocked(pos),
		UnrealizedPnL:    pos.unrealized(pos.mark).InexactFloat64(),
		Notional:         pos.qty.Abs().Mul(pos.mark).InexactFloat64(),
		Confidence:       pos.confidence,
		RiskUSD:          pos.riskUSD,
		OpenedAt:         pos.openedAt,
	}
	if !pos.long() {
		out.Side = SideShort
	}
	if p.opts.Plans != nil {
		if plan, ok := p.opts.Plans.Get(pos.symbol); ok {
			out.ExitPlan = plan
		}
	}
	return out
}

// Snapshot returns a consistent copy; recent limits the trade history included.
func (p *Portfolio) Snapshot(recent int) Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	syms := make([]string, 0, len(p.positions))
	for s := range p.positions {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	positions := make([]Position, 0, len(syms))
	unrealized := decimal.Zero
	for _, s := range syms {
		pos := p.positions[s]
		positions = append(positions, p.exportLocked(pos))
		unrealized = unrealized.Add(pos.unrealized(pos.mark))
	}
	equity := p.equityLocked()
	ret := 0.0
	if !p.initialCash.IsZero() {
		ret = equity.Sub(p.initialCash).Div(p.initialCash).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
	}
	if recent <= 0 || recent > len(p.trades) {
		recent = len(p.trades)
	}
	trades := append([]Trade(nil), p.trades[len(p.trades)-recent:]...)
	return Snapshot{
		AgentID:            p.agentID,
		InitialCash:        p.initialCash.InexactFloat64(),
		Cash:               p.cash.InexactFloat64(),
		Equity:             equity.InexactFloat64(),
		RealizedPnL:        p.realized.InexactFloat64(),
		UnrealizedPnL:      unrealized.InexactFloat64(),
		TotalReturnPercent: ret,
		SharpeRatio:        p.sharpeLocked(unrealized),
		Positions:          positions,
		RecentTrades:       trades,
		EquityCurve:        append([]Point(nil), p.curve...),
		UpdatedAt:          p.opts.Now().UTC(),
	}
}

// Cash returns available cash.
func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash.InexactFloat64()
}

// Equity is cash plus margin and unrealized PnL of open positions.
func (p *Portfolio) Equity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equityLocked().InexactFloat64()
}

// SharpeRatio over closed-trade returns plus the current unrealized return.
func (p *Portfolio) SharpeRatio() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	unrealized := decimal.Zero
	for _, pos := range p.positions {
		unrealized = unrealized.Add(pos.unrealized(pos.mark))
	}
	return p.sharpeLocked(unrealized)
}

func (p *Portfolio) sharpeLocked(unrealized decimal.Decimal) float64 {
	series := append([]float64(nil), p.returns...)
	if len(p.positions) > 0 && !p.initialCash.IsZero() {
		series = append(series, unrealized.Div(p.initialCash).InexactFloat64())
	}
	return Sharpe(series, p.opts.RiskFreeRate)
}
