// Package agent runs one trading agent's decision cycle: assemble market and
// portfolio context, ask the model, validate and reconcile its decisions, and
// execute them against the agent's own portfolio.
package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"arena/internal/ai"
	"arena/internal/decision"
	"arena/internal/exitplan"
	"arena/internal/gateway/exchange"
	"arena/internal/gateway/notifier"
	"arena/internal/logger"
	"arena/internal/market"
	"arena/internal/pkg/symbol"
	"arena/internal/portfolio"
	"arena/internal/prompt"
)

const (
	defaultHistoryLimit = 50
	publishTimeout      = 10 * time.Second
)

// ErrCyclePanic wraps a panic recovered inside a cycle.
var ErrCyclePanic = errors.New("agent cycle panicked")

// Decider is the inference side of an agent.
type Decider interface {
	Decide(ctx context.Context, req ai.Request) (decision.ParseResult, error)
	ProviderID() string
}

// MarketView supplies the per-cycle market snapshots.
type MarketView interface {
	Snapshot(ctx context.Context, symbols []string, asOf time.Time) map[string]market.Snapshot
}

type Params struct {
	ID        string
	Name      string
	Symbols   []string
	Decider   Decider
	Market    MarketView
	Portfolio *portfolio.Portfolio
	Plans     *exitplan.Store
	Publisher notifier.Publisher
	// SystemPrompt falls back to prompt.DefaultSystem.
	SystemPrompt string
	// HistoryLimit bounds the decision records kept in State.
	HistoryLimit int
	Now          func() time.Time
}

// Agent owns one portfolio and one decider. RunCycle is not reentrant; the
// engine never overlaps cycles of the same agent.
type Agent struct {
	id        string
	name      string
	symbols   []string
	allowed   map[string]struct{}
	decider   Decider
	market    MarketView
	portfolio *portfolio.Portfolio
	plans     *exitplan.Store
	publisher notifier.Publisher
	system    string
	limit     int
	nowFn     func() time.Time
	started   time.Time

	mu          sync.RWMutex
	phase       Phase
	cycles      int64
	degraded    bool
	lastCycleAt time.Time
	lastErr     string
	records     []DecisionRecord
}

func New(p Params) (*Agent, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, fmt.Errorf("agent: id is required")
	}
	if p.Decider == nil || p.Market == nil || p.Portfolio == nil || p.Plans == nil {
		return nil, fmt.Errorf("agent %s: decider, market, portfolio and plans are required", p.ID)
	}
	symbols := symbol.NormalizeList(p.Symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("agent %s: no symbols configured", p.ID)
	}
	allowed := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		allowed[s] = struct{}{}
	}
	if p.Publisher == nil {
		p.Publisher = notifier.Nop{}
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		p.SystemPrompt = prompt.DefaultSystem
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = defaultHistoryLimit
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	name := p.Name
	if name == "" {
		name = p.ID
	}
	return &Agent{
		id:        p.ID,
		name:      name,
		symbols:   symbols,
		allowed:   allowed,
		decider:   p.Decider,
		market:    p.Market,
		portfolio: p.Portfolio,
		plans:     p.Plans,
		publisher: p.Publisher,
		system:    p.SystemPrompt,
		limit:     p.HistoryLimit,
		nowFn:     p.Now,
		started:   p.Now().UTC(),
	}, nil
}

func (a *Agent) ID() string { return a.id }

func (a *Agent) Name() string { return a.name }

// Restore reloads the persisted exit plans and then rebuilds the portfolio from
// its ledger (oldest first) and the exchange. Plans left behind for symbols
// with no restored position are deleted.
func (a *Agent) Restore(ctx context.Context, ledger []portfolio.Trade) error {
	if err := a.plans.Load(ctx); err != nil {
		return fmt.Errorf("agent %s: %w", a.id, err)
	}
	if err := a.portfolio.Restore(ctx, ledger); err != nil {
		return fmt.Errorf("agent %s: restore portfolio: %w", a.id, err)
	}
	for sym := range a.plans.All() {
		if a.portfolio.HasPosition(sym) {
			continue
		}
		logger.Warnf("agent[%s]: drop orphaned exit plan for %s", a.id, sym)
		if err := a.plans.Delete(ctx, sym); err != nil {
			return fmt.Errorf("agent %s: drop orphaned plan %s: %w", a.id, sym, err)
		}
	}
	return nil
}

// RunCycle runs one full decision cycle. Cancelling ctx only aborts the cycle
// while the context is still being assembled; after that the cycle drains on
// a detached context bounded by the backend timeouts.
func (a *Agent) RunCycle(ctx context.Context) (err error) {
	traceID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCyclePanic, r)
			logger.Errorf("agent[%s]: cycle %s panic: %v\n%s", a.id, traceID, r, debug.Stack())
		}
		a.finish(err)
	}()

	a.setPhase(PhaseAssemblingContext)
	now := a.nowFn().UTC()
	snaps := a.market.Snapshot(ctx, a.symbols, now)
	for _, t := range a.portfolio.MarkToMarket(ctx, market.Prices(snaps)) {
		a.publish(ctx, a.tradeEvent(notifier.EventExit, t))
	}
	a.portfolio.RecordEquity()
	user, err := prompt.BuildUser(prompt.Input{
		Started:   a.started,
		Now:       now,
		Symbols:   a.symbols,
		Snapshots: snaps,
		Portfolio: a.portfolio.Snapshot(0),
	})
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	a.setPhase(PhaseAwaitingInference)
	decisions := a.infer(ctx, traceID, user)

	a.setPhase(PhaseValidating)
	decisions = a.validate(traceID, decisions)

	a.setPhase(PhaseReconciling)
	steps := a.reconcile(traceID, decisions)

	a.setPhase(PhaseExecuting)
	for _, st := range steps {
		a.execute(ctx, traceID, st)
	}
	logger.Infof("agent[%s]: cycle %s done decisions=%d equity=%.2f", a.id, traceID, len(decisions), a.portfolio.Equity())
	return nil
}

func (a *Agent) infer(ctx context.Context, traceID, user string) []decision.TradeDecision {
	res, err := a.decider.Decide(ctx, ai.Request{
		TraceID: traceID,
		System:  a.system,
		User:    user,
		Schema:  prompt.OutputContract(),
		Symbols: a.symbols,
	})
	if err != nil {
		reason := "inference unavailable"
		if errors.Is(err, ai.ErrInferenceMalformed) {
			reason = "inference output malformed"
		}
		logger.Warnf("agent[%s]: %s, holding all symbols: %v", a.id, reason, err)
		a.markDegraded(ctx, err)
		return decision.HoldAll(a.symbols, reason)
	}
	a.markHealthy()
	return res.OrHold(a.soleSymbol())
}

// soleSymbol is the symbol a synthetic hold is attributed to, empty unless
// the agent trades exactly one.
func (a *Agent) soleSymbol() string {
	if len(a.symbols) == 1 {
		return a.symbols[0]
	}
	return ""
}

// validate drops decisions for symbols this agent does not trade. A batch
// that loses every decision here becomes a single synthetic hold.
func (a *Agent) validate(traceID string, in []decision.TradeDecision) []decision.TradeDecision {
	out := make([]decision.TradeDecision, 0, len(in))
	for _, d := range in {
		if d.Synthetic && d.Symbol == "" {
			out = append(out, d)
			continue
		}
		d.Symbol = symbol.Normalize(d.Symbol)
		if _, ok := a.allowed[d.Symbol]; !ok {
			logger.Warnf("agent[%s]: drop %s: symbol not tradable", a.id, d.Summary())
			a.record(traceID, d, OutcomeDropped, "symbol not tradable", "")
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 && len(in) > 0 {
		out = append(out, decision.Hold(a.soleSymbol(), "no tradable decisions in model output"))
	}
	return out
}

type stepKind int

const (
	stepExecute stepKind = iota
	stepAmend
)

type step struct {
	kind     stepKind
	decision decision.TradeDecision
}

// reconcile checks each decision against the positions the batch will leave
// behind: an open on a held symbol in the same direction amends its exit plan,
// the opposite direction is dropped, and a close with nothing held is dropped.
func (a *Agent) reconcile(traceID string, in []decision.TradeDecision) []step {
	// held maps symbol to long=true/short=false as the batch progresses.
	held := make(map[string]bool)
	for _, sym := range a.symbols {
		if pos, ok := a.portfolio.Position(sym); ok {
			held[sym] = pos.IsLong()
		}
	}
	out := make([]step, 0, len(in))
	for _, d := range in {
		switch {
		case d.Action.IsOpen():
			long := d.Action == decision.ActionOpenLong
			isLong, ok := held[d.Symbol]
			if !ok {
				held[d.Symbol] = long
				out = append(out, step{kind: stepExecute, decision: d})
				continue
			}
			if isLong != long {
				logger.Warnf("agent[%s]: drop %s: opposite position already open", a.id, d.Summary())
				a.record(traceID, d, OutcomeDropped, "opposite position already open; close it first", "")
				continue
			}
			out = append(out, step{kind: stepAmend, decision: d})
		case d.Action == decision.ActionClose:
			if _, ok := held[d.Symbol]; !ok {
				logger.Warnf("agent[%s]: drop %s: no open position", a.id, d.Summary())
				a.record(traceID, d, OutcomeDropped, "no open position", "")
				continue
			}
			delete(held, d.Symbol)
			out = append(out, step{kind: stepExecute, decision: d})
		default:
			out = append(out, step{kind: stepExecute, decision: d})
		}
	}
	return out
}

func (a *Agent) execute(ctx context.Context, traceID string, st step) {
	d := st.decision
	if st.kind == stepAmend {
		a.amend(ctx, traceID, d)
		return
	}
	t, err := a.portfolio.ExecuteTrade(ctx, d)
	if err != nil {
		if isRejection(err) {
			logger.Warnf("agent[%s]: %s rejected: %v", a.id, d.Summary(), err)
			a.record(traceID, d, OutcomeRejected, err.Error(), "")
			return
		}
		logger.Errorf("agent[%s]: %s failed: %v", a.id, d.Summary(), err)
		a.record(traceID, d, OutcomeFailed, err.Error(), "")
		return
	}
	switch {
	case d.Action.IsOpen():
		if plan := planFrom(d); !plan.IsZero() {
			if err := a.plans.Put(ctx, d.Symbol, plan); err != nil {
				logger.Warnf("agent[%s]: %v", a.id, err)
			}
		}
		a.publish(ctx, a.tradeEvent(notifier.EventOpened, t))
		a.record(traceID, d, OutcomeExecuted, "", t.ID)
	case d.Action == decision.ActionClose:
		a.publish(ctx, a.tradeEvent(notifier.EventClosed, t))
		a.record(traceID, d, OutcomeExecuted, "", t.ID)
	default:
		a.record(traceID, d, OutcomeHeld, d.Justification, t.ID)
	}
}

// amend overlays the decision's exit levels on the held position's plan. Size
// and leverage of an open position never change.
func (a *Agent) amend(ctx context.Context, traceID string, d decision.TradeDecision) {
	pos, ok := a.portfolio.Position(d.Symbol)
	if !ok {
		a.record(traceID, d, OutcomeDropped, "position closed before amendment", "")
		return
	}
	if !d.HasExitPlan() {
		a.record(traceID, d, OutcomeHeld, "repeat entry without exit levels", "")
		return
	}
	current, _ := a.plans.Get(d.Symbol)
	merged := current.Merge(planFrom(d))
	if d.Leverage != pos.Leverage {
		logger.Infof("agent[%s]: %s keeps lev=%gx, only exit levels are amended", a.id, d.Symbol, pos.Leverage)
	}
	if err := a.plans.Put(ctx, d.Symbol, merged); err != nil {
		logger.Warnf("agent[%s]: %v", a.id, err)
	}
	a.publish(ctx, notifier.TradeEvent{
		Type:      notifier.EventAmended,
		AgentID:   a.id,
		AgentName: a.name,
		Symbol:    d.Symbol,
		Action:    string(d.Action),
		Leverage:  pos.Leverage,
		Reason:    fmt.Sprintf("tp=%g sl=%g %s", merged.ProfitTarget, merged.StopLoss, merged.InvalidationCondition),
		Timestamp: a.nowFn().UTC(),
	})
	a.record(traceID, d, OutcomeAmended, "", "")
}

func planFrom(d decision.TradeDecision) exitplan.ExitPlan {
	return exitplan.ExitPlan{
		ProfitTarget:          d.ProfitTarget,
		StopLoss:              d.StopLoss,
		InvalidationCondition: d.InvalidationCondition,
	}
}

func isRejection(err error) bool {
	return errors.Is(err, portfolio.ErrInsufficientCash) ||
		errors.Is(err, portfolio.ErrNoOpenPosition) ||
		errors.Is(err, portfolio.ErrPositionExists) ||
		errors.Is(err, exchange.ErrRejected) ||
		errors.Is(err, decision.ErrInferenceMalformed)
}

func (a *Agent) tradeEvent(typ notifier.EventType, t portfolio.Trade) notifier.TradeEvent {
	return notifier.TradeEvent{
		Type:        typ,
		AgentID:     a.id,
		AgentName:   a.name,
		Symbol:      t.Symbol,
		Action:      string(t.Action),
		Side:        string(t.Side),
		Quantity:    t.Quantity,
		Price:       t.Price,
		Leverage:    t.Leverage,
		RealizedPnL: t.RealizedPnL,
		Equity:      a.portfolio.Equity(),
		Reason:      t.Reason,
		Timestamp:   t.ExecutedAt,
	}
}

// publish never fails the cycle.
func (a *Agent) publish(ctx context.Context, ev notifier.TradeEvent) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := a.publisher.Publish(pctx, ev); err != nil {
		logger.Warnf("agent[%s]: publish %s %s: %v", a.id, ev.Type, ev.Symbol, err)
	}
}

func (a *Agent) markDegraded(ctx context.Context, cause error) {
	a.mu.Lock()
	first := !a.degraded
	a.degraded = true
	a.mu.Unlock()
	if !first {
		return
	}
	a.publish(ctx, notifier.TradeEvent{
		Type:      notifier.EventAgentDown,
		AgentID:   a.id,
		AgentName: a.name,
		Reason:    cause.Error(),
		Timestamp: a.nowFn().UTC(),
	})
}

func (a *Agent) markHealthy() {
	a.mu.Lock()
	a.degraded = false
	a.mu.Unlock()
}

func (a *Agent) setPhase(p Phase) {
	a.mu.Lock()
	a.phase = p
	a.mu.Unlock()
}

func (a *Agent) Phase() Phase {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.phase
}

func (a *Agent) finish(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.phase = PhaseIdle
	a.cycles++
	a.lastCycleAt = a.nowFn().UTC()
	if err != nil {
		a.lastErr = err.Error()
	} else {
		a.lastErr = ""
	}
}

func (a *Agent) record(traceID string, d decision.TradeDecision, outcome Outcome, detail, tradeID string) {
	rec := DecisionRecord{
		TraceID:   traceID,
		Timestamp: a.nowFn().UTC(),
		Decision:  d,
		Outcome:   outcome,
		Detail:    detail,
		TradeID:   tradeID,
	}
	a.mu.Lock()
	a.records = append(a.records, rec)
	if over := len(a.records) - a.limit; over > 0 {
		a.records = append([]DecisionRecord(nil), a.records[over:]...)
	}
	a.mu.Unlock()
}

// State returns a consistent read-only copy.
func (a *Agent) State() AgentState {
	snap := a.portfolio.Snapshot(a.limit)
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AgentState{
		ID:          a.id,
		Name:        a.name,
		ProviderID:  a.decider.ProviderID(),
		Symbols:     append([]string(nil), a.symbols...),
		Phase:       a.phase,
		Cycles:      a.cycles,
		Degraded:    a.degraded,
		LastCycleAt: a.lastCycleAt,
		LastError:   a.lastErr,
		Portfolio:   snap,
		Decisions:   append([]DecisionRecord(nil), a.records...),
	}
}
