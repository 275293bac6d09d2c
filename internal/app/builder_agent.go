package app

import (
	"context"
	"fmt"

	"arena/internal/agent"
	"arena/internal/ai"
	"arena/internal/config"
	"arena/internal/exitplan"
	"arena/internal/gateway/exchange"
	"arena/internal/gateway/notifier"
	"arena/internal/gateway/provider"
	"arena/internal/logger"
	"arena/internal/market"
	"arena/internal/pkg/circuit"
	"arena/internal/portfolio"
	"arena/internal/store/decisionlog"
	"arena/internal/store/gormstore"
)

type agentDeps struct {
	market    *market.Provider
	store     *gormstore.GormStore
	journal   *decisionlog.DecisionLogStore
	publisher notifier.Publisher
}

// buildAgent wires backend, adapter, plans, paper venue and portfolio for one
// configured agent, then replays its ledger so restarts resume where they left off.
func buildAgent(ctx context.Context, root *config.Config, ac config.AgentConfig, deps agentDeps) (*agent.Agent, error) {
	backend, err := provider.New(ac.Provider, provider.Config{
		ID:      providerID(ac),
		BaseURL: ac.BaseURL,
		APIKey:  ac.APIKey,
		Model:   ac.Model,
		Timeout: ac.Timeout(),
		Headers: ac.Headers,
	}, ac.Symbols)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", ac.ID, err)
	}
	breaker := circuit.NewCircuitBreaker(ac.ID, ac.BreakerFailures, ac.BreakerCooldown())
	breaker.SetStateChangeHandler(func(name string, from, to circuit.State) {
		logger.Warnf("agent %s: inference circuit %s -> %s", name, from, to)
	})
	adapter := ai.NewAdapter(ac.ID, backend, ai.Options{
		Timeout:     ac.Timeout(),
		Temperature: ac.Temperature,
		MaxTokens:   ac.MaxTokens,
		Breaker:     breaker,
		Journal:     deps.journal,
	})

	plans := exitplan.NewStore(ac.ID, deps.store)
	venue := exchange.NewPaper("paper:"+ac.ID, deps.market, exchange.PaperConfig{
		SlippageBps: root.Portfolio.SlippageBps,
		FeeRate:     root.Portfolio.FeeRate,
		MaxLeverage: root.Portfolio.MaxLeverage,
	})
	ledger, err := deps.store.Ledger(ctx, ac.ID)
	if err != nil {
		return nil, fmt.Errorf("agent %s: load ledger: %w", ac.ID, err)
	}
	venue.Seed(portfolio.ReplayPositions(ledger))

	pf := portfolio.New(ac.ID, ac.InitialCash, venue, portfolio.Options{
		Prices:                deps.market,
		Plans:                 plans,
		Recorder:              deps.store,
		RiskFreeRate:          root.Portfolio.RiskFreeRate,
		MaintenanceMarginRate: root.Portfolio.MaintenanceMarginRate,
		HistoryLimit:          root.Portfolio.HistoryLimit,
	})

	ag, err := agent.New(agent.Params{
		ID:           ac.ID,
		Name:         ac.Name,
		Symbols:      ac.Symbols,
		Decider:      adapter,
		Market:       deps.market,
		Portfolio:    pf,
		Plans:        plans,
		Publisher:    deps.publisher,
		SystemPrompt: ac.SystemPrompt,
		HistoryLimit: ac.DecisionHistoryLimit,
	})
	if err != nil {
		return nil, err
	}
	if err := ag.Restore(ctx, ledger); err != nil {
		return nil, err
	}
	logger.Infof("agent %s ready: provider=%s symbols=%v trades=%d", ac.ID, adapter.ProviderID(), ac.Symbols, len(ledger))
	return ag, nil
}

func providerID(ac config.AgentConfig) string {
	if ac.Provider == "mock" {
		return "mock:" + ac.ID
	}
	return ac.Provider + ":" + ac.Model
}
