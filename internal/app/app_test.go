package app

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/config"
	"arena/internal/engine"
	"arena/internal/gateway/notifier"
	"arena/internal/market"
	"arena/internal/portfolio"
	"arena/internal/store/decisionlog"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Engine: config.EngineConfig{IntervalSeconds: 60, Symbols: []string{"BTC", "ETH"}},
		Market: config.MarketConfig{Source: "mock", ShortInterval: "15m", LongInterval: "4h", Limit: 120},
		Portfolio: config.PortfolioConfig{
			InitialCash:           10000,
			MaintenanceMarginRate: 0.005,
			HistoryLimit:          100,
		},
		Storage: config.StorageConfig{
			Path:            filepath.Join(dir, "arena.db"),
			DecisionLogPath: filepath.Join(dir, "journal.db"),
		},
		Agents: []config.AgentConfig{
			testAgent("alpha"),
			testAgent("beta"),
		},
	}
}

func testAgent(id string) config.AgentConfig {
	return config.AgentConfig{
		ID:                   id,
		Name:                 id,
		Provider:             "mock",
		TimeoutSeconds:       5,
		Symbols:              []string{"BTC", "ETH"},
		InitialCash:          10000,
		BreakerFailures:      3,
		BreakerCooldownSecs:  60,
		DecisionHistoryLimit: 20,
	}
}

func build(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	clock := func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	app, err := NewAppBuilder(cfg,
		WithMarketSource(market.NewMockSource(clock)),
		WithPublisher(notifier.Nop{}),
		WithoutHTTP(),
	).Build(context.Background())
	require.NoError(t, err)
	return app
}

func TestBuildWiresEveryAgent(t *testing.T) {
	cfg := testConfig(t)
	app := build(t, cfg)
	defer app.Close()

	states := app.Engine().States()
	require.Len(t, states, 2)
	assert.Equal(t, "alpha", states[0].ID)
	assert.Equal(t, "mock:alpha", states[0].ProviderID)
	assert.Equal(t, 10000.0, states[0].Portfolio.Cash)

	require.NotNil(t, app.Summary)
	out := app.Summary.String()
	assert.Contains(t, out, "mock:beta")
	assert.Contains(t, out, "BTC, ETH")
}

func TestBuildWithoutAgentsFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents = nil
	_, err := NewAppBuilder(cfg, WithoutHTTP()).Build(context.Background())
	assert.ErrorIs(t, err, engine.ErrNoAgents)
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents[1].Provider = "carrier-pigeon"
	_, err := NewAppBuilder(cfg, WithoutHTTP()).Build(context.Background())
	assert.Error(t, err)
}

func TestCycleJournalsAndRestarts(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	app := build(t, cfg)
	app.Engine().RunOnce(ctx)
	first := app.Engine().States()
	for _, st := range first {
		assert.Equal(t, int64(1), st.Cycles, st.ID)
		assert.NotEmpty(t, st.Decisions, st.ID)
	}
	app.Close()

	journal, err := decisionlog.NewDecisionLogStore(cfg.Storage.DecisionLogPath)
	require.NoError(t, err)
	n, err := journal.CountDecisions(ctx, decisionlog.Query{AgentID: "alpha"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
	require.NoError(t, journal.Close())

	again := build(t, cfg)
	defer again.Close()
	second := again.Engine().States()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, heldSymbols(first[i].Portfolio.Positions), heldSymbols(second[i].Portfolio.Positions), first[i].ID)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.RunImmediately = false
	app := build(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestBuildPublisherFromConfig(t *testing.T) {
	pub, closers := buildPublisher(config.NotifyConfig{})
	assert.IsType(t, notifier.Nop{}, pub)
	assert.Empty(t, closers)

	pub, closers = buildPublisher(config.NotifyConfig{
		Kafka:    config.KafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "arena.trades"},
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "c"},
	})
	multi, ok := pub.(notifier.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 2)
	require.Len(t, closers, 1)
	for _, c := range closers {
		assert.NoError(t, c.Close())
	}
}

func heldSymbols(ps []portfolio.Position) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Symbol)
	}
	sort.Strings(out)
	return out
}
