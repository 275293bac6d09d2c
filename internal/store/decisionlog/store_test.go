package decisionlog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/decision"
)

func newTestStore(t *testing.T) *DecisionLogStore {
	t.Helper()
	s, err := NewDecisionLogStore(filepath.Join(t.TempDir(), "journal", "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, DecisionLogRecord{
		TraceID:    "t1",
		Timestamp:  1000,
		AgentID:    "alpha",
		ProviderID: "ollama:qwen3",
		Stage:      "chat",
		System:     "sys",
		User:       "usr",
		RawOutput:  `<think>up</think>{"symbol":"BTC","action":"hold"}`,
		Reasoning:  "up",
		Result:     "ok",
		Decisions: []decision.TradeDecision{
			{Symbol: "BTC", Action: decision.ActionHold, Confidence: 0.4},
		},
		LatencyMs: 42,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = s.Insert(ctx, DecisionLogRecord{TraceID: "t2", Timestamp: 2000, AgentID: "beta", Error: "inference unavailable"})
	require.NoError(t, err)

	got, err := s.GetDecision(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.AgentID)
	assert.Equal(t, "up", got.Reasoning)
	assert.Equal(t, []string{"BTC"}, got.Symbols)
	require.Len(t, got.Decisions, 1)
	assert.Equal(t, decision.ActionHold, got.Decisions[0].Action)
	assert.Equal(t, int64(42), got.LatencyMs)

	all, err := s.ListDecisions(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "beta", all[0].AgentID, "newest first")

	alpha, err := s.ListDecisions(ctx, Query{AgentID: "alpha"})
	require.NoError(t, err)
	require.Len(t, alpha, 1)

	bySym, err := s.ListDecisions(ctx, Query{Symbols: []string{"btc"}})
	require.NoError(t, err)
	require.Len(t, bySym, 1)

	n, err := s.CountDecisions(ctx, Query{AgentID: "beta"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	trace, err := s.ListByTraceID(ctx, "t2")
	require.NoError(t, err)
	require.Len(t, trace, 1)
	assert.Equal(t, "inference unavailable", trace[0].Error)
}

func TestSymbolFilterMatchesWholeSymbols(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, DecisionLogRecord{AgentID: "a", Symbols: []string{"ETHFI"}})
	require.NoError(t, err)
	list, err := s.ListDecisions(ctx, Query{Symbols: []string{"ETH"}})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUseExternalDBAddsSchema(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	defer db.Close()

	s, err := NewSharedDecisionLogStore(db)
	require.NoError(t, err)
	_, err = s.Insert(context.Background(), DecisionLogRecord{AgentID: "a"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// the shared connection stays open
	require.NoError(t, db.Ping())
	_, err = s.Insert(context.Background(), DecisionLogRecord{AgentID: "a"})
	assert.Error(t, err)
}

func TestOlderJournalIsUpgraded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE decision_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT, trace_id TEXT, ts INTEGER NOT NULL, agent_id TEXT NOT NULL,
		provider_id TEXT, stage TEXT, system_prompt TEXT, user_prompt TEXT, raw_output TEXT,
		decisions_json TEXT, symbols TEXT, error TEXT, created_at INTEGER NOT NULL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := NewDecisionLogStore(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Insert(context.Background(), DecisionLogRecord{AgentID: "a", Reasoning: "r", Dropped: 2})
	require.NoError(t, err)
	list, err := s.ListDecisions(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Dropped)
}
