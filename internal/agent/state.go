package agent

import (
	"time"

	"arena/internal/decision"
	"arena/internal/portfolio"
)

// Outcome is what became of one decision.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeAmended  Outcome = "amended"
	OutcomeHeld     Outcome = "held"
	OutcomeDropped  Outcome = "dropped"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// DecisionRecord is one decision as the agent handled it.
type DecisionRecord struct {
	TraceID   string                 `json:"trace_id"`
	Timestamp time.Time              `json:"timestamp"`
	Decision  decision.TradeDecision `json:"decision"`
	Outcome   Outcome                `json:"outcome"`
	Detail    string                 `json:"detail,omitempty"`
	TradeID   string                 `json:"trade_id,omitempty"`
}

// AgentState is a read-only copy of everything observable about an agent.
type AgentState struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	ProviderID  string             `json:"provider_id"`
	Symbols     []string           `json:"symbols"`
	Phase       Phase              `json:"phase"`
	Cycles      int64              `json:"cycles"`
	Degraded    bool               `json:"degraded"`
	LastCycleAt time.Time          `json:"last_cycle_at"`
	LastError   string             `json:"last_error,omitempty"`
	Portfolio   portfolio.Snapshot `json:"portfolio"`
	Decisions   []DecisionRecord   `json:"decisions"`
}

