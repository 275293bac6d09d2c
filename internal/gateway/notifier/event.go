package notifier

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventOpened    EventType = "POSITION_OPENED"
	EventClosed    EventType = "POSITION_CLOSED"
	EventExit      EventType = "EXIT_TRIGGERED"
	EventAmended   EventType = "EXIT_PLAN_AMENDED"
	EventAgentDown EventType = "AGENT_DEGRADED"
)

// TradeEvent is what leaves the process when an agent's book changes.
type TradeEvent struct {
	Type        EventType `json:"event_type"`
	AgentID     string    `json:"agent_id"`
	AgentName   string    `json:"agent_name,omitempty"`
	Symbol      string    `json:"symbol,omitempty"`
	Action      string    `json:"action,omitempty"`
	Side        string    `json:"side,omitempty"`
	Quantity    float64   `json:"quantity,omitempty"`
	Price       float64   `json:"price,omitempty"`
	Leverage    float64   `json:"leverage,omitempty"`
	RealizedPnL float64   `json:"realized_pnl,omitempty"`
	Equity      float64   `json:"equity,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Key partitions events per agent and symbol.
func (e TradeEvent) Key() string {
	if e.Symbol == "" {
		return e.AgentID
	}
	return e.AgentID + ":" + e.Symbol
}

// Message renders the event for chat channels.
func (e TradeEvent) Message() StructuredMessage {
	icon := "ℹ️"
	title := string(e.Type)
	switch e.Type {
	case EventOpened:
		icon, title = "🟢", "Position opened"
	case EventClosed:
		icon, title = "🔴", "Position closed"
	case EventExit:
		icon, title = "🎯", "Exit plan triggered"
	case EventAmended:
		icon, title = "✏️", "Exit plan amended"
	case EventAgentDown:
		icon, title = "⚠️", "Agent degraded"
	}
	name := e.AgentName
	if name == "" {
		name = e.AgentID
	}
	lines := []string{fmt.Sprintf("agent: %s", name)}
	if e.Symbol != "" {
		lines = append(lines, fmt.Sprintf("symbol: %s %s", e.Symbol, e.Side))
	}
	if e.Quantity > 0 {
		lines = append(lines, fmt.Sprintf("qty: %.6g @ %.6g", e.Quantity, e.Price))
	}
	if e.Leverage > 0 {
		lines = append(lines, fmt.Sprintf("leverage: %.0fx", e.Leverage))
	}
	if e.Type == EventClosed || e.Type == EventExit {
		lines = append(lines, fmt.Sprintf("pnl: %+.2f", e.RealizedPnL))
	}
	if e.Equity > 0 {
		lines = append(lines, fmt.Sprintf("equity: %.2f", e.Equity))
	}
	return StructuredMessage{
		Icon:      icon,
		Title:     title,
		Sections:  []MessageSection{{Lines: lines}},
		Footer:    e.Reason,
		Timestamp: e.Timestamp,
	}
}
