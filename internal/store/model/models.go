package model

import (
	"gorm.io/datatypes"
)

// ExitPlanModel is one persisted exit plan. Last write for (agent, symbol) wins.
type ExitPlanModel struct {
	AgentID               string  `gorm:"column:agent_id;primaryKey"`
	Symbol                string  `gorm:"column:symbol;primaryKey"`
	ProfitTarget          float64 `gorm:"column:profit_target"`
	StopLoss              float64 `gorm:"column:stop_loss"`
	InvalidationCondition string  `gorm:"column:invalidation_condition"`
	LastUpdatedUnix       int64   `gorm:"column:last_updated"`
}

func (ExitPlanModel) TableName() string { return "exit_plans" }

// TradeModel is the append-only fill ledger across agents.
type TradeModel struct {
	ID           string         `gorm:"column:id;primaryKey"`
	AgentID      string         `gorm:"column:agent_id;index:idx_trades_agent,priority:1"`
	Symbol       string         `gorm:"column:symbol"`
	Action       string         `gorm:"column:action"`
	Side         string         `gorm:"column:side"`
	Quantity     float64        `gorm:"column:quantity"`
	Price        float64        `gorm:"column:price"`
	Leverage     float64        `gorm:"column:leverage"`
	Margin       float64        `gorm:"column:margin"`
	RealizedPnL  float64        `gorm:"column:realized_pnl"`
	Fee          float64        `gorm:"column:fee"`
	Reason       string         `gorm:"column:reason"`
	DecisionJSON datatypes.JSON `gorm:"column:decision_json;type:TEXT"`
	ExecutedUnix int64          `gorm:"column:executed_at;index:idx_trades_agent,priority:2"`
}

func (TradeModel) TableName() string { return "trades" }
