package portfolio

import (
	"context"
	"errors"
	"time"

	"arena/internal/decision"
	"arena/internal/exitplan"
	"arena/internal/gateway/exchange"
)

var (
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrNoOpenPosition   = errors.New("no open position")
	ErrPositionExists   = errors.New("position already open")
)

type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Position is one open leveraged position. Quantity is signed: short < 0.
type Position struct {
	Symbol           string            `json:"symbol"`
	Side             PositionSide      `json:"side"`
	Quantity         float64           `json:"quantity"`
	EntryPrice       float64           `json:"entry_price"`
	CurrentPrice     float64           `json:"current_price"`
	Leverage         float64           `json:"leverage"`
	Margin           float64           `json:"margin"`
	LiquidationPrice float64           `json:"liquidation_price"`
	UnrealizedPnL    float64           `json:"unrealized_pnl"`
	Notional         float64           `json:"notional_usd"`
	Confidence       float64           `json:"confidence"`
	RiskUSD          float64           `json:"risk_usd,omitempty"`
	ExitPlan         exitplan.ExitPlan `json:"exit_plan"`
	OpenedAt         time.Time         `json:"opened_at"`
}

func (p Position) IsLong() bool { return p.Quantity > 0 }

// Trade is one ledger entry: a fill, a recorded hold, or an autonomous exit.
type Trade struct {
	ID          string                  `json:"id"`
	AgentID     string                  `json:"agent_id"`
	Symbol      string                  `json:"symbol"`
	Action      decision.Action         `json:"action"`
	Side        exchange.Side           `json:"side,omitempty"`
	Quantity    float64                 `json:"quantity"`
	Price       float64                 `json:"price"`
	Leverage    float64                 `json:"leverage,omitempty"`
	Margin      float64                 `json:"margin"`
	RealizedPnL float64                 `json:"realized_pnl"`
	Fee         float64                 `json:"fee"`
	Reason      string                  `json:"reason,omitempty"`
	Decision    *decision.TradeDecision `json:"decision,omitempty"`
	ExecutedAt  time.Time               `json:"executed_at"`
}

// Snapshot is a read-only copy of the portfolio. Equity is always derived.
type Snapshot struct {
	AgentID            string     `json:"agent_id"`
	InitialCash        float64    `json:"initial_cash"`
	Cash               float64    `json:"cash"`
	Equity             float64    `json:"equity"`
	RealizedPnL        float64    `json:"realized_pnl"`
	UnrealizedPnL      float64    `json:"unrealized_pnl"`
	TotalReturnPercent float64    `json:"total_return_percent"`
	SharpeRatio        float64    `json:"sharpe_ratio"`
	Positions          []Position `json:"positions"`
	RecentTrades       []Trade    `json:"recent_trades"`
	EquityCurve        []Point    `json:"equity_curve,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Point is one equity observation, taken at every mark-to-market.
type Point struct {
	At     time.Time `json:"at"`
	Equity float64   `json:"equity"`
}

// PlanBook is the exit-plan view the portfolio needs: read for triggers, delete on close.
type PlanBook interface {
	Get(symbol string) (exitplan.ExitPlan, bool)
	RemovePlan(ctx context.Context, symbol string) error
}

// TradeRecorder persists ledger entries.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, t Trade) error
}
