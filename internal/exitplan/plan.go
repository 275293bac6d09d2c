// Package exitplan holds the profit target / stop loss / invalidation triple
// attached to each open position and keeps it durable across restarts.
package exitplan

import (
	"fmt"
	"strings"
	"time"
)

// ExitPlan is the exit contract for one position.
type ExitPlan struct {
	ProfitTarget          float64   `json:"profit_target" yaml:"profit_target"`
	StopLoss              float64   `json:"stop_loss" yaml:"stop_loss"`
	InvalidationCondition string    `json:"invalidation_condition" yaml:"invalidation_condition"`
	LastUpdated           time.Time `json:"last_updated" yaml:"last_updated"`
}

// Record is a plan with its owning agent and symbol, as stored.
type Record struct {
	AgentID string   `json:"agent_id" yaml:"agent_id"`
	Symbol  string   `json:"symbol" yaml:"symbol"`
	Plan    ExitPlan `json:"plan" yaml:"plan"`
}

func (p ExitPlan) IsZero() bool {
	return p.ProfitTarget == 0 && p.StopLoss == 0 && strings.TrimSpace(p.InvalidationCondition) == ""
}

// Valid rejects negative prices; zero means "not set".
func (p ExitPlan) Valid() error {
	if p.ProfitTarget < 0 {
		return fmt.Errorf("negative profit target %.6f", p.ProfitTarget)
	}
	if p.StopLoss < 0 {
		return fmt.Errorf("negative stop loss %.6f", p.StopLoss)
	}
	return nil
}

// Merge overlays the non-zero fields of amend onto p.
func (p ExitPlan) Merge(amend ExitPlan) ExitPlan {
	out := p
	if amend.ProfitTarget > 0 {
		out.ProfitTarget = amend.ProfitTarget
	}
	if amend.StopLoss > 0 {
		out.StopLoss = amend.StopLoss
	}
	if s := strings.TrimSpace(amend.InvalidationCondition); s != "" {
		out.InvalidationCondition = s
	}
	return out
}

// Trigger names why a plan fired.
type Trigger string

const (
	TriggerNone         Trigger = ""
	TriggerProfitTarget Trigger = "profit_target"
	TriggerStopLoss     Trigger = "stop_loss"
)

// Evaluate checks price against the plan. long selects the direction:
// long exits at price>=target or price<=stop, short at price<=target or price>=stop.
func (p ExitPlan) Evaluate(long bool, price float64) Trigger {
	if price <= 0 {
		return TriggerNone
	}
	if long {
		switch {
		case p.ProfitTarget > 0 && price >= p.ProfitTarget:
			return TriggerProfitTarget
		case p.StopLoss > 0 && price <= p.StopLoss:
			return TriggerStopLoss
		}
		return TriggerNone
	}
	switch {
	case p.ProfitTarget > 0 && price <= p.ProfitTarget:
		return TriggerProfitTarget
	case p.StopLoss > 0 && price >= p.StopLoss:
		return TriggerStopLoss
	}
	return TriggerNone
}
