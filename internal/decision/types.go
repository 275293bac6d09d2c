// Package decision turns loosely-typed model output into canonical trade intents.
package decision

import (
	"errors"
	"fmt"
	"strings"
)

// Action is the closed set of intents an agent may emit.
type Action string

const (
	ActionOpenLong  Action = "open_long"
	ActionOpenShort Action = "open_short"
	ActionHold      Action = "hold"
	ActionClose     Action = "close"
)

var (
	ErrInferenceMalformed = errors.New("inference output malformed")
	ErrUnknownAction      = errors.New("unknown action")
)

// ParseAction maps a raw token (including synonyms) onto an Action.
func ParseAction(raw string) (Action, error) {
	switch a := Action(NormalizeAction(raw)); a {
	case ActionOpenLong, ActionOpenShort, ActionHold, ActionClose:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}

func (a Action) IsOpen() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

func (a Action) String() string { return string(a) }

// TradeDecision is a validated intent. Quantity and Leverage are meaningful
// only for open actions.
type TradeDecision struct {
	Symbol                string  `json:"symbol"`
	Action                Action  `json:"action"`
	Quantity              float64 `json:"quantity,omitempty"`
	Leverage              float64 `json:"leverage,omitempty"`
	RiskUSD               float64 `json:"risk_usd,omitempty"`
	ProfitTarget          float64 `json:"profit_target,omitempty"`
	StopLoss              float64 `json:"stop_loss,omitempty"`
	InvalidationCondition string  `json:"invalidation_condition,omitempty"`
	Justification         string  `json:"justification,omitempty"`
	Confidence            float64 `json:"confidence"`
	Reasoning             string  `json:"reasoning,omitempty"`
	// Synthetic marks holds produced by fallback paths rather than the model.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Validate enforces the per-action invariants.
func (d TradeDecision) Validate() error {
	if strings.TrimSpace(d.Symbol) == "" && !d.Synthetic {
		return fmt.Errorf("%w: missing symbol", ErrInferenceMalformed)
	}
	if _, err := ParseAction(string(d.Action)); err != nil {
		return err
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.4f outside [0,1]", ErrInferenceMalformed, d.Confidence)
	}
	if !d.Action.IsOpen() {
		return nil
	}
	if d.Quantity <= 0 {
		return fmt.Errorf("%w: %s requires quantity>0", ErrInferenceMalformed, d.Action)
	}
	if d.Confidence <= 0 {
		return fmt.Errorf("%w: %s requires confidence>0", ErrInferenceMalformed, d.Action)
	}
	if d.Leverage < 1 {
		return fmt.Errorf("%w: leverage %.2f below 1", ErrInferenceMalformed, d.Leverage)
	}
	return nil
}

// HasExitPlan reports whether the decision carries any exit-plan field.
func (d TradeDecision) HasExitPlan() bool {
	return d.ProfitTarget > 0 || d.StopLoss > 0 || strings.TrimSpace(d.InvalidationCondition) != ""
}

// Hold builds a synthetic hold used when the model gave nothing usable.
func Hold(symbol, reason string) TradeDecision {
	return TradeDecision{
		Symbol:        symbol,
		Action:        ActionHold,
		Justification: reason,
		Synthetic:     true,
	}
}

// HoldAll returns one synthetic hold per symbol.
func HoldAll(symbols []string, reason string) []TradeDecision {
	out := make([]TradeDecision, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, Hold(s, reason))
	}
	return out
}

// Summary is a one-line rendering for logs.
func (d TradeDecision) Summary() string {
	sym := d.Symbol
	if sym == "" {
		sym = "*"
	}
	if d.Action.IsOpen() {
		return fmt.Sprintf("%s %s qty=%g lev=%gx tp=%g sl=%g conf=%.2f", sym, d.Action, d.Quantity, d.Leverage, d.ProfitTarget, d.StopLoss, d.Confidence)
	}
	return fmt.Sprintf("%s %s conf=%.2f", sym, d.Action, d.Confidence)
}
