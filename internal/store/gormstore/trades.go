package gormstore

import (
	"context"
	"encoding/json"
	"time"

	"arena/internal/decision"
	"arena/internal/gateway/exchange"
	"arena/internal/logger"
	"arena/internal/portfolio"
	storemodel "arena/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var _ portfolio.TradeRecorder = (*GormStore)(nil)

// RecordTrade appends a trade to the ledger.
func (s *GormStore) RecordTrade(ctx context.Context, t portfolio.Trade) error {
	row := storemodel.TradeModel{
		ID:           t.ID,
		AgentID:      t.AgentID,
		Symbol:       t.Symbol,
		Action:       string(t.Action),
		Side:         string(t.Side),
		Quantity:     t.Quantity,
		Price:        t.Price,
		Leverage:     t.Leverage,
		Margin:       t.Margin,
		RealizedPnL:  t.RealizedPnL,
		Fee:          t.Fee,
		Reason:       t.Reason,
		ExecutedUnix: t.ExecutedAt.UnixMilli(),
	}
	if t.Decision != nil {
		if raw, err := json.Marshal(t.Decision); err == nil {
			row.DecisionJSON = datatypes.JSON(raw)
		}
	}
	return s.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
}

// ListTrades returns the newest trades for agentID, newest first.
func (s *GormStore) ListTrades(ctx context.Context, agentID string, limit int) ([]portfolio.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []storemodel.TradeModel
	err := s.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("executed_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toTrades(rows), nil
}

// Ledger returns every trade of agentID, oldest first, for restart replay.
func (s *GormStore) Ledger(ctx context.Context, agentID string) ([]portfolio.Trade, error) {
	var rows []storemodel.TradeModel
	err := s.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("executed_at ASC").
		Order("rowid ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toTrades(rows), nil
}

func toTrades(rows []storemodel.TradeModel) []portfolio.Trade {
	out := make([]portfolio.Trade, 0, len(rows))
	for _, r := range rows {
		t := portfolio.Trade{
			ID:          r.ID,
			AgentID:     r.AgentID,
			Symbol:      r.Symbol,
			Action:      decision.Action(r.Action),
			Side:        exchange.Side(r.Side),
			Quantity:    r.Quantity,
			Price:       r.Price,
			Leverage:    r.Leverage,
			Margin:      r.Margin,
			RealizedPnL: r.RealizedPnL,
			Fee:         r.Fee,
			Reason:      r.Reason,
			ExecutedAt:  time.UnixMilli(r.ExecutedUnix).UTC(),
		}
		if len(r.DecisionJSON) > 0 {
			var d decision.TradeDecision
			if err := json.Unmarshal(r.DecisionJSON, &d); err != nil {
				logger.Warnf("trade %s: bad decision json: %v", r.ID, err)
			} else {
				t.Decision = &d
			}
		}
		out = append(out, t)
	}
	return out
}
