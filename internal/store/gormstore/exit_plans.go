package gormstore

import (
	"context"
	"time"

	"arena/internal/exitplan"
	storemodel "arena/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ exitplan.Backend = (*GormStore)(nil)

func (s *GormStore) UpsertExitPlan(ctx context.Context, agentID, symbol string, plan exitplan.ExitPlan) error {
	updated := plan.LastUpdated
	if updated.IsZero() {
		updated = time.Now()
	}
	row := storemodel.ExitPlanModel{
		AgentID:               agentID,
		Symbol:                symbol,
		ProfitTarget:          plan.ProfitTarget,
		StopLoss:              plan.StopLoss,
		InvalidationCondition: plan.InvalidationCondition,
		LastUpdatedUnix:       updated.Unix(),
	}
	return s.write(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"profit_target", "stop_loss", "invalidation_condition", "last_updated"}),
		}).Create(&row).Error
	})
}

func (s *GormStore) DeleteExitPlan(ctx context.Context, agentID, symbol string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		return tx.Where("agent_id = ? AND symbol = ?", agentID, symbol).
			Delete(&storemodel.ExitPlanModel{}).Error
	})
}

func (s *GormStore) ListExitPlans(ctx context.Context, agentID string) ([]exitplan.Record, error) {
	var rows []storemodel.ExitPlanModel
	q := s.db.WithContext(ctx).Order("agent_id, symbol")
	if agentID != "" {
		q = q.Where("agent_id = ?", agentID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]exitplan.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, exitplan.Record{
			AgentID: r.AgentID,
			Symbol:  r.Symbol,
			Plan: exitplan.ExitPlan{
				ProfitTarget:          r.ProfitTarget,
				StopLoss:              r.StopLoss,
				InvalidationCondition: r.InvalidationCondition,
				LastUpdated:           time.Unix(r.LastUpdatedUnix, 0).UTC(),
			},
		})
	}
	return out, nil
}
