package exitplan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"arena/internal/logger"
	"arena/internal/pkg/symbol"
)

// Backend is the durable side of the store. Implementations serialize their own writes.
type Backend interface {
	UpsertExitPlan(ctx context.Context, agentID, symbol string, plan ExitPlan) error
	DeleteExitPlan(ctx context.Context, agentID, symbol string) error
	// ListExitPlans returns every plan for agentID, or all plans when agentID is empty.
	ListExitPlans(ctx context.Context, agentID string) ([]Record, error)
}

// Store is one agent's view of the exit plans: an in-memory cache in front of Backend.
type Store struct {
	agentID string
	backend Backend
	nowFn   func() time.Time

	mu    sync.RWMutex
	plans map[string]ExitPlan
}

func NewStore(agentID string, backend Backend) *Store {
	return &Store{
		agentID: agentID,
		backend: backend,
		nowFn:   time.Now,
		plans:   make(map[string]ExitPlan),
	}
}

// Load replaces the cache with the persisted plans. Invalid rows are skipped.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	recs, err := s.backend.ListExitPlans(ctx, s.agentID)
	if err != nil {
		return fmt.Errorf("load exit plans for %s: %w", s.agentID, err)
	}
	plans := make(map[string]ExitPlan, len(recs))
	for _, rec := range recs {
		sym := symbol.Normalize(rec.Symbol)
		if sym == "" {
			logger.Warnf("exit plan store[%s]: skip row with empty symbol", s.agentID)
			continue
		}
		if err := rec.Plan.Valid(); err != nil {
			logger.Warnf("exit plan store[%s]: skip %s: %v", s.agentID, sym, err)
			continue
		}
		plans[sym] = rec.Plan
	}
	s.mu.Lock()
	s.plans = plans
	s.mu.Unlock()
	logger.Infof("exit plan store[%s]: loaded %d plan(s)", s.agentID, len(plans))
	return nil
}

func (s *Store) Get(sym string) (ExitPlan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[symbol.Normalize(sym)]
	return p, ok
}

// Put upserts the plan. The cache is updated even when persistence fails so the
// running cycle keeps its stop/target; the error is returned for logging.
func (s *Store) Put(ctx context.Context, sym string, plan ExitPlan) error {
	sym = symbol.Normalize(sym)
	if sym == "" {
		return fmt.Errorf("exit plan: empty symbol")
	}
	if err := plan.Valid(); err != nil {
		return fmt.Errorf("exit plan %s: %w", sym, err)
	}
	plan.InvalidationCondition = strings.TrimSpace(plan.InvalidationCondition)
	plan.LastUpdated = s.nowFn().UTC()
	s.mu.Lock()
	s.plans[sym] = plan
	s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	if err := s.backend.UpsertExitPlan(ctx, s.agentID, sym, plan); err != nil {
		return fmt.Errorf("persist exit plan %s: %w", sym, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sym string) error {
	sym = symbol.Normalize(sym)
	s.mu.Lock()
	delete(s.plans, sym)
	s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	if err := s.backend.DeleteExitPlan(ctx, s.agentID, sym); err != nil {
		return fmt.Errorf("delete exit plan %s: %w", sym, err)
	}
	return nil
}

// All returns a copy of every cached plan.
func (s *Store) All() map[string]ExitPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ExitPlan, len(s.plans))
	for k, v := range s.plans {
		out[k] = v
	}
	return out
}

// RemovePlan satisfies portfolio.PlanBook.
func (s *Store) RemovePlan(ctx context.Context, sym string) error {
	return s.Delete(ctx, sym)
}
