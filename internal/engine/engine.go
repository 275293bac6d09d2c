// Package engine drives every agent on a shared schedule.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"arena/internal/agent"
	"arena/internal/logger"
	"arena/internal/scheduler"
)

// ErrNoAgents is returned at construction when nothing would trade.
var ErrNoAgents = errors.New("engine: no agents configured")

// Runner is one agent as the engine sees it.
type Runner interface {
	ID() string
	RunCycle(ctx context.Context) error
	State() agent.AgentState
}

type Config struct {
	Interval       time.Duration
	Offset         time.Duration
	Align          bool
	RunImmediately bool
}

// Status is a read-only view of the loop.
type Status struct {
	Running        bool      `json:"running"`
	Agents         int       `json:"agents"`
	Interval       string    `json:"interval"`
	Cycles         int64     `json:"cycles"`
	StartedAt      time.Time `json:"started_at"`
	LastCycleStart time.Time `json:"last_cycle_start"`
	LastCycleEnd   time.Time `json:"last_cycle_end"`
}

type Engine struct {
	cfg    Config
	agents []Runner
	byID   map[string]Runner
	nowFn  func() time.Time

	// cycleMu serializes whole cycles so agents never overlap themselves.
	cycleMu sync.Mutex

	mu        sync.RWMutex
	running   bool
	cycles    int64
	startedAt time.Time
	lastStart time.Time
	lastEnd   time.Time
}

func New(cfg Config, agents ...Runner) (*Engine, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("engine: invalid interval %s", cfg.Interval)
	}
	byID := make(map[string]Runner, len(agents))
	for _, a := range agents {
		if a == nil {
			return nil, fmt.Errorf("engine: nil agent")
		}
		if _, dup := byID[a.ID()]; dup {
			return nil, fmt.Errorf("engine: duplicate agent id %q", a.ID())
		}
		byID[a.ID()] = a
	}
	return &Engine{
		cfg:    cfg,
		agents: agents,
		byID:   byID,
		nowFn:  time.Now,
	}, nil
}

// Run blocks until ctx is cancelled. A cycle in flight when that happens
// finishes on its own terms before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine: already running")
	}
	e.running = true
	e.startedAt = e.nowFn().UTC()
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	logger.Infof("engine: starting agents=%d interval=%s", len(e.agents), e.cfg.Interval)
	sched := scheduler.New(ctx, "engine", e.cfg.Interval)
	sched.Offset = e.cfg.Offset
	sched.Align = e.cfg.Align
	sched.RunImmediately = e.cfg.RunImmediately
	sched.Start(func() { e.RunOnce(ctx) })
	logger.Infof("engine: stopped after %d cycle(s)", e.Status().Cycles)
	return nil
}

// RunOnce runs every agent concurrently and waits for all of them. One agent
// failing or panicking never cancels or delays the others beyond the join.
func (e *Engine) RunOnce(ctx context.Context) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := e.nowFn().UTC()
	e.mu.Lock()
	e.lastStart = start
	e.mu.Unlock()

	var g errgroup.Group
	for _, a := range e.agents {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("engine: agent %s panicked: %v\n%s", a.ID(), r, debug.Stack())
				}
			}()
			if err := a.RunCycle(ctx); err != nil {
				logger.Warnf("engine: agent %s cycle failed: %v", a.ID(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	end := e.nowFn().UTC()
	e.mu.Lock()
	e.cycles++
	e.lastEnd = end
	e.mu.Unlock()
	logger.Debugf("engine: cycle done in %s", end.Sub(start).Truncate(time.Millisecond))
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Running:        e.running,
		Agents:         len(e.agents),
		Interval:       e.cfg.Interval.String(),
		Cycles:         e.cycles,
		StartedAt:      e.startedAt,
		LastCycleStart: e.lastStart,
		LastCycleEnd:   e.lastEnd,
	}
}

// States returns every agent's snapshot ordered by id.
func (e *Engine) States() []agent.AgentState {
	out := make([]agent.AgentState, 0, len(e.agents))
	for _, a := range e.agents {
		out = append(out, a.State())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Engine) State(id string) (agent.AgentState, bool) {
	a, ok := e.byID[id]
	if !ok {
		return agent.AgentState{}, false
	}
	return a.State(), true
}
