package scheduler

import (
	"context"
	"time"

	"arena/internal/logger"
)

// Scheduler fires a task on a fixed interval until its context ends. With Align
// set, ticks land on wall-clock multiples of Interval plus Offset; otherwise
// they are spaced Interval apart from start. A task that overruns its slot
// delays the next tick instead of overlapping with it.
type Scheduler struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	Align          bool
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func New(ctx context.Context, name string, interval time.Duration) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scheduler{
		Name:     name,
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks, running task on each tick.
func (s *Scheduler) Start(task func()) {
	if s == nil {
		return
	}
	prefix := "Scheduler"
	if s.Name != "" {
		prefix += "[" + s.Name + "]"
	}
	if task == nil {
		logger.Warnf("%s: task is nil, exit", prefix)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("%s: invalid interval=%s, exit", prefix, s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("%s: negative offset=%s, clamp to 0", prefix, s.Offset)
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("%s: started interval=%s offset=%s align=%v run_immediately=%v",
		prefix, s.Interval, s.Offset, s.Align, s.RunImmediately)

	if s.RunImmediately {
		if s.ctx.Err() != nil {
			return
		}
		task()
	}

	next := s.first(startAt)
	for {
		now := s.nowFn().UTC()
		wait := next.Sub(now)
		logger.Debugf("%s: next run at %s (in %s) | uptime=%s",
			prefix, next.Format(time.RFC3339), wait.Truncate(time.Millisecond), now.Sub(startAt).Truncate(time.Second))
		if !s.waitUntil(wait) {
			logger.Infof("%s: ctx done, exit", prefix)
			return
		}
		task()
		next = s.after(next, s.nowFn().UTC())
	}
}

func (s *Scheduler) first(now time.Time) time.Time {
	if s.Align {
		return now.Truncate(s.Interval).Add(s.Interval).Add(s.Offset)
	}
	return now.Add(s.Interval).Add(s.Offset)
}

// after returns the first slot strictly after now on the anchor grid.
func (s *Scheduler) after(anchor, now time.Time) time.Time {
	delta := now.Sub(anchor)
	if delta < 0 {
		return anchor
	}
	k := delta / s.Interval
	return anchor.Add((k + 1) * s.Interval)
}

func (s *Scheduler) waitUntil(wait time.Duration) bool {
	if wait <= 0 {
		select {
		case <-s.ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
