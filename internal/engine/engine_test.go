package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/agent"
)

type fakeRunner struct {
	id    string
	cycle func(ctx context.Context) error
	runs  atomic.Int64
}

func (f *fakeRunner) ID() string { return f.id }

func (f *fakeRunner) RunCycle(ctx context.Context) error {
	f.runs.Add(1)
	if f.cycle == nil {
		return nil
	}
	return f.cycle(ctx)
}

func (f *fakeRunner) State() agent.AgentState {
	return agent.AgentState{ID: f.id, Cycles: f.runs.Load()}
}

func TestNewRejectsEmptyAndDuplicates(t *testing.T) {
	_, err := New(Config{Interval: time.Minute})
	assert.ErrorIs(t, err, ErrNoAgents)

	_, err = New(Config{Interval: time.Minute}, &fakeRunner{id: "a"}, &fakeRunner{id: "a"})
	assert.Error(t, err)

	_, err = New(Config{}, &fakeRunner{id: "a"})
	assert.Error(t, err)
}

func TestSlowAgentDoesNotAffectOthers(t *testing.T) {
	slow := &fakeRunner{id: "x", cycle: func(ctx context.Context) error {
		c, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		<-c.Done()
		return c.Err()
	}}
	var fastDone atomic.Bool
	fast := &fakeRunner{id: "y", cycle: func(context.Context) error {
		fastDone.Store(true)
		return nil
	}}
	e, err := New(Config{Interval: time.Minute}, slow, fast)
	require.NoError(t, err)

	e.RunOnce(context.Background())

	assert.True(t, fastDone.Load())
	assert.Equal(t, int64(1), slow.runs.Load())
	assert.Equal(t, int64(1), fast.runs.Load())
	st := e.Status()
	assert.Equal(t, int64(1), st.Cycles)
	assert.False(t, st.LastCycleEnd.Before(st.LastCycleStart))
}

func TestPanickingAgentIsContained(t *testing.T) {
	bad := &fakeRunner{id: "bad", cycle: func(context.Context) error { panic("boom") }}
	good := &fakeRunner{id: "good", cycle: func(context.Context) error { return errors.New("soft failure") }}
	e, err := New(Config{Interval: time.Minute}, bad, good)
	require.NoError(t, err)

	assert.NotPanics(t, func() { e.RunOnce(context.Background()) })
	assert.Equal(t, int64(1), good.runs.Load())
	assert.Equal(t, int64(1), e.Status().Cycles)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeRunner{id: "a", cycle: func(context.Context) error {
		cancel()
		return nil
	}}
	e, err := New(Config{Interval: time.Hour, RunImmediately: true}, r)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.Equal(t, int64(1), r.runs.Load())
	st := e.Status()
	assert.False(t, st.Running)
	assert.Equal(t, "1h0m0s", st.Interval)
}

func TestStatesSortedAndLookup(t *testing.T) {
	e, err := New(Config{Interval: time.Minute}, &fakeRunner{id: "b"}, &fakeRunner{id: "a"})
	require.NoError(t, err)

	states := e.States()
	require.Len(t, states, 2)
	assert.Equal(t, "a", states[0].ID)
	assert.Equal(t, "b", states[1].ID)

	_, ok := e.State("missing")
	assert.False(t, ok)
	st, ok := e.State("b")
	assert.True(t, ok)
	assert.Equal(t, "b", st.ID)
}

func TestStatusJSONKeepsUnsetTimestamps(t *testing.T) {
	raw, err := json.Marshal(Status{Agents: 2, Interval: "3m0s"})
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	for _, key := range []string{"started_at", "last_cycle_start", "last_cycle_end"} {
		assert.Equal(t, "0001-01-01T00:00:00Z", out[key], key)
	}
}
