// Package ai turns a prompt into validated trade decisions through one
// inference backend.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"arena/internal/decision"
	"arena/internal/gateway/provider"
	"arena/internal/logger"
	"arena/internal/pkg/circuit"
	"arena/internal/pkg/jsonutil"
	"arena/internal/pkg/text"
	"arena/internal/store/decisionlog"
)

var (
	// ErrInferenceUnavailable covers unreachable backends, timeouts, 5xx and an
	// open circuit.
	ErrInferenceUnavailable = errors.New("inference unavailable")
	ErrInferenceMalformed   = decision.ErrInferenceMalformed
)

const maxReasoningRunes = 4000

// Request is one round of inference for one agent.
type Request struct {
	TraceID string
	System  string
	User    string
	// Schema is appended to the system prompt as the output contract.
	Schema  string
	Symbols []string
}

// Journal receives one record per round; failures are logged and ignored.
type Journal interface {
	Insert(ctx context.Context, rec decisionlog.DecisionLogRecord) (int64, error)
}

type Options struct {
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	Breaker     *circuit.CircuitBreaker
	Journal     Journal
}

// Adapter binds one agent to one backend.
type Adapter struct {
	agentID string
	backend provider.Backend
	opts    Options
}

func NewAdapter(agentID string, backend provider.Backend, opts Options) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	return &Adapter{agentID: agentID, backend: backend, opts: opts}
}

func (a *Adapter) ProviderID() string { return a.backend.ID() }

// Decide asks the backend through chat first and, only when the server does not
// offer chat, through a single completion call.
func (a *Adapter) Decide(ctx context.Context, req Request) (decision.ParseResult, error) {
	rec := decisionlog.DecisionLogRecord{
		TraceID:    req.TraceID,
		Timestamp:  time.Now().UnixMilli(),
		AgentID:    a.agentID,
		ProviderID: a.backend.ID(),
		System:     req.System,
		User:       req.User,
		Symbols:    req.Symbols,
	}
	if a.opts.Breaker != nil && !a.opts.Breaker.Allow() {
		err := fmt.Errorf("%w: circuit open for %s", ErrInferenceUnavailable, a.backend.ID())
		rec.Error = err.Error()
		a.journal(ctx, rec)
		return decision.ParseResult{}, err
	}

	prompt := provider.Prompt{
		System:      joinSchema(req.System, req.Schema),
		User:        req.User,
		JSON:        true,
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	}
	started := time.Now()
	resp, stage, err := a.call(ctx, prompt)
	rec.Stage = stage
	rec.LatencyMs = time.Since(started).Milliseconds()
	if err != nil {
		if a.opts.Breaker != nil {
			a.opts.Breaker.RecordFailure()
		}
		logger.LogLLMError(a.agentID, a.backend.ID(), stage, err)
		err = fmt.Errorf("%w: %v", ErrInferenceUnavailable, err)
		rec.Error = err.Error()
		a.journal(ctx, rec)
		return decision.ParseResult{}, err
	}
	if a.opts.Breaker != nil {
		a.opts.Breaker.RecordSuccess()
	}

	logger.LogLLMResponse(a.agentID, a.backend.ID(), stage, resp.Content)
	reasoning := strings.TrimSpace(resp.Reasoning)
	if reasoning == "" {
		reasoning, _ = jsonutil.SplitReasoning(resp.Content)
	}
	reasoning = text.Truncate(strings.TrimSpace(reasoning), maxReasoningRunes)
	logger.LogLLMReasoning(a.agentID, a.backend.ID(), reasoning)
	rec.RawOutput = resp.Content
	rec.Reasoning = reasoning

	result, err := decision.NormalizeText(resp.Content)
	if err != nil {
		logger.Warnf("ai: %s/%s output malformed: %v", a.agentID, a.backend.ID(), err)
		rec.Error = err.Error()
		a.journal(ctx, rec)
		return decision.ParseResult{}, err
	}
	for i := range result.Decisions {
		if result.Decisions[i].Reasoning == "" {
			result.Decisions[i].Reasoning = reasoning
		}
	}
	if result.Dropped > 0 {
		logger.Warnf("ai: %s dropped %d decision(s): %s", a.agentID, result.Dropped, strings.Join(result.Issues, "; "))
	}
	rec.Result = result.Kind.String()
	rec.Dropped = result.Dropped
	rec.Decisions = result.Decisions
	a.journal(ctx, rec)
	return result, nil
}

func (a *Adapter) call(ctx context.Context, p provider.Prompt) (provider.Response, string, error) {
	cctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	logger.LogLLMRequest(a.agentID, a.backend.ID(), "chat", p.System, p.User, "")
	resp, err := a.backend.Chat(cctx, p)
	if err == nil {
		return resp, "chat", nil
	}
	if !errors.Is(err, provider.ErrUnsupported) {
		return provider.Response{}, "chat", err
	}
	logger.Infof("ai: %s does not support chat (%v), trying completion", a.backend.ID(), err)
	logger.LogLLMRequest(a.agentID, a.backend.ID(), "complete", p.System, p.User, "")
	resp, err = a.backend.Complete(cctx, p)
	if err != nil {
		return provider.Response{}, "complete", err
	}
	return resp, "complete", nil
}

func (a *Adapter) journal(ctx context.Context, rec decisionlog.DecisionLogRecord) {
	if a.opts.Journal == nil {
		return
	}
	if _, err := a.opts.Journal.Insert(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warnf("ai: journal write for %s failed: %v", a.agentID, err)
	}
}

func joinSchema(system, schema string) string {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return system
	}
	if strings.TrimSpace(system) == "" {
		return schema
	}
	return system + "\n\n" + schema
}
