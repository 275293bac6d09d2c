package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// Mock ignores the prompt and answers with one random well-formed decision.
// It offers only Chat when ChatOnly is set, and only Complete when
// CompleteOnly is set; both false serves both.
type Mock struct {
	id      string
	symbols []string
	prices  map[string]float64

	ChatOnly     bool
	CompleteOnly bool

	mu  sync.Mutex
	rng *rand.Rand
}

func NewMock(id string, symbols []string, seed int64) *Mock {
	if id == "" {
		id = "mock"
	}
	if len(symbols) == 0 {
		symbols = []string{"BTC"}
	}
	return &Mock{id: id, symbols: symbols, rng: rand.New(rand.NewSource(seed)), prices: map[string]float64{}}
}

// SetReference anchors generated exit levels around a price.
func (m *Mock) SetReference(symbol string, price float64) {
	m.mu.Lock()
	m.prices[symbol] = price
	m.mu.Unlock()
}

func (m *Mock) ID() string    { return m.id }
func (m *Mock) Model() string { return "mock" }

func (m *Mock) Chat(ctx context.Context, _ Prompt) (Response, error) {
	if m.CompleteOnly {
		return Response{}, &StatusError{Code: 404, Body: "chat endpoint not found"}
	}
	return m.answer(ctx)
}

func (m *Mock) Complete(ctx context.Context, _ Prompt) (Response, error) {
	if m.ChatOnly {
		return Response{}, &StatusError{Code: 404, Body: "completion endpoint not found"}
	}
	return m.answer(ctx)
}

func (m *Mock) answer(ctx context.Context) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sym := m.symbols[m.rng.Intn(len(m.symbols))]
	signals := []string{"buy_to_enter", "sell_to_enter", "hold", "close"}
	signal := signals[m.rng.Intn(len(signals))]
	d := map[string]any{
		"symbol":        sym,
		"signal":        signal,
		"confidence":    round2(0.5 + m.rng.Float64()*0.5),
		"justification": "Mock decision chosen at random from a simulated pattern.",
	}
	if signal == "buy_to_enter" || signal == "sell_to_enter" {
		ref := m.prices[sym]
		if ref <= 0 {
			ref = 100
		}
		up := ref * (1.02 + m.rng.Float64()*0.05)
		down := ref * (0.93 + m.rng.Float64()*0.05)
		target, stop := up, down
		if signal == "sell_to_enter" {
			target, stop = down, up
		}
		d["profit_target"] = round2(target)
		d["stop_loss"] = round2(stop)
		d["leverage"] = []int{1, 2, 3, 5}[m.rng.Intn(4)]
		d["quantity"] = round2(0.01 + m.rng.Float64()*0.99)
		d["risk_usd"] = round2(50 + m.rng.Float64()*150)
		d["invalidation_condition"] = fmt.Sprintf("%s closes beyond %.2f", sym, stop)
	}
	raw, err := json.Marshal(map[string]any{"decisions": []any{d}})
	if err != nil {
		return Response{}, err
	}
	return Response{Content: string(raw), Model: "mock"}, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
