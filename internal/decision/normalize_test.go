package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeShapes(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		symbols []string
		actions []Action
	}{
		{
			name:    "decisions wrapper",
			raw:     `{"decisions":[{"symbol":"BTC","action":"open_long","quantity":0.5,"leverage":3,"confidence":0.7},{"symbol":"ETH","action":"hold"}]}`,
			symbols: []string{"BTC", "ETH"},
			actions: []Action{ActionOpenLong, ActionHold},
		},
		{
			name:    "bare array",
			raw:     `[{"symbol":"SOL","signal":"sell_to_enter","quantity":"10","confidence":"0.6"}]`,
			symbols: []string{"SOL"},
			actions: []Action{ActionOpenShort},
		},
		{
			name:    "symbol keyed",
			raw:     `{"ETH":{"action":"close"},"BTC":{"signal":"buy_to_enter","quantity":1,"confidence":0.9}}`,
			symbols: []string{"BTC", "ETH"},
			actions: []Action{ActionOpenLong, ActionClose},
		},
		{
			name:    "single object",
			raw:     `{"symbol":"DOGE","action":"hold","justification":"flat market"}`,
			symbols: []string{"DOGE"},
			actions: []Action{ActionHold},
		},
		{
			name:    "fenced with prose",
			raw:     "Here is my answer:\n```json\n{\"decisions\":[{\"symbol\":\"btc\",\"action\":\"exit\"}]}\n```\nGood luck",
			symbols: []string{"BTC"},
			actions: []Action{ActionClose},
		},
		{
			name:    "think block",
			raw:     "<think>RSI is overbought, {maybe} short</think>{\"decisions\":[{\"symbol\":\"ETH\",\"action\":\"short\",\"quantity\":2,\"confidence\":0.55}]}",
			symbols: []string{"ETH"},
			actions: []Action{ActionOpenShort},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := NormalizeText(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, KindOk, res.Kind)
			assert.Zero(t, res.Dropped)
			require.Len(t, res.Decisions, len(tc.actions))
			for i, d := range res.Decisions {
				assert.Equal(t, tc.symbols[i], d.Symbol)
				assert.Equal(t, tc.actions[i], d.Action)
			}
		})
	}
}

func TestNormalizeCoercesNumericStrings(t *testing.T) {
	res, err := Normalize(map[string]any{
		"symbol":        "SOL",
		"action":        "buy_to_enter",
		"quantity":      "10",
		"leverage":      "5",
		"profit_target": "110.5",
		"stop_loss":     95,
		"risk_usd":      "50",
		"confidence":    "0.8",
	})
	require.NoError(t, err)
	require.Equal(t, KindOk, res.Kind)
	d := res.Decisions[0]
	assert.Equal(t, 10.0, d.Quantity)
	assert.Equal(t, 5.0, d.Leverage)
	assert.Equal(t, 110.5, d.ProfitTarget)
	assert.Equal(t, 95.0, d.StopLoss)
	assert.Equal(t, 50.0, d.RiskUSD)
	assert.Equal(t, 0.8, d.Confidence)
}

func TestNormalizeDropsMalformedElements(t *testing.T) {
	raw := `{"decisions":[
		{"symbol":"BTC","action":"open_long","quantity":"lots","confidence":0.5},
		{"symbol":"ETH","action":"moon","confidence":0.5},
		{"symbol":"SOL","action":"open_short","quantity":1,"confidence":1.5},
		{"symbol":"ADA","action":"open_long","quantity":0,"confidence":0.5},
		{"symbol":"XRP","action":"open_long","quantity":3,"confidence":0},
		"not an object",
		{"symbol":"BNB","action":"hold"}
	]}`
	res, err := NormalizeText(raw)
	require.NoError(t, err)
	assert.Equal(t, KindPartial, res.Kind)
	assert.Equal(t, 6, res.Dropped)
	assert.Len(t, res.Issues, 6)
	require.Len(t, res.Decisions, 1)
	assert.Equal(t, "BNB", res.Decisions[0].Symbol)

	res, err = NormalizeText(`{"BTC":{"action":"open_long","quantity":1,"leverage":2,"confidence":0.7},"ETH":"hold"}`)
	require.NoError(t, err)
	assert.Equal(t, KindPartial, res.Kind)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], `"ETH"`)
	require.Len(t, res.Decisions, 1)
	assert.Equal(t, "BTC", res.Decisions[0].Symbol)
	assert.Equal(t, ActionOpenLong, res.Decisions[0].Action)
}

func TestNormalizeAllRejectedBecomesSingleHold(t *testing.T) {
	res, err := NormalizeText(`[{"symbol":"BTC","action":"yolo"},{"symbol":"ETH","action":"open_long","quantity":-1,"confidence":0.4}]`)
	require.NoError(t, err)
	assert.Equal(t, KindEmpty, res.Kind)
	assert.Equal(t, 2, res.Dropped)
	require.Len(t, res.Decisions, 1)
	assert.Equal(t, ActionHold, res.Decisions[0].Action)
	assert.True(t, res.Decisions[0].Synthetic)
	assert.Empty(t, res.Actionable())
}

func TestNormalizeEmptyDecisionsList(t *testing.T) {
	res, err := NormalizeText(`{"decisions": []}`)
	require.NoError(t, err)
	assert.Equal(t, KindEmpty, res.Kind)
	assert.Zero(t, res.Dropped)
	require.Len(t, res.Decisions, 1)
}

func TestNormalizeRejectsUnrecognizedRoots(t *testing.T) {
	for _, raw := range []string{
		"Invalid JSON",
		"",
		`{"error":"rate limited"}`,
		`{"decisions":"none"}`,
		`42`,
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := NormalizeText(raw)
			assert.ErrorIs(t, err, ErrInferenceMalformed)
		})
	}
}

func TestNormalizeHoldAndCloseIgnoreSizing(t *testing.T) {
	res, err := NormalizeText(`[{"symbol":"BTC","action":"close","quantity":5,"leverage":10}]`)
	require.NoError(t, err)
	d := res.Decisions[0]
	assert.Zero(t, d.Quantity)
	assert.Zero(t, d.Leverage)
}

func TestNormalizeDefaultsLeverageAndMergesNestedExitPlan(t *testing.T) {
	res, err := NormalizeText(`{"symbol":"ETH","action":"open_long","quantity":1,"confidence":0.6,
		"exit_plan":{"profit_target":"4000","stop_loss":3500,"invalidation_condition":"close below 3400"}}`)
	require.NoError(t, err)
	d := res.Decisions[0]
	assert.Equal(t, 1.0, d.Leverage)
	assert.Equal(t, 4000.0, d.ProfitTarget)
	assert.Equal(t, 3500.0, d.StopLoss)
	assert.Equal(t, "close below 3400", d.InvalidationCondition)
	assert.True(t, d.HasExitPlan())
}

func TestNormalizeIsDeterministic(t *testing.T) {
	raw := `{"SOL":{"action":"hold"},"BTC":{"action":"hold"},"ETH":{"action":"hold"}}`
	first, err := NormalizeText(raw)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := NormalizeText(raw)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "BTC", first.Decisions[0].Symbol)
}

func TestNormalizeAction(t *testing.T) {
	cases := map[string]Action{
		"buy_to_enter":  ActionOpenLong,
		"Go Long":       ActionOpenLong,
		"sell-to-enter": ActionOpenShort,
		"SHORT":         ActionOpenShort,
		"wait":          ActionHold,
		"close_long":    ActionClose,
		"exit":          ActionClose,
	}
	for in, want := range cases {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAction("partial_close")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestHoldAll(t *testing.T) {
	holds := HoldAll([]string{"BTC", "ETH"}, "backend unavailable")
	require.Len(t, holds, 2)
	for _, h := range holds {
		assert.Equal(t, ActionHold, h.Action)
		assert.True(t, h.Synthetic)
		assert.NoError(t, h.Validate())
	}
}

func TestOrHold(t *testing.T) {
	empty, err := NormalizeText(`{"decisions": []}`)
	require.NoError(t, err)
	holds := empty.OrHold("BTC")
	require.Len(t, holds, 1)
	assert.Equal(t, "BTC", holds[0].Symbol)
	assert.Equal(t, ActionHold, holds[0].Action)

	ok, err := NormalizeText(`{"symbol":"ETH","action":"hold","confidence":0.2}`)
	require.NoError(t, err)
	assert.Equal(t, ok.Decisions, ok.OrHold("BTC"))
}
