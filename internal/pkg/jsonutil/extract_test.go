package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare object", `{"decisions":[]}`, `{"decisions":[]}`, true},
		{"fenced with tag", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"fenced no newline", "```json{\"a\":1}```", `{"a":1}`, true},
		{"surrounding prose", `Sure! Here you go: [{"symbol":"BTC"}] hope it helps`, `[{"symbol":"BTC"}]`, true},
		{"object wins when first", `{"decisions":[{"symbol":"BTC"}]}`, `{"decisions":[{"symbol":"BTC"}]}`, true},
		{"braces inside strings", `{"note":"a } b","x":1}`, `{"note":"a } b","x":1}`, true},
		{"unbalanced then valid", `[oops {"x":1}`, `{"x":1}`, true},
		{"nothing", "Invalid JSON", "", false},
		{"empty", "   ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractJSON(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSplitReasoning(t *testing.T) {
	reasoning, answer := SplitReasoning("<think>price is rising</think>\n{\"decisions\":[]}")
	assert.Equal(t, "price is rising", reasoning)
	assert.Equal(t, `{"decisions":[]}`, answer)

	reasoning, answer = SplitReasoning(`{"x":1}`)
	assert.Empty(t, reasoning)
	assert.Equal(t, `{"x":1}`, answer)

	reasoning, answer = SplitReasoning("{\"x\":1}<THINK>never closed")
	assert.Equal(t, "never closed", reasoning)
	assert.Equal(t, `{"x":1}`, answer)
}
