// Package prompt renders the system and user prompts an agent sends each cycle.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"arena/internal/decision"
	"arena/internal/market"
	"arena/internal/portfolio"
)

// DefaultSystem is used when an agent has no system prompt of its own.
const DefaultSystem = `You are an autonomous crypto perpetual-futures trader competing against other models.
You trade with real risk limits: every entry needs a quantity, a leverage, a profit target,
a stop loss and an invalidation condition. Prefer fewer, higher-conviction trades.
Never trade symbols outside the allowed list. Answer with JSON only.`

// OutputContract tells the model how to shape its answer; it travels with
// the system prompt.
func OutputContract() string {
	return "Respond with a JSON object with a \"decisions\" key holding one decision per symbol you want to trade, hold or close, shaped like:\n" +
		decision.OutputSchema + "\n" +
		"The confidence field is your best-effort probability (0.0-1.0) that the action is correct; do not default to 0.0 unless truly uncertain.\n" +
		"For open_long or open_short you must give a quantity and a clear invalidation_condition describing when the exit plan should trigger.\n" +
		"For close you must give the symbol of the position to close.\n" +
		"OUTPUT FORMAT REQUIREMENTS: respond with raw JSON only (no markdown fences, no prose, no error strings). " +
		"Use double quotes for all keys and strings, and if you have no trades respond with {\"decisions\": []}."
}

// Input is everything the user prompt shows the model.
type Input struct {
	Started   time.Time
	Now       time.Time
	Symbols   []string
	Snapshots map[string]market.Snapshot
	Portfolio portfolio.Snapshot
}

type symbolBlock struct {
	Symbol string
	Snap   market.Snapshot
}

type view struct {
	Minutes   int
	Blocks    []symbolBlock
	Portfolio portfolio.Snapshot
	Positions []string
	Symbols   string
}

var funcs = template.FuncMap{
	"num":    num,
	"series": series,
}

var userTemplate = template.Must(template.New("user").Funcs(funcs).Parse(
	`It has been {{.Minutes}} minutes since you started trading.

Below, we are providing you with a variety of state data, price data, and predictive signals so you can discover alpha. Below that is your current account information, value, performance, positions, etc.

**ALL OF THE PRICE OR SIGNAL DATA BELOW IS ORDERED: OLDEST → NEWEST**

**Timeframes note:** each symbol section names the interval its series are sampled at.

---

### CURRENT MARKET STATE FOR ALL SYMBOLS

{{range .Blocks}}{{with .Snap}}### ALL {{.Symbol}} DATA

{{if .Empty}}Market data unavailable this cycle; do not open new positions in this symbol.

{{else}}current_price = {{num .Current.Price}}, current_ema20 = {{num .Current.EMA20}}, current_macd = {{num .Current.MACD}}, current_rsi (7 period) = {{num .Current.RSI7}}
{{if .FundingRate}}
Funding rate: {{printf "%.6f" .FundingRate}}
{{end}}
**Intraday series ({{.Intraday.Interval}} intervals, oldest → latest):**

Mid prices: {{series .Intraday.MidPrices}}

EMA indicators (20‑period): {{series .Intraday.EMA20}}

MACD indicators: {{series .Intraday.MACD}}

RSI indicators (7‑Period): {{series .Intraday.RSI7}}

RSI indicators (14‑Period): {{series .Intraday.RSI14}}

**Longer‑term context ({{.LongTerm.Interval}} timeframe):**

20‑Period EMA: {{num .LongTerm.EMA20}} vs. 50‑Period EMA: {{num .LongTerm.EMA50}}

3‑Period ATR: {{num .LongTerm.ATR3}} vs. 14‑Period ATR: {{num .LongTerm.ATR14}}

Current Volume: {{num .LongTerm.CurrentVolume}} vs. Average Volume: {{num .LongTerm.AverageVolume}}

MACD indicators: {{series .LongTerm.MACD}}

RSI indicators (14‑Period): {{series .LongTerm.RSI14}}

{{end}}---

{{end}}{{end}}### HERE IS YOUR ACCOUNT INFORMATION & PERFORMANCE

Current Total Return (percent): {{printf "%.2f" .Portfolio.TotalReturnPercent}}%

Available Cash: {{printf "%.2f" .Portfolio.Cash}}

**Current Account Value:** {{printf "%.2f" .Portfolio.Equity}}

Current live positions & performance:
{{if .Positions}}{{range .Positions}}{{.}}

{{end}}{{else}}{}

{{end}}Sharpe Ratio: {{printf "%.4f" .Portfolio.SharpeRatio}}

### EXIT PLAN STATUS & INSTRUCTIONS
For every currently held symbol, inspect its ` + "`exit_plan`" + ` (profit_target / stop_loss / invalidation_condition) versus the latest market data above. If the invalidation condition is met, issue a ` + "`close`" + ` decision in this cycle. Targets and stops are enforced automatically. To tighten or move them, repeat the entry signal for the held symbol with the new levels; leverage and size of an open position never change.

You may ONLY issue decisions for the following symbols: {{.Symbols}}. Ignore any other holdings you might see.
`))

// BuildUser renders the per-cycle user prompt.
func BuildUser(in Input) (string, error) {
	v := view{
		Minutes:   int(in.Now.Sub(in.Started).Minutes()),
		Portfolio: in.Portfolio,
		Symbols:   strings.Join(in.Symbols, ", "),
	}
	if v.Minutes < 0 {
		v.Minutes = 0
	}
	for _, sym := range in.Symbols {
		snap, ok := in.Snapshots[sym]
		if !ok {
			snap = market.Snapshot{Symbol: sym}
		}
		if snap.Symbol == "" {
			snap.Symbol = sym
		}
		v.Blocks = append(v.Blocks, symbolBlock{Symbol: sym, Snap: snap})
	}
	allowed := make(map[string]struct{}, len(in.Symbols))
	for _, s := range in.Symbols {
		allowed[s] = struct{}{}
	}
	positions := append([]portfolio.Position(nil), in.Portfolio.Positions...)
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	for _, pos := range positions {
		if _, ok := allowed[pos.Symbol]; !ok {
			continue
		}
		raw, err := json.MarshalIndent(pos, "", "    ")
		if err != nil {
			return "", fmt.Errorf("render position %s: %w", pos.Symbol, err)
		}
		v.Positions = append(v.Positions, string(raw))
	}
	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func series(vals []float64) string {
	if len(vals) == 0 {
		return "[]"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = num(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
