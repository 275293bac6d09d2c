package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/exitplan"
	"arena/internal/market"
	"arena/internal/portfolio"
)

func TestBuildUser(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	in := Input{
		Started: start,
		Now:     start.Add(42 * time.Minute),
		Symbols: []string{"BTC", "ETH"},
		Snapshots: map[string]market.Snapshot{
			"BTC": {
				Symbol:      "BTC",
				Current:     market.Current{Price: 60123.5, EMA20: 60010.25, MACD: 12.5, RSI7: 61.2},
				Intraday:    market.IntradaySeries{Interval: "15m", MidPrices: []float64{60000, 60100.5}},
				LongTerm:    market.LongTermContext{Interval: "4h", EMA20: 59000, EMA50: 58000},
				FundingRate: 0.0001,
			},
		},
		Portfolio: portfolio.Snapshot{
			Cash:               9800,
			Equity:             10050,
			TotalReturnPercent: 0.5,
			SharpeRatio:        0.1234,
			Positions: []portfolio.Position{
				{Symbol: "BTC", Side: portfolio.SideLong, Quantity: 0.1, ExitPlan: exitplan.ExitPlan{ProfitTarget: 65000, StopLoss: 58000}},
				{Symbol: "DOGE", Side: portfolio.SideLong, Quantity: 100},
			},
		},
	}
	out, err := BuildUser(in)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "It has been 42 minutes since you started trading."))
	assert.Contains(t, out, "OLDEST → NEWEST")
	assert.Contains(t, out, "### ALL BTC DATA")
	assert.Contains(t, out, "current_price = 60123.5, current_ema20 = 60010.25")
	assert.Contains(t, out, "Mid prices: [60000, 60100.5]")
	assert.Contains(t, out, "Funding rate: 0.000100")
	assert.Contains(t, out, "(15m intervals")
	assert.Contains(t, out, "(4h timeframe)")
	assert.Contains(t, out, "### ALL ETH DATA\n\nMarket data unavailable")
	assert.Contains(t, out, "Available Cash: 9800.00")
	assert.Contains(t, out, "**Current Account Value:** 10050.00")
	assert.Contains(t, out, `"profit_target": 65000`)
	assert.NotContains(t, out, "DOGE")
	assert.Contains(t, out, "Sharpe Ratio: 0.1234")
	assert.Contains(t, out, "### EXIT PLAN STATUS & INSTRUCTIONS")
	assert.Contains(t, out, "following symbols: BTC, ETH.")
	assert.Less(t, strings.Index(out, "### ALL BTC DATA"), strings.Index(out, "### ALL ETH DATA"))
}

func TestBuildUserWithoutPositions(t *testing.T) {
	now := time.Now()
	out, err := BuildUser(Input{Started: now, Now: now, Symbols: []string{"SOL"}})
	require.NoError(t, err)
	assert.Contains(t, out, "Current live positions & performance:\n{}\n")
}

func TestOutputContract(t *testing.T) {
	c := OutputContract()
	assert.Contains(t, c, `{"decisions": []}`)
	assert.Contains(t, c, "open_long | open_short | hold | close")
}
