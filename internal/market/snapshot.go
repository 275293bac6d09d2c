// Package market assembles per-symbol price and indicator snapshots for prompts.
package market

import "time"

// Current holds the latest values of the short-horizon indicators.
type Current struct {
	Price float64 `json:"current_price"`
	EMA20 float64 `json:"current_ema20"`
	MACD  float64 `json:"current_macd"`
	RSI7  float64 `json:"current_rsi7"`
}

// IntradaySeries is the short-horizon context, oldest first.
type IntradaySeries struct {
	Interval  string    `json:"interval"`
	MidPrices []float64 `json:"mid_prices"`
	EMA20     []float64 `json:"ema_indicators"`
	MACD      []float64 `json:"macd_indicators"`
	RSI7      []float64 `json:"rsi7_indicators"`
	RSI14     []float64 `json:"rsi14_indicators"`
}

// LongTermContext is the long-horizon context, oldest first.
type LongTermContext struct {
	Interval      string    `json:"interval"`
	EMA20         float64   `json:"ema20"`
	EMA50         float64   `json:"ema50"`
	ATR3          float64   `json:"atr3"`
	ATR14         float64   `json:"atr14"`
	CurrentVolume float64   `json:"current_volume"`
	AverageVolume float64   `json:"average_volume"`
	MACD          []float64 `json:"macd_indicators"`
	RSI14         []float64 `json:"rsi14_indicators"`
}

// Snapshot is everything an agent sees about one symbol at one instant.
// A zero Snapshot means the data could not be fetched.
type Snapshot struct {
	Symbol      string          `json:"symbol"`
	AsOf        time.Time       `json:"as_of"`
	Current     Current         `json:"current"`
	Intraday    IntradaySeries  `json:"intraday_series"`
	LongTerm    LongTermContext `json:"longer_term_context"`
	FundingRate float64         `json:"funding_rate,omitempty"`
	Source      string          `json:"source,omitempty"`
}

// Empty reports whether the snapshot carries no price.
func (s Snapshot) Empty() bool {
	return s.Current.Price <= 0
}

// Prices extracts the current price of every non-empty snapshot.
func Prices(snaps map[string]Snapshot) map[string]float64 {
	out := make(map[string]float64, len(snaps))
	for sym, s := range snaps {
		if !s.Empty() {
			out[sym] = s.Current.Price
		}
	}
	return out
}
