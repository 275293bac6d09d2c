package market

import (
	"math"

	"github.com/markcheno/go-talib"
)

// BuildIntraday computes the short-horizon block; window bounds each series.
func BuildIntraday(interval string, candles []Candle, window int) (Current, IntradaySeries) {
	series := IntradaySeries{Interval: interval}
	if len(candles) == 0 {
		return Current{}, series
	}
	closes := closesOf(candles)
	mids := make([]float64, len(candles))
	for i, c := range candles {
		mids[i] = round4(c.Mid())
	}
	ema20 := sanitizeSeries(ema(closes, 20))
	macd := sanitizeSeries(macdLine(closes))
	rsi7 := sanitizeSeries(rsi(closes, 7))
	rsi14 := sanitizeSeries(rsi(closes, 14))

	series.MidPrices = tail(mids, window)
	series.EMA20 = tail(ema20, window)
	series.MACD = tail(macd, window)
	series.RSI7 = tail(rsi7, window)
	series.RSI14 = tail(rsi14, window)
	cur := Current{
		Price: round4(closes[len(closes)-1]),
		EMA20: lastValid(ema20),
		MACD:  lastValid(macd),
		RSI7:  lastValid(rsi7),
	}
	return cur, series
}

// BuildLongTerm computes the long-horizon block.
func BuildLongTerm(interval string, candles []Candle, window int) LongTermContext {
	out := LongTermContext{Interval: interval}
	if len(candles) == 0 {
		return out
	}
	closes := closesOf(candles)
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}
	out.EMA20 = lastValid(sanitizeSeries(ema(closes, 20)))
	out.EMA50 = lastValid(sanitizeSeries(ema(closes, 50)))
	out.ATR3 = lastValid(sanitizeSeries(atr(highs, lows, closes, 3)))
	out.ATR14 = lastValid(sanitizeSeries(atr(highs, lows, closes, 14)))
	out.CurrentVolume = round4(volumes[len(volumes)-1])
	sum := 0.0
	for _, v := range volumes {
		sum += v
	}
	out.AverageVolume = round4(sum / float64(len(volumes)))
	out.MACD = tail(sanitizeSeries(macdLine(closes)), window)
	out.RSI14 = tail(sanitizeSeries(rsi(closes, 14)), window)
	return out
}

// talib indexes out of range when the input is shorter than the lookback,
// so every call is guarded.

func ema(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.Ema(closes, period)
}

func rsi(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	return talib.Rsi(closes, period)
}

func atr(highs, lows, closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	return talib.Atr(highs, lows, closes, period)
}

func macdLine(closes []float64) []float64 {
	if len(closes) < 35 {
		return nil
	}
	macd, _, _ := talib.Macd(closes, 12, 26, 9)
	return macd
}

func closesOf(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// sanitizeSeries drops talib's NaN and zero warm-up values.
func sanitizeSeries(src []float64) []float64 {
	start := 0
	for start < len(src) && (math.IsNaN(src[start]) || math.Abs(src[start]) <= 1e-12) {
		start++
	}
	out := make([]float64, 0, len(src)-start)
	for _, v := range src[start:] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, round4(v))
	}
	return out
}

func tail(series []float64, n int) []float64 {
	if n <= 0 || len(series) <= n {
		return series
	}
	return append([]float64(nil), series[len(series)-n:]...)
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
