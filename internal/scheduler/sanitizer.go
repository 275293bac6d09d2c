package scheduler

import (
	"time"

	"arena/internal/market"
)

const DefaultKlineGrace = 10 * time.Second

// DropUnclosedKline drops the last candle if it is still in progress. Venues
// return the live candle as the last element; indicators want closed ones only.
// Candle times are milliseconds since epoch.
func DropUnclosedKline(klines []market.Candle, interval time.Duration, now time.Time) []market.Candle {
	if len(klines) == 0 || interval <= 0 {
		return klines
	}
	last := klines[len(klines)-1]
	if last.OpenTime <= 0 {
		return klines
	}
	cutoffMs := last.OpenTime + interval.Milliseconds() + DefaultKlineGrace.Milliseconds()
	if now.UnixMilli() < cutoffMs {
		return klines[:len(klines)-1]
	}
	return klines
}
