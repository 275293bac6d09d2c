package market

// Candle is one OHLCV bar; times are milliseconds since epoch.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Mid is the bar's high/low midpoint.
func (c Candle) Mid() float64 {
	return (c.High + c.Low) / 2
}
