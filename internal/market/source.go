package market

import "context"

// Source fetches closed candles for one symbol and interval, oldest first.
type Source interface {
	Name() string
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// FundingSource is implemented by perpetual-futures venues.
type FundingSource interface {
	GetFundingRate(ctx context.Context, symbol string) (float64, error)
}
