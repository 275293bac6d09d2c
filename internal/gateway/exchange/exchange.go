// Package exchange is the brokerage boundary: orders go in, fills come out.
package exchange

import (
	"context"
	"errors"
	"time"
)

// ErrRejected is returned when the venue refuses an order.
var ErrRejected = errors.New("order rejected")

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side that unwinds s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderRequest is a market order, or a triggered order when Price is set.
// Leverage applies only when opening.
type OrderRequest struct {
	Symbol   string
	Side     Side
	Quantity float64
	Leverage float64
	// Price, when positive, is the trigger level the order executes at.
	Price      float64
	ReduceOnly bool
	ClientID   string
}

// Fill is the execution report for an accepted order.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      Side
	Quantity  float64
	Price     float64
	Fee       float64
	Timestamp time.Time
}

// Position is a venue-side net position; Quantity is signed (short < 0).
type Position struct {
	Symbol     string
	Quantity   float64
	EntryPrice float64
	Leverage   float64
}

// Exchange executes orders for one account.
type Exchange interface {
	Name() string
	Submit(ctx context.Context, req OrderRequest) (Fill, error)
	ListOpenPositions(ctx context.Context) ([]Position, error)
}

// PriceSource quotes the latest traded price for a symbol.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}
