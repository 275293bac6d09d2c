package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPriceSource struct {
	mock.Mock
}

func (m *MockPriceSource) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func TestPaperOpenAndClose(t *testing.T) {
	prices := new(MockPriceSource)
	prices.On("LatestPrice", mock.Anything, "SOL").Return(100.0, nil)
	p := NewPaper("test", prices, PaperConfig{})
	ctx := context.Background()

	fill, err := p.Submit(ctx, OrderRequest{Symbol: "sol", Side: SideBuy, Quantity: 10, Leverage: 5})
	require.NoError(t, err)
	assert.Equal(t, 100.0, fill.Price)
	assert.Equal(t, "SOL", fill.Symbol)
	assert.NotEmpty(t, fill.OrderID)

	positions, err := p.ListOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 10.0, positions[0].Quantity)
	assert.Equal(t, 5.0, positions[0].Leverage)

	_, err = p.Submit(ctx, OrderRequest{Symbol: "SOL", Side: SideSell, Quantity: 10, ReduceOnly: true})
	require.NoError(t, err)
	positions, _ = p.ListOpenPositions(ctx)
	assert.Empty(t, positions)
	prices.AssertExpectations(t)
}

func TestPaperSlippageAndFee(t *testing.T) {
	prices := new(MockPriceSource)
	prices.On("LatestPrice", mock.Anything, "BTC").Return(1000.0, nil)
	p := NewPaper("test", prices, PaperConfig{SlippageBps: 10, FeeRate: 0.001})

	fill, err := p.Submit(context.Background(), OrderRequest{Symbol: "BTC", Side: SideBuy, Quantity: 2, Leverage: 1})
	require.NoError(t, err)
	assert.InDelta(t, 1001.0, fill.Price, 1e-9)
	assert.InDelta(t, 2.002, fill.Fee, 1e-9)

	fill, err = p.Submit(context.Background(), OrderRequest{Symbol: "BTC", Side: SideSell, Quantity: 2, ReduceOnly: true})
	require.NoError(t, err)
	assert.InDelta(t, 999.0, fill.Price, 1e-9)
}

func TestPaperRejections(t *testing.T) {
	prices := new(MockPriceSource)
	prices.On("LatestPrice", mock.Anything, "ETH").Return(0.0, errors.New("feed down"))
	prices.On("LatestPrice", mock.Anything, "SOL").Return(50.0, nil)
	p := NewPaper("test", prices, PaperConfig{MaxLeverage: 10})
	ctx := context.Background()

	_, err := p.Submit(ctx, OrderRequest{Symbol: "ETH", Side: SideBuy, Quantity: 1, Leverage: 1})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = p.Submit(ctx, OrderRequest{Symbol: "SOL", Side: SideBuy, Quantity: 0, Leverage: 1})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = p.Submit(ctx, OrderRequest{Symbol: "SOL", Side: SideBuy, Quantity: 1, Leverage: 20})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = p.Submit(ctx, OrderRequest{Symbol: "SOL", Side: SideSell, Quantity: 1, ReduceOnly: true})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestPaperSeed(t *testing.T) {
	p := NewPaper("test", nil, PaperConfig{})
	p.Seed([]Position{{Symbol: "btc", Quantity: -0.5, EntryPrice: 60000, Leverage: 3}, {Symbol: "ETH"}})
	positions, err := p.ListOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTC", positions[0].Symbol)
	assert.Equal(t, -0.5, positions[0].Quantity)
}
