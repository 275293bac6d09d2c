package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCandleSource struct {
	mock.Mock
}

func (m *MockCandleSource) Name() string { return "stub" }

func (m *MockCandleSource) FetchHistory(ctx context.Context, sym, interval string, limit int) ([]Candle, error) {
	args := m.Called(ctx, sym, interval, limit)
	candles, _ := args.Get(0).([]Candle)
	return candles, args.Error(1)
}

type fundedSource struct {
	*MockSource
	rate float64
}

func (f fundedSource) GetFundingRate(ctx context.Context, sym string) (float64, error) {
	return f.rate, nil
}

var fixedNow = time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)

func TestSnapshotBuildsBothHorizons(t *testing.T) {
	src := NewMockSource(func() time.Time { return fixedNow })
	p := NewProvider(src, ProviderConfig{Limit: 80, SeriesWindow: 10})

	snaps := p.Snapshot(context.Background(), []string{"btc", "ETHUSDT", "BTC"}, fixedNow)
	require.Len(t, snaps, 2)
	btc := snaps["BTC"]
	assert.False(t, btc.Empty())
	assert.Equal(t, "mock", btc.Source)
	assert.Equal(t, fixedNow, btc.AsOf)
	assert.Len(t, btc.Intraday.MidPrices, 10)
	assert.Len(t, btc.Intraday.RSI14, 10)
	assert.NotZero(t, btc.LongTerm.EMA50)
	assert.NotZero(t, btc.LongTerm.ATR14)
	assert.Equal(t, "4h", btc.LongTerm.Interval)
}

func TestSnapshotDegradesToEmptyOnFailure(t *testing.T) {
	src := new(MockCandleSource)
	src.On("FetchHistory", mock.Anything, "BTC", "15m", 120).Return(nil, errors.New("boom"))
	p := NewProvider(src, ProviderConfig{})

	snaps := p.Snapshot(context.Background(), []string{"BTC"}, fixedNow)
	require.Contains(t, snaps, "BTC")
	assert.True(t, snaps["BTC"].Empty())
	assert.Equal(t, "BTC", snaps["BTC"].Symbol)
	src.AssertExpectations(t)
}

func TestSnapshotKeepsIntradayWhenLongFails(t *testing.T) {
	good, err := NewMockSource(func() time.Time { return fixedNow }).FetchHistory(context.Background(), "SOL", "15m", 60)
	require.NoError(t, err)
	src := new(MockCandleSource)
	src.On("FetchHistory", mock.Anything, "SOL", "15m", 60).Return(good, nil)
	src.On("FetchHistory", mock.Anything, "SOL", "4h", 60).Return(nil, errors.New("rate limited"))
	p := NewProvider(src, ProviderConfig{Limit: 60})

	snap := p.Snapshot(context.Background(), []string{"SOL"}, fixedNow)["SOL"]
	assert.False(t, snap.Empty())
	assert.Equal(t, good[len(good)-1].Close, snap.Current.Price)
	assert.Zero(t, snap.LongTerm.EMA20)
}

func TestSnapshotAttachesFunding(t *testing.T) {
	src := fundedSource{MockSource: NewMockSource(func() time.Time { return fixedNow }), rate: 0.0001}
	p := NewProvider(src, ProviderConfig{})
	snap := p.Snapshot(context.Background(), []string{"BTC"}, fixedNow)["BTC"]
	assert.Equal(t, 0.0001, snap.FundingRate)
}

func TestLatestPriceUsesCachedSnapshot(t *testing.T) {
	src := NewMockSource(func() time.Time { return fixedNow })
	p := NewProvider(src, ProviderConfig{})
	snaps := p.Snapshot(context.Background(), []string{"ETH"}, fixedNow)

	px, err := p.LatestPrice(context.Background(), "eth")
	require.NoError(t, err)
	assert.Equal(t, snaps["ETH"].Current.Price, px)
	assert.Equal(t, map[string]float64{"ETH": px}, Prices(snaps))
}

func TestLatestPriceFetchesWhenUncached(t *testing.T) {
	src := new(MockCandleSource)
	src.On("FetchHistory", mock.Anything, "BNB", "15m", 1).Return([]Candle{{Close: 512.5}}, nil).Once()
	p := NewProvider(src, ProviderConfig{})

	px, err := p.LatestPrice(context.Background(), "BNB")
	require.NoError(t, err)
	assert.Equal(t, 512.5, px)
	px, err = p.LatestPrice(context.Background(), "BNB")
	require.NoError(t, err)
	assert.Equal(t, 512.5, px)
	src.AssertExpectations(t)
}

func TestMockSourceIsDeterministic(t *testing.T) {
	now := func() time.Time { return fixedNow }
	a, err := NewMockSource(now).FetchHistory(context.Background(), "BTC", "15m", 50)
	require.NoError(t, err)
	b, err := NewMockSource(now).FetchHistory(context.Background(), "BTC", "15m", 50)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, 50)
	for i := 1; i < len(a); i++ {
		assert.Equal(t, a[i-1].OpenTime+int64(15*time.Minute/time.Millisecond), a[i].OpenTime)
		assert.GreaterOrEqual(t, a[i].High, a[i].Low)
	}
	c, err := NewMockSource(now).FetchHistory(context.Background(), "ETH", "15m", 50)
	require.NoError(t, err)
	assert.NotEqual(t, a[len(a)-1].Close, c[len(c)-1].Close)
}

func TestIndicatorsTolerateShortHistory(t *testing.T) {
	candles := []Candle{{Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10}}
	cur, series := BuildIntraday("15m", candles, 10)
	assert.Equal(t, 1.5, cur.Price)
	assert.Empty(t, series.EMA20)
	assert.Equal(t, []float64{1.5}, series.MidPrices)

	long := BuildLongTerm("4h", candles, 10)
	assert.Zero(t, long.EMA50)
	assert.Equal(t, 10.0, long.AverageVolume)
}

func TestFallbackSourceSwitchesOnError(t *testing.T) {
	primary := new(MockCandleSource)
	primary.On("FetchHistory", mock.Anything, "BTC", "15m", 20).Return(nil, errors.New("down"))
	secondary := NewMockSource(func() time.Time { return fixedNow })
	src := NewFallbackSource(primary, secondary)

	candles, err := src.FetchHistory(context.Background(), "BTC", "15m", 20)
	require.NoError(t, err)
	assert.Len(t, candles, 20)
	assert.Equal(t, "stub", src.Name())

	_, err = src.GetFundingRate(context.Background(), "BTC")
	assert.Error(t, err)
}
