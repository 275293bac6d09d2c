package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	src, err := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	return src
}

func TestFetchHistoryParsesAndTrims(t *testing.T) {
	var gotSymbol, gotInterval string
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		gotSymbol = r.URL.Query().Get("symbol")
		gotInterval = r.URL.Query().Get("interval")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			[1700000000000,"100.0","110.0","95.0","105.0","12.5",1700000899999,"1300.0",42,"6.0","600.0","0"],
			[1700000900000,"105.0","112.0","101.0","111.0","8.0",1700001799999,"900.0",17,"4.0","400.0","0"]
		]`))
	})
	src.nowFn = func() time.Time { return time.UnixMilli(1700001800000).Add(time.Minute) }

	candles, err := src.FetchHistory(context.Background(), "btc", "15m", 1)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.Equal(t, "15m", gotInterval)
	require.Len(t, candles, 1)
	assert.Equal(t, 111.0, candles[0].Close)
	assert.Equal(t, int64(17), candles[0].Trades)
}

func TestFetchHistoryDropsLiveBar(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			[1700000000000,"100","110","95","105","1",1700000899999,"1",1,"1","1","0"],
			[1700000900000,"105","112","101","111","1",1700001799999,"1",1,"1","1","0"]
		]`))
	})
	src.nowFn = func() time.Time { return time.UnixMilli(1700000900000).Add(time.Minute) }

	candles, err := src.FetchHistory(context.Background(), "BTCUSDT", "15m", 10)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 105.0, candles[0].Close)
}

func TestFetchHistoryValidatesInput(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})
	_, err := src.FetchHistory(context.Background(), " ", "15m", 10)
	assert.Error(t, err)
	_, err = src.FetchHistory(context.Background(), "BTC", "", 10)
	assert.Error(t, err)
}

func TestGetFundingRate(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/premiumIndex", r.URL.Path)
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","markPrice":"3000.1","lastFundingRate":"0.00012","nextFundingTime":1700000000000,"time":1700000000000}`))
	})
	rate, err := src.GetFundingRate(context.Background(), "ETH")
	require.NoError(t, err)
	assert.InDelta(t, 0.00012, rate, 1e-12)
}

func TestNewRejectsBadProxy(t *testing.T) {
	_, err := New(Config{ProxyURL: "://bad"})
	assert.Error(t, err)
}
