package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Normalize(" btc/usdt:usdt "))
	assert.Equal(t, "SOL", Normalize("sol"))
	assert.Equal(t, []string{"BTC", "ETH"}, NormalizeList([]string{"btc", "ETH", "BTC", " "}))
}

func TestBinanceAndBase(t *testing.T) {
	assert.Equal(t, "SOLUSDT", Binance("sol"))
	assert.Equal(t, "ETHUSDT", Binance("ETHUSDT"))
	assert.Equal(t, "BTC", Base("BTCUSDT"))
	assert.Equal(t, "AAPL", Base("AAPL"))
}
