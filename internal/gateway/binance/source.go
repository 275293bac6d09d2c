// Package binance reads USDT-margined futures candles and funding rates.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"arena/internal/market"
	"arena/internal/pkg/symbol"
	"arena/internal/scheduler"
)

const maxHistoryLimit = 1500

// Source implements market.Source and market.FundingSource over go-binance.
type Source struct {
	cfg    Config
	client *futures.Client
	nowFn  func() time.Time
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.BaseURL
	httpClient := &http.Client{Timeout: final.Timeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		base, ok := http.DefaultTransport.(*http.Transport)
		if !ok || base == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := base.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client, nowFn: time.Now}, nil
}

func (s *Source) Name() string { return "binance" }

func (s *Source) FetchHistory(ctx context.Context, sym, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	pair := symbol.Binance(sym)
	if pair == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	// one extra so dropping the live bar still leaves limit closed bars
	kls, err := s.client.NewKlinesService().Symbol(pair).Interval(interval).Limit(limit + 1).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	if dur, ok := scheduler.ParseIntervalDuration(interval); ok {
		out = scheduler.DropUnclosedKline(out, dur, s.nowFn())
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// GetFundingRate returns the last funding rate (0.0001 means 0.01%).
func (s *Source) GetFundingRate(ctx context.Context, sym string) (float64, error) {
	pair := symbol.Binance(sym)
	if pair == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	res, err := s.client.NewPremiumIndexService().Symbol(pair).Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, entry := range res {
		if entry != nil && strings.EqualFold(entry.Symbol, pair) {
			return parseFloat(entry.LastFundingRate), nil
		}
	}
	if len(res) > 0 && res[0] != nil {
		return parseFloat(res[0].LastFundingRate), nil
	}
	return 0, fmt.Errorf("no funding rate for %s", pair)
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
