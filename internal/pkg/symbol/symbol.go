// Package symbol normalizes ticker names between config, model output and venues.
package symbol

import (
	"strings"
)

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "USD"}

// Normalize upper-cases and strips venue decorations such as "BTC/USDT:USDT".
func Normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return strings.ReplaceAll(s, "/", "")
}

func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n := Normalize(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Base returns the asset part of a pair ("BTCUSDT" -> "BTC").
func Base(s string) string {
	n := Normalize(s)
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(n, q) && len(n) > len(q) {
			return n[:len(n)-len(q)]
		}
	}
	return n
}

// Binance returns the USDT-margined futures pair for s.
func Binance(s string) string {
	n := Normalize(s)
	if n == "" {
		return ""
	}
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(n, q) && len(n) > len(q) {
			return n
		}
	}
	return n + "USDT"
}
