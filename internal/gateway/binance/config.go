package binance

import (
	"strings"
	"time"
)

// Config points the futures REST client at a venue; ProxyURL is optional.
type Config struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	ProxyURL string        `mapstructure:"proxy_url"`
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = "https://fapi.binance.com"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	c.ProxyURL = strings.TrimSpace(c.ProxyURL)
	return c
}
