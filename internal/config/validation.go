package config

import (
	"fmt"
	"strings"
)

var providerKinds = map[string]bool{
	"ollama":            true,
	"openai":            true,
	"openai-compatible": true,
	"deepseek":          true,
	"qwen":              true,
	"mock":              true,
}

// validate checks a defaulted config. An empty agent list passes here and is
// refused when the engine is built.
func validate(c *Config) error {
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Portfolio.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Agents))
	for i := range c.Agents {
		a := &c.Agents[i]
		if seen[a.ID] {
			return fmt.Errorf("agents: duplicate id %q", a.ID)
		}
		seen[a.ID] = true
		if err := a.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.IntervalSeconds <= 0 {
		return fmt.Errorf("engine.interval_seconds must be > 0")
	}
	if e.OffsetSeconds < 0 {
		return fmt.Errorf("engine.offset_seconds must be >= 0")
	}
	if e.OffsetSeconds >= e.IntervalSeconds {
		return fmt.Errorf("engine.offset_seconds must be shorter than the interval")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	switch m.Source {
	case "binance":
		if strings.TrimSpace(m.RESTBaseURL) == "" {
			return fmt.Errorf("market.rest_base_url cannot be empty")
		}
	case "mock":
	default:
		return fmt.Errorf("market.source must be binance or mock, got %q", m.Source)
	}
	if !IsValidInterval(m.ShortInterval) {
		return fmt.Errorf("market.short_interval %q is invalid", m.ShortInterval)
	}
	if !IsValidInterval(m.LongInterval) {
		return fmt.Errorf("market.long_interval %q is invalid", m.LongInterval)
	}
	if m.Limit < 50 || m.Limit > 1000 {
		return fmt.Errorf("market.limit must be in [50,1000]")
	}
	return nil
}

func (p *PortfolioConfig) validate() error {
	if p.FeeRate < 0 || p.FeeRate >= 0.1 {
		return fmt.Errorf("portfolio.fee_rate must be in [0,0.1)")
	}
	if p.SlippageBps < 0 {
		return fmt.Errorf("portfolio.slippage_bps must be >= 0")
	}
	if p.MaxLeverage < 0 {
		return fmt.Errorf("portfolio.max_leverage must be >= 0")
	}
	if p.MaintenanceMarginRate >= 1 {
		return fmt.Errorf("portfolio.maintenance_margin_rate must be < 1")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	if n.Kafka.Enabled {
		if len(n.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka notification enabled but no brokers configured")
		}
		if strings.TrimSpace(n.Kafka.Topic) == "" {
			return fmt.Errorf("notify.kafka.topic cannot be empty")
		}
	}
	return nil
}

func (a *AgentConfig) validate() error {
	if !providerKinds[a.Provider] {
		return fmt.Errorf("agents.%s: unknown provider %q", a.ID, a.Provider)
	}
	if a.Provider != "mock" && strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("agents.%s: model cannot be empty", a.ID)
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return fmt.Errorf("agents.%s: temperature must be in [0,2]", a.ID)
	}
	if a.MaxTokens < 0 {
		return fmt.Errorf("agents.%s: max_tokens must be >= 0", a.ID)
	}
	return nil
}

// IsValidInterval accepts a number followed by m, h, d or w.
func IsValidInterval(s string) bool {
	if len(s) < 2 {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
