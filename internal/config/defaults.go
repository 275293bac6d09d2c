package config

import (
	"fmt"
	"strings"

	"arena/internal/pkg/symbol"
)

const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppHTTPAddr        = ":9991"
	defaultAppLogPath         = "data/logs/arena.log"
	defaultAppLLMLogPath      = "data/logs/arena-llm.log"
	defaultEngineInterval     = 180
	defaultMarketSource       = "binance"
	defaultMarketREST         = "https://fapi.binance.com"
	defaultMarketTimeout      = 15
	defaultMarketShort        = "15m"
	defaultMarketLong         = "4h"
	defaultMarketLimit        = 120
	defaultMarketWindow       = 10
	defaultMarketConcurrency  = 4
	defaultInitialCash        = 10000
	defaultMaintenanceMargin  = 0.005
	defaultHistoryLimit       = 500
	defaultStoragePath        = "data/arena.db"
	defaultKafkaTopic         = "arena.trades"
	defaultAgentTimeout       = 90
	defaultBreakerFailures    = 5
	defaultBreakerCooldown    = 120
	defaultAgentDecisionLimit = 50
)

var defaultSymbols = []string{"BTC", "ETH", "SOL", "BNB", "XRP", "DOGE"}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Portfolio.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
	for i := range c.Agents {
		c.Agents[i].applyDefaults(i, c)
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.llm_log_path", &a.LLMLog, defaultAppLLMLogPath),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("engine.interval_seconds", &e.IntervalSeconds, defaultEngineInterval),
		boolFieldDefault("engine.run_immediately", &e.RunImmediately, true),
	)
	e.Symbols = symbol.NormalizeList(e.Symbols)
	if len(e.Symbols) == 0 {
		e.Symbols = append([]string(nil), defaultSymbols...)
	}
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("market.source", &m.Source, defaultMarketSource),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		stringFieldDefault("market.short_interval", &m.ShortInterval, defaultMarketShort),
		stringFieldDefault("market.long_interval", &m.LongInterval, defaultMarketLong),
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, defaultMarketTimeout),
		intFieldDefault("market.limit", &m.Limit, defaultMarketLimit),
		intFieldDefault("market.series_window", &m.SeriesWindow, defaultMarketWindow),
		intFieldDefault("market.concurrency", &m.Concurrency, defaultMarketConcurrency),
		boolFieldDefault("market.fallback_to_mock", &m.FallbackToMock, true),
	)
	m.Source = strings.ToLower(strings.TrimSpace(m.Source))
}

func (p *PortfolioConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "portfolio.initial_cash",
			need:  func() bool { return p.InitialCash <= 0 },
			apply: func() { p.InitialCash = defaultInitialCash },
		},
		fieldDefault{
			key:   "portfolio.maintenance_margin_rate",
			need:  func() bool { return p.MaintenanceMarginRate <= 0 },
			apply: func() { p.MaintenanceMarginRate = defaultMaintenanceMargin },
		},
		intFieldDefault("portfolio.history_limit", &p.HistoryLimit, defaultHistoryLimit),
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("storage.path", &s.Path, defaultStoragePath),
	)
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("notify.kafka.topic", &n.Kafka.Topic, defaultKafkaTopic),
	)
}

// applyDefaults fills per-agent gaps; the agent list has no per-key tracking,
// so zero values always take the default.
func (a *AgentConfig) applyDefaults(idx int, root *Config) {
	a.ID = strings.TrimSpace(a.ID)
	a.Provider = strings.ToLower(strings.TrimSpace(a.Provider))
	if a.ID == "" {
		base := a.Model
		if base == "" {
			base = a.Provider
		}
		a.ID = fmt.Sprintf("%s-%d", slug(base), idx+1)
	}
	if strings.TrimSpace(a.Name) == "" {
		a.Name = a.ID
	}
	if a.TimeoutSeconds <= 0 {
		a.TimeoutSeconds = defaultAgentTimeout
	}
	if a.BreakerFailures <= 0 {
		a.BreakerFailures = defaultBreakerFailures
	}
	if a.BreakerCooldownSecs <= 0 {
		a.BreakerCooldownSecs = defaultBreakerCooldown
	}
	if a.DecisionHistoryLimit <= 0 {
		a.DecisionHistoryLimit = defaultAgentDecisionLimit
	}
	if a.InitialCash <= 0 {
		a.InitialCash = root.Portfolio.InitialCash
	}
	a.Symbols = symbol.NormalizeList(a.Symbols)
	if len(a.Symbols) == 0 {
		a.Symbols = append([]string(nil), root.Engine.Symbols...)
	}
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil },
		apply: func() { *target = def },
	}
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
