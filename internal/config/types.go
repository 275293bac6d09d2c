package config

import (
	"strings"
	"time"
)

// Config is the root of arena's configuration.
type Config struct {
	App       AppConfig       `toml:"app"`
	Engine    EngineConfig    `toml:"engine"`
	Market    MarketConfig    `toml:"market"`
	Portfolio PortfolioConfig `toml:"portfolio"`
	Storage   StorageConfig   `toml:"storage"`
	Agents    []AgentConfig   `toml:"agents"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

// EngineConfig drives the shared decision loop.
type EngineConfig struct {
	IntervalSeconds int  `toml:"interval_seconds"`
	OffsetSeconds   int  `toml:"offset_seconds"`
	Align           bool `toml:"align"`
	RunImmediately  bool `toml:"run_immediately"`

	// Symbols is the default tradable set for agents that list none.
	Symbols []string `toml:"symbols"`
}

func (e EngineConfig) Interval() time.Duration {
	return time.Duration(e.IntervalSeconds) * time.Second
}

func (e EngineConfig) Offset() time.Duration {
	return time.Duration(e.OffsetSeconds) * time.Second
}

type MarketConfig struct {
	// Source is "binance" or "mock".
	Source         string `toml:"source"`
	RESTBaseURL    string `toml:"rest_base_url"`
	ProxyURL       string `toml:"proxy_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ShortInterval  string `toml:"short_interval"`
	LongInterval   string `toml:"long_interval"`
	Limit          int    `toml:"limit"`
	SeriesWindow   int    `toml:"series_window"`
	Concurrency    int    `toml:"concurrency"`

	// FallbackToMock serves synthetic candles when the live source fails.
	FallbackToMock bool `toml:"fallback_to_mock"`
}

func (m MarketConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// PortfolioConfig applies to every agent unless the agent overrides InitialCash.
type PortfolioConfig struct {
	InitialCash           float64 `toml:"initial_cash"`
	FeeRate               float64 `toml:"fee_rate"`
	SlippageBps           float64 `toml:"slippage_bps"`
	MaxLeverage           float64 `toml:"max_leverage"`
	RiskFreeRate          float64 `toml:"risk_free_rate"`
	MaintenanceMarginRate float64 `toml:"maintenance_margin_rate"`
	HistoryLimit          int     `toml:"history_limit"`
}

type StorageConfig struct {
	// Path is the sqlite file holding exit plans and the trade ledger.
	Path string `toml:"path"`

	// DecisionLogPath, when empty, puts the inference journal in the same file.
	DecisionLogPath string `toml:"decision_log_path"`
}

// AgentConfig binds one model to one portfolio.
type AgentConfig struct {
	ID             string            `toml:"id"`
	Name           string            `toml:"name"`
	Provider       string            `toml:"provider"`
	BaseURL        string            `toml:"base_url"`
	APIKey         string            `toml:"api_key"`
	Model          string            `toml:"model"`
	Headers        map[string]string `toml:"headers"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Temperature    float64           `toml:"temperature"`
	MaxTokens      int               `toml:"max_tokens"`
	Symbols        []string          `toml:"symbols"`
	SystemPrompt   string            `toml:"system_prompt"`
	InitialCash    float64           `toml:"initial_cash"`

	// BreakerFailures trips the inference circuit after this many consecutive failures.
	BreakerFailures      int `toml:"breaker_failures"`
	BreakerCooldownSecs  int `toml:"breaker_cooldown_seconds"`
	DecisionHistoryLimit int `toml:"decision_history_limit"`
}

func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (a AgentConfig) BreakerCooldown() time.Duration {
	return time.Duration(a.BreakerCooldownSecs) * time.Second
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
	Kafka    KafkaConfig    `toml:"kafka"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// keySet tracks which dotted paths the config files set explicitly.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault is one default rule: skipped when key was set explicitly or
// need reports the field already holds a value.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
