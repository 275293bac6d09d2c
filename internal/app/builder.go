package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"arena/internal/agent"
	"arena/internal/config"
	"arena/internal/engine"
	"arena/internal/gateway/binance"
	"arena/internal/gateway/notifier"
	"arena/internal/logger"
	"arena/internal/market"
	"arena/internal/store/decisionlog"
	"arena/internal/store/gormstore"
	livehttp "arena/internal/transport/http/live"
)

// AppBuilder assembles an App. The function fields exist so tests can swap a
// single collaborator without touching the network.
type AppBuilder struct {
	cfg *config.Config

	marketSourceFn func(config.MarketConfig) (market.Source, error)
	publisherFn    func(config.NotifyConfig) (notifier.Publisher, []io.Closer)
	liveHTTPFn     func(config.AppConfig, livehttp.StateSource, livehttp.DecisionLog) (*livehttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithMarketSource replaces the configured candle source.
func WithMarketSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.marketSourceFn = func(config.MarketConfig) (market.Source, error) { return src, nil }
	}
}

// WithPublisher replaces the configured notifiers.
func WithPublisher(pub notifier.Publisher) AppBuilderOption {
	return func(b *AppBuilder) {
		b.publisherFn = func(config.NotifyConfig) (notifier.Publisher, []io.Closer) { return pub, nil }
	}
}

// WithoutHTTP skips the status server.
func WithoutHTTP() AppBuilderOption {
	return func(b *AppBuilder) {
		b.liveHTTPFn = func(config.AppConfig, livehttp.StateSource, livehttp.DecisionLog) (*livehttp.Server, error) {
			return nil, nil
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:            cfg,
		marketSourceFn: buildMarketSource,
		publisherFn:    buildPublisher,
		liveHTTPFn:     buildLiveHTTPServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (_ *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("app builder: nil config")
	}
	cfg := b.cfg
	app := &App{cfg: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	store, err := gormstore.NewGormStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, store)

	journal, err := openJournal(cfg.Storage, store)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, journal)

	src, err := b.marketSourceFn(cfg.Market)
	if err != nil {
		return nil, err
	}
	prices := market.NewProvider(src, market.ProviderConfig{
		ShortInterval: cfg.Market.ShortInterval,
		LongInterval:  cfg.Market.LongInterval,
		Limit:         cfg.Market.Limit,
		SeriesWindow:  cfg.Market.SeriesWindow,
		Concurrency:   cfg.Market.Concurrency,
		Timeout:       cfg.Market.Timeout(),
	})

	pub, closers := b.publisherFn(cfg.Notify)
	app.closers = append(app.closers, closers...)

	deps := agentDeps{
		market:    prices,
		store:     store,
		journal:   journal,
		publisher: pub,
	}
	runners := make([]engine.Runner, 0, len(cfg.Agents))
	summaries := make([]AgentSummary, 0, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		ag, err := buildAgent(ctx, cfg, ac, deps)
		if err != nil {
			return nil, err
		}
		runners = append(runners, ag)
		summaries = append(summaries, summarizeAgent(ag, ac))
	}

	eng, err := engine.New(engine.Config{
		Interval:       cfg.Engine.Interval(),
		Offset:         cfg.Engine.Offset(),
		Align:          cfg.Engine.Align,
		RunImmediately: cfg.Engine.RunImmediately,
	}, runners...)
	if err != nil {
		return nil, err
	}
	app.engine = eng

	srv, err := b.liveHTTPFn(cfg.App, eng, journal)
	if err != nil {
		return nil, err
	}
	app.http = srv

	app.Summary = &StartupSummary{
		Interval:     cfg.Engine.Interval(),
		MarketSource: src.Name(),
		Storage:      cfg.Storage.Path,
		Agents:       summaries,
	}
	if srv != nil {
		app.Summary.HTTPAddr = srv.Addr()
	}
	return app, nil
}

// openJournal shares the ledger's database unless a dedicated path is set.
func openJournal(cfg config.StorageConfig, store *gormstore.GormStore) (*decisionlog.DecisionLogStore, error) {
	if path := strings.TrimSpace(cfg.DecisionLogPath); path != "" {
		return decisionlog.NewDecisionLogStore(path)
	}
	db, err := store.SQLDB()
	if err != nil {
		return nil, err
	}
	return decisionlog.NewSharedDecisionLogStore(db)
}

func buildMarketSource(cfg config.MarketConfig) (market.Source, error) {
	mock := market.NewMockSource(nil)
	if cfg.Source == "mock" {
		logger.Infof("market: using synthetic candles")
		return mock, nil
	}
	live, err := binance.New(binance.Config{
		BaseURL:  cfg.RESTBaseURL,
		Timeout:  cfg.Timeout(),
		ProxyURL: cfg.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("market: %w", err)
	}
	if cfg.FallbackToMock {
		return market.NewFallbackSource(live, mock), nil
	}
	return live, nil
}

func buildPublisher(cfg config.NotifyConfig) (notifier.Publisher, []io.Closer) {
	var (
		pubs    notifier.Multi
		closers []io.Closer
	)
	if cfg.Kafka.Enabled {
		k := notifier.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		pubs = append(pubs, k)
		closers = append(closers, k)
	}
	if cfg.Telegram.Enabled {
		pubs = append(pubs, notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	if len(pubs) == 0 {
		return notifier.Nop{}, nil
	}
	return pubs, closers
}

func buildLiveHTTPServer(cfg config.AppConfig, eng livehttp.StateSource, journal livehttp.DecisionLog) (*livehttp.Server, error) {
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		return nil, nil
	}
	return livehttp.NewServer(livehttp.ServerConfig{Addr: cfg.HTTPAddr, Engine: eng, Logs: journal})
}

var _ engine.Runner = (*agent.Agent)(nil)
