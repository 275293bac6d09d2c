package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"arena/internal/config"
	"arena/internal/engine"
	"arena/internal/logger"
	livehttp "arena/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App owns the running engine, its HTTP surface and every resource they share.
type App struct {
	cfg     *config.Config
	engine  *engine.Engine
	http    *livehttp.Server
	closers []io.Closer
	Summary *StartupSummary
}

// NewApp builds the application from cfg without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run blocks until ctx is cancelled or the HTTP server fails. Cancellation is
// a clean shutdown and returns nil.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()
	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("live http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return a.engine.Run(ctx)
	})
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Engine exposes the engine for tests and one-shot runs.
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Close releases stores and publishers in reverse construction order.
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logger.Warnf("app: close: %v", err)
		}
	}
	a.closers = nil
}
