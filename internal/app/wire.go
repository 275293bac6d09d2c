//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"arena/internal/config"

	"github.com/google/wire"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, error) {
	wire.Build(provideAppBuilder, provideAppFromBuilder)
	return nil, nil
}

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

func provideAppFromBuilder(ctx context.Context, b *AppBuilder) (*App, error) {
	return b.Build(ctx)
}
