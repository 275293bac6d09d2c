package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"arena/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("arena: %v", err)
		os.Exit(1)
	}
}
