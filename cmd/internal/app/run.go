package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run loads config, wires the App, and serves until SIGINT/SIGTERM. It is
// the whole body of cmd/parley; returning an error instead of exiting keeps
// deferred cleanup effective.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}
