// Package app provides the top-level application lifecycle of the parity
// arbitrage engine. It wires the stores, coordination and storage backends,
// builds the venue gateways and the detection pipeline, and starts the
// goroutines of the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/parityarb/internal/config"
)

// Operating modes.
const (
	ModeTrade   = "trade"
	ModeMonitor = "monitor"
)

// App owns the configuration and the resources opened by Wire.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu        sync.Mutex
	cleanup   func()
	closeOnce sync.Once
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependencies and blocks in the configured mode until ctx is
// cancelled or a component fails. Resources are released by Close.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	var run func(context.Context, *Dependencies) error
	switch mode {
	case ModeTrade:
		run = a.TradeMode
	case ModeMonitor:
		run = a.MonitorMode
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", mode),
		slog.Int("markets", len(a.cfg.Markets)),
		slog.Bool("postgres", a.cfg.Postgres.Enabled),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("s3", a.cfg.S3.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.mu.Lock()
	a.cleanup = cleanup
	a.mu.Unlock()

	return run(ctx, deps)
}

// Close releases the backends opened by Run. Only the first call has an
// effect.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		cleanup := a.cleanup
		a.mu.Unlock()
		if cleanup != nil {
			cleanup()
		}
		a.logger.Info("application closed")
	})
}
