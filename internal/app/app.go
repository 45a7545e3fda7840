// Package app wires configuration, the bridge client, the mood engine and
// the optional control surfaces into one lifecycle-managed application.
//
// Restoration of bulb state is guaranteed only on a clean stop (signal or
// HTTP stop request). A killed process never gets a chance to restore.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huemood/internal/config"
)

// App is the main application container that manages all services and their
// lifecycle.
type App struct {
	cfg      *config.Config
	bulbs    []string
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new App instance with all services initialized but not
// started. bulbs overrides the configured bulb list when non-empty; an
// empty resolved list means bulbs are discovered from the bridge.
func New(cfg *config.Config, bulbs []string) (*App, error) {
	if len(bulbs) == 0 {
		bulbs = cfg.Mood.Bulbs
	}

	a := &App{cfg: cfg, bulbs: bulbs}

	services, err := NewServices(cfg, a)
	if err != nil {
		return nil, err
	}
	a.services = services

	return a, nil
}

// Start connects to the bridge and launches the mood loops.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx, a.bulbs); err != nil {
		return err
	}

	log.Info().Msg("huemood started")
	return nil
}

// Stop gracefully shuts down: every loop restores its bulb before exit.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}

	if a.services != nil {
		return a.services.Stop()
	}

	return nil
}

// Wait blocks until the application context is cancelled or every mood
// loop has terminated on its own.
func (a *App) Wait() {
	if a.ctx == nil {
		return
	}
	select {
	case <-a.ctx.Done():
	case <-a.services.Supervisor.Done():
	}
}

// Statuses implements control.Controller.
func (a *App) Statuses() map[string]string {
	if a.services == nil || a.services.Supervisor == nil {
		return nil
	}
	out := make(map[string]string)
	for bulb, status := range a.services.Supervisor.Statuses() {
		out[bulb] = status.String()
	}
	return out
}

// RequestStop implements control.Controller. It cancels the application
// context; the signal path and the HTTP path converge on the same shutdown.
func (a *App) RequestStop() {
	if a.cancel != nil {
		a.cancel()
	}
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM
// is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
