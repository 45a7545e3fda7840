package app

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huemood/internal/bridge"
	"github.com/dokzlo13/huemood/internal/config"
	"github.com/dokzlo13/huemood/internal/control"
	"github.com/dokzlo13/huemood/internal/db"
	"github.com/dokzlo13/huemood/internal/eventbus"
	"github.com/dokzlo13/huemood/internal/ledger"
	"github.com/dokzlo13/huemood/internal/luagen"
	"github.com/dokzlo13/huemood/internal/mood"
	"github.com/dokzlo13/huemood/internal/mqttpub"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Bridge and mood engine
	Bridge     *bridge.Client
	Generator  mood.TargetGenerator
	Supervisor *mood.Supervisor

	// Optional surfaces
	Control *control.Server
	MQTT    *mqttpub.Publisher

	// luaGen is set when the generator is script-backed and needs closing.
	luaGen *luagen.Generator

	connected atomic.Bool
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, controller control.Controller) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Ledger = ledger.New(database.DB)

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	s.Bridge = bridge.NewClient(cfg.Hue.Bridge, cfg.Hue.Token, cfg.Hue.Timeout.Duration(), cfg.Mood.RateLimitRPS)

	if cfg.Mood.Script != "" {
		gen, err := luagen.New(cfg.Mood.Script, cfg.Mood.MaxTransition.Duration())
		if err != nil {
			s.Close()
			return nil, err
		}
		s.luaGen = gen
		s.Generator = gen
	} else {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		s.Generator = mood.NewRandomGenerator(rng, cfg.Mood.MaxTransition.Duration())
	}

	s.Supervisor = mood.NewSupervisor(
		s.Bridge,
		s.Generator,
		mood.LoopConfig{
			StepInterval: cfg.Mood.StepInterval.Duration(),
			MaxRetries:   cfg.Mood.MaxRetries,
			RetryBackoff: cfg.Mood.RetryBackoff.Duration(),
		},
		cfg.Mood.StopGrace.Duration(),
		nil,
		s.Bus,
	)

	if cfg.Control.Enabled {
		s.Control = control.NewServer(cfg.Control.Host, cfg.Control.Port, controller, s.Ledger, s.connected.Load)
	}

	if cfg.MQTT.Enabled {
		pub, err := mqttpub.NewPublisher(cfg.MQTT)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.MQTT = pub
	}

	return s, nil
}

// Start connects to the bridge, wires event sinks and launches the mood
// loops. bulbs is the resolved list to control; an empty list triggers
// discovery of extended color lights.
func (s *Services) Start(ctx context.Context, bulbs []string) error {
	if err := s.Bridge.Connect(ctx); err != nil {
		return err
	}
	s.connected.Store(true)

	if deleted, err := s.Ledger.Cleanup(s.cfg.Database.Retention.Duration()); err != nil {
		log.Warn().Err(err).Msg("Ledger cleanup failed")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("Pruned expired ledger entries")
	}

	s.Ledger.Subscribe(s.Bus)
	if s.MQTT != nil {
		s.MQTT.Subscribe(s.Bus)
	}

	if len(bulbs) == 0 {
		discovered, err := s.Bridge.ListBulbs(ctx, bridge.ExtendedColorLight)
		if err != nil {
			return err
		}
		bulbs = discovered
		log.Info().Strs("bulbs", bulbs).Msg("Discovered extended color lights")
	}

	if s.Control != nil {
		go func() {
			if err := s.Control.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
				log.Error().Err(err).Msg("Control server error")
			}
		}()
	}

	return s.Supervisor.Start(ctx, bulbs)
}

// Stop restores every bulb, drains event sinks and releases resources.
func (s *Services) Stop() error {
	if s.Supervisor != nil {
		s.Supervisor.StopAll()
		s.Supervisor.Report()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()
	if s.Bus != nil {
		s.Bus.Close(shutdownCtx)
	}
	if s.MQTT != nil {
		s.MQTT.Close(shutdownCtx)
	}

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.luaGen != nil {
		s.luaGen.Close()
		s.luaGen = nil
	}
	if s.DB != nil {
		s.DB.Close()
		s.DB = nil
	}
}
