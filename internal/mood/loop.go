package mood

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huemood/internal/eventbus"
)

// Bridge is the bulb surface the mood loop consumes. Implementations must
// be safe for concurrent use: loops for different bulbs share one client.
type Bridge interface {
	ReadState(ctx context.Context, bulb string) (BulbState, error)
	WriteState(ctx context.Context, bulb string, state BulbState) error
	TurnOn(ctx context.Context, bulb string) error
}

// Sleeper abstracts the inter-step delay so tests can drive the loop with
// a fake clock. Sleep returns the context error if cancelled while waiting.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Status is the terminal state of a mood session.
type Status int

const (
	StatusRunning Status = iota
	StatusRestored
	StatusAbandoned
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusRestored:
		return "restored"
	case StatusAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// LoopConfig holds per-loop timing and retry settings.
type LoopConfig struct {
	StepInterval time.Duration // Delay between interpolation steps
	MaxRetries   int           // Bounded retries for a single bridge call
	RetryBackoff time.Duration // Delay between retries
}

// Loop drives the randomized transition cycle for a single bulb.
// Each loop owns its current state exclusively; the only shared inputs are
// the bridge client and the target generator, both concurrency-safe.
type Loop struct {
	bulb   string
	bridge Bridge
	gen    TargetGenerator
	cfg    LoopConfig
	sleep  Sleeper
	bus    *eventbus.Bus

	sessionID uuid.UUID
}

// NewLoop creates a mood loop for one bulb. A nil sleeper selects the real
// clock; a nil bus disables event publishing.
func NewLoop(bulb string, bridge Bridge, gen TargetGenerator, cfg LoopConfig, sleep Sleeper, bus *eventbus.Bus) *Loop {
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = StepInterval
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if sleep == nil {
		sleep = timerSleeper{}
	}
	return &Loop{
		bulb:      bulb,
		bridge:    bridge,
		gen:       gen,
		cfg:       cfg,
		sleep:     sleep,
		bus:       bus,
		sessionID: uuid.New(),
	}
}

// SessionID returns the unique ID assigned to this loop's session.
func (l *Loop) SessionID() uuid.UUID {
	return l.sessionID
}

// Run executes the loop until the context is cancelled or retries exhaust.
// It always attempts to restore the bulb's original state on exit; the
// returned status reports whether restoration succeeded.
func (l *Loop) Run(ctx context.Context) Status {
	original, current, ok := l.start(ctx)
	if !ok {
		// Nothing was changed on the bulb, so there is nothing to restore.
		return StatusAbandoned
	}

	log.Info().
		Str("bulb", l.bulb).
		Str("session", l.sessionID.String()).
		Bool("was_on", original.On).
		Msg("Mood loop started")

	// Fractional progress accumulators; rounded only when sending.
	hue := float64(current.Hue)
	sat := float64(current.Sat)
	bri := float64(current.Bri)

	for {
		if ctx.Err() != nil {
			return l.restore(ctx, original)
		}

		target, duration, err := l.gen.Target(l.bulb, current)
		if err != nil {
			log.Error().Err(err).Str("bulb", l.bulb).Msg("Target generator failed")
			return l.restore(ctx, original)
		}

		plan := Plan(current, target, duration)
		log.Debug().
			Str("bulb", l.bulb).
			Int("steps", plan.Steps).
			Dur("duration", duration).
			Uint16("target_hue", target.Hue).
			Uint8("target_sat", target.Sat).
			Uint8("target_bri", target.Bri).
			Msg("Starting transition")

		for step := 1; step <= plan.Steps; step++ {
			if ctx.Err() != nil {
				return l.restore(ctx, original)
			}

			hue += plan.HueStep
			sat += plan.SatStep
			bri += plan.BriStep
			current = stateFromFloats(true, hue, sat, bri)

			if err := l.writeWithRetry(ctx, current); err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Str("bulb", l.bulb).Int("step", step).
						Msg("Bridge write failed after retries, abandoning cycle")
				}
				return l.restore(ctx, original)
			}

			if err := l.sleep.Sleep(ctx, l.cfg.StepInterval); err != nil {
				return l.restore(ctx, original)
			}
		}

		// Keep the accumulators honest between cycles: the bulb now holds
		// the rounded state, not the fractional one.
		hue = float64(current.Hue)
		sat = float64(current.Sat)
		bri = float64(current.Bri)

		l.publish(eventbus.TypeCycleCompleted, map[string]any{
			"steps":    plan.Steps,
			"duration": duration.String(),
		})
	}
}

// start reads the bulb's initial state, turning it on first when needed so
// color reads and writes are not rejected by the bridge. It returns the
// captured original state and the state the first cycle interpolates from.
func (l *Loop) start(ctx context.Context) (original, current BulbState, ok bool) {
	state, err := l.readWithRetry(ctx)
	if err != nil {
		log.Error().Err(err).Str("bulb", l.bulb).Msg("Failed to read initial bulb state")
		return BulbState{}, BulbState{}, false
	}
	original = state

	if !state.On {
		if err := l.turnOnWithRetry(ctx); err != nil {
			log.Error().Err(err).Str("bulb", l.bulb).Msg("Failed to turn on bulb")
			return BulbState{}, BulbState{}, false
		}
		// Re-read color now that the bulb is on; an off bulb may report
		// stale values. The original snapshot keeps On=false.
		state, err = l.readWithRetry(ctx)
		if err != nil {
			log.Error().Err(err).Str("bulb", l.bulb).Msg("Failed to re-read bulb state after turn on")
			return BulbState{}, BulbState{}, false
		}
		original = state
		original.On = false
		state.On = true
	}

	return original, state, true
}

// restore writes the original state back, retrying once on failure.
// Runs detached from loop cancellation so a stop request cannot starve it.
func (l *Loop) restore(ctx context.Context, original BulbState) Status {
	rctx := context.WithoutCancel(ctx)

	err := l.bridge.WriteState(rctx, l.bulb, original.Clamped())
	if err != nil {
		log.Warn().Err(err).Str("bulb", l.bulb).Msg("Restore failed, retrying once")
		if serr := l.sleep.Sleep(rctx, l.cfg.RetryBackoff); serr == nil {
			err = l.bridge.WriteState(rctx, l.bulb, original.Clamped())
		}
	}
	if err != nil {
		log.Error().Err(err).Str("bulb", l.bulb).Msg("Failed to restore original state")
		return StatusAbandoned
	}

	log.Info().
		Str("bulb", l.bulb).
		Str("session", l.sessionID.String()).
		Msg("Restored original state")
	return StatusRestored
}

func (l *Loop) readWithRetry(ctx context.Context) (BulbState, error) {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := l.sleep.Sleep(ctx, l.cfg.RetryBackoff); err != nil {
				return BulbState{}, err
			}
		}
		state, err := l.bridge.ReadState(ctx, l.bulb)
		if err == nil {
			return state, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return BulbState{}, err
		}
		log.Warn().Err(err).Str("bulb", l.bulb).Int("attempt", attempt+1).Msg("Bridge read failed")
	}
	return BulbState{}, lastErr
}

func (l *Loop) writeWithRetry(ctx context.Context, state BulbState) error {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := l.sleep.Sleep(ctx, l.cfg.RetryBackoff); err != nil {
				return err
			}
		}
		err := l.bridge.WriteState(ctx, l.bulb, state.Clamped())
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		log.Warn().Err(err).Str("bulb", l.bulb).Int("attempt", attempt+1).Msg("Bridge write failed")
	}
	return lastErr
}

func (l *Loop) turnOnWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := l.sleep.Sleep(ctx, l.cfg.RetryBackoff); err != nil {
				return err
			}
		}
		err := l.bridge.TurnOn(ctx, l.bulb)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		log.Warn().Err(err).Str("bulb", l.bulb).Int("attempt", attempt+1).Msg("Bridge turn-on failed")
	}
	return lastErr
}

func (l *Loop) publish(eventType eventbus.Type, data map[string]any) {
	l.bus.Publish(eventbus.Event{
		Type:      eventType,
		SessionID: l.sessionID.String(),
		Bulb:      l.bulb,
		At:        time.Now(),
		Data:      data,
	})
}
