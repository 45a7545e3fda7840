package mood

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huemood/internal/eventbus"
)

// Supervisor launches one mood loop per bulb and coordinates cooperative
// shutdown: on stop it signals every loop and waits (bounded) for each to
// restore its bulb's original state.
type Supervisor struct {
	bridge    Bridge
	gen       TargetGenerator
	cfg       LoopConfig
	stopGrace time.Duration
	sleep     Sleeper
	bus       *eventbus.Bus

	mu       sync.Mutex
	statuses map[string]Status
	cancel   context.CancelFunc
	started  bool

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// NewSupervisor creates a supervisor. A nil sleeper selects the real clock;
// a nil bus disables event publishing.
func NewSupervisor(bridge Bridge, gen TargetGenerator, cfg LoopConfig, stopGrace time.Duration, sleep Sleeper, bus *eventbus.Bus) *Supervisor {
	if stopGrace <= 0 {
		stopGrace = 10 * time.Second
	}
	return &Supervisor{
		bridge:    bridge,
		gen:       gen,
		cfg:       cfg,
		stopGrace: stopGrace,
		sleep:     sleep,
		bus:       bus,
		statuses:  make(map[string]Status),
		done:      make(chan struct{}),
	}
}

// Start launches one loop goroutine per bulb. Loops run independently and
// never share mutable state; each bulb's state is disjoint.
func (s *Supervisor) Start(ctx context.Context, bulbs []string) error {
	if len(bulbs) == 0 {
		return fmt.Errorf("no bulbs to control")
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already started")
	}
	s.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, bulb := range bulbs {
		s.statuses[bulb] = StatusRunning
	}
	s.mu.Unlock()

	for _, bulb := range bulbs {
		loop := NewLoop(bulb, s.bridge, s.gen, s.cfg, s.sleep, s.bus)

		s.bus.Publish(eventbus.Event{
			Type:      eventbus.TypeSessionStarted,
			SessionID: loop.SessionID().String(),
			Bulb:      bulb,
			At:        time.Now(),
		})

		s.wg.Add(1)
		go func(bulb string, loop *Loop) {
			defer s.wg.Done()

			status := loop.Run(loopCtx)

			s.mu.Lock()
			s.statuses[bulb] = status
			s.mu.Unlock()

			eventType := eventbus.TypeSessionRestored
			if status != StatusRestored {
				eventType = eventbus.TypeSessionAbandoned
			}
			s.bus.Publish(eventbus.Event{
				Type:      eventType,
				SessionID: loop.SessionID().String(),
				Bulb:      bulb,
				At:        time.Now(),
			})
		}(bulb, loop)
	}

	go func() {
		s.wg.Wait()
		close(s.done)
	}()

	log.Info().Strs("bulbs", bulbs).Msg("Mood loops started")
	return nil
}

// StopAll signals every loop to stop and waits for restoration, bounded by
// the grace timeout. Loops exceeding the grace period are abandoned and
// logged rather than blocking shutdown forever. Safe to call multiple
// times; repeated calls are no-ops.
func (s *Supervisor) StopAll() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel == nil {
			return
		}

		log.Info().Msg("Stopping mood loops, restoring bulbs")
		cancel()

		select {
		case <-s.done:
			log.Info().Msg("All mood loops finished")
		case <-time.After(s.stopGrace):
			for bulb, status := range s.Statuses() {
				if status == StatusRunning {
					log.Warn().Str("bulb", bulb).Msg("Mood loop did not finish within grace period, abandoning")
				}
			}
		}
	})
}

// Wait blocks until every loop has terminated.
func (s *Supervisor) Wait() {
	<-s.done
}

// Done returns a channel closed once every loop has terminated.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Statuses returns a snapshot of per-bulb session statuses.
func (s *Supervisor) Statuses() map[string]Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Status, len(s.statuses))
	for bulb, status := range s.statuses {
		out[bulb] = status
	}
	return out
}

// Report logs the terminal status of every session. A single abandoned
// session is reported but never treated as fatal to the run.
func (s *Supervisor) Report() {
	restored, abandoned := 0, 0
	for bulb, status := range s.Statuses() {
		switch status {
		case StatusRestored:
			restored++
		case StatusAbandoned:
			abandoned++
			log.Warn().Str("bulb", bulb).Msg("Session ended without restoration")
		}
	}
	log.Info().Int("restored", restored).Int("abandoned", abandoned).Msg("Mood run finished")
}
