package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Type represents the type of session event
type Type string

const (
	TypeSessionStarted   Type = "session_started"
	TypeCycleCompleted   Type = "cycle_completed"
	TypeSessionRestored  Type = "session_restored"
	TypeSessionAbandoned Type = "session_abandoned"
)

// Default configuration
const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 100
)

// Event is a mood session lifecycle event
type Event struct {
	Type      Type
	SessionID string
	Bulb      string
	At        time.Time
	Data      map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// work represents a unit of work for the worker pool
type work struct {
	event   Event
	handler Handler
}

// Bus routes session events to subscribers through a bounded worker pool,
// keeping slow sinks (sqlite, MQTT) off the mood loops' step timing.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	closed   bool

	// Worker pool
	workQueue chan work
	wg        sync.WaitGroup

	closeOnce sync.Once
}

// New creates a new event bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	b := &Bus{
		handlers:  make(map[Type][]Handler),
		workQueue: make(chan work, queueSize),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

// worker processes events from the work queue
func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every session event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, t := range []Type{TypeSessionStarted, TypeCycleCompleted, TypeSessionRestored, TypeSessionAbandoned} {
		b.Subscribe(t, handler)
	}
}

// Publish sends an event to all subscribed handlers.
// Non-blocking: if the work queue is full or the bus is closed, events are
// dropped. A nil bus is a no-op so callers can run without event sinks.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}

	// The read lock covers the send: Close flips closed under the write
	// lock before closing the queue, so no publisher can be mid-send when
	// the queue closes.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		log.Warn().Str("event_type", string(event.Type)).Msg("Event bus closed, dropping event")
		return
	}

	for _, handler := range b.handlers[event.Type] {
		select {
		case b.workQueue <- work{event: event, handler: handler}:
			// Successfully queued
		default:
			// Queue full - drop event with warning
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// Close shuts down the worker pool gracefully. Safe to call more than once.
func (b *Bus) Close(ctx context.Context) {
	if b == nil {
		return
	}

	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		// No publisher can reach the queue past this point.
		close(b.workQueue)
	})

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}
