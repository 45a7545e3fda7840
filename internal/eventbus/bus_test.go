package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewWithConfig(2, 10)
	defer bus.Close(context.Background())

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})

	bus.Subscribe(TypeSessionStarted, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		close(done)
	})

	bus.Publish(Event{Type: TypeSessionStarted, Bulb: "Billy", SessionID: "s1"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Bulb != "Billy" {
		t.Errorf("got events %+v, want one Billy event", got)
	}
}

func TestSubscribeAllSeesEveryType(t *testing.T) {
	bus := NewWithConfig(1, 10)

	var mu sync.Mutex
	seen := make(map[Type]int)
	var wg sync.WaitGroup

	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		seen[e.Type]++
		mu.Unlock()
		wg.Done()
	})

	types := []Type{TypeSessionStarted, TypeCycleCompleted, TypeSessionRestored, TypeSessionAbandoned}
	wg.Add(len(types))
	for _, typ := range types {
		bus.Publish(Event{Type: typ, Bulb: "Anna"})
	}
	wg.Wait()
	bus.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	for _, typ := range types {
		if seen[typ] != 1 {
			t.Errorf("type %s seen %d times, want 1", typ, seen[typ])
		}
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	bus := NewWithConfig(1, 10)

	invoked := false
	bus.Subscribe(TypeSessionRestored, func(Event) { invoked = true })

	bus.Close(context.Background())
	bus.Publish(Event{Type: TypeSessionRestored, Bulb: "Billy"})

	if invoked {
		t.Error("handler invoked after close")
	}
}

func TestHandlerPanicDoesNotKillWorkers(t *testing.T) {
	bus := NewWithConfig(1, 10)
	defer bus.Close(context.Background())

	done := make(chan struct{})
	bus.Subscribe(TypeSessionStarted, func(Event) { panic("boom") })
	bus.Subscribe(TypeCycleCompleted, func(Event) { close(done) })

	bus.Publish(Event{Type: TypeSessionStarted})
	bus.Publish(Event{Type: TypeCycleCompleted})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after handler panic")
	}
}

func TestPublishAfterCloseNeverPanics(t *testing.T) {
	// Publish must drop, not race the queue teardown, no matter how the
	// scheduler interleaves Close and Publish.
	for i := 0; i < 200; i++ {
		bus := NewWithConfig(1, 1)
		bus.Subscribe(TypeSessionStarted, func(Event) {})
		bus.Close(context.Background())
		bus.Publish(Event{Type: TypeSessionStarted, Bulb: "Billy"})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := NewWithConfig(1, 10)
	bus.Close(context.Background())
	bus.Close(context.Background())
}

func TestNilBusIsNoOp(t *testing.T) {
	var bus *Bus
	bus.Publish(Event{Type: TypeSessionStarted})
	bus.Close(context.Background())
}
