package mood

import (
	"context"
	"testing"
	"time"
)

// Two concurrent loops never cross their planned values: every write issued
// for a bulb stays on that bulb's own trajectory.
func TestSupervisorConcurrencyIsolation(t *testing.T) {
	bridge := newFakeBridge(map[string]BulbState{
		"Anna":  {On: true, Hue: 0, Sat: 200, Bri: 100},
		"Billy": {On: true, Hue: 50000, Sat: 200, Bri: 100},
	})
	gen := &fixedGenerator{
		targets: map[string]BulbState{
			"Anna":  {On: true, Hue: 1000, Sat: 200, Bri: 100},
			"Billy": {On: true, Hue: 60000, Sat: 200, Bri: 100},
		},
		duration: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeper := &fakeSleeper{cancelAfter: 50, cancel: cancel}

	sup := NewSupervisor(bridge, gen, testLoopConfig(), 5*time.Second, sleeper, nil)
	if err := sup.Start(ctx, []string{"Anna", "Billy"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sup.Wait()

	annaWrites := bridge.writesFor("Anna")
	billyWrites := bridge.writesFor("Billy")
	if len(annaWrites) == 0 || len(billyWrites) == 0 {
		t.Fatalf("expected writes for both bulbs, got anna=%d billy=%d", len(annaWrites), len(billyWrites))
	}

	for _, w := range annaWrites {
		if w.state.Hue > 1000 {
			t.Errorf("Anna received hue %d from Billy's range", w.state.Hue)
		}
	}
	for _, w := range billyWrites {
		if w.state.Hue < 50000 {
			t.Errorf("Billy received hue %d from Anna's range", w.state.Hue)
		}
	}

	for bulb, status := range sup.Statuses() {
		if status != StatusRestored {
			t.Errorf("bulb %s status = %v, want restored", bulb, status)
		}
	}
}

// StopAll on an already-stopped supervisor is a no-op: no error and no
// second restore write.
func TestSupervisorStopAllIdempotent(t *testing.T) {
	original := BulbState{On: true, Hue: 123, Sat: 45, Bri: 67}
	bridge := newFakeBridge(map[string]BulbState{"Anna": original})
	gen := &fixedGenerator{targets: map[string]BulbState{"Anna": {On: true, Hue: 500, Sat: 45, Bri: 67}}, duration: time.Second}

	sup := NewSupervisor(bridge, gen, testLoopConfig(), 5*time.Second, &fakeSleeper{}, nil)
	if err := sup.Start(context.Background(), []string{"Anna"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sup.StopAll()
	sup.Wait()
	writesAfterFirst := len(bridge.writesFor("Anna"))

	sup.StopAll()
	if got := len(bridge.writesFor("Anna")); got != writesAfterFirst {
		t.Errorf("second StopAll issued %d extra writes", got-writesAfterFirst)
	}

	writes := bridge.writesFor("Anna")
	if last := writes[len(writes)-1].state; last != original {
		t.Errorf("final state = %+v, want %+v", last, original)
	}
	if status := sup.Statuses()["Anna"]; status != StatusRestored {
		t.Errorf("status = %v, want restored", status)
	}
}

// A single bulb's persistent failure does not corrupt or stop the other
// bulb's loop; the supervisor reports mixed terminal statuses.
func TestSupervisorIsolatesFailures(t *testing.T) {
	bridge := newFakeBridge(map[string]BulbState{
		"Anna": {On: true, Hue: 100, Sat: 100, Bri: 100},
	})
	gen := &fixedGenerator{
		targets: map[string]BulbState{
			"Anna":  {On: true, Hue: 200, Sat: 100, Bri: 100},
			"Ghost": {On: true, Hue: 300, Sat: 100, Bri: 100},
		},
		duration: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeper := &fakeSleeper{cancelAfter: 30, cancel: cancel}

	sup := NewSupervisor(bridge, gen, testLoopConfig(), 5*time.Second, sleeper, nil)
	// Ghost is not on the bridge; its reads fail and the session abandons.
	if err := sup.Start(ctx, []string{"Anna", "Ghost"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sup.Wait()

	statuses := sup.Statuses()
	if statuses["Ghost"] != StatusAbandoned {
		t.Errorf("Ghost status = %v, want abandoned", statuses["Ghost"])
	}
	if statuses["Anna"] != StatusRestored {
		t.Errorf("Anna status = %v, want restored", statuses["Anna"])
	}
	if len(bridge.writesFor("Anna")) == 0 {
		t.Error("Anna's loop issued no writes")
	}
}

func TestSupervisorRejectsEmptyBulbList(t *testing.T) {
	sup := NewSupervisor(newFakeBridge(nil), &fixedGenerator{}, testLoopConfig(), time.Second, &fakeSleeper{}, nil)
	if err := sup.Start(context.Background(), nil); err == nil {
		t.Fatal("Start() with no bulbs succeeded, want error")
	}
}
