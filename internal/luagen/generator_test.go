package luagen

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/huemood/internal/mood"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gen.lua")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestTarget(t *testing.T) {
	path := writeScript(t, `
function target(bulb, current)
	return { hue = current.hue + 1000, sat = 200, bri = 150, duration = 2.5 }
end
`)
	gen, err := New(path, 30*time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gen.Close()

	target, duration, err := gen.Target("Billy", mood.BulbState{On: true, Hue: 5000, Sat: 120, Bri: 100})
	if err != nil {
		t.Fatalf("Target() error = %v", err)
	}

	want := mood.BulbState{On: true, Hue: 6000, Sat: 200, Bri: 150}
	if target != want {
		t.Errorf("Target() = %+v, want %+v", target, want)
	}
	if duration != 2500*time.Millisecond {
		t.Errorf("Target() duration = %v, want 2.5s", duration)
	}
}

func TestTargetDurationBounds(t *testing.T) {
	path := writeScript(t, `
function target(bulb, current)
	return { hue = 0, sat = 150, bri = 10, duration = 0.01 }
end
`)
	gen, err := New(path, 30*time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gen.Close()

	_, duration, err := gen.Target("Billy", mood.BulbState{On: true})
	if err != nil {
		t.Fatalf("Target() error = %v", err)
	}
	if duration != 500*time.Millisecond {
		t.Errorf("Target() duration = %v, want floor 500ms", duration)
	}
}

func TestTargetCapsAtMaxTransition(t *testing.T) {
	path := writeScript(t, `
function target(bulb, current)
	return { hue = 0, sat = 150, bri = 10, duration = 120 }
end
`)
	gen, err := New(path, 5*time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gen.Close()

	_, duration, err := gen.Target("Billy", mood.BulbState{On: true})
	if err != nil {
		t.Fatalf("Target() error = %v", err)
	}
	if duration != 5*time.Second {
		t.Errorf("Target() duration = %v, want cap 5s", duration)
	}
}

func TestTargetMissingFieldsFallBack(t *testing.T) {
	path := writeScript(t, `
function target(bulb, current)
	return { hue = 30000 }
end
`)
	gen, err := New(path, 30*time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gen.Close()

	current := mood.BulbState{On: true, Hue: 100, Sat: 220, Bri: 90}
	target, _, err := gen.Target("Anna", current)
	if err != nil {
		t.Fatalf("Target() error = %v", err)
	}
	if target.Hue != 30000 || target.Sat != 220 || target.Bri != 90 {
		t.Errorf("Target() = %+v, want sat/bri kept from current", target)
	}
}

func TestTargetScriptError(t *testing.T) {
	path := writeScript(t, `
function target(bulb, current)
	error("boom")
end
`)
	gen, err := New(path, 30*time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gen.Close()

	if _, _, err := gen.Target("Billy", mood.BulbState{}); err == nil {
		t.Fatal("Target() error = nil, want script error")
	}
}

func TestNewRejectsMissingTargetFunction(t *testing.T) {
	path := writeScript(t, `x = 1`)
	if _, err := New(path, 30*time.Second); err == nil {
		t.Fatal("New() error = nil, want missing target function error")
	}
}
