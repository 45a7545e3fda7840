// Package luagen implements a scripted target generator. A Lua script
// defines target(bulb, current) and returns the next color target and
// transition duration, replacing the built-in random generator.
package luagen

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/huemood/internal/config"
	"github.com/dokzlo13/huemood/internal/mood"
)

// Generator runs a user Lua script to produce per-bulb targets. The Lua VM
// is not goroutine-safe, so calls from concurrent mood loops are serialized.
type Generator struct {
	mu sync.Mutex
	L  *lua.LState
	fn *lua.LFunction

	maxTransition time.Duration
}

// New loads the script at path and returns a generator. The script must
// define a global function target(bulb, current) returning a table with
// hue, sat, bri and duration (seconds) fields.
func New(path string, maxTransition time.Duration) (*Generator, error) {
	L := lua.NewState()

	L.PreloadModule("log", logLoader)

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load Lua script: %w", err)
	}

	fn, ok := L.GetGlobal("target").(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("script %q does not define a target function", path)
	}

	log.Info().Str("script", path).Msg("Lua target generator loaded")
	return &Generator{L: L, fn: fn, maxTransition: maxTransition}, nil
}

// Target calls the script's target function for the given bulb.
func (g *Generator) Target(bulb string, current mood.BulbState) (mood.BulbState, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	currentTbl := g.L.NewTable()
	g.L.SetField(currentTbl, "on", lua.LBool(current.On))
	g.L.SetField(currentTbl, "hue", lua.LNumber(current.Hue))
	g.L.SetField(currentTbl, "sat", lua.LNumber(current.Sat))
	g.L.SetField(currentTbl, "bri", lua.LNumber(current.Bri))

	g.L.Push(g.fn)
	g.L.Push(lua.LString(bulb))
	g.L.Push(currentTbl)

	if err := g.L.PCall(2, 1, nil); err != nil {
		return mood.BulbState{}, 0, fmt.Errorf("lua target function failed: %w", err)
	}

	result := g.L.Get(-1)
	g.L.Pop(1)

	tbl, ok := result.(*lua.LTable)
	if !ok {
		return mood.BulbState{}, 0, fmt.Errorf("lua target function returned %s, want table", result.Type())
	}

	// Clamp before the integer conversion so out-of-range script values
	// saturate instead of wrapping.
	target := mood.BulbState{
		On:  true,
		Hue: uint16(clamp(numberField(tbl, "hue", float64(current.Hue)), 0, mood.HueMax)),
		Sat: uint8(clamp(numberField(tbl, "sat", float64(current.Sat)), 0, mood.SatMax)),
		Bri: uint8(clamp(numberField(tbl, "bri", float64(current.Bri)), mood.BriMin, mood.BriMax)),
	}

	seconds := numberField(tbl, "duration", 1.0)
	duration := time.Duration(seconds * float64(time.Second))
	if duration < config.MinTransition {
		duration = config.MinTransition
	}
	if g.maxTransition > 0 && duration > g.maxTransition {
		duration = g.maxTransition
	}

	return target, duration, nil
}

// Close releases the Lua VM.
func (g *Generator) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.L.Close()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func numberField(tbl *lua.LTable, key string, fallback float64) float64 {
	if n, ok := tbl.RawGetString(key).(lua.LNumber); ok {
		return float64(n)
	}
	return fallback
}

// logLoader exposes a minimal log module to scripts.
func logLoader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "debug", L.NewFunction(func(L *lua.LState) int {
		log.Debug().Str("source", "lua").Msg(L.CheckString(1))
		return 0
	}))
	L.SetField(mod, "info", L.NewFunction(func(L *lua.LState) int {
		log.Info().Str("source", "lua").Msg(L.CheckString(1))
		return 0
	}))
	L.SetField(mod, "warn", L.NewFunction(func(L *lua.LState) int {
		log.Warn().Str("source", "lua").Msg(L.CheckString(1))
		return 0
	}))
	L.SetField(mod, "error", L.NewFunction(func(L *lua.LState) int {
		log.Error().Str("source", "lua").Msg(L.CheckString(1))
		return 0
	}))

	L.Push(mod)
	return 1
}
