// Package mood implements the mood-lighting transition engine: the
// per-bulb animation loop, the transition planner and the supervisor
// that runs one loop per bulb.
package mood

import "math"

// Hue device ranges.
const (
	HueMax = 65535
	SatMax = 254
	BriMin = 1
	BriMax = 254
)

// BulbState is a snapshot of a bulb's controllable attributes.
type BulbState struct {
	On  bool
	Hue uint16 // 0..65535
	Sat uint8  // 0..254
	Bri uint8  // 1..254
}

// Clamped returns a copy of the state with all fields forced into their
// device-defined ranges. Values are clamped before every bridge write.
func (s BulbState) Clamped() BulbState {
	if s.Bri < BriMin {
		s.Bri = BriMin
	}
	return s
}

// stateFromFloats rounds float accumulators into a valid BulbState.
// The loop keeps fractional progress in float64 and only rounds here,
// so repeated rounding never accumulates drift.
func stateFromFloats(on bool, hue, sat, bri float64) BulbState {
	return BulbState{
		On:  on,
		Hue: uint16(clamp(math.Round(hue), 0, HueMax)),
		Sat: uint8(clamp(math.Round(sat), 0, SatMax)),
		Bri: uint8(clamp(math.Round(bri), BriMin, BriMax)),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
