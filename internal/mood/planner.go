package mood

import (
	"math"
	"time"
)

// StepInterval is the fixed delay between interpolation steps.
const StepInterval = 100 * time.Millisecond

// TransitionPlan holds the step count and per-step increments for one
// color/brightness transition. Increments are kept in floating point;
// the loop accumulates them and rounds only when sending to the bridge.
type TransitionPlan struct {
	Steps   int
	HueStep float64
	SatStep float64
	BriStep float64
}

// Plan computes a transition plan from current to target over the given
// duration. Degenerate durations (<= 0) collapse to a single immediate jump.
func Plan(current, target BulbState, duration time.Duration) TransitionPlan {
	steps := int(math.Round(duration.Seconds() / StepInterval.Seconds()))
	if steps < 1 {
		steps = 1
	}

	return TransitionPlan{
		Steps:   steps,
		HueStep: (float64(target.Hue) - float64(current.Hue)) / float64(steps),
		SatStep: (float64(target.Sat) - float64(current.Sat)) / float64(steps),
		BriStep: (float64(target.Bri) - float64(current.Bri)) / float64(steps),
	}
}
