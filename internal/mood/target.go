package mood

import (
	"math/rand"
	"sync"
	"time"
)

// Target ranges for random mood states. Saturation and brightness avoid
// the washed-out and near-dark ends of their ranges.
const (
	targetSatMin = 150
	targetBriMin = 10
)

// TargetGenerator produces the next transition target for a bulb.
// It is the only stochastic element of the engine; implementations must be
// safe for concurrent use, as every mood loop calls the shared generator.
type TargetGenerator interface {
	Target(bulb string, current BulbState) (BulbState, time.Duration, error)
}

// RandomGenerator draws uniformly random targets. The random source is
// injected so tests can supply a seeded sequence.
type RandomGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
	max time.Duration // ceiling for transition duration
}

// NewRandomGenerator creates a generator with the given random source and
// maximum transition duration. A ceiling below 500ms is raised to 500ms.
func NewRandomGenerator(rng *rand.Rand, maxTransition time.Duration) *RandomGenerator {
	min := 500 * time.Millisecond
	if maxTransition < min {
		maxTransition = min
	}
	return &RandomGenerator{rng: rng, max: maxTransition}
}

// Target returns a random target state and transition duration.
// Hue spans the full wheel; duration is uniform in [500ms, max].
func (g *RandomGenerator) Target(bulb string, current BulbState) (BulbState, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	target := BulbState{
		On:  true,
		Hue: uint16(g.rng.Intn(HueMax + 1)),
		Sat: uint8(targetSatMin + g.rng.Intn(SatMax-targetSatMin+1)),
		Bri: uint8(targetBriMin + g.rng.Intn(BriMax-targetBriMin+1)),
	}

	min := 500 * time.Millisecond
	span := g.max - min
	duration := min
	if span > 0 {
		duration += time.Duration(g.rng.Int63n(int64(span) + 1))
	}

	return target, duration, nil
}
