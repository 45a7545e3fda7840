// Package bridge wraps the Hue bridge HTTP API behind the narrow surface
// the mood engine consumes: read, write and list bulbs by name.
package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/huemood/internal/mood"
)

// ExtendedColorLight is the bulb type used when discovering mood-capable
// bulbs without an explicit list.
const ExtendedColorLight = "Extended color light"

// Client talks to a Hue bridge. It is safe for concurrent use by multiple
// mood loops: the underlying huego bridge holds no per-call state, and all
// writes share one rate limiter so concurrent loops cannot flood the bridge.
type Client struct {
	bridge  *huego.Bridge
	address string
	timeout time.Duration
	limiter *rate.Limiter

	mu  sync.RWMutex
	ids map[string]int // lowercased bulb name -> light ID
}

// NewClient creates a Hue bridge client. Every call is bounded by timeout;
// writes are throttled to writeRPS requests per second across all callers.
func NewClient(address, token string, timeout time.Duration, writeRPS float64) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if writeRPS <= 0 {
		writeRPS = 20.0
	}

	return &Client{
		bridge:  huego.New(address, token),
		address: address,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(writeRPS), int(writeRPS)),
		ids:     make(map[string]int),
	}
}

// Connect verifies bridge reachability and primes the name index.
func (c *Client) Connect(ctx context.Context) error {
	lights, err := c.fetchLights(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Hue bridge: %w", err)
	}

	log.Info().Str("address", c.address).Int("lights", len(lights)).Msg("Connected to Hue bridge")
	return nil
}

// Lights returns all lights known to the bridge.
func (c *Client) Lights(ctx context.Context) ([]huego.Light, error) {
	return c.fetchLights(ctx)
}

// ListBulbs returns the names of all lights whose type matches typeFilter.
// An empty filter returns every light.
func (c *Client) ListBulbs(ctx context.Context, typeFilter string) ([]string, error) {
	lights, err := c.fetchLights(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, light := range lights {
		if typeFilter == "" || strings.EqualFold(light.Type, typeFilter) {
			names = append(names, light.Name)
		}
	}
	return names, nil
}

// ReadState returns the current state of the named bulb.
func (c *Client) ReadState(ctx context.Context, bulb string) (mood.BulbState, error) {
	id, err := c.resolveID(ctx, bulb)
	if err != nil {
		return mood.BulbState{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	light, err := c.bridge.GetLightContext(callCtx, id)
	if err != nil {
		return mood.BulbState{}, classify("read", bulb, err)
	}
	if light.State == nil {
		return mood.BulbState{}, fmt.Errorf("%w: read %q: missing state", ErrInvalidResponse, bulb)
	}

	return mood.BulbState{
		On:  light.State.On,
		Hue: light.State.Hue,
		Sat: light.State.Sat,
		Bri: light.State.Bri,
	}, nil
}

// WriteState applies the given state to the named bulb. One network call
// per invocation; no batching.
func (c *Client) WriteState(ctx context.Context, bulb string, state mood.BulbState) error {
	id, err := c.resolveID(ctx, bulb)
	if err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = c.bridge.SetLightStateContext(callCtx, id, huego.State{
		On:  state.On,
		Hue: state.Hue,
		Sat: state.Sat,
		Bri: state.Bri,
	})
	if err != nil {
		return classify("write", bulb, err)
	}
	return nil
}

// TurnOn powers the named bulb on without touching its color, so color
// writes that follow are not rejected for targeting an off bulb.
func (c *Client) TurnOn(ctx context.Context, bulb string) error {
	id, err := c.resolveID(ctx, bulb)
	if err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = c.bridge.SetLightStateContext(callCtx, id, huego.State{On: true})
	if err != nil {
		return classify("turn_on", bulb, err)
	}
	return nil
}

// resolveID maps a human-readable bulb name to its bridge light ID,
// case-insensitively. Resolutions are cached; a miss refreshes the index
// once before giving up, so renamed bulbs are picked up.
func (c *Client) resolveID(ctx context.Context, bulb string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(bulb))

	c.mu.RLock()
	id, ok := c.ids[key]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	if _, err := c.fetchLights(ctx); err != nil {
		return 0, err
	}

	c.mu.RLock()
	id, ok = c.ids[key]
	c.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, bulb)
	}
	return id, nil
}

func (c *Client) fetchLights(ctx context.Context) ([]huego.Light, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	lights, err := c.bridge.GetLightsContext(callCtx)
	if err != nil {
		return nil, classify("list", "", err)
	}

	c.mu.Lock()
	for _, light := range lights {
		c.ids[strings.ToLower(strings.TrimSpace(light.Name))] = light.ID
	}
	c.mu.Unlock()

	return lights, nil
}
