package clock

import (
	"sync"
	"time"
)

// SimStep is the simulated time added per accepted tick
const SimStep = time.Hour

// Clock tracks the in-simulation timestamp. It is purely advisory display
// state: ticks advance it, nothing in the turn logic reads it for gating.
type Clock struct {
	mu        sync.Mutex
	current   time.Time
	step      time.Duration
	playing   bool
	suspended bool
}

// New creates a clock starting at the scenario start date, or wall-clock
// time if the start date is unset
func New(start time.Time, hoursPerTick int) *Clock {
	if start.IsZero() {
		start = time.Now()
	}
	step := time.Duration(hoursPerTick) * SimStep
	if step <= 0 {
		step = SimStep
	}
	return &Clock{
		current: start,
		step:    step,
		playing: true,
	}
}

// Tick advances the clock by one step if it is playing and not suspended.
// Returns whether the clock advanced.
func (c *Clock) Tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing || c.suspended {
		return false
	}
	c.current = c.current.Add(c.step)
	return true
}

// TogglePlay flips the playing flag and returns the new value
func (c *Clock) TogglePlay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.playing = !c.playing
	return c.playing
}

// SetSuspended marks the clock as suspended while the user is composing input
func (c *Clock) SetSuspended(suspended bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.suspended = suspended
}

// Now returns the current in-simulation time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

// Playing reports whether the clock is running
func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.playing
}

// Runner drives a clock on a fixed real-time cadence
type Runner struct {
	clock    *Clock
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	onTick   func(now time.Time)
}

// NewRunner creates a runner that ticks the clock every interval and
// reports advances through onTick
func NewRunner(clock *Clock, interval time.Duration, onTick func(now time.Time)) *Runner {
	return &Runner{
		clock:    clock,
		ticker:   time.NewTicker(interval),
		stopChan: make(chan struct{}),
		onTick:   onTick,
	}
}

// Start begins ticking the clock
func (r *Runner) Start() {
	go func() {
		for {
			select {
			case <-r.ticker.C:
				if r.clock.Tick() && r.onTick != nil {
					r.onTick(r.clock.Now())
				}
			case <-r.stopChan:
				return
			}
		}
	}()
}

// Stop halts the runner. Safe to call whether or not Start ever ran.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.ticker.Stop()
		close(r.stopChan)
	})
}
