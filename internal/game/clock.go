package game

import (
	"math"
	"time"
)

// Clock owns the multiplier for one active round. It is not safe for
// concurrent use; the game loop is its only caller.
type Clock struct {
	cfg        Config
	multiplier float64
	crashPoint float64
	crashed    bool
}

func NewClock(cfg Config, crashPoint float64) *Clock {
	return &Clock{
		cfg:        cfg,
		multiplier: 1.00,
		crashPoint: crashPoint,
	}
}

// Multiplier returns the last reported value. Reported values are rounded to
// two decimals and are the authoritative numbers for payouts and the crash
// check.
func (c *Clock) Multiplier() float64 {
	return c.multiplier
}

func (c *Clock) CrashPoint() float64 {
	return c.crashPoint
}

func (c *Clock) Crashed() bool {
	return c.crashed
}

// Tick advances the multiplier by k/m^p and reports the new value plus
// whether this tick crossed the crash point. The crash fires at most once;
// ticking a crashed clock is a no-op.
func (c *Clock) Tick() (float64, bool) {
	if c.crashed {
		return c.multiplier, false
	}

	increment := c.cfg.IncrementK / math.Pow(c.multiplier, c.cfg.IncrementP)
	next := round2(c.multiplier + increment)
	// Rounding must never stall the climb.
	if next <= c.multiplier {
		next = round2(c.multiplier + 0.01)
	}

	if next >= c.crashPoint {
		c.multiplier = c.crashPoint
		c.crashed = true
		return c.multiplier, true
	}

	c.multiplier = next
	return c.multiplier, false
}

// NextInterval maps the current multiplier to the delay before the next
// tick. The pace quickens past the configured thresholds; the new cadence
// only applies from the next scheduled tick.
func (c *Clock) NextInterval() time.Duration {
	switch {
	case c.multiplier > c.cfg.FastThreshold:
		return c.cfg.FastTick
	case c.multiplier > c.cfg.MidThreshold:
		return c.cfg.MidTick
	default:
		return c.cfg.BaseTick
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
