package game

import (
	"math"
	"testing"
	"time"
)

func TestClock_StartsAtOne(t *testing.T) {
	clock := NewClock(DefaultConfig(), 10.0)

	if got := clock.Multiplier(); got != 1.00 {
		t.Errorf("Multiplier() = %v, want 1.00", got)
	}
	if clock.Crashed() {
		t.Error("new clock reports crashed")
	}
}

func TestClock_TickStrictlyIncreases(t *testing.T) {
	clock := NewClock(DefaultConfig(), 100.0)

	prev := clock.Multiplier()
	for i := 0; i < 5000; i++ {
		value, crashed := clock.Tick()
		if crashed {
			break
		}
		if value <= prev {
			t.Fatalf("tick %d: multiplier %v did not increase from %v", i, value, prev)
		}
		if !isTwoDecimals(value) {
			t.Fatalf("tick %d: multiplier %v is not rounded to two decimals", i, value)
		}
		prev = value
	}
}

func TestClock_IncrementSlowsAsMultiplierGrows(t *testing.T) {
	cfg := DefaultConfig()

	low := cfg.IncrementK / math.Pow(1.0, cfg.IncrementP)
	high := cfg.IncrementK / math.Pow(50.0, cfg.IncrementP)
	if high >= low {
		t.Errorf("increment at 50x (%v) not smaller than at 1x (%v)", high, low)
	}
}

func TestClock_CrashLatchesAtCrashPoint(t *testing.T) {
	clock := NewClock(DefaultConfig(), 1.05)

	var crashes int
	for i := 0; i < 100; i++ {
		_, crashed := clock.Tick()
		if crashed {
			crashes++
		}
	}

	if crashes != 1 {
		t.Errorf("crash fired %d times, want exactly once", crashes)
	}
	if got := clock.Multiplier(); got != 1.05 {
		t.Errorf("final multiplier = %v, want crash point 1.05", got)
	}
	if !clock.Crashed() {
		t.Error("Crashed() = false after crash")
	}

	// Ticking a crashed clock changes nothing.
	value, crashed := clock.Tick()
	if crashed || value != 1.05 {
		t.Errorf("Tick() after crash = (%v, %v), want (1.05, false)", value, crashed)
	}
}

func TestClock_NeverExceedsCrashPoint(t *testing.T) {
	for _, crashPoint := range []float64{1.01, 1.50, 3.33, 42.00} {
		clock := NewClock(DefaultConfig(), crashPoint)
		for i := 0; i < 100000; i++ {
			value, crashed := clock.Tick()
			if value > crashPoint {
				t.Fatalf("crash point %v: multiplier overshot to %v", crashPoint, value)
			}
			if crashed {
				break
			}
		}
		if !clock.Crashed() {
			t.Errorf("crash point %v: clock never crashed", crashPoint)
		}
	}
}

func TestClock_NextInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseTick = 100 * time.Millisecond
	cfg.MidTick = 50 * time.Millisecond
	cfg.FastTick = 30 * time.Millisecond
	cfg.MidThreshold = 2.0
	cfg.FastThreshold = 5.0

	tests := []struct {
		name       string
		multiplier float64
		want       time.Duration
	}{
		{"start", 1.00, cfg.BaseTick},
		{"at mid threshold", 2.00, cfg.BaseTick},
		{"above mid threshold", 2.01, cfg.MidTick},
		{"at fast threshold", 5.00, cfg.MidTick},
		{"above fast threshold", 5.01, cfg.FastTick},
		{"deep run", 80.00, cfg.FastTick},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock(cfg, 1000.0)
			clock.multiplier = tt.multiplier
			if got := clock.NextInterval(); got != tt.want {
				t.Errorf("NextInterval() at %vx = %v, want %v", tt.multiplier, got, tt.want)
			}
		})
	}
}

func TestClock_Deterministic(t *testing.T) {
	a := NewClock(DefaultConfig(), 3.00)
	b := NewClock(DefaultConfig(), 3.00)

	for i := 0; i < 1000; i++ {
		va, ca := a.Tick()
		vb, cb := b.Tick()
		if va != vb || ca != cb {
			t.Fatalf("tick %d: clocks diverged: (%v, %v) vs (%v, %v)", i, va, ca, vb, cb)
		}
		if ca {
			break
		}
	}
}

func isTwoDecimals(v float64) bool {
	scaled := v * 100
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}
