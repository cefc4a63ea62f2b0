package game

import (
	"math"
	"math/rand/v2"
)

// RandomCrashPoint draws a crash point from a tiered distribution weighted
// towards low multipliers:
//
//	50%  1x-2x
//	35%  2x-5x
//	13%  5x-10x
//	 2%  10x-100x
//
// The result is rounded to two decimals and floored at 1.01 so every round
// survives at least one tick. There is no cryptographic commitment; the
// point is generated server-side at round creation and revealed on crash.
func RandomCrashPoint() float64 {
	r := rand.Float64()

	var crashPoint float64
	switch {
	case r < 0.02:
		crashPoint = 10 + rand.Float64()*90
	case r < 0.15:
		crashPoint = 5 + rand.Float64()*5
	case r < 0.50:
		crashPoint = 2 + rand.Float64()*3
	default:
		crashPoint = 1 + rand.Float64()
	}

	crashPoint = math.Round(crashPoint*100) / 100
	if crashPoint < 1.01 {
		crashPoint = 1.01
	}
	return crashPoint
}
