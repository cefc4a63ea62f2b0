package game

import "testing"

func TestRandomCrashPoint_Range(t *testing.T) {
	for i := 0; i < 10000; i++ {
		cp := RandomCrashPoint()
		if cp < 1.01 {
			t.Fatalf("RandomCrashPoint() = %v, below floor 1.01", cp)
		}
		if cp > 100.0 {
			t.Fatalf("RandomCrashPoint() = %v, above ceiling 100", cp)
		}
		if !isTwoDecimals(cp) {
			t.Fatalf("RandomCrashPoint() = %v, not rounded to two decimals", cp)
		}
	}
}

func TestRandomCrashPoint_CoversTiers(t *testing.T) {
	var low, mid, high int
	for i := 0; i < 10000; i++ {
		switch cp := RandomCrashPoint(); {
		case cp < 2.0:
			low++
		case cp < 5.0:
			mid++
		default:
			high++
		}
	}

	// The distribution is tiered; every band must be reachable and the
	// sub-2x band must dominate.
	if low == 0 || mid == 0 || high == 0 {
		t.Fatalf("tier counts low=%d mid=%d high=%d, want all nonzero", low, mid, high)
	}
	if low <= mid || low <= high {
		t.Errorf("sub-2x tier (%d) should outnumber mid (%d) and high (%d)", low, mid, high)
	}
}
