package stdb

import (
	"testing"
	"time"
)

func TestRng_deterministic(t *testing.T) {
	ts := TimestampFromTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	a, b := NewRng(ts), NewRng(ts)
	for range 100 {
		if x, y := a.Uint64(), b.Uint64(); x != y {
			t.Fatalf("** same seed diverged: %d != %d", x, y)
		}
	}

	c := NewRng(ts + 1)
	same := 0
	for range 100 {
		if a.Uint64() == c.Uint64() {
			same++
		}
	}
	if same > 1 {
		t.Errorf("** adjacent seeds produced %d equal values", same)
	}
}

func TestRng_ranges(t *testing.T) {
	g := NewRng(1)
	for range 1000 {
		if v := g.IntRange(1, 7); v < 1 || v >= 7 {
			t.Fatalf("** IntRange(1, 7) = %d", v)
		}
		if v := g.Int64Range(-5, -2); v < -5 || v >= -2 {
			t.Fatalf("** Int64Range(-5, -2) = %d", v)
		}
		if v := g.FloatRange(2, 3); v < 2 || v >= 3 {
			t.Fatalf("** FloatRange(2, 3) = %v", v)
		}
		if v := g.Uint64N(3); v >= 3 {
			t.Fatalf("** Uint64N(3) = %d", v)
		}
	}
}

func TestRng_fill(t *testing.T) {
	b1, b2 := make([]byte, 13), make([]byte, 13)
	NewRng(5).Fill(b1)
	NewRng(5).Fill(b2)
	deepEq(t, b1, b2)
	if string(b1) == string(make([]byte, 13)) {
		t.Errorf("** Fill left the buffer zeroed")
	}
}

func TestSample(t *testing.T) {
	g := NewRng(9)
	if _, ok := Sample[int](g, nil); ok {
		t.Errorf("** Sample of empty slice reported ok")
	}
	items := []string{"a", "b", "c"}
	for range 20 {
		v, ok := Sample(g, items)
		if !ok || (v != "a" && v != "b" && v != "c") {
			t.Fatalf("** Sample = %q, %v", v, ok)
		}
	}
	perm := g.Perm(5)
	seen := make([]bool, 5)
	for _, i := range perm {
		seen[i] = true
	}
	deepEq(t, seen, []bool{true, true, true, true, true})
}

func TestReducerContext_rngIsLazyAndSeededByTimestamp(t *testing.T) {
	ctx := &ReducerContext{Timestamp: 77}
	g := ctx.Rng()
	if ctx.Rng() != g {
		t.Fatalf("** Rng() returned a new generator on the second call")
	}
	deepEq(t, g.Uint64(), NewRng(77).Uint64())
}

func TestFromContext(t *testing.T) {
	ctx := &ReducerContext{Timestamp: 1}
	if FromContext(ctx.Context()) != ctx {
		t.Fatalf("** FromContext did not return the reducer context")
	}
}
