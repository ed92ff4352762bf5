package stdb

import (
	"encoding/binary"
	"math/rand/v2"
)

// rngStream selects the PCG stream; together with the seed it fixes the
// sequence, so changing it changes every reducer's random output.
const rngStream = 0x5354_4442_5f52_4e47

// Rng is a deterministic generator seeded by a reducer call's timestamp.
// Replaying a call with the same timestamp yields the same values.
type Rng struct {
	src *rand.PCG
	r   *rand.Rand
}

func NewRng(seed Timestamp) *Rng {
	src := rand.NewPCG(seed.Micros(), rngStream)
	return &Rng{src: src, r: rand.New(src)}
}

func (g *Rng) Uint32() uint32 {
	return g.r.Uint32()
}

func (g *Rng) Uint64() uint64 {
	return g.r.Uint64()
}

// IntN returns a value in [0, n). It panics if n <= 0.
func (g *Rng) IntN(n int) int {
	return g.r.IntN(n)
}

// IntRange returns a value in [lo, hi). It panics if hi <= lo.
func (g *Rng) IntRange(lo, hi int) int {
	return lo + g.r.IntN(hi-lo)
}

func (g *Rng) Int64Range(lo, hi int64) int64 {
	return lo + g.r.Int64N(hi-lo)
}

func (g *Rng) Uint64N(n uint64) uint64 {
	return g.r.Uint64N(n)
}

// Float64 returns a value in [0, 1).
func (g *Rng) Float64() float64 {
	return g.r.Float64()
}

// FloatRange returns a value in [lo, hi).
func (g *Rng) FloatRange(lo, hi float64) float64 {
	return lo + g.r.Float64()*(hi-lo)
}

func (g *Rng) Bool() bool {
	return g.r.Uint64()&1 == 1
}

// Fill overwrites b with random bytes.
func (g *Rng) Fill(b []byte) {
	for len(b) >= 8 {
		binary.LittleEndian.PutUint64(b, g.r.Uint64())
		b = b[8:]
	}
	if len(b) > 0 {
		var tail [8]byte
		binary.LittleEndian.PutUint64(tail[:], g.r.Uint64())
		copy(b, tail[:])
	}
}

func (g *Rng) Shuffle(n int, swap func(i, j int)) {
	g.r.Shuffle(n, swap)
}

func (g *Rng) Perm(n int) []int {
	return g.r.Perm(n)
}

// Sample returns a random element of items, or false if items is empty.
func Sample[T any](g *Rng, items []T) (T, bool) {
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[g.r.IntN(len(items))], true
}
