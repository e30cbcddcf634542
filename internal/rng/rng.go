// Package rng provides the deterministic random stream used by matchmaking
// and bot generation. It is never used for anything security related.
package rng

import (
	"math/rand/v2"
	"strconv"
)

// Source is the subset of a random stream the generators draw from.
type Source interface {
	IntN(n int) int
	Float64() float64
}

// Stream is a seeded PCG stream. The same seed always yields the same sequence.
type Stream struct {
	r *rand.Rand
}

// New creates a stream for seed.
func New(seed uint64) *Stream {
	return &Stream{r: rand.New(rand.NewPCG(seed, 0))}
}

// IntN returns a value in [0, n). It returns 0 when n <= 0.
func (s *Stream) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return s.r.IntN(n)
}

// Float64 returns a value in [0, 1).
func (s *Stream) Float64() float64 {
	return s.r.Float64()
}

// Shuffle permutes xs in place.
func Shuffle[T any](src Source, xs []T) {
	for i := len(xs) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// BattleSeed derives the resolver seed for a run's n-th battle. The hash is
// order dependent over "runID:n" and folded into a non-negative int32 range.
func BattleSeed(runID string, battleNumber int) uint32 {
	var h int32
	for _, c := range runID + ":" + strconv.Itoa(battleNumber) {
		h = 31*h + int32(c)
	}
	return uint32(h) & 0x7fffffff
}
