package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamIsReproducible(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
		assert.Equal(t, a.Float64(), b.Float64())
	}

	x, y := New(42), New(43)
	var xs, ys []int
	for i := 0; i < 20; i++ {
		xs = append(xs, x.IntN(1<<30))
		ys = append(ys, y.IntN(1<<30))
	}
	assert.NotEqual(t, xs, ys)
}

func TestIntNBounds(t *testing.T) {
	s := New(7)
	assert.Equal(t, 0, s.IntN(0))
	assert.Equal(t, 0, s.IntN(-3))
	for i := 0; i < 200; i++ {
		v := s.IntN(5)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 5)
	}
}

func TestShuffleKeepsElements(t *testing.T) {
	xs := []string{"a", "b", "c", "d", "e", "f"}
	ys := append([]string(nil), xs...)
	Shuffle(New(1), ys)
	assert.ElementsMatch(t, xs, ys)

	zs := append([]string(nil), xs...)
	Shuffle(New(1), zs)
	assert.Equal(t, ys, zs)
}

func TestBattleSeed(t *testing.T) {
	// "a:1" = ((97*31)+58)*31+49
	assert.Equal(t, uint32(95064), BattleSeed("a", 1))

	assert.Equal(t, BattleSeed("run-1", 3), BattleSeed("run-1", 3))
	assert.NotEqual(t, BattleSeed("run-1", 3), BattleSeed("run-1", 4))
	assert.NotEqual(t, BattleSeed("ab", 1), BattleSeed("ba", 1))

	long := BattleSeed("a-very-long-run-identifier-that-overflows-int32-many-times", 12)
	assert.LessOrEqual(t, long, uint32(0x7fffffff))
}
