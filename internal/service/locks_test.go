package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	var a, b int
	counter := map[string]*int{"a": &a, "b": &b}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := []string{"a", "b"}[i%2]
			unlock := k.Lock(key)
			*counter[key]++
			unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, a)
	assert.Equal(t, 25, b)
	assert.Zero(t, k.size())
}
