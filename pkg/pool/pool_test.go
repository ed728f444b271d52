package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelize(t *testing.T) {
	square := func(i int) interface{} { return i * i }

	for _, pl := range []*Pool{nil, NewPool(0), NewPool(3)} {
		results := pl.Parallelize(50, square)
		assert.Len(t, results, 50)
		for i, r := range results {
			assert.Equal(t, i*i, r)
		}
		assert.GreaterOrEqual(t, pl.Workers(), 1)
		pl.TearDown()
	}
}

func TestPool_Concurrent(t *testing.T) {
	pl := NewPool(2)
	defer pl.TearDown()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			results := pl.Parallelize(20, func(i int) interface{} { return i + offset })
			for i, r := range results {
				assert.Equal(t, i+offset, r)
			}
		}(g * 100)
	}
	wg.Wait()

	pl.TearDown()
	assert.Empty(t, pl.Parallelize(0, func(int) interface{} { return nil }))
}
