package pool

import (
	"runtime"
	"sync"
)

// task asks a worker to evaluate f at a single index.
type task struct {
	i       int
	f       func(int) interface{}
	results []interface{}
	done    *sync.WaitGroup
}

func worker(tasks <-chan task) {
	for t := range tasks {
		t.results[t.i] = t.f(t.i)
		t.done.Done()
	}
}

// Pool is a fixed set of workers used to verify batches of fragments.
//
// Functions needing a *Pool work with a nil receiver, doing the same work on
// the calling goroutine instead.
type Pool struct {
	tasks    chan task
	workers  int
	tearDown sync.Once
}

// NewPool creates a new pool, with a certain number of workers.
//
// If count <= 0, this will use the number of available CPUs instead.
func NewPool(count int) *Pool {
	if count <= 0 {
		count = runtime.NumCPU()
	}
	p := &Pool{
		tasks:   make(chan task, count),
		workers: count,
	}
	for i := 0; i < count; i++ {
		go worker(p.tasks)
	}
	return p
}

// TearDown stops the workers. It may be called more than once.
//
// Parallelize must not be called after TearDown.
func (p *Pool) TearDown() {
	if p == nil {
		return
	}
	p.tearDown.Do(func() { close(p.tasks) })
}

// Workers returns the number of workers in the pool, 1 for a nil pool.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// Parallelize calls a function count times, passing in indices from 0..count-1.
//
// The result will be a slice containing [f(0), f(1), ..., f(count - 1)].
// f must not call Parallelize on the same pool.
func (p *Pool) Parallelize(count int, f func(int) interface{}) []interface{} {
	results := make([]interface{}, count)
	if p == nil || count <= 1 {
		for i := range results {
			results[i] = f(i)
		}
		return results
	}

	var done sync.WaitGroup
	done.Add(count)
	for i := 0; i < count; i++ {
		p.tasks <- task{i: i, f: f, results: results, done: &done}
	}
	done.Wait()
	return results
}
