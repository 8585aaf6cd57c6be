// Public domain.

// Package workpool runs data parallel loops on a fixed set of goroutines.
//
// The workers are started once and live until Close.  Each call to Do
// hands the workers chunks of an index range and waits until every chunk
// is done, one barrier per call.  Work functions learn the index of the
// worker running them so that each worker can own a scratch workspace.
package workpool

import (
	"runtime"
	"sync"
)

// Pool is a set of worker goroutines.
type Pool struct {
	n     int
	tasks chan task
	once  sync.Once
}

type task struct {
	lo, hi int
	fn     func(worker, i int)
	done   *sync.WaitGroup
}

// New starts a pool of n workers.  n < 1 means GOMAXPROCS.
func New(n int) *Pool {
	if n < 1 {
		n = runtime.GOMAXPROCS(0)
	}
	p := &Pool{n: n, tasks: make(chan task, n)}
	for w := 0; w < n; w++ {
		go p.work(w)
	}
	return p
}

func (p *Pool) work(w int) {
	for t := range p.tasks {
		for i := t.lo; i < t.hi; i++ {
			t.fn(w, i)
		}
		t.done.Done()
	}
}

// Workers returns the number of workers, the range of the worker argument
// of work functions.
func (p *Pool) Workers() int { return p.n }

// Do calls fn(worker, i) for every i in [0, n) and returns when all calls
// have returned.  Calls for different i may run concurrently.  fn must not
// call Do on the same pool.
func (p *Pool) Do(n int, fn func(worker, i int)) {
	if n <= 0 {
		return
	}
	// a few chunks per worker so a slow chunk does not hold up the rest
	chunk := (n + 4*p.n - 1) / (4 * p.n)
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		p.tasks <- task{lo, hi, fn, &wg}
	}
	wg.Wait()
}

// Close stops the workers.  The pool must not be used after Close.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.tasks) })
}
