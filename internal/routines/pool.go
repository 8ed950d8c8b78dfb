// Package routines provides a bounded pool of goroutines.
package routines

import (
	"sync"
)

// Pool runs queued functions with a fixed number of worker goroutines.
type Pool struct {
	workCh   chan func()
	wg       sync.WaitGroup
	closeMu  sync.Mutex
	isClosed bool
}

// NewPool creates a pool and starts workers go-routines.
func NewPool(workers int) *Pool {
	if workers < 1 {
		panic("workers must be >=1")
	}

	p := Pool{
		workCh: make(chan func()),
	}

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}

	return &p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for fn := range p.workCh {
		fn()
	}
}

// Queue schedules fn for execution. It blocks until a worker is available.
// Calling Queue after Wait panics.
func (p *Pool) Queue(fn func()) {
	p.closeMu.Lock()
	closed := p.isClosed
	p.closeMu.Unlock()

	if closed {
		panic("Queue called on pool that was terminated with Wait()")
	}

	p.workCh <- fn
}

// Wait waits until all queued functions were executed and terminates the
// workers. It must not be called concurrently with Queue.
func (p *Pool) Wait() {
	p.closeMu.Lock()
	if !p.isClosed {
		p.isClosed = true
		close(p.workCh)
	}
	p.closeMu.Unlock()

	p.wg.Wait()
}
