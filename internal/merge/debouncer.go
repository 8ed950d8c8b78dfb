package merge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

// Debouncer coalesces evaluation requests per pull request.
// The first Schedule call for a pull request starts a timer, further calls
// until it expires have no effect. When it expires the evaluation function
// is run. Schedule calls while it runs cause exactly one further run after
// it finished.
type Debouncer struct {
	delay time.Duration
	fn    func(context.Context, pullrequest.Ref)

	ctx       context.Context
	cancelCtx context.CancelFunc

	mu      sync.Mutex
	entries map[pullrequest.Ref]*debounceEntry
	stopped bool
	wg      sync.WaitGroup

	logger *zap.Logger
}

type debounceEntry struct {
	timer   *time.Timer
	running bool
	rerun   bool
}

func NewDebouncer(delay time.Duration, fn func(context.Context, pullrequest.Ref)) *Debouncer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Debouncer{
		delay:     delay,
		fn:        fn,
		ctx:       ctx,
		cancelCtx: cancel,
		entries:   map[pullrequest.Ref]*debounceEntry{},
		logger:    zap.L().Named("merge_debouncer"),
	}
}

func (d *Debouncer) Schedule(ref pullrequest.Ref) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		d.logger.Debug("debouncer is stopped, ignoring evaluation request",
			append(ref.LogFields(), logfields.Event("evaluation_request_ignored"))...,
		)
		return
	}

	e, exists := d.entries[ref]
	if !exists {
		e = &debounceEntry{}
		d.entries[ref] = e
	}

	if e.running {
		e.rerun = true
		return
	}

	if e.timer != nil {
		return
	}

	e.timer = time.AfterFunc(d.delay, func() { d.fire(ref) })
}

func (d *Debouncer) fire(ref pullrequest.Ref) {
	d.mu.Lock()
	e, exists := d.entries[ref]
	if d.stopped || !exists || e.running {
		d.mu.Unlock()
		return
	}

	e.timer = nil
	e.running = true
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()

	for {
		d.fn(d.ctx, ref)

		d.mu.Lock()
		if e.rerun && !d.stopped {
			e.rerun = false
			d.mu.Unlock()
			continue
		}

		delete(d.entries, ref)
		d.mu.Unlock()

		return
	}
}

// Stop cancels pending evaluations and waits until running ones finished.
// Schedule calls after Stop are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for ref, e := range d.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		if !e.running {
			delete(d.entries, ref)
		}
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.cancelCtx()
}
