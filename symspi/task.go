package symspi

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/Bosch-SW/symspi-go/logger"
)

type workFunc func()

type workItem struct {
	name string
	fn   workFunc
}

// Dispatcher runs the session's deferred work on a single goroutine, the
// counterpart of the edge and completion callback contexts. Serializing
// postprocessing and recovery on one worker keeps them from overlapping.
type Dispatcher struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	wg      sync.WaitGroup
	running atomic.Bool

	work     chan workItem
	capacity int

	logger logger.Logger
}

// NewDispatcher creates a Dispatcher with the given queue capacity. The
// worker goroutine is not started yet.
func NewDispatcher(ctx context.Context, l logger.Logger, capacity int) *Dispatcher {
	if capacity < 1 {
		capacity = DefaultWorkQueueSize
	}

	return &Dispatcher{pctx: ctx, capacity: capacity, logger: l}
}

// Start launches the worker goroutine and returns after it is running. It
// fails when the worker is already running.
func (d *Dispatcher) Start() error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("deferred worker is already running")
	}

	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(d.pctx)
	d.work = make(chan workItem, d.capacity)
	ctx := d.ctx
	work := d.work
	d.mu.Unlock()

	started := make(chan struct{})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		close(started)
		for {
			select {
			case <-ctx.Done():
				return
			case item := <-work:
				d.invoke(item)
			}
		}
	}()

	<-started

	return nil
}

// Submit queues a work function without blocking. It fails when the worker
// is not running or the queue is full.
func (d *Dispatcher) Submit(name string, fn workFunc) error {
	d.mu.RLock()
	ctx := d.ctx
	work := d.work
	d.mu.RUnlock()

	if ctx == nil || ctx.Err() != nil {
		return fmt.Errorf("deferred worker is not running, dropping %s", name)
	}

	select {
	case work <- workItem{name: name, fn: fn}:
		return nil
	default:
		return fmt.Errorf("deferred work queue is full, dropping %s", name)
	}
}

// Stop asks the worker goroutine to terminate. Queued work not yet started
// is discarded.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the worker goroutine terminated. After Wait the
// dispatcher can be started again.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
	d.running.Store(false)
}

func (d *Dispatcher) invoke(item workItem) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("deferred work panicked",
				"name", item.name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	d.logger.Debug("deferred work started", "name", item.name)
	item.fn()
}
