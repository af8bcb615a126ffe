package symspi

import (
	"sync"
	"time"
)

// waitTimer guards a single pending wait-for-peer deadline. Restart and Stop
// bump a generation counter under the mutex, so an expiry racing with them
// is discarded; the fire callback also runs under the mutex, which makes
// Stop synchronous: when Stop returns, no expiry is running or will run.
type waitTimer struct {
	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
	fire  func()
}

func newWaitTimer(fire func()) *waitTimer {
	return &waitTimer{fire: fire}
}

// Restart arms the timer for the given duration, discarding any previously
// pending deadline.
func (w *waitTimer) Restart(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	gen := w.gen

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(d, func() {
		w.expire(gen)
	})
}

// Stop disarms the timer. Acquiring the mutex waits out a concurrently
// running expiry, so the call is synchronous.
func (w *waitTimer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *waitTimer) expire(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.gen {
		// disarmed or restarted after this expiry was scheduled
		return
	}
	w.gen++

	w.fire()
}
