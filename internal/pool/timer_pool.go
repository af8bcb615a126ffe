// Package pool recycles timers for the short protocol waits. Flag blind
// intervals fire on every transfer, so a busy link allocates timers at a
// rate worth pooling.
package pool

import (
	"sync"
	"time"
)

var timers sync.Pool

// GetTimer hands out a timer armed for d. Return it with PutTimer once the
// wait is over.
func GetTimer(d time.Duration) *time.Timer {
	if v := timers.Get(); v != nil {
		t := v.(*time.Timer) // only *time.Timer ever enters the pool
		if t.Reset(d) {
			// a still armed timer may carry a stale tick
			select {
			case <-t.C:
			default:
			}
		}
		return t
	}

	return time.NewTimer(d)
}

// PutTimer recycles the timer. The caller must not touch t afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		// the tick may be sitting in the channel unread
		select {
		case <-t.C:
		default:
		}
	}
	timers.Put(t)
}
