package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetPutTimer(t *testing.T) {
	require := require.New(t)

	timer := GetTimer(time.Millisecond)
	require.NotNil(timer)

	select {
	case <-timer.C:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	PutTimer(timer)

	// A reused timer must be reset to the new duration.
	timer = GetTimer(5 * time.Millisecond)
	start := time.Now()
	select {
	case <-timer.C:
		require.GreaterOrEqual(time.Since(start), 4*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("reused timer did not fire")
	}
	PutTimer(timer)
}

func TestPutTimerUnfired(t *testing.T) {
	timer := GetTimer(time.Hour)
	// Returning an unfired timer must not leak its channel.
	PutTimer(timer)

	timer = GetTimer(time.Millisecond)
	select {
	case <-timer.C:
	case <-time.After(time.Second):
		t.Fatal("timer from pool did not fire after reset")
	}
	PutTimer(timer)
}
