package symspi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsWork(t *testing.T) {
	require := require.New(t)

	d := NewDispatcher(context.Background(), testLogger(), 4)
	require.NoError(d.Start())
	defer func() {
		d.Stop()
		d.Wait()
	}()

	require.Error(d.Start(), "double start must fail")

	done := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		require.NoError(d.Submit("test work", func() {
			done <- i
		}))
	}

	// a single worker keeps the submission order
	for i := 0; i < 3; i++ {
		select {
		case got := <-done:
			require.Equal(i, got)
		case <-time.After(time.Second):
			t.Fatal("work not executed")
		}
	}
}

func TestDispatcherSubmitWhenNotRunning(t *testing.T) {
	require := require.New(t)

	d := NewDispatcher(context.Background(), testLogger(), 4)
	require.Error(d.Submit("early", func() {}))

	require.NoError(d.Start())
	d.Stop()
	d.Wait()

	require.Error(d.Submit("late", func() {}))
}

func TestDispatcherQueueFull(t *testing.T) {
	require := require.New(t)

	d := NewDispatcher(context.Background(), testLogger(), 1)
	require.NoError(d.Start())

	release := make(chan struct{})
	defer func() {
		close(release)
		d.Stop()
		d.Wait()
	}()

	started := make(chan struct{})
	require.NoError(d.Submit("blocker", func() {
		close(started)
		<-release
	}))
	<-started

	// the worker is held by the blocker, one slot remains in the queue
	require.NoError(d.Submit("queued", func() {}))
	require.Error(d.Submit("overflow", func() {}))
}

func TestDispatcherRecoversFromPanic(t *testing.T) {
	require := require.New(t)

	d := NewDispatcher(context.Background(), testLogger(), 4)
	require.NoError(d.Start())
	defer func() {
		d.Stop()
		d.Wait()
	}()

	require.NoError(d.Submit("panicking", func() {
		panic("boom")
	}))

	done := make(chan struct{})
	require.NoError(d.Submit("after panic", func() {
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}
}

func TestDispatcherRestart(t *testing.T) {
	require := require.New(t)

	d := NewDispatcher(context.Background(), testLogger(), 4)

	require.NoError(d.Start())
	d.Stop()
	d.Wait()

	require.NoError(d.Start(), "restart after wait must work")
	defer func() {
		d.Stop()
		d.Wait()
	}()

	done := make(chan struct{})
	require.NoError(d.Submit("after restart", func() {
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("work not executed after restart")
	}
}
