package symspi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bosch-SW/symspi-go/logger"
)

func testLogger() logger.Logger {
	return logger.NewNop()
}

// fakeBus records submissions and lets the test drive completions.
type fakeBus struct {
	mu        sync.Mutex
	ready     bool
	submitErr error
	submits   int
	tx        []byte
	rx        []byte
	done      func(error)
}

func (b *fakeBus) Submit(tx, rx []byte, done func(error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.submitErr != nil {
		return b.submitErr
	}

	b.submits++
	b.tx = tx
	b.rx = rx
	b.done = done

	return nil
}

func (b *fakeBus) SupportsReadySignal() bool {
	return b.ready
}

func (b *fakeBus) pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done != nil
}

func (b *fakeBus) submitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submits
}

func (b *fakeBus) lastTx() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx := make([]byte, len(b.tx))
	copy(tx, b.tx)
	return tx
}

func (b *fakeBus) waitPending(t *testing.T) {
	t.Helper()
	require.Eventually(t, b.pending, time.Second, time.Millisecond)
}

// complete finishes the pending transfer, writing rx as the received data.
func (b *fakeBus) complete(t *testing.T, rx []byte, err error) {
	t.Helper()

	b.mu.Lock()
	done := b.done
	buf := b.rx
	b.done = nil
	b.mu.Unlock()

	require.NotNil(t, done, "no bus transfer pending")
	copy(buf, rx)
	done(err)
}

// fakeFlagLine records the raw level driven on our flag GPIO.
type fakeFlagLine struct {
	mu    sync.Mutex
	err   error
	level bool
	edges int
}

func (f *fakeFlagLine) Set(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	if high != f.level {
		f.edges++
	}
	f.level = high

	return nil
}

func (f *fakeFlagLine) raw() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

func (f *fakeFlagLine) edgeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edges
}

// fakeRemoteFlag simulates the peer flag GPIO with an edge watch.
type fakeRemoteFlag struct {
	mu       sync.Mutex
	level    bool
	edge     func()
	watchErr error
}

func (f *fakeRemoteFlag) Get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

func (f *fakeRemoteFlag) Watch(edge func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watchErr != nil {
		return f.watchErr
	}
	f.edge = edge

	return nil
}

func (f *fakeRemoteFlag) Unwatch() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edge = nil
}

// setLevel drives the raw level, invoking the edge callback on change.
func (f *fakeRemoteFlag) setLevel(high bool) {
	f.mu.Lock()
	changed := f.level != high
	f.level = high
	edge := f.edge
	f.mu.Unlock()

	if changed && edge != nil {
		edge()
	}
}

// fixture wires a session to the fake hardware and collects the handler
// outcomes.
type fixture struct {
	t       *testing.T
	bus     *fakeBus
	local   *fakeFlagLine
	remote  *fakeRemoteFlag
	session *Session

	received chan []byte
	failures chan ErrorKind
}

func newFixture(t *testing.T, busReady bool, opts ...Option) *fixture {
	t.Helper()

	base := []Option{
		WithMasterRole(),
		WithLogger(testLogger()),
		WithPeerWaitTimeout(20 * time.Millisecond),
		WithFlagBlindInterval(100 * time.Microsecond),
		WithRecoverySilenceTime(2 * time.Millisecond),
		WithCloseHardwareWait(200 * time.Millisecond),
	}
	cfg, err := NewConfig(append(base, opts...)...)
	require.NoError(t, err)

	f := &fixture{
		t:        t,
		bus:      &fakeBus{ready: busReady},
		local:    &fakeFlagLine{},
		remote:   &fakeRemoteFlag{},
		received: make(chan []byte, 16),
		failures: make(chan ErrorKind, 16),
	}

	f.session, err = NewSession(context.Background(), cfg, f.bus, f.local, f.remote)
	require.NoError(t, err)

	return f
}

// defaultXfer builds a transfer whose handlers feed the fixture channels.
func (f *fixture) defaultXfer(payload string) *Xfer {
	return &Xfer{
		TxData: []byte(payload),
		OnDone: func(x *Xfer, _ XferID, _ *bool, _ any) *Xfer {
			rx := make([]byte, len(x.RxData))
			copy(rx, x.RxData)
			f.received <- rx
			return nil
		},
		OnFail: func(_ *Xfer, _ XferID, kind ErrorKind, _ any) *Xfer {
			f.failures <- kind
			return nil
		},
	}
}

func (f *fixture) open(payload string) {
	f.t.Helper()
	require.NoError(f.t, f.session.Open(f.defaultXfer(payload)))
	f.t.Cleanup(func() {
		_ = f.session.Close()
	})
}

func (f *fixture) waitState(want State) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		return f.session.State() == want
	}, time.Second, time.Millisecond, "state %s not reached", want)
}

// peerSingleDrop plays the healthy peer finishing its side of the transfer:
// one raise during the transfer and one drop after it.
func (f *fixture) peerSingleDrop() {
	f.remote.setLevel(true)
	f.remote.setLevel(false)
}

func (f *fixture) waitReceived() []byte {
	f.t.Helper()
	select {
	case rx := <-f.received:
		return rx
	case <-time.After(time.Second):
		f.t.Fatal("timed out waiting for received data")
		return nil
	}
}

func (f *fixture) waitFailure() ErrorKind {
	f.t.Helper()
	select {
	case kind := <-f.failures:
		return kind
	case <-time.After(time.Second):
		f.t.Fatal("timed out waiting for a failure callback")
		return KindNone
	}
}
