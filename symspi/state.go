package symspi

import (
	"sync"
	"sync/atomic"
)

// State represents a session protocol state.
type State uint32

const (
	// StateCold indicates the session is not initialized.
	StateCold State = iota
	// StateIdle indicates the session is initialized and waiting for a
	// transfer request from either side.
	StateIdle
	// StatePreparingData indicates the consumer data and buffers are being
	// prepared for the next transfer.
	StatePreparingData
	// StateWaitingPeerDone indicates our flag is raised and we wait for the
	// peer to finish its previous transfer processing.
	StateWaitingPeerDone
	// StateWaitingPeerReady indicates we wait for the peer hardware to
	// become ready for the bus transfer.
	StateWaitingPeerReady
	// StateTransferring indicates the bus transfer is in flight.
	StateTransferring
	// StatePostprocessing indicates the received data is being handed to
	// the consumer.
	StatePostprocessing
	// StateError indicates the session lost synchronization and runs the
	// recovery procedure.
	StateError
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateIdle:
		return "idle"
	case StatePreparingData:
		return "preparing-data"
	case StateWaitingPeerDone:
		return "waiting-peer-done"
	case StateWaitingPeerReady:
		return "waiting-peer-ready"
	case StateTransferring:
		return "transferring"
	case StatePostprocessing:
		return "postprocessing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// AtomicState is the session state machine. Every transition is a strict
// compare-and-swap; a failed swap means another execution context owns the
// flow, and the loser simply backs off. This is the only synchronization
// primitive of the protocol core.
//
// Once a close is requested the machine latches: the only transition still
// allowed is leaving StateTransferring, and completing it signals the
// closing routine which waits for the hardware to finish.
type AtomicState struct {
	state    atomic.Uint32
	closeReq atomic.Bool

	mu           sync.Mutex
	leftXfer     chan struct{}
	leftSignaled bool
}

// NewAtomicState creates an AtomicState in StateCold with no close request.
func NewAtomicState() *AtomicState {
	return &AtomicState{leftXfer: make(chan struct{})}
}

// Get returns the current state.
func (a *AtomicState) Get() State {
	return State(a.state.Load())
}

// Switch transitions from the expected state to the target state atomically.
// It returns true only when the swap succeeded and the session is not
// closing.
//
// When a close is requested every transition is rejected except leaving
// StateTransferring; that one is still performed so the hardware completion
// is not lost, the waiter is signaled, and false is returned so the caller
// abandons the flow.
func (a *AtomicState) Switch(from, to State) bool {
	if a.closeReq.Load() {
		if from != StateTransferring || to == StateTransferring {
			return false
		}
		a.state.CompareAndSwap(uint32(from), uint32(to))
		a.signalLeftTransferring()
		return false
	}

	return a.state.CompareAndSwap(uint32(from), uint32(to))
}

// ForceTo sets the state unconditionally and returns the previous state.
// Only the init and close routines use it.
func (a *AtomicState) ForceTo(to State) State {
	return State(a.state.Swap(uint32(to)))
}

// RequestClose latches the close request. It returns false when the close
// was already requested before.
func (a *AtomicState) RequestClose() bool {
	return a.closeReq.CompareAndSwap(false, true)
}

// Closing reports whether a close was requested.
func (a *AtomicState) Closing() bool {
	return a.closeReq.Load()
}

// LeftTransferring returns a channel closed when a close was requested and
// the machine has left StateTransferring afterwards.
func (a *AtomicState) LeftTransferring() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.leftXfer
}

// Reopen rearms the machine for a new session start: the state is forced to
// StateCold and the completion channel is replaced. The close latch stays
// engaged so external requests keep being rejected until Activate is called
// at the end of the init sequence.
func (a *AtomicState) Reopen() {
	a.state.Store(uint32(StateCold))
	a.mu.Lock()
	a.leftXfer = make(chan struct{})
	a.leftSignaled = false
	a.mu.Unlock()
	a.closeReq.Store(true)
}

// Activate releases the close latch and forces the given state. It completes
// the init sequence started by Reopen.
func (a *AtomicState) Activate(to State) {
	a.closeReq.Store(false)
	a.state.Store(uint32(to))
}

func (a *AtomicState) signalLeftTransferring() {
	a.mu.Lock()
	if !a.leftSignaled {
		close(a.leftXfer)
		a.leftSignaled = true
	}
	a.mu.Unlock()
}
