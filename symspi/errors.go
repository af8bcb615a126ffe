package symspi

import "errors"

// consumer input errors
var (
	// ErrNoBus indicates that no bus device was provided to the session.
	ErrNoBus = errors.New("symspi: no bus device provided")
	// ErrNoFlagLine indicates that one of the flag GPIO lines is missing.
	ErrNoFlagLine = errors.New("symspi: no flag line provided")
	// ErrNoXfer indicates that no transfer was provided where one is
	// required.
	ErrNoXfer = errors.New("symspi: no transfer provided")
)

// request errors
var (
	// ErrBusy indicates the session is occupied by another transfer flow.
	// A nil-transfer exchange request that hits ErrBusy is remembered and
	// replayed as soon as the session returns to idle.
	ErrBusy = errors.New("symspi: session busy")
	// ErrNotReady indicates the session is closing or not opened.
	ErrNotReady = errors.New("symspi: session is not ready")
	// ErrAlreadyClosing indicates a concurrent close is already in
	// progress.
	ErrAlreadyClosing = errors.New("symspi: session is closing already")
)

// protocol errors, one per ErrorKind
var (
	// ErrLogical indicates an internal logic fault, always a bug.
	ErrLogical = errors.New("symspi: internal logic fault")
	// ErrSizeMismatch indicates a transfer size change without
	// authorization.
	ErrSizeMismatch = errors.New("symspi: transfer size change is not allowed now")
	// ErrZeroSize indicates a zero-size transfer request.
	ErrZeroSize = errors.New("symspi: transfer size is zero")
	// ErrNoMemory indicates the transfer buffers could not be resized.
	ErrNoMemory = errors.New("symspi: transfer buffers resize failed")
	// ErrPeerFault indicates the peer signaled a fault on its flag line.
	ErrPeerFault = errors.New("symspi: peer indicated an error")
	// ErrBadState indicates an operation attempted in an unfit state.
	ErrBadState = errors.New("symspi: operation not allowed in current state")
	// ErrOverlap indicates the new send buffer overlaps the current one.
	ErrOverlap = errors.New("symspi: send buffers overlap")
	// ErrBusFault indicates the underlying bus transfer failed.
	ErrBusFault = errors.New("symspi: bus transfer failed")
	// ErrPeerSilence indicates a timeout waiting for the peer reaction.
	ErrPeerSilence = errors.New("symspi: timeout waiting for peer")
	// ErrEdgeWatch indicates the flag edge watch could not be installed.
	ErrEdgeWatch = errors.New("symspi: flag edge watch setup failed")
	// ErrWorkerInit indicates the deferred worker could not be started.
	ErrWorkerInit = errors.New("symspi: deferred worker startup failed")
)

// ErrorKind classifies protocol-level failures for rate accounting and
// recovery decisions.
type ErrorKind uint8

const (
	// KindNone means no error.
	KindNone ErrorKind = iota
	// KindLogical is an internal logic fault.
	KindLogical
	// KindSizeMismatch is an unauthorized transfer size change.
	KindSizeMismatch
	// KindSizeZero is a zero-size transfer request.
	KindSizeZero
	// KindNoMemory is a transfer buffers resize failure.
	KindNoMemory
	// KindPeerFault is a fault signaled by the peer flag line.
	KindPeerFault
	// KindBadState is an operation attempted in an unfit state.
	KindBadState
	// KindOverlap is an overlap between new and current send buffers.
	KindOverlap
	// KindBus is an underlying bus transfer failure.
	KindBus
	// KindPeerSilence is a timeout waiting for the peer reaction.
	KindPeerSilence
	// KindEdgeWatch is a flag edge watch installation failure.
	KindEdgeWatch
	// KindWorkerInit is a deferred worker startup failure.
	KindWorkerInit

	kindCount
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindLogical:
		return "logical"
	case KindSizeMismatch:
		return "size-mismatch"
	case KindSizeZero:
		return "size-zero"
	case KindNoMemory:
		return "no-memory"
	case KindPeerFault:
		return "peer-fault"
	case KindBadState:
		return "bad-state"
	case KindOverlap:
		return "overlap"
	case KindBus:
		return "bus"
	case KindPeerSilence:
		return "peer-silence"
	case KindEdgeWatch:
		return "edge-watch"
	case KindWorkerInit:
		return "worker-init"
	default:
		return "unknown"
	}
}

// Err returns the sentinel error matching the kind, nil for KindNone.
func (k ErrorKind) Err() error {
	switch k {
	case KindNone:
		return nil
	case KindLogical:
		return ErrLogical
	case KindSizeMismatch:
		return ErrSizeMismatch
	case KindSizeZero:
		return ErrZeroSize
	case KindNoMemory:
		return ErrNoMemory
	case KindPeerFault:
		return ErrPeerFault
	case KindBadState:
		return ErrBadState
	case KindOverlap:
		return ErrOverlap
	case KindBus:
		return ErrBusFault
	case KindPeerSilence:
		return ErrPeerSilence
	case KindEdgeWatch:
		return ErrEdgeWatch
	case KindWorkerInit:
		return ErrWorkerInit
	default:
		return ErrLogical
	}
}
