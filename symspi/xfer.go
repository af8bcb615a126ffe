package symspi

import (
	"sync/atomic"
	"unsafe"
)

// XferID identifies a transfer configuration. IDs start at 1 and grow with
// every accepted update; 0 is never a valid ID.
type XferID int32

const initialXferID XferID = 1

// DoneHandler is invoked on the deferred worker after every successful
// transfer of the given configuration. x carries the received data in
// RxData; nextID is the ID the next accepted configuration will get. The
// handler may return a replacement transfer to install, Halt to freeze the
// session, or nil to keep the current configuration. Setting
// *startImmediately requests a new exchange right after returning to idle.
type DoneHandler func(x *Xfer, nextID XferID, startImmediately *bool, consumerData any) *Xfer

// FailHandler is invoked on the deferred worker during error recovery,
// before the session resumes. The handler may return a replacement transfer,
// Halt to freeze the session, or nil to retry the current configuration.
type FailHandler func(x *Xfer, nextID XferID, kind ErrorKind, consumerData any) *Xfer

// AcceptedHandler is invoked right after a replacement transfer returned by
// a DoneHandler or FailHandler was processed, so the consumer can release
// resources tied to it.
type AcceptedHandler func(x *Xfer)

// Halt is the sentinel replacement transfer. Returned from a DoneHandler or
// FailHandler it freezes the session until Reset is called.
var Halt = &Xfer{}

// Xfer describes one transfer configuration. The same configuration is
// typically reused for many bus transfers; Counter tells them apart.
type Xfer struct {
	// ID is assigned by the session when the configuration is accepted.
	ID XferID

	// TxData is the data to send. Its length defines the transfer size;
	// both directions always move the same number of bytes.
	TxData []byte

	// RxData holds the received data when a handler is invoked. Owned by
	// the session; valid only for the duration of the handler call.
	RxData []byte

	// Counter counts the transfers done with this configuration.
	Counter int32

	// OnDone is called after every successful transfer. Optional.
	OnDone DoneHandler

	// OnFail is called during error recovery. Optional.
	OnFail FailHandler

	// ConsumerData is an opaque value passed back to the handlers.
	ConsumerData any
}

// xferIDGen hands out transfer IDs. The counter wraps around positive int32
// space, skipping zero and negatives.
type xferIDGen struct {
	next atomic.Int32
}

func (g *xferIDGen) reset() {
	g.next.Store(int32(initialXferID))
}

// peek returns the ID the next accepted configuration will get.
func (g *xferIDGen) peek() XferID {
	v := g.next.Load()
	if v <= 0 {
		return initialXferID
	}
	return XferID(v)
}

func (g *xferIDGen) nextID() XferID {
	for {
		cur := g.next.Load()
		id := cur
		if id <= 0 {
			id = int32(initialXferID)
		}
		succ := id + 1
		if succ <= 0 {
			succ = int32(initialXferID)
		}
		if g.next.CompareAndSwap(cur, succ) {
			return XferID(id)
		}
	}
}

// bufferPair owns the tx and rx backing arrays handed to the bus. Both are
// always allocated together and have equal size.
type bufferPair struct {
	tx []byte
	rx []byte
}

func (b *bufferPair) size() int {
	return len(b.tx)
}

// resize reallocates both buffers to n bytes, preserving the common prefix
// of the send buffer. n of zero frees the buffers. When n exceeds max the
// buffers are dropped and ErrNoMemory is returned, matching an allocation
// failure.
func (b *bufferPair) resize(n, max int) error {
	if b.size() == n {
		return nil
	}
	if n == 0 {
		b.tx, b.rx = nil, nil
		return nil
	}
	if max > 0 && n > max {
		b.tx, b.rx = nil, nil
		return ErrNoMemory
	}

	tx := make([]byte, n)
	copy(tx, b.tx)
	b.tx = tx
	b.rx = make([]byte, n)

	return nil
}

// regionsOverlap reports whether the two byte slices share any backing
// memory.
func regionsOverlap(r1, r2 []byte) bool {
	if len(r1) == 0 || len(r2) == 0 {
		return false
	}

	a1 := uintptr(unsafe.Pointer(&r1[0]))
	a2 := uintptr(unsafe.Pointer(&r2[0]))

	return a2 < a1+uintptr(len(r1)) && a2+uintptr(len(r2)) > a1
}
