package symspi

import "sync/atomic"

// Metrics accumulates session counters. All fields are updated atomically
// and safe to read at any time.
type Metrics struct {
	// XferDoneCount counts successfully completed bus transfers.
	XferDoneCount atomic.Uint64
	// PeerFaultCount counts faults signaled by the peer flag line.
	PeerFaultCount atomic.Uint64
	// PeerSilenceCount counts timeouts waiting for the peer reaction.
	PeerSilenceCount atomic.Uint64
	// TheirFlagEdgeCount counts observed edges on the peer flag line.
	TheirFlagEdgeCount atomic.Uint64
	// RecoveryCount counts completed error recovery rounds.
	RecoveryCount atomic.Uint64
}

func (m *Metrics) incXferDone() {
	m.XferDoneCount.Add(1)
}

func (m *Metrics) incPeerFault() {
	m.PeerFaultCount.Add(1)
}

func (m *Metrics) incPeerSilence() {
	m.PeerSilenceCount.Add(1)
}

func (m *Metrics) incTheirFlagEdge() {
	m.TheirFlagEdgeCount.Add(1)
}

func (m *Metrics) incRecovery() {
	m.RecoveryCount.Add(1)
}

func (m *Metrics) reset() {
	m.XferDoneCount.Store(0)
	m.PeerFaultCount.Store(0)
	m.PeerSilenceCount.Store(0)
	m.TheirFlagEdgeCount.Store(0)
	m.RecoveryCount.Store(0)
}
