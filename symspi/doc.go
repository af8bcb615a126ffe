// Package symspi implements the symmetrical full-duplex rendezvous protocol
// used between two equal-privilege processors sharing a block-transfer bus and
// two single-bit handshake ("flag") lines.
//
// Either side may originate an exchange. The protocol guarantees that exactly
// one hardware transfer is in flight at a time, that both sides agree when a
// transfer starts, and that loss of synchronization is detected and recovered
// without operator intervention.
//
// The package is built around a strict compare-and-swap state machine
// ([AtomicState]) with eight states:
//
//	Cold -> Idle -> PreparingData -> WaitingPeerDone -> WaitingPeerReady
//	     -> Transferring -> Postprocessing -> Idle
//
// WaitingPeerReady is skipped when the bus provides an automatic ready signal,
// and is always skipped on the responder (slave) side. Error is reachable from
// every state except Cold and itself.
//
// The underlying bus and GPIO drivers are consumer-provided black boxes, seen
// only through the [Bus], [FlagLine] and [RemoteFlagLine] interfaces. Edge and
// completion callbacks from those drivers are treated as interrupt context:
// they must never block, and all suspending work (consumer callbacks, buffer
// resizes, flag blind intervals, recovery) runs on the session's dedicated
// deferred worker.
//
// Basic usage:
//
//	cfg, err := symspi.NewConfig(symspi.WithMasterRole())
//	if err != nil { ... }
//
//	session, err := symspi.NewSession(ctx, cfg, bus, ourFlag, theirFlag)
//	if err != nil { ... }
//
//	err = session.Open(&symspi.Xfer{
//		TxData: payload,
//		OnDone: func(x *symspi.Xfer, nextID symspi.XferID, startImmediately *bool, data any) *symspi.Xfer {
//			// consume x.RxData, optionally return a replacement transfer
//			return nil
//		},
//	})
//	if err != nil { ... }
//	defer session.Close()
//
//	id, err := session.Exchange(nil, false)
package symspi
