package symspi

// Bus is the block-transfer device shared with the peer. Implementations
// wrap a concrete full-duplex driver, typically an SPI controller.
type Bus interface {
	// Submit starts an asynchronous full-duplex transfer. tx and rx have
	// equal length; tx must not be modified and rx not read until done is
	// invoked. done receives nil on success or the bus failure. Submit
	// and done must both be non-blocking; they may be called from edge
	// callback context.
	Submit(tx []byte, rx []byte, done func(error)) error

	// SupportsReadySignal reports whether the bus hardware raises its own
	// ready line automatically, which lets the initiator side skip the
	// explicit wait for peer hardware readiness.
	SupportsReadySignal() bool
}

// FlagLine is the locally driven handshake GPIO line.
type FlagLine interface {
	// Set drives the raw electrical level of the line. Must not block.
	Set(high bool) error
}

// RemoteFlagLine is the peer-driven handshake GPIO line.
type RemoteFlagLine interface {
	// Get samples the raw electrical level of the line.
	Get() bool

	// Watch installs the edge callback, invoked on every level change in
	// either direction. The callback runs in the driver's interrupt
	// context and must not block. Only one watch is active at a time.
	Watch(edge func()) error

	// Unwatch removes the edge callback and waits for any in-flight
	// invocation to return.
	Unwatch()
}
