package symspi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Bosch-SW/symspi-go/internal/pool"
	"github.com/Bosch-SW/symspi-go/logger"
)

// initLevel tracks how far the session start sequence got, so teardown
// undoes exactly what was done.
type initLevel uint8

const (
	levelNone initLevel = iota
	levelXferCreated
	levelWorker
	levelFull
)

// Session is one side of the symmetrical rendezvous link. All methods are
// safe for concurrent use; the flow ownership is decided by the state
// machine, not by locks.
type Session struct {
	cfg    *Config
	logger logger.Logger

	bus       Bus
	ourFlag   FlagLine
	theirFlag RemoteFlagLine

	state  *AtomicState
	worker *Dispatcher
	timer  *waitTimer

	idGen    xferIDGen
	reporter *errorReporter
	metrics  Metrics
	accepted AcceptedHandler

	// current is the installed transfer configuration; its data slices
	// point into buf. Accessed only by the context owning the flow.
	current Xfer
	buf     bufferPair

	// dropCounter counts peer flag drops since the hardware was last
	// armed. Zero means the peer still finishes its previous transfer,
	// one means it is done, more than one is the peer fault beacon.
	dropCounter atomic.Int32

	// delayedXfer remembers an exchange request that arrived while the
	// session was occupied; it is replayed on return to idle.
	delayedXfer atomic.Bool

	// lastError keeps an ErrorKind raised while the hardware was busy,
	// promoted to recovery by the completion handler.
	lastError atomic.Int32

	hwReady bool

	initMu    sync.Mutex
	initLevel initLevel
}

// NewSession creates a Session over the given bus and flag lines. The
// session is not started; call Open. A nil cfg selects the defaults.
func NewSession(ctx context.Context, cfg *Config, bus Bus, ourFlag FlagLine, theirFlag RemoteFlagLine) (*Session, error) {
	if bus == nil {
		return nil, ErrNoBus
	}
	if ourFlag == nil || theirFlag == nil {
		return nil, ErrNoFlagLine
	}
	if cfg == nil {
		var err error
		cfg, err = NewConfig()
		if err != nil {
			return nil, err
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	role := "slave"
	if cfg.master {
		role = "master"
	}

	s := &Session{
		cfg:       cfg,
		logger:    cfg.logger.With("role", role),
		bus:       bus,
		ourFlag:   ourFlag,
		theirFlag: theirFlag,
		state:     NewAtomicState(),
		accepted:  cfg.accepted,
	}
	s.state.RequestClose() // rejects requests until Open
	s.worker = NewDispatcher(ctx, s.logger, cfg.workQueueSize)
	s.timer = newWaitTimer(func() {
		s.handleError(KindPeerSilence, nil)
	})
	s.reporter = newErrorReporter(cfg)

	return s, nil
}

// Open starts the session with the given default transfer configuration.
// The configuration data is copied; its ID field is filled in. Opening an
// already running session is a no-op.
func (s *Session) Open(defaultXfer *Xfer) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.IsRunning() {
		s.logger.Warn("session is already started, reusing it")
		return nil
	}
	if err := s.verifyConsumerInput(defaultXfer, true); err != nil {
		return err
	}

	s.logger.Info("starting the session")

	s.state.Reopen()
	s.initLevel = levelNone
	s.idGen.reset()
	s.metrics.reset()
	s.reporter = newErrorReporter(s.cfg)
	s.lastError.Store(int32(KindNone))
	s.delayedXfer.Store(false)
	s.hwReady = s.cfg.hardwareReady || s.bus.SupportsReadySignal()

	if err := s.buf.resize(len(defaultXfer.TxData), s.cfg.maxXferSize); err != nil {
		s.reporter.report(KindNoMemory, err)
		return err
	}
	copy(s.buf.tx, defaultXfer.TxData)
	s.current = Xfer{
		ID:           s.idGen.nextID(),
		TxData:       s.buf.tx,
		RxData:       s.buf.rx,
		OnDone:       defaultXfer.OnDone,
		OnFail:       defaultXfer.OnFail,
		ConsumerData: defaultXfer.ConsumerData,
	}
	defaultXfer.ID = s.current.ID
	defaultXfer.Counter = 0
	s.initLevel = levelXferCreated

	if err := s.worker.Start(); err != nil {
		s.reporter.report(KindWorkerInit, err)
		s.teardown()
		return ErrWorkerInit
	}
	s.initLevel = levelWorker

	s.dropCounter.Store(1)
	s.ourFlagDrop()

	if err := s.theirFlag.Watch(s.onTheirFlagEdge); err != nil {
		s.reporter.report(KindEdgeWatch, err)
		s.teardown()
		return ErrEdgeWatch
	}
	s.initLevel = levelFull

	s.state.Activate(StateIdle)
	s.logger.Info("session started", "size", s.buf.size())

	// the peer may be requesting an exchange already
	if s.theirFlagIsSet() {
		if _, err := s.Exchange(nil, false); err != nil && !errors.Is(err, ErrBusy) {
			s.logger.Warn("initial exchange attempt failed", "error", err)
		}
	}

	return nil
}

// Close stops the session: in-flight hardware work is waited out within
// the configured bound, callbacks are detached and the buffers released.
// Closing a never started or already closed session is a no-op.
func (s *Session) Close() error {
	if s.state.Get() == StateCold {
		s.logger.Warn("session close requested while not started")
		return nil
	}
	if !s.state.RequestClose() {
		s.logger.Warn("session close requested while closing is in progress")
		return ErrAlreadyClosing
	}

	s.logger.Info("closing the session")

	s.initMu.Lock()
	s.teardown()
	s.initMu.Unlock()

	s.logger.Info("session closed")

	return nil
}

// Reset closes the session and starts it again: the known good way out of
// a frozen or persistently failing link. A nil defaultXfer reuses the
// current transfer configuration.
func (s *Session) Reset(defaultXfer *Xfer) error {
	if defaultXfer == nil {
		defaultXfer = s.snapshotCurrent()
	}
	if err := s.verifyConsumerInput(defaultXfer, true); err != nil {
		return err
	}

	s.logger.Info("resetting the session")

	if err := s.Close(); err != nil && !errors.Is(err, ErrAlreadyClosing) {
		return err
	}

	return s.Open(defaultXfer)
}

// Exchange requests a data exchange with the peer. A non-nil x replaces
// the current transfer configuration first; forceResize authorizes a size
// change. A nil x reuses the current configuration, and when the session
// is occupied the request is remembered and replayed on return to idle,
// with ErrBusy returned to tell the caller so.
//
// The returned ID identifies the accepted configuration, 0 when the
// current one was reused.
func (s *Session) Exchange(x *Xfer, forceResize bool) (XferID, error) {
	if s.state.Closing() {
		s.logger.Debug("session is closing, rejecting the exchange request")
		return 0, ErrNotReady
	}

	if err := s.idleToPrepareSequence(x, forceResize); err != nil {
		if errors.Is(err, ErrBusy) && x == nil {
			s.delayedXfer.Store(true)
		}
		return 0, err
	}

	if err := s.prepareToWaitingPeerDoneSequence(); err != nil {
		return 0, err
	}

	if x != nil {
		return x.ID, nil
	}

	return 0, nil
}

// UpdateDefault replaces the current transfer configuration without
// starting an exchange. The session must be idle.
func (s *Session) UpdateDefault(x *Xfer, forceResize bool) (XferID, error) {
	if s.state.Closing() {
		return 0, ErrNotReady
	}
	if err := s.verifyConsumerInput(x, true); err != nil {
		return 0, err
	}

	if err := s.idleToPrepareSequence(x, forceResize); err != nil {
		return 0, err
	}
	if err := s.toIdleSequence(StatePreparingData, false, KindNone, nil); err != nil {
		return 0, err
	}

	return x.ID, nil
}

// IsRunning reports whether the session is started.
func (s *Session) IsRunning() bool {
	return s.state.Get() != StateCold
}

// State returns the current protocol state.
func (s *Session) State() State {
	return s.state.Get()
}

// Metrics returns the session counters.
func (s *Session) Metrics() *Metrics {
	return &s.metrics
}

// flow sequences

// idleToPrepareSequence claims the flow for a locally originated exchange
// and installs the new configuration when one is given.
func (s *Session) idleToPrepareSequence(x *Xfer, forceResize bool) error {
	if err := s.verifyConsumerInput(x, false); err != nil {
		return err
	}

	if !s.state.Switch(StateIdle, StatePreparingData) {
		s.logger.Debug("exchange request while session is occupied",
			"state", s.state.Get())
		return ErrBusy
	}

	if err := s.tryToErrorSequence(KindNone, nil); err != nil {
		return err
	}

	if x == nil {
		return nil
	}

	return s.updateXferSequence(x, StatePreparingData, forceResize)
}

// prepareToWaitingPeerDoneSequence raises our flag and advances to waiting
// for the peer to finish its previous transfer. Non-blocking; also runs
// from the edge callback for peer-originated exchanges.
func (s *Session) prepareToWaitingPeerDoneSequence() error {
	s.ourFlagRaise()

	if err := s.tryToErrorSequence(KindNone, nil); err != nil {
		return err
	}

	if s.state.Switch(StatePreparingData, StateWaitingPeerDone) {
		s.timer.Restart(s.cfg.peerWaitTimeout)
	}

	// the peer may be done already; the responder side never waits here
	if s.dropCounter.Load() == 1 || !s.cfg.master {
		return s.tryLeaveWaitingPeerDone()
	}

	return nil
}

// tryLeaveWaitingPeerDone advances past the wait for the peer's previous
// transfer: straight to the bus transfer when nothing else holds us, or to
// the wait for peer hardware readiness on a master without an automatic
// ready signal.
func (s *Session) tryLeaveWaitingPeerDone() error {
	if !s.cfg.master || s.hwReady {
		if s.state.Switch(StateWaitingPeerDone, StateTransferring) {
			s.timer.Stop()
			return s.armXferSequence()
		}
		return nil
	}

	if s.state.Switch(StateWaitingPeerDone, StateWaitingPeerReady) {
		s.timer.Restart(s.cfg.peerWaitTimeout)
		if s.isTheirRequest() {
			return s.tryLeaveWaitingPeerReady()
		}
	}

	return nil
}

// tryLeaveWaitingPeerReady starts the bus transfer once the peer signaled
// hardware readiness with its flag.
func (s *Session) tryLeaveWaitingPeerReady() error {
	if s.state.Switch(StateWaitingPeerReady, StateTransferring) {
		s.timer.Stop()
		return s.armXferSequence()
	}

	return nil
}

// armXferSequence hands the buffers to the bus. Resetting the drop counter
// here opens the window in which exactly one peer flag drop is expected.
func (s *Session) armXferSequence() error {
	s.dropCounter.Store(0)

	if err := s.bus.Submit(s.buf.tx, s.buf.rx, s.onBusComplete); err != nil {
		s.handleError(KindBus, err)
		return ErrBusFault
	}

	return nil
}

// onBusComplete is the bus completion callback. Runs in the bus driver's
// context and must not block.
func (s *Session) onBusComplete(busErr error) {
	if s.state.Closing() {
		// performing the latched transition signals the close routine
		s.state.Switch(StateTransferring, StatePostprocessing)
		return
	}

	if !s.state.Switch(StateTransferring, StatePostprocessing) {
		s.handleError(KindLogical, nil)
		return
	}

	// an error raised while the hardware was busy takes precedence
	if kind := ErrorKind(s.lastError.Load()); kind != KindNone {
		s.handleError(kind, nil)
		return
	}

	if busErr != nil {
		s.handleError(KindBus, busErr)
		return
	}

	s.metrics.incXferDone()

	if err := s.worker.Submit("postprocessing", s.postprocessingSequence); err != nil {
		s.logger.Error("failed to schedule postprocessing", "error", err)
		s.handleError(KindLogical, err)
	}
}

// postprocessingSequence delivers the received data to the consumer and
// returns the session to idle. Runs on the deferred worker.
func (s *Session) postprocessingSequence() {
	if cur := s.state.Get(); cur != StatePostprocessing {
		s.logger.Debug("postprocessing skipped", "state", cur)
		return
	}

	s.current.Counter++
	if s.current.Counter < 0 {
		s.logger.Warn("transfer repetition counter wrapped around")
		s.current.Counter = 1
	}

	startNext := false
	var replacement *Xfer
	if s.current.OnDone != nil {
		replacement = s.current.OnDone(&s.current, s.idGen.peek(), &startNext, s.current.ConsumerData)
	}

	if replacement == Halt {
		s.logger.Warn("session frozen by consumer request, reset to resume")
		return
	}

	if replacement != nil {
		err := s.updateXferSequence(replacement, StatePostprocessing, true)
		if s.accepted != nil {
			s.accepted(replacement)
		}
		if err != nil {
			// updateXferSequence already drove the session off this state
			s.ourFlagDrop()
			s.waitFlagSilencePeriod()
			return
		}
	}

	s.ourFlagDrop()
	s.waitFlagSilencePeriod()

	if err := s.toIdleSequence(StatePostprocessing, startNext, KindNone, nil); err != nil {
		s.logger.Debug("return to idle interrupted", "error", err)
	}
}

// toIdleSequence finishes a flow and returns to idle, then starts the next
// exchange when one is due: requested by the finished flow, remembered
// from a busy-time request, or currently requested by the peer.
func (s *Session) toIdleSequence(from State, startNext bool, kind ErrorKind, sub error) error {
	s.timer.Stop()

	if !s.state.Switch(from, StateIdle) {
		if s.state.Closing() {
			return ErrNotReady
		}
		if s.state.Get() == StateError {
			// a concurrent escalation won the flow, recovery is already
			// scheduled by the winner
			s.logger.Debug("return to idle preempted by an error escalation")
			return ErrBadState
		}
		s.handleError(KindLogical, nil)
		return ErrLogical
	}

	if from == StateError {
		s.logger.Debug("leaving the error state")
	} else if err := s.tryToErrorSequence(kind, sub); err != nil {
		return err
	}

	startNext = startNext || s.delayedXfer.Swap(false)
	if startNext || s.isTheirRequest() {
		if _, err := s.Exchange(nil, false); err != nil && !errors.Is(err, ErrBusy) {
			return err
		}
	}

	return nil
}

// tryToErrorSequence escalates to the error state when the given kind is
// set or the peer already signaled a fault.
func (s *Session) tryToErrorSequence(kind ErrorKind, sub error) error {
	if kind == KindNone && s.dropCounter.Load() <= 1 {
		return nil
	}
	if kind == KindNone {
		kind = KindPeerFault
	}

	s.handleError(kind, sub)

	return kind.Err()
}

// handleError accounts and reports the error, then drives the session to
// the error state and schedules the recovery. Callable from any context.
// When the hardware is busy the escalation is postponed until the bus
// completion.
func (s *Session) handleError(kind ErrorKind, sub error) {
	if kind == KindNone {
		s.logger.Error("error handling triggered without an error kind")
		return
	}

	switch kind {
	case KindPeerFault:
		s.metrics.incPeerFault()
	case KindPeerSilence:
		s.metrics.incPeerSilence()
	}

	verbose := s.reporter.report(kind, sub)

	for {
		if s.state.Closing() {
			// the close routine owns the flow now
			return
		}

		switch cur := s.state.Get(); cur {
		case StateCold, StateError:
			return

		case StateTransferring:
			s.lastError.Store(int32(kind))
			if verbose {
				s.logger.Debug("recovery postponed till the bus transfer completes")
			}
			// the completion may have raced us into postprocessing
			if s.state.Switch(StatePostprocessing, StateError) {
				s.scheduleRecovery(kind, verbose)
			}
			return

		default:
			if s.state.Switch(cur, StateError) {
				s.lastError.Store(int32(kind))
				s.scheduleRecovery(kind, verbose)
				return
			}
		}
	}
}

func (s *Session) scheduleRecovery(kind ErrorKind, verbose bool) {
	if verbose {
		s.logger.Warn("scheduling the error recovery", "kind", kind)
	}

	if err := s.worker.Submit("error recovery", s.recoverySequence); err != nil {
		s.logger.Error("failed to schedule the error recovery", "error", err)
	}
}

// transfer configuration management

// updateXferSequence assigns an ID to the new configuration and installs
// it. On a rejected configuration the session is driven back to idle, or
// to the error state when the buffers were lost.
func (s *Session) updateXferSequence(x *Xfer, from State, forceResize bool) error {
	x.ID = s.idGen.nextID()
	x.Counter = 0

	err := s.replaceXfer(x, forceResize)
	if err == nil {
		return nil
	}

	kind := KindNone
	if errors.Is(err, ErrNoMemory) {
		kind = KindNoMemory
	}
	if from != StateError {
		if idleErr := s.toIdleSequence(from, false, kind, err); idleErr != nil {
			s.logger.Debug("return to idle interrupted", "error", idleErr)
		}
	}

	return err
}

// replaceXfer copies the new configuration into the session. A size change
// requires authorization; the new send data must not alias the installed
// send buffer, as the latter is overwritten during the copy.
func (s *Session) replaceXfer(x *Xfer, forceResize bool) error {
	if len(x.TxData) == 0 {
		s.reporter.report(KindSizeZero, nil)
		return ErrZeroSize
	}
	if regionsOverlap(s.buf.tx, x.TxData) {
		s.reporter.report(KindOverlap, nil)
		return ErrOverlap
	}

	if s.buf.size() != len(x.TxData) {
		if !forceResize && s.state.Get() != StateTransferring {
			s.reporter.report(KindSizeMismatch, nil)
			return ErrSizeMismatch
		}
		if err := s.buf.resize(len(x.TxData), s.cfg.maxXferSize); err != nil {
			s.reporter.report(KindNoMemory, err)
			return err
		}
	}

	copy(s.buf.tx, x.TxData)

	s.current.ID = x.ID
	s.current.TxData = s.buf.tx
	s.current.RxData = s.buf.rx
	s.current.Counter = x.Counter
	s.current.OnDone = x.OnDone
	s.current.OnFail = x.OnFail
	s.current.ConsumerData = x.ConsumerData

	return nil
}

// snapshotCurrent copies the installed configuration for a reuse across a
// reset. Returns nil when nothing usable is installed.
func (s *Session) snapshotCurrent() *Xfer {
	if s.buf.size() == 0 {
		return nil
	}

	tx := make([]byte, s.buf.size())
	copy(tx, s.buf.tx)

	return &Xfer{
		TxData:       tx,
		OnDone:       s.current.OnDone,
		OnFail:       s.current.OnFail,
		ConsumerData: s.current.ConsumerData,
	}
}

func (s *Session) verifyConsumerInput(x *Xfer, required bool) error {
	if x == nil {
		if required {
			return ErrNoXfer
		}
		return nil
	}
	if len(x.TxData) == 0 {
		return ErrZeroSize
	}

	return nil
}

// teardown undoes the start sequence down from the reached init level.
// Callers hold initMu and have latched the close request.
func (s *Session) teardown() {
	if s.initLevel >= levelFull && s.state.Get() == StateTransferring {
		t := pool.GetTimer(s.cfg.closeHardwareWait)
		select {
		case <-s.state.LeftTransferring():
		case <-t.C:
			s.logger.Error("timed out waiting for the bus transfer to finish, aborting it")
		}
		pool.PutTimer(t)
	}

	if s.initLevel >= levelFull {
		s.theirFlag.Unwatch()
	}

	if s.initLevel >= levelWorker {
		s.ourFlagDrop()
		s.timer.Stop()
		if s.state.ForceTo(StateCold) == StateCold {
			s.logger.Warn("session was already in cold state on closing")
		}
		s.worker.Stop()
		s.worker.Wait()
	}

	if s.initLevel >= levelXferCreated {
		_ = s.buf.resize(0, 0)
		s.current = Xfer{}
	}

	s.state.ForceTo(StateCold)
	s.initLevel = levelNone
}
