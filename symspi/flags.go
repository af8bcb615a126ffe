package symspi

import (
	"math/rand"
	"time"

	"github.com/Bosch-SW/symspi-go/internal/pool"
)

// The flag handshake. Our flag raised means "I have data and I am ready";
// dropping it means "I am done with the transfer". The peer flag carries
// the same meaning in the opposite direction, and its drops are counted:
// exactly one drop per transfer is the healthy case, a second drop before
// the next transfer signals a peer fault.

func (s *Session) ourFlagRaise() {
	s.setOurFlag(true)
}

func (s *Session) ourFlagDrop() {
	s.setOurFlag(false)
}

func (s *Session) setOurFlag(active bool) {
	if err := s.ourFlag.Set(active == s.cfg.localActiveHigh); err != nil {
		s.logger.Error("failed to drive our flag line", "active", active, "error", err)
	}
}

func (s *Session) theirFlagIsSet() bool {
	return s.theirFlag.Get() == s.cfg.remoteActiveHigh
}

// isTheirRequest reports whether the peer currently requests an exchange:
// its flag is raised and its previous transfer is fully finished.
func (s *Session) isTheirRequest() bool {
	return s.dropCounter.Load() == 1 && s.theirFlagIsSet()
}

// onTheirFlagEdge is the peer flag edge callback. It runs in the GPIO
// driver's interrupt context and must not block; the level is sampled here
// because the edge direction is not delivered by the watch.
func (s *Session) onTheirFlagEdge() {
	if s.state.Get() == StateCold {
		return
	}

	if s.theirFlagIsSet() {
		s.theirFlagRaiseSequence()
	} else {
		s.theirFlagDropSequence()
	}

	s.metrics.incTheirFlagEdge()
}

// theirFlagRaiseSequence handles the peer raising its flag: either it
// originates a new exchange while we are idle, or it reports readiness for
// the transfer we already wait on.
func (s *Session) theirFlagRaiseSequence() {
	if s.state.Switch(StateIdle, StatePreparingData) {
		// peer-originated exchange, reuse the current configuration
		if err := s.prepareToWaitingPeerDoneSequence(); err != nil {
			s.logger.Debug("peer-originated exchange not started", "error", err)
		}
		return
	}

	if s.cfg.master && !s.hwReady {
		s.tryLeaveWaitingPeerReady()
	}
}

// theirFlagDropSequence handles the peer dropping its flag. The first drop
// since arming the hardware means the peer finished its previous transfer;
// any further drop before the next arming is the peer fault beacon.
func (s *Session) theirFlagDropSequence() {
	count := s.dropCounter.Add(1)

	switch {
	case count == 1:
		if s.cfg.master {
			s.tryLeaveWaitingPeerDone()
		}
	case count > 1:
		s.handleError(KindPeerFault, nil)
	default:
		s.logger.Error("unexpected peer flag drop count", "count", count)
	}
}

// waitFlagSilencePeriod holds the calling goroutine for the flag blind
// interval, randomized by the configured variance so the two sides never
// fall into lock step. Runs on the deferred worker only.
func (s *Session) waitFlagSilencePeriod() {
	sleepWithVariance(s.cfg.flagBlindInterval, s.cfg.flagBlindVariance)
}

// waitRecoverySilence holds the calling goroutine for the recovery silence
// period concluding the error beacon.
func (s *Session) waitRecoverySilence() {
	sleepWithVariance(s.cfg.recoverySilence, s.cfg.recoverySilenceVariance)
}

func sleepWithVariance(d time.Duration, variancePct int) {
	if d <= 0 {
		return
	}

	lo := d * time.Duration(100-variancePct) / 100
	hi := d * time.Duration(100+variancePct) / 100
	if hi > lo {
		d = lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
	}

	t := pool.GetTimer(d)
	<-t.C
	pool.PutTimer(t)
}
