package symspi

// recoverySequence brings the session back from the error state. Runs on
// the deferred worker.
//
// The sides do not negotiate the recovery; each one that detected the
// fault broadcasts the error beacon on its flag line and then goes silent.
// A healthy peer sees the extra flag drops, enters its own recovery, and
// after both silence periods pass the link meets in a clean rendezvous.
func (s *Session) recoverySequence() {
	if cur := s.state.Get(); cur != StateError {
		s.logger.Debug("error recovery skipped", "state", cur)
		return
	}

	kind := ErrorKind(s.lastError.Load())
	verbose := s.reporter.lastReported(kind)

	if verbose {
		s.logger.Warn("starting the error recovery", "kind", kind)
	}

	s.timer.Stop()

	// the error beacon: flag drop, raise, drop, raise, drop, each edge
	// followed by a blind interval so the peer misses none of them
	s.ourFlagDrop()
	s.waitFlagSilencePeriod()
	s.ourFlagRaise()
	s.waitFlagSilencePeriod()
	s.ourFlagDrop()
	s.waitFlagSilencePeriod()
	s.ourFlagRaise()
	s.waitFlagSilencePeriod()
	s.ourFlagDrop()
	s.waitFlagSilencePeriod()

	s.waitRecoverySilence()

	var replacement *Xfer
	if s.current.OnFail != nil {
		replacement = s.current.OnFail(&s.current, s.idGen.peek(), kind, s.current.ConsumerData)
	}

	if replacement == Halt {
		s.logger.Warn("session frozen by consumer request after an error, reset to resume")
		return
	}

	if replacement != nil {
		err := s.updateXferSequence(replacement, StateError, true)
		if s.accepted != nil {
			s.accepted(replacement)
		}
		if err != nil {
			s.logger.Error("failed to install the replacement transfer, session frozen",
				"error", err)
			return
		}
	} else if verbose {
		s.logger.Warn("restarting with the current transfer configuration")
	}

	s.dropCounter.Store(1)
	s.lastError.Store(int32(KindNone))
	s.metrics.incRecovery()

	if verbose {
		s.logger.Warn("error recovery finished")
	}

	if err := s.toIdleSequence(StateError, true, KindNone, nil); err != nil {
		s.logger.Debug("return to idle interrupted", "error", err)
	}
}
