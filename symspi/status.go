package symspi

import (
	"fmt"
	"strings"
)

// StatusReport renders a human readable snapshot of the session for
// diagnostics.
func (s *Session) StatusReport() string {
	var b strings.Builder

	role := "slave"
	if s.cfg.master {
		role = "master"
	}

	b.WriteString("Session:\n")
	fmt.Fprintf(&b, "  state:                  %s\n", s.state.Get())
	fmt.Fprintf(&b, "  role:                   %s\n", role)
	fmt.Fprintf(&b, "  hardware ready signal:  %t\n", s.hwReady)
	fmt.Fprintf(&b, "  transfer size:          %d\n", s.buf.size())
	fmt.Fprintf(&b, "  peer flag drop count:   %d\n", s.dropCounter.Load())

	b.WriteString("Statistics:\n")
	fmt.Fprintf(&b, "  transfers done:         %d\n", s.metrics.XferDoneCount.Load())
	fmt.Fprintf(&b, "  peer flag edges seen:   %d\n", s.metrics.TheirFlagEdgeCount.Load())
	fmt.Fprintf(&b, "  peer indicated errors:  %d\n", s.metrics.PeerFaultCount.Load())
	fmt.Fprintf(&b, "  peer silence timeouts:  %d\n", s.metrics.PeerSilenceCount.Load())
	fmt.Fprintf(&b, "  recoveries done:        %d\n", s.metrics.RecoveryCount.Load())

	b.WriteString("Errors:\n")
	for kind := KindLogical; kind < kindCount; kind++ {
		if total := s.reporter.totalCount(kind); total > 0 {
			fmt.Fprintf(&b, "  %-22s  %d\n", kind.String()+":", total)
		}
	}

	return b.String()
}
