package symspi

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Bosch-SW/symspi-go/logger"
)

// errorClass is the static description of one error kind.
type errorClass struct {
	msg string
	// threshold is the occurrence rate in errors per second at which the
	// class switches from warning to error severity. Zero means always
	// error severity.
	threshold int64
}

var errorClasses = map[ErrorKind]errorClass{
	KindLogical:      {msg: "internal logic fault, please report a bug"},
	KindSizeMismatch: {msg: "transfer size changed without authorization"},
	KindSizeZero:     {msg: "zero size transfer requested"},
	KindNoMemory:     {msg: "transfer buffers resize failed"},
	KindPeerFault:    {msg: "peer indicated an error on its flag line", threshold: 5},
	KindBadState:     {msg: "operation attempted in unfit state"},
	KindOverlap:      {msg: "new send buffer overlaps the current one"},
	KindBus:          {msg: "bus transfer failed"},
	KindPeerSilence:  {msg: "timeout waiting for peer reaction", threshold: 5},
	KindEdgeWatch:    {msg: "flag edge watch setup failed"},
	KindWorkerInit:   {msg: "deferred worker startup failed"},
}

// errorRecord accumulates the occurrence history of one error kind.
type errorRecord struct {
	mu sync.Mutex

	total      uint64
	unreported uint64

	lastReportMs     int64
	lastOccurrenceMs int64
	// expAvgIntervalMs is the exponentially weighted average distance
	// between consecutive occurrences, in milliseconds, at least 1.
	expAvgIntervalMs int64

	lastReported bool
}

// errorReporter logs protocol errors with per-class rate limiting. Frequent
// repetitions of the same error are counted but suppressed; a report is
// forced when the minimum report interval elapsed or when the occurrence
// rate crosses the class threshold upwards.
type errorReporter struct {
	records *xsync.MapOf[ErrorKind, *errorRecord]

	minReportMs int64
	decayHalfMs int64
	minDecayPct int64

	logger logger.Logger
	now    func() time.Time
}

func newErrorReporter(cfg *Config) *errorReporter {
	return &errorReporter{
		records:     xsync.NewMapOf[ErrorKind, *errorRecord](),
		minReportMs: cfg.minReportInterval.Milliseconds(),
		decayHalfMs: cfg.decayHalfTime.Milliseconds(),
		minDecayPct: int64(cfg.minDecayPercent),
		logger:      cfg.logger,
		now:         time.Now,
	}
}

// report accounts one occurrence of the kind and logs it unless suppressed
// by rate limiting. sub optionally carries the underlying failure. The
// return value tells whether the occurrence was actually logged; callers
// use it to keep follow-up messages equally quiet.
func (r *errorReporter) report(kind ErrorKind, sub error) bool {
	class, ok := errorClasses[kind]
	if !ok {
		class = errorClass{msg: "unclassified fault"}
	}

	rec, _ := r.records.LoadOrStore(kind, &errorRecord{})
	nowMs := r.now().UnixMilli()

	rec.mu.Lock()

	rec.total++

	sinceReport := nowMs - rec.lastReportMs
	sinceOccurrence := nowMs - rec.lastOccurrenceMs
	rec.lastOccurrenceMs = nowMs

	// The farther apart the occurrences, the more weight the new distance
	// gets; at the decay half time it takes 50 percent.
	decayPct := int64(100)
	if r.decayHalfMs > 0 {
		decayPct = min(50*sinceOccurrence/r.decayHalfMs, 100)
	}
	decayPct = max(decayPct, r.minDecayPct)

	prevRate := int64(1000) / max(rec.expAvgIntervalMs, 1)
	rec.expAvgIntervalMs = max(
		((100-decayPct)*rec.expAvgIntervalMs+decayPct*sinceOccurrence)/100, 1)
	rate := int64(1000) / rec.expAvgIntervalMs

	crossedUp := prevRate < class.threshold && rate >= class.threshold
	if sinceReport < r.minReportMs && !crossedUp {
		rec.unreported++
		rec.lastReported = false
		rec.mu.Unlock()
		return false
	}

	rec.lastReportMs = nowMs
	rec.lastReported = true
	suppressed := rec.unreported
	rec.unreported = 0
	total := rec.total
	rec.mu.Unlock()

	fields := []any{
		"kind", kind,
		"rate_per_sec", rate,
		"total", total,
	}
	if suppressed > 0 {
		fields = append(fields, "suppressed", suppressed)
	}
	if sub != nil {
		fields = append(fields, "cause", sub)
	}

	if rate >= class.threshold {
		r.logger.Error(class.msg, fields...)
	} else {
		r.logger.Warn(class.msg, fields...)
	}

	return true
}

// lastReported tells whether the most recent occurrence of the kind was
// logged rather than suppressed.
func (r *errorReporter) lastReported(kind ErrorKind) bool {
	rec, ok := r.records.Load(kind)
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	return rec.lastReported
}

// totalCount returns the accumulated occurrence count of the kind.
func (r *errorReporter) totalCount(kind ErrorKind) uint64 {
	rec, ok := r.records.Load(kind)
	if !ok {
		return 0
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	return rec.total
}
