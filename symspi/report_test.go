package symspi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Bosch-SW/symspi-go/logger"
)

type reporterFixture struct {
	reporter *errorReporter
	log      *logger.MockLogger
	now      time.Time
}

func newReporterFixture(t *testing.T, opts ...Option) *reporterFixture {
	t.Helper()

	ml := logger.NewMockLogger()
	ml.On("Error", mock.Anything, mock.Anything).Return()
	ml.On("Warn", mock.Anything, mock.Anything).Return()

	cfg, err := NewConfig(append(opts, WithLogger(ml))...)
	require.NoError(t, err)

	f := &reporterFixture{
		reporter: newErrorReporter(cfg),
		log:      ml,
		now:      time.Unix(1000, 0),
	}
	f.reporter.now = func() time.Time { return f.now }

	return f
}

func (f *reporterFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestReporterFirstOccurrenceLogged(t *testing.T) {
	require := require.New(t)
	f := newReporterFixture(t)

	require.True(f.reporter.report(KindBus, nil))
	require.True(f.reporter.lastReported(KindBus))
	require.Equal(uint64(1), f.reporter.totalCount(KindBus))
}

func TestReporterSuppressesRapidRepeats(t *testing.T) {
	require := require.New(t)
	f := newReporterFixture(t)

	require.True(f.reporter.report(KindBus, nil))

	for i := 0; i < 50; i++ {
		f.advance(time.Millisecond)
		require.False(f.reporter.report(KindBus, nil))
		require.False(f.reporter.lastReported(KindBus))
	}

	require.Equal(uint64(51), f.reporter.totalCount(KindBus))

	// once the minimum report interval passed, the next occurrence is
	// logged again together with the suppressed count
	f.advance(DefaultMinErrorReportInterval)
	require.True(f.reporter.report(KindBus, nil))
	require.True(f.reporter.lastReported(KindBus))
}

func TestReporterThresholdCrossingForcesReport(t *testing.T) {
	require := require.New(t)
	f := newReporterFixture(t)

	// peer faults switch to error severity at 5 per second; a burst must
	// force a report when the rate crosses that threshold even within
	// the minimum report interval
	require.True(f.reporter.report(KindPeerFault, nil))

	forced := false
	for i := 0; i < 2000; i++ {
		f.advance(time.Millisecond)
		if f.reporter.report(KindPeerFault, nil) {
			forced = true
			break
		}
	}
	require.True(forced, "rate crossing did not force a report")
}

func TestReporterIndependentKinds(t *testing.T) {
	require := require.New(t)
	f := newReporterFixture(t)

	require.True(f.reporter.report(KindBus, nil))
	f.advance(time.Millisecond)
	require.False(f.reporter.report(KindBus, nil))

	// a different kind keeps its own schedule
	require.True(f.reporter.report(KindPeerSilence, nil))

	require.Equal(uint64(2), f.reporter.totalCount(KindBus))
	require.Equal(uint64(1), f.reporter.totalCount(KindPeerSilence))
	require.Zero(f.reporter.totalCount(KindLogical))
}
