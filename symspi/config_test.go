package symspi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := NewConfig()
	require.NoError(err)

	require.True(cfg.master, "the bus clock driver is the default role")
	require.False(cfg.hardwareReady)
	require.True(cfg.localActiveHigh)
	require.True(cfg.remoteActiveHigh)
	require.Equal(DefaultPeerWaitTimeout, cfg.peerWaitTimeout)
	require.Equal(DefaultFlagBlindInterval, cfg.flagBlindInterval)
	require.Equal(DefaultRecoverySilenceTime, cfg.recoverySilence)
	require.Equal(DefaultCloseHardwareWait, cfg.closeHardwareWait)
	require.Equal(DefaultMaxXferSize, cfg.maxXferSize)
	require.Equal(DefaultWorkQueueSize, cfg.workQueueSize)
	require.Equal(DefaultMinErrorReportInterval, cfg.minReportInterval)
	require.Equal(DefaultErrorRateDecayHalfTime, cfg.decayHalfTime)
	require.NotNil(cfg.logger)
}

func TestNewConfigOptions(t *testing.T) {
	require := require.New(t)

	cfg, err := NewConfig(
		WithMasterRole(),
		WithHardwareReadySignal(),
		WithLocalFlagActiveLow(),
		WithRemoteFlagActiveLow(),
		WithPeerWaitTimeout(time.Second),
		WithFlagBlindInterval(time.Millisecond),
		WithRecoverySilenceTime(5*time.Millisecond),
		WithCloseHardwareWait(time.Second),
		WithMaxXferSize(128),
		WithWorkQueueSize(4),
		WithLogger(testLogger()),
	)
	require.NoError(err)

	require.True(cfg.master)
	require.True(cfg.hardwareReady)
	require.False(cfg.localActiveHigh)
	require.False(cfg.remoteActiveHigh)
	require.Equal(time.Second, cfg.peerWaitTimeout)
	require.Equal(time.Millisecond, cfg.flagBlindInterval)
	require.Equal(5*time.Millisecond, cfg.recoverySilence)
	require.Equal(128, cfg.maxXferSize)
	require.Equal(4, cfg.workQueueSize)

	slave, err := NewConfig(WithSlaveRole())
	require.NoError(err)
	require.False(slave.master)
}

func TestNewConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero peer wait timeout", WithPeerWaitTimeout(0)},
		{"negative flag blind interval", WithFlagBlindInterval(-time.Millisecond)},
		{"zero recovery silence", WithRecoverySilenceTime(0)},
		{"zero close hardware wait", WithCloseHardwareWait(0)},
		{"negative max transfer size", WithMaxXferSize(-1)},
		{"zero work queue size", WithWorkQueueSize(0)},
		{"negative min report interval", WithMinErrorReportInterval(-time.Second)},
		{"zero decay half time", WithErrorRateDecayHalfTime(0)},
		{"nil logger", WithLogger(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfig(tt.opt)
			require.Error(t, err)
			require.Nil(t, cfg)
		})
	}
}
