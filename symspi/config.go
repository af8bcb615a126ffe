package symspi

import (
	"errors"
	"time"

	"github.com/Bosch-SW/symspi-go/logger"
)

const (
	// DefaultPeerWaitTimeout bounds the wait for any peer reaction on its
	// flag line.
	DefaultPeerWaitTimeout = 60 * time.Millisecond
	// DefaultFlagBlindInterval is the minimum silence kept after dropping
	// our flag, so the peer never misses the edge.
	DefaultFlagBlindInterval = 750 * time.Microsecond
	// DefaultFlagBlindVariancePercent randomizes the blind interval to
	// avoid lock-step hazards between the sides.
	DefaultFlagBlindVariancePercent = 10
	// DefaultRecoverySilenceTime is the quiet period concluding the error
	// recovery beacon.
	DefaultRecoverySilenceTime = 10 * time.Millisecond
	// DefaultRecoverySilenceVariancePercent randomizes the recovery
	// silence.
	DefaultRecoverySilenceVariancePercent = 5
	// DefaultCloseHardwareWait bounds the close-time wait for an in-flight
	// bus transfer to finish.
	DefaultCloseHardwareWait = 500 * time.Millisecond
	// DefaultMaxXferSize is the largest accepted transfer size in bytes.
	DefaultMaxXferSize = 64
	// DefaultMinErrorReportInterval suppresses repeated reports of the
	// same error class within the interval.
	DefaultMinErrorReportInterval = 10 * time.Second
	// DefaultErrorRateDecayHalfTime is the occurrence distance at which
	// the error rate moving average takes half of the new sample.
	DefaultErrorRateDecayHalfTime = 2 * time.Second
	// DefaultMinErrorRateDecayPercent keeps old error history fading even
	// for rapid bursts.
	DefaultMinErrorRateDecayPercent = 3
	// DefaultWorkQueueSize is the deferred worker queue capacity.
	DefaultWorkQueueSize = 16
)

// Config carries the session parameters. Create it with NewConfig and do
// not modify it after the session was created.
type Config struct {
	master        bool
	hardwareReady bool

	localActiveHigh  bool
	remoteActiveHigh bool

	peerWaitTimeout         time.Duration
	flagBlindInterval       time.Duration
	flagBlindVariance       int
	recoverySilence         time.Duration
	recoverySilenceVariance int
	closeHardwareWait       time.Duration

	maxXferSize   int
	workQueueSize int

	minReportInterval time.Duration
	decayHalfTime     time.Duration
	minDecayPercent   int

	accepted AcceptedHandler
	logger   logger.Logger
}

// NewConfig creates a Config with protocol defaults and applies the options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		master:                  true,
		localActiveHigh:         true,
		remoteActiveHigh:        true,
		peerWaitTimeout:         DefaultPeerWaitTimeout,
		flagBlindInterval:       DefaultFlagBlindInterval,
		flagBlindVariance:       DefaultFlagBlindVariancePercent,
		recoverySilence:         DefaultRecoverySilenceTime,
		recoverySilenceVariance: DefaultRecoverySilenceVariancePercent,
		closeHardwareWait:       DefaultCloseHardwareWait,
		maxXferSize:             DefaultMaxXferSize,
		workQueueSize:           DefaultWorkQueueSize,
		minReportInterval:       DefaultMinErrorReportInterval,
		decayHalfTime:           DefaultErrorRateDecayHalfTime,
		minDecayPercent:         DefaultMinErrorRateDecayPercent,
		logger:                  logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option configures a Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	f func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error {
	return o.f(cfg)
}

func newOptFunc(f func(*Config) error) *optFunc {
	return &optFunc{f: f}
}

// WithMasterRole makes the session drive the bus clock, waiting for the
// peer hardware to become ready before each transfer. This is the default.
func WithMasterRole() Option {
	return newOptFunc(func(cfg *Config) error {
		cfg.master = true
		return nil
	})
}

// WithSlaveRole makes the session follow the peer's bus clock.
func WithSlaveRole() Option {
	return newOptFunc(func(cfg *Config) error {
		cfg.master = false
		return nil
	})
}

// WithHardwareReadySignal declares that the peer hardware raises a ready
// line on its own, letting a master session skip the explicit wait for peer
// readiness.
func WithHardwareReadySignal() Option {
	return newOptFunc(func(cfg *Config) error {
		cfg.hardwareReady = true
		return nil
	})
}

// WithLocalFlagActiveLow inverts the electrical polarity of our flag line.
func WithLocalFlagActiveLow() Option {
	return newOptFunc(func(cfg *Config) error {
		cfg.localActiveHigh = false
		return nil
	})
}

// WithRemoteFlagActiveLow inverts the electrical polarity of the peer flag
// line.
func WithRemoteFlagActiveLow() Option {
	return newOptFunc(func(cfg *Config) error {
		cfg.remoteActiveHigh = false
		return nil
	})
}

// WithPeerWaitTimeout sets the bound on waiting for any peer reaction.
func WithPeerWaitTimeout(timeout time.Duration) Option {
	return newOptFunc(func(cfg *Config) error {
		if timeout <= 0 {
			return errors.New("peer wait timeout must be positive")
		}
		cfg.peerWaitTimeout = timeout
		return nil
	})
}

// WithFlagBlindInterval sets the minimum silence after dropping our flag.
func WithFlagBlindInterval(interval time.Duration) Option {
	return newOptFunc(func(cfg *Config) error {
		if interval < 0 {
			return errors.New("flag blind interval can not be negative")
		}
		cfg.flagBlindInterval = interval
		return nil
	})
}

// WithRecoverySilenceTime sets the quiet period concluding the recovery
// beacon.
func WithRecoverySilenceTime(silence time.Duration) Option {
	return newOptFunc(func(cfg *Config) error {
		if silence <= 0 {
			return errors.New("recovery silence time must be positive")
		}
		cfg.recoverySilence = silence
		return nil
	})
}

// WithCloseHardwareWait sets the bound on waiting for an in-flight bus
// transfer during close.
func WithCloseHardwareWait(timeout time.Duration) Option {
	return newOptFunc(func(cfg *Config) error {
		if timeout <= 0 {
			return errors.New("close hardware wait must be positive")
		}
		cfg.closeHardwareWait = timeout
		return nil
	})
}

// WithMaxXferSize sets the largest accepted transfer size in bytes. Zero
// removes the limit.
func WithMaxXferSize(size int) Option {
	return newOptFunc(func(cfg *Config) error {
		if size < 0 {
			return errors.New("max transfer size can not be negative")
		}
		cfg.maxXferSize = size
		return nil
	})
}

// WithWorkQueueSize sets the deferred worker queue capacity.
func WithWorkQueueSize(size int) Option {
	return newOptFunc(func(cfg *Config) error {
		if size < 1 {
			return errors.New("work queue size must be positive")
		}
		cfg.workQueueSize = size
		return nil
	})
}

// WithMinErrorReportInterval sets the interval within which repeated
// reports of the same error class are suppressed.
func WithMinErrorReportInterval(interval time.Duration) Option {
	return newOptFunc(func(cfg *Config) error {
		if interval < 0 {
			return errors.New("min error report interval can not be negative")
		}
		cfg.minReportInterval = interval
		return nil
	})
}

// WithErrorRateDecayHalfTime sets the occurrence distance at which the
// error rate moving average takes half of the new sample.
func WithErrorRateDecayHalfTime(half time.Duration) Option {
	return newOptFunc(func(cfg *Config) error {
		if half <= 0 {
			return errors.New("error rate decay half time must be positive")
		}
		cfg.decayHalfTime = half
		return nil
	})
}

// WithAcceptedHandler sets the callback invoked after a replacement
// transfer returned by a handler was processed.
func WithAcceptedHandler(handler AcceptedHandler) Option {
	return newOptFunc(func(cfg *Config) error {
		cfg.accepted = handler
		return nil
	})
}

// WithLogger overrides the package default logger.
func WithLogger(l logger.Logger) Option {
	return newOptFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("logger can not be nil")
		}
		cfg.logger = l
		return nil
	})
}
