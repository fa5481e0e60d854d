package outbox

import "time"

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 5 * time.Second
	defaultPublishTimeout = 10 * time.Second
	defaultWorkers        = 1
)

// RelayConfig defines how the Relay schedules and processes batches.
type RelayConfig struct {
	// BatchSize caps how many events one run claims. Keep it small relative
	// to the poll interval so the claim lock window stays short.
	BatchSize int
	// PollInterval is the idle period between runs.
	PollInterval time.Duration
	// InitialDelay postpones the first run after startup.
	InitialDelay time.Duration
	// Workers is the number of concurrent claim loops.
	Workers int
	// PublishTimeout bounds a single publish attempt. A timed-out attempt is
	// a failed attempt.
	PublishTimeout time.Duration
	// PendingInterval rate-limits pending gauge samples; zero disables them.
	PendingInterval time.Duration
	Clock           Clock
	Logger          Logger
	Metrics         Metrics
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c
}

// RelayOption configures Relay behavior.
type RelayOption func(*RelayConfig)

// WithBatchSize sets the number of events claimed per run.
func WithBatchSize(size int) RelayOption {
	return func(c *RelayConfig) {
		c.BatchSize = size
	}
}

// WithPollInterval sets the idle period between runs.
func WithPollInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PollInterval = interval
	}
}

// WithInitialDelay sets the startup grace delay before the first run.
func WithInitialDelay(delay time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.InitialDelay = delay
	}
}

// WithWorkers sets the number of concurrent claim loops.
func WithWorkers(count int) RelayOption {
	return func(c *RelayConfig) {
		c.Workers = count
	}
}

// WithPublishTimeout bounds a single publish attempt.
func WithPublishTimeout(timeout time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PublishTimeout = timeout
	}
}

// WithPendingInterval sets the minimum interval between pending gauge
// samples. Zero keeps sampling disabled, which is the default.
func WithPendingInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PendingInterval = interval
	}
}

// WithClock sets the relay clock.
func WithClock(clock Clock) RelayOption {
	return func(c *RelayConfig) {
		c.Clock = clock
	}
}

// WithLogger sets the relay logger.
func WithLogger(logger Logger) RelayOption {
	return func(c *RelayConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the relay metrics recorder.
func WithMetrics(metrics Metrics) RelayOption {
	return func(c *RelayConfig) {
		c.Metrics = metrics
	}
}
