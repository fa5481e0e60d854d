package postgres

import "github.com/jobwire/outbox"

const (
	defaultTable       = "outbox_events"
	defaultMaxAttempts = 3
)

// Config defines PostgreSQL store behavior.
type Config struct {
	// Table is the outbox table name. Use schema.table for a non-default schema.
	Table string
	// MaxAttempts is the retry ceiling: an event whose attempt count reaches
	// it on a failed publish is dead-lettered.
	MaxAttempts int
	// Clock overrides the time source (useful for tests).
	Clock outbox.Clock
	// ValidatePayload controls JSON validation of payloads on Append.
	ValidatePayload    bool
	validatePayloadSet bool
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Clock == nil {
		c.Clock = outbox.SystemClock{}
	}
	if !c.validatePayloadSet {
		c.ValidatePayload = true
	}

	return c
}

// Option configures the PostgreSQL store.
type Option func(*Config)

// WithTable sets the outbox table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithMaxAttempts sets the retry ceiling before dead-lettering.
func WithMaxAttempts(attempts int) Option {
	return func(c *Config) {
		c.MaxAttempts = attempts
	}
}

// WithClock sets the time source used by the store.
func WithClock(clock outbox.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithValidatePayload enables or disables JSON validation on Append.
func WithValidatePayload(enabled bool) Option {
	return func(c *Config) {
		c.ValidatePayload = enabled
		c.validatePayloadSet = true
	}
}
