package client

import "time"

// DefaultTimeout is the default per-request idle timeout.
const DefaultTimeout = 5000 * time.Millisecond

// DefaultMaxIdleConns is the default number of pooled connections
// maintained per endpoint.
const DefaultMaxIdleConns = 100

type config struct {
	timeout           time.Duration
	maxIdleConns      int
	delay             bool
	disableLogger     bool
	disableDiagnostic bool
}

// Option configures a Client at construction time.
type Option func(*config)

// WithMaxIdleConns sets a custom number of pooled connections per
// endpoint. By default DefaultMaxIdleConns is used.
func WithMaxIdleConns(n int) Option {
	return func(c *config) {
		c.maxIdleConns = n
	}
}

// WithTimeout sets a custom per-request idle timeout. By default
// DefaultTimeout is used.
func WithTimeout(t time.Duration) Option {
	return func(c *config) {
		c.timeout = t
	}
}

// WithDelay enables Nagle's algorithm on outgoing connections. By
// default Nagle is disabled.
func WithDelay() Option {
	return func(c *config) {
		c.delay = true
	}
}

// WithDisableLogger disables internal library logs.
func WithDisableLogger() Option {
	return func(c *config) {
		c.disableLogger = true
	}
}

// WithDisableDiagnostic disables writing Prometheus client metrics.
func WithDisableDiagnostic() Option {
	return func(c *config) {
		c.disableDiagnostic = true
	}
}

func newConfig(opts ...Option) *config {
	c := &config{
		timeout:      DefaultTimeout,
		maxIdleConns: DefaultMaxIdleConns,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
