package server

import "github.com/prometheus/client_golang/prometheus"

// DefaultPort is the standard memcached TCP port.
const DefaultPort = 11211

type config struct {
	port              int
	delay             bool
	fast              bool
	registerer        prometheus.Registerer
	disableDiagnostic bool
}

// Option configures a Server at construction time, mirroring the
// functional-options shape used throughout this module.
type Option func(*config)

// WithPort binds the server to a non-default TCP port.
func WithPort(port int) Option {
	return func(c *config) {
		c.port = port
	}
}

// WithDelay enables Nagle's algorithm (TCP_NODELAY off) on accepted
// connections. By default Nagle is disabled.
func WithDelay() Option {
	return func(c *config) {
		c.delay = true
	}
}

// WithFast makes the server reply "ERROR\r\n" to every inbound
// segment without touching the parser or cache; it backs the --fast
// CLI flag.
func WithFast() Option {
	return func(c *config) {
		c.fast = true
	}
}

// WithMetrics registers the server's Prometheus collectors against a
// custom registerer instead of the default global one.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

// WithDisableDiagnostic disables writing Prometheus server metrics.
func WithDisableDiagnostic() Option {
	return func(c *config) {
		c.disableDiagnostic = true
	}
}

func newConfig(opts ...Option) *config {
	c := &config{port: DefaultPort}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
