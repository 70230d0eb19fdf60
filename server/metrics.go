package server

import (
	"github.com/nkyo/gocached/logger"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gocached_server_connections_active",
		Help: "current number of live client connections",
	})

	connectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gocached_server_connections_total",
		Help: "total number of accepted client connections",
	})
)

func (s *Server) registerMetrics() {
	if s.cfg.disableDiagnostic {
		return
	}
	reg := s.cfg.registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	// Registration is idempotent-tolerant: a second Server in the same
	// process (as in tests) reuses the already-registered collectors.
	if err := reg.Register(connectionsActive); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			logger.Warnf("server: failed to register connectionsActive: %v", err)
		}
	}
	if err := reg.Register(connectionsTotal); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			logger.Warnf("server: failed to register connectionsTotal: %v", err)
		}
	}
}
