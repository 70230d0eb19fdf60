package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	methodNameLabel   = "method_name"
	isSuccessfulLabel = "is_successful"
)

var (
	methodDurationSeconds = func() *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "",
			Name:      "gocached_cache_method_duration_seconds",
			Help:      "counts the execution time of successful and failed cache methods",
			Buckets: []float64{
				0.0005, 0.001, 0.005, 0.007, 0.015, 0.05, 0.1, 0.2, 0.5, 1,
			},
		}, []string{
			methodNameLabel,
			isSuccessfulLabel,
		})
	}()

	itemsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gocached_cache_items",
		Help: "current number of records held in the cache",
	})

	evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gocached_cache_evictions_total",
		Help: "total number of records evicted by the purge sweep",
	})

	totalItemsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gocached_cache_total_items_total",
		Help: "total number of records ever stored in the cache",
	})
)

// observeMethodDurationSeconds records the duration of a cache method.
func observeMethodDurationSeconds(methodName string, duration float64, isSuccessful bool) {
	flag := "0"
	if isSuccessful {
		flag = "1"
	}

	methodDurationSeconds.
		WithLabelValues(methodName, flag).
		Observe(duration)
}
