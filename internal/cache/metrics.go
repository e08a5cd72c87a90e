package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once
	hitCounter  prometheus.Counter
	missCounter prometheus.Counter
)

func metrics() (prometheus.Counter, prometheus.Counter) {
	metricsOnce.Do(func() {
		hitCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jsrecon",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Script-cache hits across both tiers.",
		})
		missCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jsrecon",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Script-cache misses.",
		})
		prometheus.DefaultRegisterer.MustRegister(hitCounter, missCounter)
	})
	return hitCounter, missCounter
}
