package compress

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce     sync.Once
	compressedBytes prometheus.Counter
	originalBytes   prometheus.Counter
)

func metrics() (prometheus.Counter, prometheus.Counter) {
	metricsOnce.Do(func() {
		originalBytes = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jsrecon",
			Subsystem: "compress",
			Name:      "original_bytes_total",
			Help:      "Bytes fed into the compressor.",
		})
		compressedBytes = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jsrecon",
			Subsystem: "compress",
			Name:      "compressed_bytes_total",
			Help:      "Bytes produced by the compressor.",
		})
		prometheus.DefaultRegisterer.MustRegister(originalBytes, compressedBytes)
	})
	return originalBytes, compressedBytes
}
