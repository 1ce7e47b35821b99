// Package metrics exports per-operation Prometheus metrics for a mount.
package metrics

import (
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"
)

const namespace = "mirrorfs"

// Collector records filesystem calls. It implements shim.Observer.
type Collector struct {
	registry *prometheus.Registry

	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
	mounted  prometheus.Gauge
}

// NewCollector creates a collector with its own registry. constLabels are
// attached to every series, e.g. the mount point.
func NewCollector(constLabels prometheus.Labels) (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "calls_total",
			Help:        "Filesystem calls handled, by operation and result.",
			ConstLabels: constLabels,
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "call_duration_seconds",
			Help:        "Time spent in the host for each filesystem call.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"op"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "bytes_total",
			Help:        "Bytes transferred by read and write calls.",
			ConstLabels: constLabels,
		}, []string{"op"}),
		mounted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "mounted",
			Help:        "1 while the filesystem is mounted.",
			ConstLabels: constLabels,
		}),
	}

	for _, col := range []prometheus.Collector{c.calls, c.duration, c.bytes, c.mounted} {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return c, nil
}

// Observe records one completed call.
func (c *Collector) Observe(op string, d time.Duration, errno syscall.Errno, bytes int) {
	c.calls.WithLabelValues(op, Result(errno)).Inc()
	c.duration.WithLabelValues(op).Observe(d.Seconds())
	if bytes > 0 {
		c.bytes.WithLabelValues(op).Add(float64(bytes))
	}
}

// SetMounted updates the mounted gauge.
func (c *Collector) SetMounted(mounted bool) {
	if mounted {
		c.mounted.Set(1)
	} else {
		c.mounted.Set(0)
	}
}

// TrackOpenHandles exports the value of fn as the open handle gauge.
func (c *Collector) TrackOpenHandles(fn func() int) error {
	return c.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_handles",
		Help:      "File handles currently registered by open and create.",
	}, func() float64 {
		return float64(fn())
	}))
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Result is the result label for an errno: "ok" or the errno's name.
func Result(errno syscall.Errno) string {
	if errno == 0 {
		return "ok"
	}
	if name := unix.ErrnoName(errno); name != "" {
		return name
	}
	return fmt.Sprintf("errno%d", int(errno))
}
