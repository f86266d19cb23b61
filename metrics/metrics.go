// Package metrics provides bridge telemetry on Prometheus collectors.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wippyai/engine-bridge/handle"
)

// Collector holds bridge metrics.
type Collector struct {
	registry *prometheus.Registry

	loads          *prometheus.CounterVec
	sessions       prometheus.Gauge
	sessionStarts  *prometheus.CounterVec
	calls          *prometheus.CounterVec
	callLatency    *prometheus.HistogramVec
	framesSent     prometheus.Counter
	frameBytes     prometheus.Counter
	framesRejected prometheus.Counter
	barriers       prometheus.Counter
	previewLatency *prometheus.HistogramVec
	inbound        *prometheus.CounterVec
	inboundDropped prometheus.Counter
	inboundQueue   prometheus.Gauge
	rateLimitWaits prometheus.Histogram
	instances      prometheus.Gauge
}

// NewCollector creates a collector on its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "hwbridge"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.loads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "loads_total",
			Help:      "Engine module load attempts by result kind",
		},
		[]string{"result"},
	)

	c.sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "running",
		Help:      "Engine sessions currently running",
	})

	c.sessionStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "starts_total",
			Help:      "Engine session start attempts",
		},
		[]string{"result"},
	)

	c.calls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "calls_total",
			Help:      "Engine entry point invocations",
		},
		[]string{"symbol", "result"},
	)

	c.callLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "call_duration_seconds",
			Help:      "Engine entry point latency",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
		},
		[]string{"symbol"},
	)

	c.framesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ipc",
		Name:      "frames_total",
		Help:      "Config frames accepted by the engine",
	})

	c.frameBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ipc",
		Name:      "frame_bytes_total",
		Help:      "Config frame bytes accepted by the engine",
	})

	c.framesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ipc",
		Name:      "frames_rejected_total",
		Help:      "Config frames the engine refused",
	})

	c.barriers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ipc",
		Name:      "barriers_total",
		Help:      "Barriers inserted into the config stream",
	})

	c.rateLimitWaits = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ipc",
		Name:      "rate_limit_wait_seconds",
		Help:      "Time frames spent waiting on the send rate limit",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	c.previewLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "duration_seconds",
			Help:      "Preview generation latency by result",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"result"},
	)

	c.inbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbound",
			Name:      "messages_total",
			Help:      "Engine events delivered to the handler",
		},
		[]string{"type"},
	)

	c.inboundDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inbound",
		Name:      "dropped_total",
		Help:      "Engine events dropped after game finished or close",
	})

	c.inboundQueue = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "inbound",
		Name:      "queue_depth",
		Help:      "Engine events waiting for the handler",
	})

	c.instances = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "instances",
		Help:      "Engine instances live in loaded modules",
	})

	c.registry.MustRegister(
		c.loads,
		c.sessions,
		c.sessionStarts,
		c.calls,
		c.callLatency,
		c.framesSent,
		c.frameBytes,
		c.framesRejected,
		c.barriers,
		c.rateLimitWaits,
		c.previewLatency,
		c.inbound,
		c.inboundDropped,
		c.inboundQueue,
		c.instances,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
// A nil collector serves an empty registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordLoad records a module load outcome. kind is the error kind, or
// empty on success.
func (c *Collector) RecordLoad(kind string) {
	if c == nil {
		return
	}
	if kind == "" {
		kind = "success"
	}
	c.loads.WithLabelValues(kind).Inc()
}

// RecordSessionStart records a start attempt and tracks running sessions.
func (c *Collector) RecordSessionStart(err error) {
	if c == nil {
		return
	}
	c.sessionStarts.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.sessions.Inc()
	}
}

// RecordSessionEnd records a session leaving the running state.
func (c *Collector) RecordSessionEnd() {
	if c == nil {
		return
	}
	c.sessions.Dec()
}

// RecordCall records one engine entry point invocation.
func (c *Collector) RecordCall(symbol string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.calls.WithLabelValues(symbol, result(err)).Inc()
	c.callLatency.WithLabelValues(symbol).Observe(duration.Seconds())
}

// RecordFrame records one config frame outcome.
func (c *Collector) RecordFrame(size int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.framesRejected.Inc()
		return
	}
	c.framesSent.Inc()
	c.frameBytes.Add(float64(size))
}

// RecordBarrier records a barrier insertion.
func (c *Collector) RecordBarrier() {
	if c == nil {
		return
	}
	c.barriers.Inc()
}

// RecordRateLimitWait records time spent blocked on the send limiter.
func (c *Collector) RecordRateLimitWait(d time.Duration) {
	if c == nil {
		return
	}
	c.rateLimitWaits.Observe(d.Seconds())
}

// RecordPreview records a preview outcome. result is "success", "error",
// "timeout" or "idle".
func (c *Collector) RecordPreview(result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.previewLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordInbound records an event handed to the handler.
func (c *Collector) RecordInbound(msgType string) {
	if c == nil {
		return
	}
	c.inbound.WithLabelValues(msgType).Inc()
}

// RecordInboundDropped records an event discarded before delivery.
func (c *Collector) RecordInboundDropped() {
	if c == nil {
		return
	}
	c.inboundDropped.Inc()
}

// SetInboundQueueDepth records the number of undelivered events.
func (c *Collector) SetInboundQueueDepth(n int) {
	if c == nil {
		return
	}
	c.inboundQueue.Set(float64(n))
}

// HandleObserver tracks live engine instances from a backend's handle
// table. The result is nil for a nil collector.
func (c *Collector) HandleObserver() handle.Observer {
	if c == nil {
		return nil
	}
	return handle.ObserverFunc(func(e handle.Event) {
		switch e.Type {
		case handle.EventCreated:
			c.instances.Inc()
		case handle.EventDropped:
			c.instances.Dec()
		}
	})
}
