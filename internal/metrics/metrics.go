package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HMasataka/streamhub/pkg/domain"
)

const namespace = "streamhub"

// Collector holds the streaming collectors on a private registry. It
// satisfies broker.Observer and streaming.Recorder.
type Collector struct {
	registry *prometheus.Registry

	streams          *prometheus.GaugeVec
	subscribers      prometheus.Gauge
	published        *prometheus.CounterVec
	publishFailures  *prometheus.CounterVec
	publishDuration  *prometheus.HistogramVec
	deliveries       prometheus.Counter
	deliveryFailures prometheus.Counter
}

// New creates a collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		streams: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "streams",
				Name:      "current",
				Help:      "Current number of streams by status.",
			},
			[]string{"status"},
		),
		subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "streams",
				Name:      "subscribers",
				Help:      "Current number of active subscriptions across all streams.",
			},
		),
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "messages_total",
				Help:      "Total number of messages accepted for publishing.",
			},
			[]string{"data_type"},
		),
		publishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "failures_total",
				Help:      "Total number of rejected publishes by error code.",
			},
			[]string{"code"},
		),
		publishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "duration_seconds",
				Help:      "Duration of the publish pipeline.",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14), // 50µs to ~400ms
			},
			[]string{"data_type"},
		),
		deliveries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "delivery",
				Name:      "messages_total",
				Help:      "Total number of messages handed to a subscriber transport.",
			},
		),
		deliveryFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "delivery",
				Name:      "failures_total",
				Help:      "Total number of dropped or failed subscriber deliveries.",
			},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.streams,
		c.subscribers,
		c.published,
		c.publishFailures,
		c.publishDuration,
		c.deliveries,
		c.deliveryFailures,
	)

	return c
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the registry for scraping
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Published records an accepted publish
func (c *Collector) Published(dataType domain.DataType, duration time.Duration) {
	c.published.WithLabelValues(string(dataType)).Inc()
	c.publishDuration.WithLabelValues(string(dataType)).Observe(duration.Seconds())
}

// PublishRejected records a failed publish
func (c *Collector) PublishRejected(code string) {
	c.publishFailures.WithLabelValues(code).Inc()
}

// StreamsChanged replaces the per-status stream gauge and subscriber gauge
func (c *Collector) StreamsChanged(byStatus map[domain.StreamStatus]int, subscribers int) {
	for _, status := range []domain.StreamStatus{
		domain.StreamStatusActive,
		domain.StreamStatusPaused,
		domain.StreamStatusStopped,
		domain.StreamStatusError,
	} {
		c.streams.WithLabelValues(string(status)).Set(float64(byStatus[status]))
	}
	c.subscribers.Set(float64(subscribers))
}

// Delivered implements broker.Observer
func (c *Collector) Delivered(domain.StreamID, domain.ClientID) {
	c.deliveries.Inc()
}

// DeliveryFailed implements broker.Observer
func (c *Collector) DeliveryFailed(domain.StreamID, domain.ClientID, error) {
	c.deliveryFailures.Inc()
}
