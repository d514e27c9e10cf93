package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the service.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	// Pipeline metrics
	Triggers        *prometheus.CounterVec
	TriggerDuration *prometheus.HistogramVec
	Forecasts       *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	Reconciliations *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates a collector on its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triggers_total",
				Help:      "Total number of forecast triggers by event and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		TriggerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trigger_duration_seconds",
				Help:      "Time from trigger to persisted forecast",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"trigger"},
		),
		Forecasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecasts_total",
				Help:      "Total number of forecasts by model and direction",
			},
			[]string{"model", "direction", "risk"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification policy decisions",
			},
			[]string{"type", "decision"},
		),
		Reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Outcome reconciliation attempts",
			},
			[]string{"result"},
		),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Notification deliveries to outside sinks",
			},
			[]string{"status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		c.Triggers,
		c.TriggerDuration,
		c.Forecasts,
		c.Notifications,
		c.Reconciliations,
		c.Deliveries,
		c.HTTPRequests,
		c.HTTPDuration,
	)
	return c
}

// Handler exposes the collector's registry
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) RecordTrigger(trigger, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Triggers.WithLabelValues(trigger, outcome).Inc()
	c.TriggerDuration.WithLabelValues(trigger).Observe(elapsed.Seconds())
}

func (c *Collector) RecordForecast(model, direction string, risk bool) {
	if c == nil {
		return
	}
	r := "none"
	if risk {
		r = "alert"
	}
	c.Forecasts.WithLabelValues(model, direction, r).Inc()
}

func (c *Collector) RecordNotification(kind, decision string) {
	if c == nil {
		return
	}
	c.Notifications.WithLabelValues(kind, decision).Inc()
}

func (c *Collector) RecordReconciliation(matched bool) {
	if c == nil {
		return
	}
	result := "no_match"
	if matched {
		result = "matched"
	}
	c.Reconciliations.WithLabelValues(result).Inc()
}

func (c *Collector) RecordDelivery(err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Deliveries.WithLabelValues(status).Inc()
}

func (c *Collector) RecordHTTPRequest(method, route, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
