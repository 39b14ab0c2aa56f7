// Package metrics exposes attendance and HTTP metrics to prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/hazira/core/attendance"
)

const namespace = "hazira"

// Collector bundles the service metrics. A nil *Collector records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Verdicts               *prometheus.CounterVec
	Rejections             *prometheus.CounterVec
	ClassificationDuration prometheus.Histogram
	HTTPRequests           *prometheus.CounterVec
	HTTPDurations          *prometheus.HistogramVec
}

var _ attendance.Metrics = (*Collector)(nil)

// NewCollector registers the metrics against `reg`, the global registry when nil.
// Registering twice on the same registry reuses the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	verdicts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attendance_verdicts_total",
		Help:      "Attendance verdicts recorded, by status.",
	}, []string{"status"}))
	if err != nil {
		return nil, err
	}
	rejections, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attendance_rejections_total",
		Help:      "Submissions rejected before classification, by reason.",
	}, []string{"reason"}))
	if err != nil {
		return nil, err
	}
	classification, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "attendance_classification_seconds",
		Help:      "Time spent validating, resolving and classifying a batch.",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}))
	if err != nil {
		return nil, err
	}
	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Handled HTTP requests, by method, route and status code.",
	}, []string{"method", "route", "code"}))
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"}))
	if err != nil {
		return nil, err
	}

	// initialize the status series so dashboards show zeroes
	for _, status := range attendance.AllStatuses {
		verdicts.WithLabelValues(string(status))
	}

	return &Collector{
		gatherer:               gatherer,
		Verdicts:               verdicts,
		Rejections:             rejections,
		ClassificationDuration: classification,
		HTTPRequests:           requests,
		HTTPDurations:          durations,
	}, nil
}

func (c *Collector) ObserveClassification(d time.Duration) {
	if c == nil {
		return
	}
	c.ClassificationDuration.Observe(d.Seconds())
}

func (c *Collector) IncVerdict(status attendance.Status) {
	if c == nil {
		return
	}
	c.Verdicts.WithLabelValues(string(status)).Inc()
}

func (c *Collector) IncRejected(reason string) {
	if c == nil {
		return
	}
	c.Rejections.WithLabelValues(reason).Inc()
}

func (c *Collector) ObserveRequest(method, route string, code int, d time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.HTTPDurations.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, errors.New("counter already registered with incompatible type")
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, errors.New("histogram vec already registered with incompatible type")
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, errors.New("histogram already registered with incompatible type")
		}
		return nil, err
	}
	return h, nil
}
