// internal/metrics/collector.go
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/notify"
	"github.com/xkilldash9x/pilot/internal/stability"
)

// Collector owns a private registry with every metric the service exports.
type Collector struct {
	registry *prometheus.Registry

	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	settleTotal    *prometheus.CounterVec
	settleDuration *prometheus.HistogramVec
	notifications  *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the metrics under namespace, plus the Go runtime
// and process collectors.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		logger:   logger.Named("metrics"),

		actionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Directives executed, by backend, action and outcome",
			},
			[]string{"source", "action", "status"},
		),
		actionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Time from dispatch to confirmed response, including settle waits",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30},
			},
			[]string{"source", "action"},
		),
		settleTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settle_waits_total",
				Help:      "Post-action stability waits, by how they ended",
			},
			[]string{"source", "outcome"},
		),
		settleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "settle_duration_seconds",
				Help:      "Duration of post-action stability waits",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 9),
			},
			[]string{"source"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Side-channel notifications published, by kind",
			},
			[]string{"source", "kind"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveAction records one executed directive.
func (c *Collector) ObserveAction(source schemas.BackendSource, action schemas.ActionKind, status schemas.ActionStatus, elapsed time.Duration) {
	c.actionsTotal.WithLabelValues(string(source), string(action), string(status)).Inc()
	if elapsed > 0 {
		c.actionDuration.WithLabelValues(string(source), string(action)).Observe(elapsed.Seconds())
	}
}

// ObserveSettle records a stability wait. It has the signature of a backend
// settle hook.
func (c *Collector) ObserveSettle(source schemas.BackendSource, res stability.Result) {
	c.settleTotal.WithLabelValues(string(source), res.Outcome.String()).Inc()
	c.settleDuration.WithLabelValues(string(source)).Observe(res.Elapsed.Seconds())
	if res.Uncertain() {
		c.logger.Debug("Settle wait timed out.", zap.String("source", string(source)), zap.Duration("elapsed", res.Elapsed))
	}
}

// RecordHTTPRequest records one served request. route is the matched
// template, not the raw path.
func (c *Collector) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Publisher wraps next so every published notification is counted. Loading
// polls show up as loading-state-update notifications.
func (c *Collector) Publisher(next notify.Publisher) notify.Publisher {
	return &countingPublisher{next: next, counter: c.notifications}
}

type countingPublisher struct {
	next    notify.Publisher
	counter *prometheus.CounterVec
}

func (p *countingPublisher) Publish(ctx context.Context, source schemas.BackendSource, kind schemas.NotificationKind, payload any) error {
	if err := p.next.Publish(ctx, source, kind, payload); err != nil {
		return err
	}
	p.counter.WithLabelValues(string(source), string(kind)).Inc()
	return nil
}
