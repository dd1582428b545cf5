// Package metrics exposes Prometheus instrumentation for the dispatch
// pipeline and the digest scheduler.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notifykit"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SubmittedTotal   prometheus.Counter
	DecisionsTotal   *prometheus.CounterVec // channel, outcome, reason
	DeliveriesTotal  *prometheus.CounterVec // channel, status
	DeliveryDuration *prometheus.HistogramVec
	ReleasesTotal    *prometheus.CounterVec // channel, reason
	DigestsTotal     *prometheus.CounterVec // channel, status
	DigestSize       prometheus.Histogram
	ActiveSchedules  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		SubmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_submitted_total",
			Help:      "Notifications accepted by Submit.",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_item_decisions_total",
			Help:      "Work item decisions by channel, outcome and reason.",
		}, []string{"channel", "outcome", "reason"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Immediate delivery attempts by channel and status.",
		}, []string{"channel", "status"}),
		DeliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent in channel senders.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"channel"}),
		ReleasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_item_releases_total",
			Help:      "Work items handed back to the queue for a later attempt.",
		}, []string{"channel", "reason"}),
		DigestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digest_flushes_total",
			Help:      "Digest flushes by channel and status (sent, empty, failed).",
		}, []string{"channel", "status"}),
		DigestSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "digest_entries",
			Help:      "Entries consolidated per sent digest.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		ActiveSchedules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "digest_schedules_active",
			Help:      "Digest subscriptions with a running timer.",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.SubmittedTotal, m.DecisionsTotal, m.DeliveriesTotal, m.DeliveryDuration,
		m.ReleasesTotal, m.DigestsTotal, m.DigestSize, m.ActiveSchedules,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// MustNew is like New but panics on registration failure.
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) Submitted() {
	if m == nil {
		return
	}
	m.SubmittedTotal.Inc()
}

func (m *Metrics) Decision(channel, outcome, reason string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(channel, outcome, reason).Inc()
}

func (m *Metrics) Delivery(channel string, took time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	m.DeliveriesTotal.WithLabelValues(channel, status).Inc()
	m.DeliveryDuration.WithLabelValues(channel).Observe(took.Seconds())
}

func (m *Metrics) Released(channel, reason string) {
	if m == nil {
		return
	}
	m.ReleasesTotal.WithLabelValues(channel, reason).Inc()
}

// Digest records a flush: count == 0 is a quiet tick.
func (m *Metrics) Digest(channel string, count int, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.DigestsTotal.WithLabelValues(channel, "failed").Inc()
	case count == 0:
		m.DigestsTotal.WithLabelValues(channel, "empty").Inc()
	default:
		m.DigestsTotal.WithLabelValues(channel, "sent").Inc()
		m.DigestSize.Observe(float64(count))
	}
}

func (m *Metrics) Schedules(n int) {
	if m == nil {
		return
	}
	m.ActiveSchedules.Set(float64(n))
}
