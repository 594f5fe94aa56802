package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook outcomes.
const (
	OutcomeProcessed     = "processed"
	OutcomeDuplicate     = "duplicate"
	OutcomeIgnored       = "ignored"
	OutcomeUnrecoverable = "unrecoverable"
	OutcomeError         = "error"
)

// WebhookMetrics tracks payment webhook reconciliation.
type WebhookMetrics struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Payment webhook events by type and reconciliation outcome.",
	}, []string{"type", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_reconcile_duration_seconds",
		Help:    "Time spent reconciling a payment webhook event.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	reg.MustRegister(events, duration)
	return &WebhookMetrics{events: events, duration: duration}
}

func (w *WebhookMetrics) Record(eventType, outcome string, elapsed time.Duration) {
	if w == nil || w.events == nil {
		return
	}
	eventType = normalizeLabel(eventType)
	w.events.WithLabelValues(eventType, normalizeLabel(outcome)).Inc()
	w.duration.WithLabelValues(eventType).Observe(elapsed.Seconds())
}

// EffectMetrics counts post-commit side effects that failed.
type EffectMetrics struct {
	failures *prometheus.CounterVec
}

func NewEffectMetrics(reg prometheus.Registerer) *EffectMetrics {
	if reg == nil {
		return &EffectMetrics{}
	}
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "post_commit_effect_failures_total",
		Help: "Post-commit side effects that failed after the primary write committed.",
	}, []string{"effect"})
	reg.MustRegister(failures)
	return &EffectMetrics{failures: failures}
}

func (e *EffectMetrics) IncFailure(effect string) {
	if e == nil || e.failures == nil {
		return
	}
	e.failures.WithLabelValues(normalizeLabel(effect)).Inc()
}

// OutboxMetrics tracks the outbox publisher.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events delivered to the broker.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_failed_total",
		Help: "Outbox publish attempts that failed.",
	}, []string{"event_type"})
	reg.MustRegister(published, failed)
	return &OutboxMetrics{published: published, failed: failed}
}

func (o *OutboxMetrics) IncPublished(eventType string) {
	if o == nil || o.published == nil {
		return
	}
	o.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (o *OutboxMetrics) IncFailed(eventType string) {
	if o == nil || o.failed == nil {
		return
	}
	o.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}
