package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutSessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_created_total",
		Help: "Total number of hosted checkout sessions created",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Total number of rejected or failed checkout initiations",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of checkout initiation including the provider call",
		Buckets: prometheus.DefBuckets,
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of payment provider webhook deliveries",
	}, []string{"type", "outcome"})

	WebhookProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_processing_latency_seconds",
		Help:    "Latency of webhook reconciliation",
		Buckets: prometheus.DefBuckets,
	})

	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Total number of payment status transitions",
	}, []string{"status"})

	EnrollmentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_created_total",
		Help: "Total number of enrollments created",
	})

	EmailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emails_sent_total",
		Help: "Total number of outbound emails",
	}, []string{"template", "result"})

	ClassCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "class_cache_requests_total",
		Help: "Class listing cache lookups",
	}, []string{"result"})

	WorkerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_runs_total",
		Help: "Total number of background worker passes",
	}, []string{"worker", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
