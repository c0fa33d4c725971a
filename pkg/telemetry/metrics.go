package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "caretasks"

var (
	// ─── API Gateway ─────────────────────────────────────────────────────────────

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests served, labelled by route pattern, method and status code.",
	}, []string{"route", "method", "code"})

	APIRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route", "method"})

	APIRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-tenant rate limiter.",
	})

	// ─── Task service ────────────────────────────────────────────────────────────

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by view (task, list, statistics, categories, upcoming) and result (hit, miss, error).",
	}, []string{"view", "result"})

	ServiceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "service",
		Name:      "errors_total",
		Help:      "Store failures by operation. Read operations degrade to empty results.",
	}, []string{"operation"})

	SuccessorsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "service",
		Name:      "successors_created_total",
		Help:      "Recurring task occurrences generated.",
	})

	// ─── Sweeps ──────────────────────────────────────────────────────────────────

	SweepTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "tasks_total",
		Help:      "Tasks touched by a sweep, labelled by sweep (overdue, reminders).",
	}, []string{"sweep"})

	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "runs_total",
		Help:      "Sweep runs by sweep and result (ok, error, skipped).",
	}, []string{"sweep", "result"})

	SweepDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "duration_seconds",
		Help:      "Time to sweep every tenant once.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"sweep"})

	// ─── Notifier ────────────────────────────────────────────────────────────────

	RemindersPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reminders",
		Name:      "published_total",
		Help:      "Reminder events handed to Kafka, by result (ok, error).",
	}, []string{"result"})

	RemindersDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reminders",
		Name:      "delivered_total",
		Help:      "Reminders delivered, by channel and status (delivered, duplicate, failed).",
	}, []string{"channel", "status"})

	ReminderDeliveryDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reminders",
		Name:      "delivery_duration_seconds",
		Help:      "Time to deliver one reminder including retries.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"channel"})

	ReminderRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reminders",
		Name:      "retries_total",
		Help:      "Delivery retry attempts.",
	}, []string{"channel"})

	ReminderDLQTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reminders",
		Name:      "dlq_total",
		Help:      "Reminders forwarded to the dead-letter topic.",
	}, []string{"channel"})
)
