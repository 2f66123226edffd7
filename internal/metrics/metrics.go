package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "push_orchestrator"

var JobsCreated = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_created_total",
		Help:      "Number of jobs created",
	},
)

var JobTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_transitions_total",
		Help:      "Job mutations by source and resulting overall status",
	},
	[]string{"source", "status"},
)

var JobsEvicted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_evicted_total",
		Help:      "Jobs removed from the store by reason",
	},
	[]string{"reason"},
)

var TrackedJobs = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_jobs",
		Help:      "Jobs currently held in the store",
	},
)

var StoreSaveDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_save_duration_seconds",
		Help:      "Latency of persisting the job map",
		Buckets:   prometheus.DefBuckets,
	},
)

var StoreFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_failures_total",
		Help:      "Failed store operations",
	},
	[]string{"op"},
)

var LiveConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_connections",
		Help:      "Registered live viewer connections",
	},
)

var MessagesSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_messages_sent_total",
		Help:      "Messages delivered to live connections by type",
	},
	[]string{"type"},
)

var SendFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_send_failures_total",
		Help:      "Sends that failed and dropped the connection",
	},
)

var WebhookRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_rejections_total",
		Help:      "Rejected webhook deliveries by reason",
	},
	[]string{"reason"},
)

var EventsPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Job events handed to the message broker by outcome",
	},
	[]string{"outcome"},
)

var IntakeMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "intake_messages_total",
		Help:      "Status messages consumed from the broker by outcome",
	},
	[]string{"outcome"},
)
