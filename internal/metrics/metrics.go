package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "dossier"

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of work requests run to a result record, labeled by final status.",
		},
		[]string{"work_type", "status"},
	)

	SectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_total",
			Help:      "Total number of sections executed, labeled by result kind.",
		},
		[]string{"work_type", "section", "kind"},
	)

	SectionLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "section_latency_seconds",
			Help:      "Time spent producing one section (seconds).",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		},
		[]string{"work_type", "section"},
	)

	PipelineDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end pipeline duration from validation to rendered artifact (seconds).",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
		[]string{"work_type"},
	)

	RenderTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_total",
			Help:      "Total number of render attempts, labeled by outcome.",
		},
		[]string{"work_type", "outcome"},
	)

	MessagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound messages acknowledged without processing, labeled by reason.",
		},
		[]string{"work_type", "reason"},
	)

	WorkersBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Number of work requests currently running.",
		},
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Total number of result webhook deliveries, labeled by outcome.",
		},
		[]string{"work_type", "outcome"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests rejected by a rate limit bucket.",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		SectionsTotal,
		SectionLatencySeconds,
		PipelineDurationSeconds,
		RenderTotal,
		MessagesDroppedTotal,
		WorkersBusy,
		WebhookDeliveriesTotal,
		RateLimitHitsTotal,
	)
}
