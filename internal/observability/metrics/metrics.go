package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_deliveries_total",
			Help: "Push and email delivery attempts by outcome.",
		},
		[]string{"channel", "type", "status"},
	)

	DeliveryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_delivery_duration_seconds",
			Help:    "Duration of provider send calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_registrations_total",
			Help: "Device token registrations, refreshes and prunes.",
		},
		[]string{"channel", "platform", "status"},
	)

	RetryJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_retry_jobs_total",
			Help: "Retry queue job outcomes.",
		},
		[]string{"outcome"},
	)

	RetryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_retry_queue_depth",
			Help: "Retry jobs currently queued.",
		},
	)

	SchedulerLagSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_scheduler_lag_seconds",
			Help: "Observed lag between a rule's scheduled instant and its fire.",
		},
	)

	WeeklyEmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_weekly_emails_total",
			Help: "Weekly report and reminder email outcomes.",
		},
		[]string{"kind", "result"},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		DeliveriesTotal,
		DeliveryDurationSeconds,
		RegistrationsTotal,
		RetryJobsTotal,
		RetryQueueDepth,
		SchedulerLagSeconds,
		WeeklyEmailsTotal,
	)
}
