package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ServersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_servers_total",
			Help: "Total number of registered servers by health state",
		},
		[]string{"health"},
	)

	BackupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_backups_total",
			Help: "Total number of backups by family and terminal status",
		},
		[]string{"family", "status"},
	)

	BackupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_backup_duration_seconds",
			Help:    "Time taken to complete a backup pipeline run in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"family", "kind"},
	)

	RestoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_restore_duration_seconds",
			Help:    "Time taken to complete a restore pipeline run in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"family"},
	)

	SchedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guardian_scheduler_tick_duration_seconds",
			Help:    "Time taken to evaluate all enabled schedules in one tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	ScheduledBackupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_scheduled_backups_total",
			Help: "Total number of PENDING backups admitted by the scheduler",
		},
	)

	ReaperCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guardian_reaper_cycle_duration_seconds",
			Help:    "Time taken for one retention reaper pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReaperDeletionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_reaper_deletions_total",
			Help: "Total number of backups soft-deleted by the retention reaper",
		},
	)

	ProbeResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_probe_results_total",
			Help: "Total number of health probe results by outcome",
		},
		[]string{"health"},
	)

	ProbeEdgeTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_probe_edge_transitions_total",
			Help: "Total number of health state edge transitions that triggered a notification",
		},
		[]string{"from", "to"},
	)

	BusSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_bus_subscribers",
			Help: "Current number of live fan-out subscribers by channel",
		},
		[]string{"channel"},
	)

	BusDroppedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_bus_dropped_events_total",
			Help: "Total number of events dropped due to a full subscriber buffer",
		},
		[]string{"channel"},
	)

	ExecutorCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_executor_commands_total",
			Help: "Total number of commands executed by transport and outcome",
		},
		[]string{"transport", "outcome"},
	)

	BlobUploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guardian_blob_upload_duration_seconds",
			Help:    "Time taken to upload a backup blob",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkerPoolActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_worker_pool_active",
			Help: "Number of worker pool goroutines currently processing a backup",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ServersTotal,
		BackupsTotal,
		BackupDuration,
		RestoreDuration,
		SchedulerTickDuration,
		ScheduledBackupsTotal,
		ReaperCycleDuration,
		ReaperDeletionsTotal,
		ProbeResultsTotal,
		ProbeEdgeTransitionsTotal,
		BusSubscribers,
		BusDroppedEventsTotal,
		ExecutorCommandsTotal,
		BlobUploadDuration,
		WorkerPoolActive,
	)
}

// Handler returns the Prometheus HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
