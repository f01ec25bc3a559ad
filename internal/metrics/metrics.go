package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pklapps_agent",
			Name:      "submissions_total",
			Help:      "Submission attempts by outcome.",
		},
		[]string{"status"},
	)

	syncItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pklapps_agent",
			Name:      "sync_items_total",
			Help:      "Per-item sync outcomes.",
		},
		[]string{"outcome"},
	)

	syncPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pklapps_agent",
			Name:      "sync_passes_total",
			Help:      "Completed sync passes.",
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pklapps_agent",
			Name:      "queue_depth",
			Help:      "Pending offline submissions by type.",
		},
		[]string{"type"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(submissions, syncItems, syncPasses, queueDepth)
	})
}

// IncSubmission increments the counter for a submission outcome.
func IncSubmission(status string) {
	submissions.WithLabelValues(status).Inc()
}

// IncSyncItem increments the per-item sync outcome counter.
func IncSyncItem(outcome string) {
	syncItems.WithLabelValues(outcome).Inc()
}

// IncSyncPass counts one finished drain pass.
func IncSyncPass() {
	syncPasses.Inc()
}

// SetQueueDepth records the current pending count for a type.
func SetQueueDepth(submissionType string, count int) {
	queueDepth.WithLabelValues(submissionType).Set(float64(count))
}
