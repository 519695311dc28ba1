package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kerigma"

var (
	once sync.Once

	pendingActions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "pending_actions",
			Help:      "Actions waiting in the offline queue.",
		},
	)

	syncedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "synced_total",
			Help:      "Actions delivered successfully, by action type.",
		},
		[]string{"type"},
	)

	failedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "failed_total",
			Help:      "Failed delivery attempts, by action type.",
		},
		[]string{"type"},
	)

	syncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "sync_passes_total",
			Help:      "Sync passes by outcome.",
		},
		[]string{"outcome"},
	)

	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "sync_duration_seconds",
			Help:      "Wall time of a sync pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(pendingActions, syncedTotal, failedTotal, syncPasses, syncDuration, httpRequests)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// Recorder feeds offline manager measurements into the collectors above.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (Recorder) QueueSize(n int) {
	pendingActions.Set(float64(n))
}

func (Recorder) ActionSynced(actionType string) {
	syncedTotal.WithLabelValues(actionType).Inc()
}

func (Recorder) ActionFailed(actionType string) {
	failedTotal.WithLabelValues(actionType).Inc()
}

func (Recorder) PassFinished(outcome string, took time.Duration) {
	syncPasses.WithLabelValues(outcome).Inc()
	syncDuration.Observe(took.Seconds())
}
