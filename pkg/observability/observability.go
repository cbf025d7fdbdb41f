package observability

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_enqueued_total",
		Help: "The total number of enqueued jobs",
	}, []string{"type"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "The total number of processed jobs",
	}, []string{"type", "status"}) // status: succeeded, retried, abandoned

	JobsAbandoned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_abandoned_total",
		Help: "Jobs that reached a terminal failure and need operator review",
	}, []string{"type"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of job processing.",
		Buckets: prometheus.LinearBuckets(0.1, 0.2, 10),
	}, []string{"type"})

	LeasesReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "job_leases_released_total",
		Help: "Running jobs returned to the queue after their lease expired",
	})

	NotificationsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_deduplicated_total",
		Help: "Schedule requests rejected because the recipient was notified within the dedup window",
	})

	AggregationConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregation_conflicts_total",
		Help: "Optimistic version conflicts on aggregate updates",
	}, []string{"op"})

	DailyBoundaryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daily_boundary_failures_total",
		Help: "Employees that failed during a daily boundary run",
	})

	OutboxPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox rows relayed to the broker",
	})
)

// NewLogger creates a new structured logger at the given level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// StartMetricsServer runs an HTTP server to expose Prometheus metrics.
func StartMetricsServer(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()
}
