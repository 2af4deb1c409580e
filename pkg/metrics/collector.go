// Package metrics exports run outcomes as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/yurykabanov/securevault/pkg/backup"
)

const namespace = "securevault"

type Collector struct {
	filesArchived prometheus.Counter
	runs          *prometheus.CounterVec
	lastSuccess   *prometheus.GaugeVec
	duration      *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		filesArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_archived_total",
			Help:      "Files written into verified archives.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished backup runs by outcome.",
		}, []string{"status"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Start time of the newest successful run per backup type.",
		}, []string{"type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished backup runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"type"}),
	}
}

func (c *Collector) Register(reg prometheus.Registerer) error {
	return multierr.Combine(
		reg.Register(c.filesArchived),
		reg.Register(c.runs),
		reg.Register(c.lastSuccess),
		reg.Register(c.duration),
	)
}

// ObserveRun records a finished run. Runs still in progress are ignored.
func (c *Collector) ObserveRun(run backup.Run) {
	if !run.Finished() {
		return
	}

	c.runs.WithLabelValues(string(run.Status)).Inc()

	if run.FinishedAt != nil {
		c.duration.WithLabelValues(run.Type).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}

	if run.Status == backup.RunStatusSuccess {
		c.filesArchived.Add(float64(run.Files))
		c.lastSuccess.WithLabelValues(run.Type).Set(float64(run.StartedAt.Unix()))
	}
}

var _ backup.RunObserver = (*Collector)(nil)
