// Package metrics exposes Prometheus collectors for the preference
// migration. A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "prefmigrate"

// Planner item outcomes.
const (
	OutcomeNew     = "new"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Commit outcomes.
const (
	CommitCommitted  = "committed"
	CommitRolledBack = "rolled_back"
)

// Collector is a prometheus.Collector for one migration engine.
type Collector struct {
	plannerItems   *prometheus.CounterVec
	recordsWritten *prometheus.CounterVec
	commits        *prometheus.CounterVec
	commitDuration prometheus.Histogram
	backups        *prometheus.CounterVec
	stage          *prometheus.GaugeVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		plannerItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "planner",
				Name:      "items_total",
				Help:      "Legacy preference items processed by the planner, by outcome.",
			}, []string{"outcome"},
		),
		recordsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commit",
				Name:      "records_total",
				Help:      "Preference records written by committed batches, by operation.",
			}, []string{"op"},
		),
		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commit",
				Name:      "batches_total",
				Help:      "Commit attempts, by outcome.",
			}, []string{"outcome"},
		),
		commitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "commit",
				Name:      "duration_seconds",
				Help:      "Time spent committing one batch plan.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
		),
		backups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "backups_total",
				Help:      "Backup attempts, by result.",
			}, []string{"result"},
		),
		stage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "stage",
				Help:      "Current migration session stage; the active stage reports 1.",
			}, []string{"stage"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.plannerItems.Describe(ch)
	c.recordsWritten.Describe(ch)
	c.commits.Describe(ch)
	c.commitDuration.Describe(ch)
	c.backups.Describe(ch)
	c.stage.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.plannerItems.Collect(ch)
	c.recordsWritten.Collect(ch)
	c.commits.Collect(ch)
	c.commitDuration.Collect(ch)
	c.backups.Collect(ch)
	c.stage.Collect(ch)
}

// ItemPlanned counts one planner item with the given outcome.
func (c *Collector) ItemPlanned(outcome string) {
	if c == nil {
		return
	}
	c.plannerItems.WithLabelValues(outcome).Inc()
}

// CommitFinished records the duration and outcome of a commit. Record
// counts are only added for committed batches.
func (c *Collector) CommitFinished(d time.Duration, inserted, updated int, err error) {
	if c == nil {
		return
	}
	c.commitDuration.Observe(d.Seconds())
	if err != nil {
		c.commits.WithLabelValues(CommitRolledBack).Inc()
		return
	}
	c.commits.WithLabelValues(CommitCommitted).Inc()
	c.recordsWritten.WithLabelValues("insert").Add(float64(inserted))
	c.recordsWritten.WithLabelValues("update").Add(float64(updated))
}

// BackupFinished counts one backup attempt.
func (c *Collector) BackupFinished(err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.backups.WithLabelValues(result).Inc()
}

// StageChanged marks stage as the only active stage.
func (c *Collector) StageChanged(stage string) {
	if c == nil {
		return
	}
	c.stage.Reset()
	c.stage.WithLabelValues(stage).Set(1)
}
