// Package metrics exposes Prometheus collectors for the session core.
//
// Collectors live on a private registry so tests and multiple sessions in one
// process never collide. Every method is safe on a nil *Collectors, which lets
// components take metrics as an optional dependency.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "opsdesk"

// Task outcomes recorded by the saga runner.
const (
	OutcomeDone      = "done"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomePanicked  = "panicked"
)

// Collectors groups every metric the core records.
type Collectors struct {
	registry *prometheus.Registry

	actions       *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	tasks         *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	inflight      prometheus.Gauge
	persistWrites *prometheus.CounterVec
	apiRequests   *prometheus.CounterVec
	tokenRefresh  *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_dispatched_total",
			Help:      "Actions reduced by the store, by action type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_dropped_total",
			Help:      "Actions discarded because the putting task was cancelled.",
		}, []string{"type"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "tasks_total",
			Help:      "Finished workflow tasks, by watcher and outcome.",
		}, []string{"watcher", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "task_duration_seconds",
			Help:      "Workflow task run time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"watcher"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "tasks_inflight",
			Help:      "Workflow tasks currently running.",
		}),
		persistWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "writes_total",
			Help:      "Snapshot and journal writes, by kind and result.",
		}, []string{"kind", "result"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Remote API requests, by method and status class.",
		}, []string{"method", "status"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "token_refresh_total",
			Help:      "Access token refresh attempts, by result.",
		}, []string{"result"}),
	}

	c.registry.MustRegister(
		c.actions,
		c.dropped,
		c.tasks,
		c.taskDuration,
		c.inflight,
		c.persistWrites,
		c.apiRequests,
		c.tokenRefresh,
	)
	return c
}

// Registry returns the registry the collectors are registered on.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ActionDispatched counts one reduced action.
func (c *Collectors) ActionDispatched(actionType string) {
	if c == nil {
		return
	}
	c.actions.WithLabelValues(actionType).Inc()
}

// ActionDropped counts one action put by a cancelled task.
func (c *Collectors) ActionDropped(actionType string) {
	if c == nil {
		return
	}
	c.dropped.WithLabelValues(actionType).Inc()
}

// TaskStarted increments the in-flight gauge.
func (c *Collectors) TaskStarted() {
	if c == nil {
		return
	}
	c.inflight.Inc()
}

// TaskFinished records a finished task.
func (c *Collectors) TaskFinished(watcher, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.inflight.Dec()
	c.tasks.WithLabelValues(watcher, outcome).Inc()
	c.taskDuration.WithLabelValues(watcher).Observe(elapsed.Seconds())
}

// PersistWrite records one storage write. kind is "snapshot" or "journal".
func (c *Collectors) PersistWrite(kind string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.persistWrites.WithLabelValues(kind, result).Inc()
}

// APIRequest records one remote request. status 0 means a transport error.
func (c *Collectors) APIRequest(method string, status int) {
	if c == nil {
		return
	}
	c.apiRequests.WithLabelValues(method, statusClass(status)).Inc()
}

// TokenRefresh records one refresh attempt.
func (c *Collectors) TokenRefresh(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.tokenRefresh.WithLabelValues(result).Inc()
}

// WriteTextfile writes the current values in the text exposition format,
// suitable for the node_exporter textfile collector.
func (c *Collectors) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return fmt.Sprintf("%dxx", status/100)
}
