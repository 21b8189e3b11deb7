// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the playground
// service: command outcomes on the request path and tick/run accounting
// in the processing scheduler. Exposed via the /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "stan_playground"

// Metrics holds every Prometheus collector the service registers.
// Initialize once at startup; all operations are thread-safe.
type Metrics struct {
	// CommandsTotal counts mutating commands by name and outcome.
	// Labels: command (create_analysis, set_analysis_status, ...),
	// status (success, error)
	CommandsTotal *prometheus.CounterVec

	// SchedulerTicksTotal counts completed scheduler passes.
	SchedulerTicksTotal prometheus.Counter

	// SchedulerTickSeconds measures the duration of one full pass.
	SchedulerTickSeconds prometheus.Histogram

	// RunsTotal counts analysis runs by terminal status.
	// Labels: status (completed, failed)
	RunsTotal *prometheus.CounterVec

	// RunSeconds measures wall time of a single analysis run.
	RunSeconds prometheus.Histogram
}

// New registers the collectors with reg and returns them. Pass
// prometheus.DefaultRegisterer in mains and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Mutating commands processed, by command name and outcome.",
		}, []string{"command", "status"}),
		SchedulerTicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Completed scheduler polling passes.",
		}),
		SchedulerTickSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "tick_seconds",
			Help:      "Duration of one scheduler pass over all analyses.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Analysis runs finished, by terminal status.",
		}, []string{"status"}),
		RunSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "run_seconds",
			Help:      "Wall time of a single analysis run.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
	}
}

// ObserveCommand records one command outcome.
func (m *Metrics) ObserveCommand(command string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CommandsTotal.WithLabelValues(command, status).Inc()
}
