// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package telemetry exports solver activity as Prometheus metrics.
package telemetry

import (
	"errors"
	"fmt"

	"github.com/curioloop/equilibrium/sesolve"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name unless another namespace is given.
const DefaultNamespace = "equilibrium"

// Metrics is a sesolve.Observer recording solve outcomes. It is safe for concurrent
// use, so one instance may observe every solve of a batch.
type Metrics struct {
	solves      *prometheus.CounterVec
	steps       *prometheus.CounterVec
	clamps      *prometheus.CounterVec
	iterations  *prometheus.HistogramVec
	evaluations *prometheus.HistogramVec
	duration    *prometheus.HistogramVec
	lambda      prometheus.Histogram
}

var _ sesolve.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "solves_total",
			Help:      "Finished solves by strategy and reason",
		}, []string{"strategy", "reason"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "steps_total",
			Help:      "Strategy steps that produced a new guess, by step outcome",
		}, []string{"step"}),
		clamps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "clamps_total",
			Help:      "Guesses projected onto the bounds",
		}, []string{"strategy"}),
		iterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "iterations",
			Help:      "Iterations per solve",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"strategy"}),
		evaluations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "evaluations",
			Help:      "Residual evaluations per solve",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"strategy"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "duration_seconds",
			Help:      "Wall time per solve",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 8),
		}, []string{"strategy"}),
		lambda: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "step_length",
			Help:      "Accepted fraction of the full step",
			Buckets:   []float64{1e-6, 1e-4, 1e-3, 0.01, 0.1, 0.25, 0.5, 0.75, 1},
		}),
	}

	var errs []error
	for _, c := range []prometheus.Collector{m.solves, m.steps, m.clamps, m.iterations, m.evaluations, m.duration, m.lambda} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("telemetry: register collectors: %w", err)
	}
	return m, nil
}

func (m *Metrics) Start(string, *sesolve.Point) {}

func (m *Metrics) Iterate(_ int, _ *sesolve.Point, step sesolve.Step) {
	m.steps.WithLabelValues(step.Reason.String()).Inc()
	m.lambda.Observe(step.Lambda)
}

func (m *Metrics) Finish(r *sesolve.Result) {
	m.solves.WithLabelValues(r.Strategy, r.Reason.String()).Inc()
	m.clamps.WithLabelValues(r.Strategy).Add(float64(r.NumClamp))
	m.iterations.WithLabelValues(r.Strategy).Observe(float64(r.NumIter))
	m.evaluations.WithLabelValues(r.Strategy).Observe(float64(r.NumEval))
	m.duration.WithLabelValues(r.Strategy).Observe(r.Elapsed.Seconds())
}
