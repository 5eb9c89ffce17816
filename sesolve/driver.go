// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"
)

// Solve iterates the strategy from x0 until the system converges or fails.
//
// x0 is projected onto the bounds before the first evaluation. The solve converges when
// ‖F‖∞ ≤ AbsTolerance, or when a full step changed the observable (or, without one,
// every unknown) by no more than AbsTolerance + RelTolerance·|value|; this includes a
// full step the line search rejected as too short. Clamped steps
// count as iterations but never satisfy the step test. On a fatal outcome the last
// guess whose residual was good is returned.
func (s *Solver) Solve(x0 []float64) *Result {

	if len(x0) != s.n {
		err := fmt.Errorf("%w: initial guess has %d entries for %d unknowns", ErrBadArgument, len(x0), s.n)
		return failedResult(s.strategy, x0, err)
	}

	start := time.Now()
	d := driver{
		solver: s,
		sys:    newSystem(s),
		cur:    NewPoint(s.n),
		next:   NewPoint(s.n),
	}
	d.strategy = s.factory(s.stop.RelTolerance, s.stop.AbsTolerance, s.stop.MaxIterations)
	if d.strategy == nil {
		err := fmt.Errorf("%w: factory for strategy %q returned nil", ErrBadArgument, s.strategy)
		return failedResult(s.strategy, x0, err)
	}

	reason := d.mainLoop(x0)

	res := &Result{
		OK: reason == Converged,
		X:  slices.Clone(d.cur.X),
		Summary: Summary{
			Strategy: s.strategy,
			Reason:   reason,
			NumIter:  d.iter,
			NumEval:  d.sys.Evals(),
			NumClamp: d.numClamp,
			Merit:    math.NaN(),
			Elapsed:  time.Since(start),
		},
		Diagnostics: d.diag,
		Err:         d.err,
	}
	if d.evaluated {
		res.F = slices.Clone(d.cur.F)
		res.Merit = d.cur.Merit()
	}

	logger := s.logger
	level := slog.LevelDebug
	if reason.Fatal() {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "solve finished",
		slog.String("strategy", s.strategy),
		slog.String("reason", reason.String()),
		slog.Int("iter", res.NumIter),
		slog.Int("eval", res.NumEval),
		slog.Float64("merit", res.Merit),
		slog.Any("err", res.Err))

	if s.observer != nil {
		s.observer.Finish(res)
	}
	return res
}

type driver struct {
	solver    *Solver
	sys       *System
	strategy  Strategy
	cur, next *Point
	iter      int
	numClamp  int
	evaluated bool
	diag      *Diagnostics
	err       error
}

func (d *driver) mainLoop(x0 []float64) Reason {

	s, sys := d.solver, d.sys
	copy(d.cur.X, x0)
	if sys.Clamp(d.cur.X) {
		d.numClamp++
		s.logger.Debug("initial guess clamped onto the bounds", slog.Any("x", d.cur.X))
	}
	if err := sys.Evaluate(d.cur.X, d.cur.F); err != nil {
		d.err = err
		return EvalFailure
	}
	d.evaluated = true

	if s.observer != nil {
		s.observer.Start(s.strategy, d.cur)
	}
	if d.residualSmall() {
		return Converged
	}

	for d.iter < s.stop.MaxIterations {
		step := d.strategy.Next(sys, d.cur, d.next)
		d.iter++

		switch step.Reason {
		case Running:
			d.accept(step)
			if d.residualSmall() || (step.Lambda == one && d.stepSmall()) {
				return Converged
			}
		case OutOfBounds:
			d.numClamp++
			d.accept(step)
			if d.residualSmall() {
				return Converged
			}
		case StalledAtLocalMinimum:
			// keep the stalled trial only if it is no worse
			if d.next.Merit() <= d.cur.Merit() {
				d.accept(step)
			}
			// a full step too short to search is still a step
			if d.residualSmall() || (step.Lambda == one && d.stepSmall()) {
				return Converged
			}
			d.err = fmt.Errorf("sesolve: line search stalled at merit %g", d.cur.Merit())
			return StalledAtLocalMinimum
		default:
			d.diag, d.err = step.Diagnostics, step.Err
			return step.Reason
		}
	}
	return MaxIterationsExceeded
}

// accept makes the proposed guess current; d.next then holds the previous guess.
func (d *driver) accept(step Step) {
	d.cur, d.next = d.next, d.cur
	if obs := d.solver.observer; obs != nil {
		obs.Iterate(d.iter, d.cur, step)
	}
}

func (d *driver) residualSmall() bool {
	return d.cur.Norm() <= d.solver.stop.AbsTolerance
}

func (d *driver) stepSmall() bool {
	stop := d.solver.stop
	cur, prev := d.cur.X, d.next.X
	if obs := d.solver.observable; obs != nil {
		a, b := obs(prev), obs(cur)
		return math.Abs(b-a) <= stop.AbsTolerance+stop.RelTolerance*math.Abs(b)
	}
	for i, x := range cur {
		if math.Abs(x-prev[i]) > stop.AbsTolerance+stop.RelTolerance*math.Abs(x) {
			return false
		}
	}
	return true
}
