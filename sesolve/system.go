// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/curioloop/equilibrium/numdiff"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// System is the per-solve view of a problem that strategies work against.
// It counts evaluations, guards the user functions and projects guesses onto the bounds.
// A System belongs to a single solve and is not safe for concurrent use.
type System struct {
	n        int
	eval     Equations
	update   Update
	lower    []float64
	upper    []float64
	fallback *Fallback
	logger   *slog.Logger
	jac      numdiff.Jacobian
	evals    int
}

func newSystem(s *Solver) *System {
	sys := &System{
		n:        s.n,
		eval:     s.eval,
		update:   s.update,
		lower:    s.lower,
		upper:    s.upper,
		fallback: s.fallback,
		logger:   s.logger,
	}
	bounds := make([]numdiff.Bound, s.n)
	for i := range bounds {
		bounds[i] = numdiff.Bound{s.lower[i], s.upper[i]}
	}
	sys.jac = numdiff.Jacobian{
		N:      s.n,
		M:      s.n,
		Func:   sys.Evaluate,
		Method: s.method,
		Bounds: bounds,
	}
	return sys
}

// Dim returns the number of unknowns.
func (s *System) Dim() int { return s.n }

// Lower returns the lower bounds. The slice must not be modified.
func (s *System) Lower() []float64 { return s.lower }

// Upper returns the upper bounds. The slice must not be modified.
func (s *System) Upper() []float64 { return s.upper }

// Fallback returns the late-iteration fallback of the problem, possibly nil.
func (s *System) Fallback() *Fallback { return s.fallback }

// Logger returns the logger of the solve.
func (s *System) Logger() *slog.Logger { return s.logger }

// Evals returns the number of residual evaluations so far.
func (s *System) Evals() int { return s.evals }

func (s *System) debug() bool {
	return s.logger.Enabled(context.Background(), slog.LevelDebug)
}

// Evaluate computes F(x) into f. A panic in the residual function is returned as
// ErrEvalPanic and a NaN or infinite component as ErrNonFinite.
func (s *System) Evaluate(x, f []float64) (err error) {
	s.evals++
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEvalPanic, r)
		}
	}()
	if err = s.eval(x, f); err != nil {
		return err
	}
	return checkFinite(f)
}

// Substitute writes the fixed-point successor of p into next: the update rule
// applied to p.X when the problem has one, p.X + p.F otherwise.
func (s *System) Substitute(p *Point, next []float64) (err error) {
	if s.update == nil {
		floats.AddTo(next, p.X, p.F)
		return checkFinite(next)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEvalPanic, r)
		}
	}()
	if err = s.update(p.X, next); err != nil {
		return err
	}
	return checkFinite(next)
}

// Jacobian approximates ∂F/∂x at p into dst, reusing p.F as the base residual.
func (s *System) Jacobian(p *Point, dst *mat.Dense) error {
	return s.jac.Eval(p.X, p.F, dst)
}

// Clamp projects x onto the bounds in place and reports whether any component moved.
func (s *System) Clamp(x []float64) (clamped bool) {
	for i, v := range x {
		switch {
		case v < s.lower[i]:
			x[i] = s.lower[i]
		case v > s.upper[i]:
			x[i] = s.upper[i]
		default:
			continue
		}
		clamped = true
	}
	return
}

// Contains reports whether x lies inside the bounds.
func (s *System) Contains(x []float64) bool {
	for i, v := range x {
		if v < s.lower[i] || v > s.upper[i] {
			return false
		}
	}
	return true
}

func checkFinite(v []float64) error {
	for i, e := range v {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return fmt.Errorf("%w: component %d is %g", ErrNonFinite, i, e)
		}
	}
	return nil
}
