// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// sufficientDecrease is the Armijo constant α in f(x+λd) ≤ f(x) + α·λ·∇f·d.
	sufficientDecrease = 1e-4
	// minStepTol is the relative step length below which the search gives up.
	minStepTol = 1e-7
)

// backtrack performs the line search along a Newton direction
// minimizing the merit function f = ½‖F‖².
//
// The first trial is the full step. If it leaves the box it is clamped and returned
// as OutOfBounds without any search. Otherwise λ shrinks by a quadratic model of
// f(λ) on the first backtrack and a cubic model on later ones, each new λ held in
// [0.1λ, 0.5λ]. A trial with a non-finite residual halves λ. The search stalls once λ
// drops below the minimum step, which it undershoots by at most one halving.
//
// # Reference:
//
//   - Numerical Recipes in C, 2nd ed., §9.7 "Globally Convergent Methods for Nonlinear Systems"
type backtrack struct {
	alpha float64
	tolX  float64
	grad  mat.VecDense
}

func newBacktrack() backtrack {
	return backtrack{alpha: sufficientDecrease, tolX: minStepTol}
}

func (ls *backtrack) search(sys *System, jac *mat.Dense, dir []float64, cur, next *Point) Step {

	n := sys.Dim()
	logger := sys.Logger()
	verbose := sys.debug()

	floats.AddTo(next.X, cur.X, dir)
	if sys.Clamp(next.X) {
		if err := sys.Evaluate(next.X, next.F); err != nil {
			return Step{Reason: EvalFailure, Err: err}
		}
		if verbose {
			logger.Debug("full step left the bounds", slog.Any("x", next.X), slog.Float64("merit", next.Merit()))
		}
		return Step{Reason: OutOfBounds, Lambda: one}
	}

	// ∇f = Jᵀ·F
	ls.grad.MulVec(jac.T(), mat.NewVecDense(n, cur.F))
	slope := floats.Dot(ls.grad.RawVector().Data, dir)
	if !(slope < zero) {
		diag := cloneDiagnostics(cur)
		diag.Direction = append([]float64(nil), dir...)
		diag.Jacobian = mat.DenseCopyOf(jac)
		diag.Slope = slope
		return Step{
			Reason:      RoundoffError,
			Diagnostics: diag,
			Err:         fmt.Errorf("sesolve: directional derivative %g is not negative", slope),
		}
	}

	lambdaMin := math.Inf(1)
	for i, d := range dir {
		if d != zero {
			lambdaMin = math.Min(lambdaMin, ls.tolX*math.Max(math.Abs(cur.X[i]), one)/math.Abs(d))
		}
	}

	if verbose {
		logger.Debug("newton direction",
			slog.Any("x", cur.X),
			slog.Any("f", cur.F),
			slog.Any("dir", dir),
			slog.String("jacobian", fmt.Sprintf("%v", mat.Formatted(jac, mat.Squeeze()))),
			slog.Float64("slope", slope),
			slog.Float64("lambdaMin", lambdaMin))
	}

	f0 := cur.Merit()
	lambda := one
	var lambda2, f2 float64
	fitted := false

	for {
		if lambda < one {
			for i := range dir {
				next.X[i] = cur.X[i] + lambda*dir[i]
			}
		}

		f := math.Inf(1)
		if err := sys.Evaluate(next.X, next.F); err == nil {
			f = next.Merit()
		} else if !errors.Is(err, ErrNonFinite) {
			return Step{Reason: EvalFailure, Lambda: lambda, Err: err}
		}

		if verbose {
			logger.Debug("line search trial",
				slog.Float64("lambda", lambda),
				slog.Float64("merit", f),
				slog.Float64("merit0", f0),
				slog.Float64("slope", slope))
		}

		switch {
		case lambda < lambdaMin:
			return Step{Reason: StalledAtLocalMinimum, Lambda: lambda}
		case f <= f0+ls.alpha*lambda*slope:
			return Step{Reason: Running, Lambda: lambda}
		}

		var tmp float64
		switch {
		case math.IsInf(f, 1):
			tmp = half * lambda
		case !fitted:
			// quadratic through f0, slope and f(λ)
			tmp = -slope * lambda * lambda / (2 * (f - f0 - slope*lambda))
		default:
			tmp = cubicMinimizer(f0, slope, lambda, f, lambda2, f2)
		}
		if math.IsNaN(tmp) || tmp > half*lambda {
			tmp = half * lambda
		}

		if math.IsInf(f, 1) {
			fitted = false
		} else {
			lambda2, f2, fitted = lambda, f, true
		}
		lambda = math.Max(tmp, 0.1*lambda)
		// undershoot the floor by at most one halving
		if lambda < lambdaMin {
			lambda = math.Max(lambda, half*lambdaMin)
		}
	}
}

// cubicMinimizer returns the minimizer of the cubic through f0, the slope at 0 and the
// two most recent trials (λ, f) and (λ₂, f₂).
func cubicMinimizer(f0, slope, lambda, f, lambda2, f2 float64) float64 {
	rhs1 := f - f0 - lambda*slope
	rhs2 := f2 - f0 - lambda2*slope
	a := (rhs1/(lambda*lambda) - rhs2/(lambda2*lambda2)) / (lambda - lambda2)
	b := (-lambda2*rhs1/(lambda*lambda) + lambda*rhs2/(lambda2*lambda2)) / (lambda - lambda2)
	if a == zero {
		return -slope / (2 * b)
	}
	disc := b*b - 3*a*slope
	switch {
	case disc < zero:
		return half * lambda
	case b <= zero:
		return (-b + math.Sqrt(disc)) / (3 * a)
	default:
		return -slope / (b + math.Sqrt(disc))
	}
}
