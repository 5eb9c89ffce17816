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

// newtonBacktrack solves J·d = −F by LU decomposition of the finite difference
// Jacobian and hands the direction to a backtracking line search.
type newtonBacktrack struct {
	ls  backtrack
	jac *mat.Dense
	lu  mat.LU
	rhs *mat.VecDense
	dir *mat.VecDense
}

// NewNewtonBacktrack creates the Newton-Raphson strategy with backtracking line search.
// The tolerances and the iteration budget are enforced by the driver.
func NewNewtonBacktrack(relTol, absTol float64, maxIter int) Strategy {
	return &newtonBacktrack{ls: newBacktrack()}
}

func (nb *newtonBacktrack) Name() string { return NewtonBacktrackName }

func (nb *newtonBacktrack) Next(sys *System, cur, next *Point) Step {

	n := sys.Dim()
	if nb.jac == nil {
		nb.jac = mat.NewDense(n, n, nil)
		nb.rhs = mat.NewVecDense(n, nil)
		nb.dir = mat.NewVecDense(n, nil)
	}

	if err := sys.Jacobian(cur, nb.jac); err != nil {
		return Step{Reason: EvalFailure, Err: err}
	}

	if step, ok := nb.direction(sys, cur); !ok {
		return step
	}
	return nb.ls.search(sys, nb.jac, nb.dir.RawVector().Data, cur, next)
}

// direction solves J·d = −F into nb.dir.
func (nb *newtonBacktrack) direction(sys *System, cur *Point) (Step, bool) {

	for i, f := range cur.F {
		nb.rhs.SetVec(i, -f)
	}

	nb.lu.Factorize(nb.jac)
	cond := nb.lu.Cond()
	err := nb.lu.SolveVecTo(nb.dir, false, nb.rhs)

	var ill mat.Condition
	switch {
	case err == nil:
	case errors.As(err, &ill) && !math.IsInf(float64(ill), 1):
		// the solution of an ill-conditioned system is still returned
		sys.Logger().Warn("ill-conditioned jacobian", slog.Float64("cond", cond))
		err = nil
	case errors.Is(err, mat.ErrSingular):
	default:
		err = fmt.Errorf("%w: %v", mat.ErrSingular, err)
	}

	d := nb.dir.RawVector().Data
	if err == nil {
		if checkFinite(d) != nil || floats.Norm(d, math.Inf(1)) == zero {
			err = fmt.Errorf("sesolve: newton direction %v is unusable", d)
		}
	}
	if err == nil {
		return Step{}, true
	}

	diag := cloneDiagnostics(cur)
	diag.Jacobian = mat.DenseCopyOf(nb.jac)
	diag.Cond = cond
	return Step{Reason: SingularJacobian, Diagnostics: diag, Err: err}, false
}
