// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import "log/slog"

// Fallback forces the fixed-point guess late in the iteration budget, for
// problems that are known to cycle near the end of a hopeless solve.
type Fallback struct {
	// Name identifies the fallback in logs.
	Name string
	// Lead is the number of final iterations in which the fallback is applied.
	Lead int
	// Apply rewrites the proposed guess in place.
	Apply func(x []float64)
}

// Engaged reports whether the fallback applies at the 1-based iteration iter
// of a budget of maxIter iterations.
func (fb *Fallback) Engaged(iter, maxIter int) bool {
	return fb != nil && fb.Lead > 0 && iter > maxIter-fb.Lead
}

// fixedPoint iterates x ← g(x), where g is the problem's update rule or x + F(x)
// when it has none. Proposals outside the bounds are clamped without being reported.
type fixedPoint struct {
	maxIter int
	iter    int
	engaged bool
}

// NewFixedPoint creates the fixed-point substitution strategy.
func NewFixedPoint(relTol, absTol float64, maxIter int) Strategy {
	return &fixedPoint{maxIter: maxIter}
}

func (fp *fixedPoint) Name() string { return FixedPointName }

func (fp *fixedPoint) Next(sys *System, cur, next *Point) Step {

	fp.iter++
	if err := sys.Substitute(cur, next.X); err != nil {
		return Step{Reason: EvalFailure, Err: err}
	}

	if fb := sys.Fallback(); fb.Engaged(fp.iter, fp.maxIter) {
		if !fp.engaged {
			fp.engaged = true
			sys.Logger().Info("fixed point fallback engaged",
				slog.String("fallback", fb.Name), slog.Int("iter", fp.iter))
		}
		fb.Apply(next.X)
	}

	sys.Clamp(next.X)
	if err := sys.Evaluate(next.X, next.F); err != nil {
		return Step{Reason: EvalFailure, Err: err}
	}
	return Step{Reason: Running, Lambda: one}
}
