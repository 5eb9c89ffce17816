// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sesolve finds x inside a box [l, u] such that F(x) = 0 for a vector-valued
// residual F : ℝⁿ → ℝⁿ.
//
// A solve is driven by a [Strategy] picked by name from a [Registry]. Two strategies
// are built in:
//
//   - "newton_raphson_backtrack": Newton-Raphson steps Jd = -F on a finite-difference
//     Jacobian, damped by a backtracking line search on the merit function ½‖F‖².
//   - "fixed_point": successive substitution x ← g(x), where g is a caller supplied
//     update rule or x + F(x).
//
// The driver clamps the initial guess into the box, evaluates the residual and iterates
// until the residual or the step is below tolerance, the strategy reports a stall or a
// fatal condition, or the iteration cap is reached. Every outcome is reported in a
// [Result]; nothing is thrown.
//
// # Reference
//
// W. H. Press et al.: "Numerical Recipes in C", 2nd ed., section 9.7
// (globally convergent methods for nonlinear systems of equations).
package sesolve
