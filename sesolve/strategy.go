// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Point is a guess together with its residual.
type Point struct {
	X, F []float64
}

// NewPoint allocates a point of dimension n.
func NewPoint(n int) *Point {
	return &Point{X: make([]float64, n), F: make([]float64, n)}
}

// Merit returns ½‖F‖², the quantity the line search decreases.
func (p *Point) Merit() float64 {
	return half * floats.Dot(p.F, p.F)
}

// Norm returns ‖F‖∞.
func (p *Point) Norm() float64 {
	return floats.Norm(p.F, math.Inf(1))
}

// Step is the outcome of one strategy step.
type Step struct {
	// Reason is Running for an accepted step, OutOfBounds for a step clamped onto the
	// bounds, StalledAtLocalMinimum when the line search gave up, or a fatal reason.
	Reason Reason
	// Lambda is the accepted fraction of the full Newton step (1 for substitution).
	Lambda float64
	// Diagnostics is set for RoundoffError and SingularJacobian.
	Diagnostics *Diagnostics
	// Err carries the cause of a fatal reason.
	Err error
}

// Strategy proposes the next guess from the current one.
//
// Next must leave cur untouched. Unless the returned reason is fatal it writes the
// proposed guess, which lies inside the bounds, and its residual into next.
// A strategy keeps its scratch state between steps of one solve; a fresh instance is
// created for every solve.
type Strategy interface {
	Name() string
	Next(sys *System, cur, next *Point) Step
}

func cloneDiagnostics(cur *Point) *Diagnostics {
	return &Diagnostics{
		X: append([]float64(nil), cur.X...),
		F: append([]float64(nil), cur.F...),
	}
}
