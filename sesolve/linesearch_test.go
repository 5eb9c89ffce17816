// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestSystem(t *testing.T, p Problem) *System {
	s, err := p.New(Options{Strategy: NewtonBacktrackName, Stop: Termination{MaxIterations: 10}})
	require.NoError(t, err)
	return newSystem(s)
}

func TestCubicMinimizer(t *testing.T) {
	// f(λ) = 1 - 2λ + 3λ³ has its minimum at λ = √(2/9)
	f := func(l float64) float64 { return 1 - 2*l + 3*l*l*l }
	got := cubicMinimizer(f(0), -2, 0.5, f(0.5), 1, f(1))
	assert.InDelta(t, math.Sqrt(2.0/9), got, 1e-12)
}

func TestRoundoffOnAscentDirection(t *testing.T) {
	sys := newTestSystem(t, Problem{N: 1, Eval: shifted})
	cur, next := NewPoint(1), NewPoint(1)
	cur.X[0] = 0
	require.NoError(t, sys.Evaluate(cur.X, cur.F))

	ls := newBacktrack()
	jac := mat.NewDense(1, 1, []float64{1})
	step := ls.search(sys, jac, []float64{-1}, cur, next)
	assert.Equal(t, RoundoffError, step.Reason)
	require.NotNil(t, step.Diagnostics)
	assert.Equal(t, 5.0, step.Diagnostics.Slope)
	assert.Equal(t, []float64{-1}, step.Diagnostics.Direction)
	assert.Error(t, step.Err)
}

func TestStallOnLocalMinimum(t *testing.T) {
	// F(x) = x² + 1 has a merit minimum at 0 but no root
	eval := func(x, f []float64) error {
		f[0] = x[0]*x[0] + 1
		return nil
	}
	r := Solve(eval, nil, nil, []float64{1}, NewtonBacktrackName, 1e-10, 1e-10, 200)
	assert.False(t, r.OK)
	assert.Equal(t, StalledAtLocalMinimum, r.Reason)
	assert.Equal(t, 2, r.NumIter)
	assert.InDelta(t, 0, r.X[0], 1e-6)
	assert.InDelta(t, 0.5, r.Merit, 1e-6)
	assert.Error(t, r.Err)
}

func TestClampedFullStep(t *testing.T) {
	sys := newTestSystem(t, Problem{N: 1, Eval: shifted, Bounds: []Bound{{0, 2}}})
	cur, next := NewPoint(1), NewPoint(1)
	cur.X[0] = 1
	require.NoError(t, sys.Evaluate(cur.X, cur.F))

	ls := newBacktrack()
	step := ls.search(sys, mat.NewDense(1, 1, []float64{1}), []float64{4}, cur, next)
	assert.Equal(t, OutOfBounds, step.Reason)
	assert.Equal(t, []float64{2}, next.X)
	assert.Equal(t, []float64{-3}, next.F)
	assert.Equal(t, []float64{0}, sys.Lower())
	assert.Equal(t, []float64{2}, sys.Upper())
	assert.True(t, sys.Contains(next.X))
	assert.False(t, sys.Contains([]float64{2.5}))
	assert.Equal(t, 2, sys.Evals())
}
