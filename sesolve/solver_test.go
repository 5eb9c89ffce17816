// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import (
	"errors"
	"math"
	"testing"

	"github.com/curioloop/equilibrium/numdiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepLog records every notification of a solve.
type stepLog struct {
	strategy string
	x0       []float64
	iters    []int
	merits   []float64
	steps    []Step
	xs       [][]float64
	final    *Result
}

func (l *stepLog) Start(strategy string, x0 *Point) {
	l.strategy = strategy
	l.x0 = append([]float64(nil), x0.X...)
	l.merits = append(l.merits, x0.Merit())
}

func (l *stepLog) Iterate(iter int, p *Point, step Step) {
	l.iters = append(l.iters, iter)
	l.merits = append(l.merits, p.Merit())
	l.steps = append(l.steps, step)
	l.xs = append(l.xs, append([]float64(nil), p.X...))
}

func (l *stepLog) Finish(r *Result) { l.final = r }

func shifted(x, f []float64) error {
	f[0] = x[0] - 5
	return nil
}

func heron(x, next []float64) error {
	next[0] = 0.5 * (x[0] + 10/x[0])
	return nil
}

func heronResidual(x, f []float64) error {
	f[0] = 0.5*(x[0]+10/x[0]) - x[0]
	return nil
}

// rosenbrock is the root system of the Rosenbrock function, a curved valley
// on which full Newton steps overshoot.
func rosenbrock(x, f []float64) error {
	f[0] = 10 * (x[1] - x[0]*x[0])
	f[1] = 1 - x[0]
	return nil
}

func TestShiftedLinear(t *testing.T) {
	r := Solve(shifted, []float64{-100}, []float64{100}, []float64{0}, NewtonBacktrackName, 1e-6, 1e-10, 50)
	require.True(t, r.OK, r.Err)
	assert.Equal(t, Converged, r.Reason)
	assert.InDelta(t, 5, r.X[0], 1e-8)
	assert.LessOrEqual(t, r.NumIter, 5)
	assert.Equal(t, NewtonBacktrackName, r.Strategy)
	assert.NoError(t, r.Err)

	p := Problem{N: 1, Eval: shifted}
	stop := Termination{RelTolerance: 1e-6, MaxIterations: 50}
	s, err := p.New(Options{Strategy: NewtonBacktrackName, Stop: stop})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Dim())
	assert.Equal(t, stop, s.Stop())
	assert.Equal(t, NewtonBacktrackName, s.Strategy())
}

func TestRelativeToleranceOnly(t *testing.T) {
	// with no absolute tolerance roundoff keeps ‖F‖ above zero; the last full
	// Newton step is too short to search but still satisfies the step test
	sqrt2 := func(x, f []float64) error {
		f[0] = x[0]*x[0] - 2
		return nil
	}
	r := Solve(sqrt2, nil, nil, []float64{1}, NewtonBacktrackName, 1e-8, 0, 50)
	require.True(t, r.OK, r.Err)
	assert.Equal(t, Converged, r.Reason)
	assert.NoError(t, r.Err)
	assert.InDelta(t, math.Sqrt2, r.X[0], 1e-12)
}

func TestSingularJacobian(t *testing.T) {
	eval := func(x, f []float64) error {
		f[0] = x[0] - x[1]
		f[1] = x[0] - x[1]
		return nil
	}
	r := Solve(eval, nil, nil, []float64{1, 0}, NewtonBacktrackName, 1e-6, 1e-10, 50)
	assert.False(t, r.OK)
	assert.Contains(t, []Reason{SingularJacobian, RoundoffError}, r.Reason)
	assert.Equal(t, []float64{1, 0}, r.X)
	require.NotNil(t, r.Diagnostics)
	assert.Equal(t, []float64{1, 0}, r.Diagnostics.X)
	assert.NotNil(t, r.Diagnostics.Jacobian)
	assert.Error(t, r.Err)
}

func TestFixedPointHeron(t *testing.T) {
	p := Problem{N: 1, Eval: heronResidual, Update: heron, Bounds: []Bound{{0.1, 100}}}
	s, err := p.New(Options{
		Strategy: FixedPointName,
		Stop:     Termination{RelTolerance: 0, AbsTolerance: 1e-8, MaxIterations: 50},
	})
	require.NoError(t, err)

	r := s.Solve([]float64{1})
	require.True(t, r.OK, r.Reason)
	assert.InDelta(t, 3.16227766, r.X[0], 1e-7)
	assert.LessOrEqual(t, r.NumIter, 10)
}

func TestFixedPointWithoutUpdate(t *testing.T) {
	// x ← x + F(x) with F the Heron correction is the same iteration
	r := Solve(heronResidual, []float64{0.1}, []float64{100}, []float64{1}, FixedPointName, 0, 1e-10, 50)
	require.True(t, r.OK, r.Reason)
	assert.InDelta(t, math.Sqrt(10), r.X[0], 1e-9)
}

func TestInitialGuessClamped(t *testing.T) {
	var seen [][]float64
	eval := func(x, f []float64) error {
		seen = append(seen, append([]float64(nil), x...))
		f[0] = x[0] - 5
		return nil
	}
	r := Solve(eval, []float64{0}, []float64{10}, []float64{11}, NewtonBacktrackName, 1e-6, 1e-10, 20)
	require.NotEmpty(t, seen)
	assert.Equal(t, []float64{10}, seen[0])
	for _, x := range seen {
		assert.True(t, x[0] >= 0 && x[0] <= 10, "evaluated outside the bounds at %v", x)
	}
	assert.True(t, r.OK)
	assert.InDelta(t, 5, r.X[0], 1e-8)
	assert.Equal(t, 1, r.NumClamp)
}

func TestRootOutsideBounds(t *testing.T) {
	eval := func(x, f []float64) error {
		f[0] = x[0] - 20
		return nil
	}
	log := &stepLog{}
	p := Problem{N: 1, Eval: eval, Bounds: []Bound{{0, 10}}}
	s, err := p.New(Options{
		Strategy: NewtonBacktrackName,
		Stop:     Termination{RelTolerance: 1e-6, AbsTolerance: 1e-10, MaxIterations: 4},
		Observer: log,
	})
	require.NoError(t, err)

	r := s.Solve([]float64{11})
	assert.False(t, r.OK)
	assert.Equal(t, MaxIterationsExceeded, r.Reason)
	assert.Equal(t, []float64{10}, r.X)
	assert.Equal(t, 5, r.NumClamp)
	assert.Equal(t, 4, r.NumIter)
	for _, step := range log.steps {
		assert.Equal(t, OutOfBounds, step.Reason)
	}
}

func TestMaxIterationsKeepsLatestGuess(t *testing.T) {
	r := Solve(heronResidual, nil, nil, []float64{1}, FixedPointName, 0, 1e-12, 1)
	assert.False(t, r.OK)
	assert.Equal(t, MaxIterationsExceeded, r.Reason)
	assert.Equal(t, 1, r.NumIter)
	assert.Equal(t, []float64{5.5}, r.X)

	newton := Solve(rosenbrock, nil, nil, []float64{-1.2, 1}, NewtonBacktrackName, 1e-10, 1e-12, 1)
	log := &stepLog{}
	p := Problem{N: 2, Eval: rosenbrock}
	s, err := p.New(Options{
		Strategy: NewtonBacktrackName,
		Stop:     Termination{RelTolerance: 1e-10, AbsTolerance: 1e-12, MaxIterations: 100},
		Observer: log,
	})
	require.NoError(t, err)
	full := s.Solve([]float64{-1.2, 1})
	require.True(t, full.OK)
	require.Greater(t, full.NumIter, 1)
	assert.Equal(t, MaxIterationsExceeded, newton.Reason)
	assert.Equal(t, log.xs[0], newton.X)
}

func TestMonotoneMerit(t *testing.T) {
	log := &stepLog{}
	p := Problem{N: 2, Eval: rosenbrock}
	s, err := p.New(Options{
		Strategy: NewtonBacktrackName,
		Stop:     Termination{RelTolerance: 1e-12, AbsTolerance: 1e-12, MaxIterations: 100},
		Observer: log,
	})
	require.NoError(t, err)

	r := s.Solve([]float64{-1.2, 1})
	require.True(t, r.OK, r.Reason)
	assert.InDelta(t, 1, r.X[0], 1e-9)
	assert.InDelta(t, 1, r.X[1], 1e-9)
	assert.Same(t, r, log.final)
	assert.Equal(t, NewtonBacktrackName, log.strategy)
	for i := 1; i < len(log.merits); i++ {
		assert.Less(t, log.merits[i], log.merits[i-1], "merit rose at step %d", i)
	}
	for i, it := range log.iters {
		assert.Equal(t, i+1, it)
	}
}

func TestBacktrackingDampsOvershoot(t *testing.T) {
	eval := func(x, f []float64) error {
		f[0] = math.Atan(x[0])
		return nil
	}
	log := &stepLog{}
	p := Problem{N: 1, Eval: eval, Method: numdiff.Central}
	s, err := p.New(Options{
		Strategy: NewtonBacktrackName,
		Stop:     Termination{RelTolerance: 1e-10, AbsTolerance: 1e-12, MaxIterations: 50},
		Observer: log,
	})
	require.NoError(t, err)

	r := s.Solve([]float64{2})
	require.True(t, r.OK, r.Reason)
	assert.InDelta(t, 0, r.X[0], 1e-10)
	require.NotEmpty(t, log.steps)
	assert.Less(t, log.steps[0].Lambda, 1.0)
}

func TestResultsStayInBounds(t *testing.T) {
	lower, upper := []float64{0.5, 0.5}, []float64{3, 3}
	for _, x0 := range [][]float64{{0.5, 0.5}, {3, 3}, {0.5, 3}, {-4, 9}, {2, 2}} {
		for _, name := range Strategies() {
			r := Solve(rosenbrock, lower, upper, x0, name, 1e-8, 1e-10, 30)
			require.Len(t, r.X, 2)
			for i, v := range r.X {
				assert.True(t, v >= lower[i] && v <= upper[i], "%s from %v left the bounds: %v", name, x0, r.X)
			}
		}
	}
}

func TestDeterministic(t *testing.T) {
	a := Solve(rosenbrock, nil, nil, []float64{-1.2, 1}, NewtonBacktrackName, 1e-10, 1e-12, 100)
	b := Solve(rosenbrock, nil, nil, []float64{-1.2, 1}, NewtonBacktrackName, 1e-10, 1e-12, 100)
	assert.Equal(t, a.X, b.X)
	assert.Equal(t, a.F, b.F)
	assert.Equal(t, a.NumIter, b.NumIter)
	assert.Equal(t, a.NumEval, b.NumEval)
}

func TestConvergedAtStart(t *testing.T) {
	r := Solve(shifted, nil, nil, []float64{5}, NewtonBacktrackName, 1e-6, 1e-10, 10)
	assert.True(t, r.OK)
	assert.Equal(t, 0, r.NumIter)
	assert.Equal(t, 1, r.NumEval)
	assert.Equal(t, 0.0, r.Merit)
}

func TestObservableStepTest(t *testing.T) {
	// the observable ignores the slow second unknown
	eval := func(x, f []float64) error {
		f[0] = x[0] - 1
		f[1] = 1e-3 * (x[1] - 2)
		return nil
	}
	p := Problem{N: 2, Eval: eval, Update: func(x, next []float64) error {
		next[0] = 1
		next[1] = x[1] + 0.5*(2-x[1])
		return nil
	}, Observable: func(x []float64) float64 { return x[0] }}
	s, err := p.New(Options{
		Strategy: FixedPointName,
		Stop:     Termination{RelTolerance: 1e-6, AbsTolerance: 1e-12, MaxIterations: 50},
	})
	require.NoError(t, err)
	r := s.Solve([]float64{0, 0})
	assert.True(t, r.OK)
	assert.Equal(t, 2, r.NumIter)
}

func TestEvalFailures(t *testing.T) {
	boom := errors.New("boom")
	t.Run("initial error", func(t *testing.T) {
		r := Solve(func(x, f []float64) error { return boom }, nil, nil, []float64{1}, NewtonBacktrackName, 0, 1e-8, 10)
		assert.Equal(t, EvalFailure, r.Reason)
		assert.ErrorIs(t, r.Err, boom)
		assert.Nil(t, r.F)
		assert.True(t, math.IsNaN(r.Merit))
	})
	t.Run("panic", func(t *testing.T) {
		calls := 0
		eval := func(x, f []float64) error {
			if calls++; calls > 1 {
				panic("out of range")
			}
			f[0] = x[0] - 5
			return nil
		}
		r := Solve(eval, nil, nil, []float64{1}, NewtonBacktrackName, 0, 1e-8, 10)
		assert.Equal(t, EvalFailure, r.Reason)
		assert.ErrorIs(t, r.Err, ErrEvalPanic)
		assert.Equal(t, []float64{1}, r.X)
		assert.Equal(t, []float64{-4}, r.F)
	})
	t.Run("non finite start", func(t *testing.T) {
		eval := func(x, f []float64) error {
			f[0] = math.Log(x[0])
			return nil
		}
		r := Solve(eval, nil, nil, []float64{-1}, NewtonBacktrackName, 0, 1e-8, 10)
		assert.Equal(t, EvalFailure, r.Reason)
		assert.ErrorIs(t, r.Err, ErrNonFinite)
	})
	t.Run("non finite trial", func(t *testing.T) {
		// the full step from 0.5 lands on a negative x where log is NaN
		eval := func(x, f []float64) error {
			f[0] = math.Log(x[0]) + 3
			return nil
		}
		r := Solve(eval, nil, nil, []float64{0.5}, NewtonBacktrackName, 1e-10, 1e-12, 50)
		require.True(t, r.OK, r.Err)
		assert.InDelta(t, math.Exp(-3), r.X[0], 1e-10)
	})
}

func TestBadArguments(t *testing.T) {
	cases := []struct {
		name    string
		problem Problem
		stop    Termination
	}{
		{"dimension", Problem{N: 0, Eval: shifted}, Termination{MaxIterations: 1}},
		{"no equations", Problem{N: 1}, Termination{MaxIterations: 1}},
		{"max iter", Problem{N: 1, Eval: shifted}, Termination{}},
		{"negative tolerance", Problem{N: 1, Eval: shifted}, Termination{AbsTolerance: -1, MaxIterations: 1}},
		{"nan tolerance", Problem{N: 1, Eval: shifted}, Termination{RelTolerance: math.NaN(), MaxIterations: 1}},
		{"bounds size", Problem{N: 1, Eval: shifted, Bounds: []Bound{{0, 1}, {0, 1}}}, Termination{MaxIterations: 1}},
		{"empty box", Problem{N: 1, Eval: shifted, Bounds: []Bound{{2, 1}}}, Termination{MaxIterations: 1}},
		{"fallback", Problem{N: 1, Eval: shifted, Fallback: &Fallback{Name: "x"}}, Termination{MaxIterations: 1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := c.problem.New(Options{Strategy: FixedPointName, Stop: c.stop})
			assert.ErrorIs(t, err, ErrBadArgument)
		})
	}

	evals := 0
	eval := func(x, f []float64) error { evals++; return nil }
	r := Solve(eval, []float64{0}, nil, []float64{1}, NewtonBacktrackName, 0, 0, 1)
	assert.Equal(t, BadArgument, r.Reason)
	r = Solve(eval, nil, nil, []float64{1}, "secant", 0, 0, 1)
	assert.Equal(t, UnknownStrategy, r.Reason)
	assert.ErrorIs(t, r.Err, ErrUnknownStrategy)
	assert.Equal(t, []float64{1}, r.X)
	assert.Zero(t, evals)

	p := Problem{N: 2, Eval: rosenbrock}
	s, err := p.New(Options{Strategy: NewtonBacktrackName, Stop: Termination{MaxIterations: 1}})
	require.NoError(t, err)
	assert.Equal(t, BadArgument, s.Solve([]float64{1}).Reason)
}

func TestNaNBoundIsOpen(t *testing.T) {
	r := Solve(shifted, []float64{math.NaN()}, []float64{math.NaN()}, []float64{-1e3}, NewtonBacktrackName, 1e-8, 1e-10, 20)
	require.True(t, r.OK)
	assert.Zero(t, r.NumClamp)
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "MaxIterationsExceeded", MaxIterationsExceeded.String())
	assert.Equal(t, "Reason(42)", Reason(42).String())
	assert.True(t, SingularJacobian.Fatal())
	assert.False(t, StalledAtLocalMinimum.Fatal())
	assert.False(t, OutOfBounds.Fatal())
}
