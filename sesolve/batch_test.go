// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveBatch(t *testing.T) {
	p := Problem{N: 2, Eval: rosenbrock, Bounds: []Bound{{-5, 5}, {-5, 5}}}
	s, err := p.New(Options{
		Strategy: NewtonBacktrackName,
		Stop:     Termination{RelTolerance: 1e-10, AbsTolerance: 1e-12, MaxIterations: 100},
	})
	require.NoError(t, err)

	starts := [][]float64{{-1.2, 1}, {0, 0}, {2, 2}, {-3, 4}, {4, -4}, {1, 1}, {0.5, -0.5}, {-5, 5}}
	jobs := make([]Job, len(starts))
	for i, x0 := range starts {
		jobs[i] = Job{Name: "rosenbrock", Solver: s, X0: x0}
	}

	results, err := SolveBatch(context.Background(), jobs, 3)
	require.NoError(t, err)
	require.Len(t, results, len(jobs))
	for i, r := range results {
		require.NotNil(t, r)
		serial := s.Solve(starts[i])
		assert.Equal(t, serial.X, r.X, "job %d", i)
		assert.Equal(t, serial.NumEval, r.NumEval, "job %d", i)
	}
}

func TestSolveBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Problem{N: 1, Eval: shifted}
	s, err := p.New(Options{Strategy: FixedPointName, Stop: Termination{MaxIterations: 5}})
	require.NoError(t, err)

	results, err := SolveBatch(ctx, []Job{{Solver: s, X0: []float64{0}}}, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results[0])
}

func TestSolveBatchMissingSolver(t *testing.T) {
	_, err := SolveBatch(context.Background(), []Job{{Name: "empty"}}, 1)
	assert.ErrorIs(t, err, ErrBadArgument)
}
