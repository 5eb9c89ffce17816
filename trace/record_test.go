// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/curioloop/equilibrium/sesolve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solveRecorded(t *testing.T, rec *Recorder) *sesolve.Result {
	eval := func(x, f []float64) error {
		f[0] = x[0]*x[0] - 2
		return nil
	}
	p := sesolve.Problem{N: 1, Eval: eval, Bounds: []sesolve.Bound{{Lower: 0, Upper: 10}}}
	s, err := p.New(sesolve.Options{
		Strategy: sesolve.NewtonBacktrackName,
		Stop:     sesolve.Termination{RelTolerance: 1e-10, AbsTolerance: 1e-12, MaxIterations: 50},
		Observer: rec,
	})
	require.NoError(t, err)
	return s.Solve([]float64{1})
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	res := solveRecorded(t, rec)
	require.True(t, res.OK)

	h := rec.History()
	assert.Equal(t, sesolve.NewtonBacktrackName, h.Strategy)
	assert.True(t, h.OK)
	assert.Equal(t, "Converged", h.Reason)
	assert.Equal(t, res.NumIter, h.NumIter)
	require.Len(t, h.Entries, res.NumIter+1)
	assert.Equal(t, 0, h.Entries[0].Iter)
	assert.Equal(t, []float64{1}, h.Entries[0].X)
	assert.Equal(t, res.X, h.Entries[len(h.Entries)-1].X)
	last := len(h.Entries) - 1
	for _, e := range h.Entries[1:last] {
		assert.Equal(t, "Running", e.Step)
	}
	// the final full step may be too short for the line search to accept
	assert.Contains(t, []string{"Running", "StalledAtLocalMinimum"}, h.Entries[last].Step)

	// a second solve replaces the history
	solveRecorded(t, rec)
	assert.Len(t, rec.History().Entries, res.NumIter+1)
}

func TestRender(t *testing.T) {
	rec := &Recorder{}
	solveRecorded(t, rec)

	var buf bytes.Buffer
	require.NoError(t, rec.Render(&buf))
	var h History
	require.NoError(t, json.Unmarshal(buf.Bytes(), &h))
	assert.Equal(t, rec.History(), h)
}

func TestChart(t *testing.T) {
	rec := &Recorder{}
	_, _, err := rec.Chart()
	assert.Error(t, err)

	solveRecorded(t, rec)
	var buf bytes.Buffer
	require.NoError(t, rec.WriteChart(&buf, "png"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))

	path := filepath.Join(t.TempDir(), "history.svg")
	require.NoError(t, rec.SaveChart(path))
	for _, p := range []string{path, filepath.Join(filepath.Dir(path), "history-x.svg")} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}
