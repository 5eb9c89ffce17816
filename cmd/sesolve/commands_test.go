// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/curioloop/equilibrium/sesolve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStrategies(t *testing.T) {
	out, err := execute(t, "strategies")
	require.NoError(t, err)
	assert.Equal(t, sesolve.FixedPointName+"\n"+sesolve.NewtonBacktrackName+"\n", out)
}

func TestProblems(t *testing.T) {
	out, err := execute(t, "problems")
	require.NoError(t, err)
	assert.Contains(t, out, "leaf-ci")
	assert.Contains(t, out, "rosenbrock")
}

func TestSolve(t *testing.T) {
	out, err := execute(t, "solve", "linear")
	require.NoError(t, err)
	assert.Contains(t, out, "Converged")
	assert.Contains(t, out, "[5]")
}

func TestSolveJSON(t *testing.T) {
	dir := t.TempDir()
	tracePath := filepath.Join(dir, "out", "trace.json")
	chartPath := filepath.Join(dir, "merit.png")

	out, err := execute(t, "solve", "sqrt10", "--json", "--abs-tol", "1e-12",
		"--trace", tracePath, "--chart", chartPath)
	require.NoError(t, err)

	var rep report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.True(t, rep.OK)
	assert.Equal(t, sesolve.FixedPointName, rep.Strategy)
	assert.InDelta(t, 3.16227766, rep.X[0], 1e-8)
	require.NotNil(t, rep.Merit)

	for _, p := range []string{tracePath, chartPath, filepath.Join(dir, "merit-x.png")} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestSolveFailure(t *testing.T) {
	out, err := execute(t, "solve", "singular")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SingularJacobian")
	assert.Contains(t, out, "SingularJacobian")

	_, err = execute(t, "solve", "linear", "--strategy", "bisection")
	assert.ErrorIs(t, err, sesolve.ErrUnknownStrategy)

	_, err = execute(t, "solve", "nowhere")
	assert.Error(t, err)
}

func TestSolveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sesolve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("solver:\n  max_iter: 1\n"), 0o600))

	out, err := execute(t, "solve", "rosenbrock", "--config", path)
	require.Error(t, err)
	assert.Contains(t, out, "MaxIterationsExceeded")

	// the flag wins over the file
	_, err = execute(t, "solve", "rosenbrock", "--config", path, "--max-iter", "100")
	assert.NoError(t, err)
}

func TestBatch(t *testing.T) {
	out, err := execute(t, "batch", "--concurrency", "2", "--metrics")
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "PROBLEM"))
	assert.Contains(t, out, "6/7 converged")
	assert.Contains(t, out, "equilibrium_solver_solves_total")
}
