// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package problems is a catalogue of named equation systems with known behaviour,
// used to exercise the solver strategies.
package problems

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/curioloop/equilibrium/sesolve"
)

// Case is a named system of equations with its bounds and initial guess.
type Case struct {
	Name        string
	Description string
	N           int
	Eval        sesolve.Equations
	Update      sesolve.Update
	Observable  func(x []float64) float64
	Fallback    *sesolve.Fallback
	Lower       []float64 // nil when unbounded
	Upper       []float64
	X0          []float64
	Strategy    string    // strategy the case is meant for
	Root        []float64 // expected solution, nil when the solve must fail
}

// Problem returns the solver problem of the case.
func (c *Case) Problem() sesolve.Problem {
	p := sesolve.Problem{
		N:          c.N,
		Eval:       c.Eval,
		Update:     c.Update,
		Observable: c.Observable,
		Fallback:   c.Fallback,
	}
	if c.Lower != nil {
		p.Bounds = make([]sesolve.Bound, c.N)
		for i := range p.Bounds {
			p.Bounds[i] = sesolve.Bound{Lower: c.Lower[i], Upper: c.Upper[i]}
		}
	}
	return p
}

var catalogue = func() map[string]*Case {
	leaf := C4Leaf()
	cases := []*Case{
		{
			Name:        "linear",
			Description: "F(x) = x - 5 on [-100, 100]",
			N:           1,
			Eval: func(x, f []float64) error {
				f[0] = x[0] - 5
				return nil
			},
			Lower:    []float64{-100},
			Upper:    []float64{100},
			X0:       []float64{0},
			Strategy: sesolve.NewtonBacktrackName,
			Root:     []float64{5},
		},
		{
			Name:        "singular",
			Description: "F(x, y) = (x - y, x - y), singular Jacobian everywhere",
			N:           2,
			Eval: func(x, f []float64) error {
				f[0] = x[0] - x[1]
				f[1] = x[0] - x[1]
				return nil
			},
			X0:       []float64{1, 0},
			Strategy: sesolve.NewtonBacktrackName,
		},
		{
			Name:        "sqrt10",
			Description: "Heron iteration x <- (x + 10/x) / 2",
			N:           1,
			Eval: func(x, f []float64) error {
				f[0] = 0.5*(x[0]+10/x[0]) - x[0]
				return nil
			},
			Update: func(x, next []float64) error {
				next[0] = 0.5 * (x[0] + 10/x[0])
				return nil
			},
			Lower:    []float64{0.1},
			Upper:    []float64{100},
			X0:       []float64{1},
			Strategy: sesolve.FixedPointName,
			Root:     []float64{math.Sqrt(10)},
		},
		{
			Name:        "clamped",
			Description: "F(x) = x - 5 on [0, 10] starting above the upper bound",
			N:           1,
			Eval: func(x, f []float64) error {
				f[0] = x[0] - 5
				return nil
			},
			Lower:    []float64{0},
			Upper:    []float64{10},
			X0:       []float64{11},
			Strategy: sesolve.NewtonBacktrackName,
			Root:     []float64{5},
		},
		{
			Name:        "rosenbrock",
			Description: "F(x, y) = (10(y - x²), 1 - x), curved valley",
			N:           2,
			Eval: func(x, f []float64) error {
				f[0] = 10 * (x[1] - x[0]*x[0])
				f[1] = 1 - x[0]
				return nil
			},
			X0:       []float64{-1.2, 1},
			Strategy: sesolve.NewtonBacktrackName,
			Root:     []float64{1, 1},
		},
		{
			Name:        "circle-line",
			Description: "x² + y² = 4 meets x = y, positive quadrant only",
			N:           2,
			Eval: func(x, f []float64) error {
				f[0] = x[0]*x[0] + x[1]*x[1] - 4
				f[1] = x[0] - x[1]
				return nil
			},
			Lower:    []float64{0, 0},
			Upper:    []float64{3, 3},
			X0:       []float64{1, 0.5},
			Strategy: sesolve.NewtonBacktrackName,
			Root:     []float64{math.Sqrt2, math.Sqrt2},
		},
		{
			Name:        "leaf-ci",
			Description: "C4 leaf: assimilation, Ball-Berry conductance and intercellular CO2 in (Ci Pa, Gs mmol/m2/s)",
			N:           2,
			Eval:        leaf.Residual,
			Update:      leaf.Update,
			Observable: func(x []float64) float64 {
				return leaf.Assim(x[0], x[1])
			},
			Fallback: &sesolve.Fallback{
				Name: "minimum-conductance",
				Lead: 10,
				Apply: func(x []float64) {
					x[1] = leaf.BB0 * 1e3
				},
			},
			Lower:    []float64{0, leaf.BB0 * 1e3},
			Upper:    []float64{leaf.CaPa(), 1e6},
			X0:       []float64{0.4 * leaf.CaPa(), 1e6},
			Strategy: sesolve.FixedPointName,
			Root:     []float64{17.681630946316588, 254.45479256643426},
		},
	}

	m := make(map[string]*Case, len(cases))
	for _, c := range cases {
		m[c.Name] = c
	}
	return m
}()

// Lookup returns the case registered under name.
func Lookup(name string) (*Case, error) {
	c, ok := catalogue[name]
	if !ok {
		return nil, fmt.Errorf("problems: unknown problem %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// Names lists the catalogue in lexical order.
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// All returns every case in lexical order of name.
func All() []*Case {
	cases := make([]*Case, 0, len(catalogue))
	for _, name := range Names() {
		cases = append(cases, catalogue[name])
	}
	return cases
}
