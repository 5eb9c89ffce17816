// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/curioloop/equilibrium/numdiff"
	"gonum.org/v1/gonum/mat"
)

// Equations evaluates the residual F(x) into f. Both slices have length n.
// It must not retain either slice and must return the same f for the same x.
type Equations func(x, f []float64) error

// Update writes the next fixed-point guess g(x) into next.
type Update func(x, next []float64) error

// Bound represents the bounds for an unknown.
// A NaN or infinite limit means the unknown is unbounded on that side.
type Bound struct {
	Lower, Upper float64
}

// Termination specifies the stopping criteria for a solve.
type Termination struct {
	// The step test passes when every |Δxᵢ| ≤ AbsTolerance + RelTolerance·|xᵢ|.
	RelTolerance float64
	// The residual test passes when ‖F‖∞ ≤ AbsTolerance.
	AbsTolerance float64
	// The solve stops after this many strategy steps.
	MaxIterations int
}

// Problem specifies a bounded system of n equations in n unknowns.
type Problem struct {
	N      int       // The problem dimension
	Eval   Equations // Residual F(x)
	Update Update    // Optional update rule for fixed-point substitution
	Bounds []Bound   // Optional bounds
	// Optional scalar observable whose change replaces the componentwise step test.
	Observable func(x []float64) float64
	// Optional policy forcing fixed-point guesses late in the iteration budget.
	Fallback *Fallback
	// Finite difference scheme for the Jacobian.
	Method numdiff.Method
}

// Options select the strategy and collaborators of a solver.
type Options struct {
	Strategy string      // Registered strategy name
	Stop     Termination // Stop condition
	Logger   *slog.Logger
	Observer Observer
	Registry *Registry // Defaults to the process-wide registry
}

// New validates the problem and creates a solver for it.
// The error wraps ErrUnknownStrategy or ErrBadArgument.
func (p *Problem) New(opts Options) (solver *Solver, err error) {

	n, stop := p.N, opts.Stop
	reg := opts.Registry
	if reg == nil {
		reg = defaultRegistry
	}

	switch {
	case n <= 0:
		err = errors.New("problem dimension must greater than 0")
	case p.Eval == nil:
		err = errors.New("residual equations are required")
	case p.Method != numdiff.Forward && p.Method != numdiff.Central:
		err = fmt.Errorf("unknown jacobian method %v", p.Method)
	case stop.MaxIterations <= 0:
		err = errors.New("max iteration must greater than 0")
	case !(stop.RelTolerance >= zero):
		err = errors.New("relative tolerance must not less than 0")
	case !(stop.AbsTolerance >= zero):
		err = errors.New("absolute tolerance must not less than 0")
	case p.Bounds != nil && len(p.Bounds) != n:
		err = errors.New("bounds size must equal to n")
	case p.Fallback != nil && p.Fallback.Apply == nil:
		err = fmt.Errorf("fallback %q has no apply function", p.Fallback.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgument, err)
	}

	lower, upper := make([]float64, n), make([]float64, n)
	for i := range lower {
		lower[i], upper[i] = math.Inf(-1), math.Inf(1)
		if p.Bounds == nil {
			continue
		}
		b := p.Bounds[i]
		if !math.IsNaN(b.Lower) {
			lower[i] = b.Lower
		}
		if !math.IsNaN(b.Upper) {
			upper[i] = b.Upper
		}
		if lower[i] > upper[i] {
			return nil, fmt.Errorf("%w: bound range at %d has no feasible solution", ErrBadArgument, i)
		}
	}

	factory, err := reg.Lookup(opts.Strategy)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	solver = &Solver{
		n:          n,
		eval:       p.Eval,
		update:     p.Update,
		observable: p.Observable,
		fallback:   p.Fallback,
		method:     p.Method,
		lower:      lower,
		upper:      upper,
		stop:       stop,
		strategy:   opts.Strategy,
		factory:    factory,
		logger:     logger,
		observer:   opts.Observer,
	}
	return solver, nil
}

// Solver solves one problem with one strategy. Each call to Solve allocates its own
// strategy state, so a Solver may be used from several goroutines at once as long as
// the residual function is reentrant.
type Solver struct {
	n          int
	eval       Equations
	update     Update
	observable func(x []float64) float64
	fallback   *Fallback
	method     numdiff.Method
	lower      []float64
	upper      []float64
	stop       Termination
	strategy   string
	factory    Factory
	logger     *slog.Logger
	observer   Observer
}

// Dim returns the number of unknowns.
func (s *Solver) Dim() int { return s.n }

// Strategy returns the name of the strategy the solver runs.
func (s *Solver) Strategy() string { return s.strategy }

// Stop returns the termination criteria of the solver.
func (s *Solver) Stop() Termination { return s.stop }

// Result contains the final result of a solve.
type Result struct {
	OK      bool      // Whether the solve converged.
	X, F    []float64 // Final guess and its residual.
	Summary           // Solve summary.
	// Diagnostics holds the state that led to a RoundoffError or SingularJacobian.
	Diagnostics *Diagnostics
	// Err carries the underlying error of a configuration or evaluation failure.
	Err error
}

// Summary contains a summary of the solving process.
type Summary struct {
	Strategy string        // Strategy that produced the result.
	Reason   Reason        // Why the solve stopped.
	NumIter  int           // Number of strategy steps taken.
	NumEval  int           // Number of residual evaluations.
	NumClamp int           // Number of guesses clamped onto the bounds.
	Merit    float64       // ½‖F‖² at the final guess.
	Elapsed  time.Duration // Wall time of the solve.
}

// Diagnostics captures the Newton state at a fatal numerical condition.
type Diagnostics struct {
	X, F      []float64
	Direction []float64
	Jacobian  *mat.Dense
	Slope     float64
	Cond      float64
}

// Solve is the one-call entry point: it builds a problem from eval and the bounds,
// looks up the strategy and solves from x0. Configuration errors are reported in the
// result with Reason UnknownStrategy or BadArgument before any evaluation happens.
// lower and upper may both be nil for an unbounded problem.
func Solve(eval Equations, lower, upper, x0 []float64, strategy string, relTol, absTol float64, maxIter int) *Result {

	n := len(x0)
	var bounds []Bound
	if lower != nil || upper != nil {
		if len(lower) != n || len(upper) != n {
			err := fmt.Errorf("%w: bounds have %d and %d entries for %d unknowns", ErrBadArgument, len(lower), len(upper), n)
			return failedResult(strategy, x0, err)
		}
		bounds = make([]Bound, n)
		for i := range bounds {
			bounds[i] = Bound{lower[i], upper[i]}
		}
	}

	p := Problem{N: n, Eval: eval, Bounds: bounds}
	s, err := p.New(Options{
		Strategy: strategy,
		Stop:     Termination{RelTolerance: relTol, AbsTolerance: absTol, MaxIterations: maxIter},
	})
	if err != nil {
		return failedResult(strategy, x0, err)
	}
	return s.Solve(x0)
}

func failedResult(strategy string, x0 []float64, err error) *Result {
	reason := BadArgument
	if errors.Is(err, ErrUnknownStrategy) {
		reason = UnknownStrategy
	}
	return &Result{
		X:       slices.Clone(x0),
		Summary: Summary{Strategy: strategy, Reason: reason, Merit: math.NaN()},
		Err:     err,
	}
}
