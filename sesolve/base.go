// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import (
	"errors"
	"fmt"
)

const (
	zero = 0.0
	half = 0.5
	one  = 1.0
)

var (
	// ErrUnknownStrategy is returned when no strategy is registered under a name.
	ErrUnknownStrategy = errors.New("sesolve: unknown strategy")
	// ErrBadArgument is returned for inconsistent problem dimensions, bounds or tolerances.
	ErrBadArgument = errors.New("sesolve: bad argument")
	// ErrNonFinite is returned when the residual contains NaN or ±Inf.
	ErrNonFinite = errors.New("sesolve: non-finite residual")
	// ErrEvalPanic is returned when a residual or update function panics.
	ErrEvalPanic = errors.New("sesolve: evaluation panic")
)

// Reason classifies how a step or a whole solve ended.
type Reason int

const (
	// Running the step was taken and iteration may continue.
	Running Reason = iota
	// Converged the residual or the step satisfied the tolerances.
	Converged
	// OutOfBounds the full step left the box and was clamped back onto it.
	OutOfBounds
	// RoundoffError the line search slope was not negative.
	RoundoffError
	// SingularJacobian the Newton system could not be solved for a usable direction.
	SingularJacobian
	// StalledAtLocalMinimum the line search shrank below the minimum step.
	StalledAtLocalMinimum
	// MaxIterationsExceeded the iteration budget ran out.
	MaxIterationsExceeded
	// UnknownStrategy no strategy is registered under the requested name.
	UnknownStrategy
	// EvalFailure the residual or update function failed, panicked or was not finite.
	EvalFailure
	// BadArgument the problem definition is inconsistent.
	BadArgument
)

var reasonNames = [...]string{
	Running:               "Running",
	Converged:             "Converged",
	OutOfBounds:           "OutOfBounds",
	RoundoffError:         "RoundoffError",
	SingularJacobian:      "SingularJacobian",
	StalledAtLocalMinimum: "StalledAtLocalMinimum",
	MaxIterationsExceeded: "MaxIterationsExceeded",
	UnknownStrategy:       "UnknownStrategy",
	EvalFailure:           "EvalFailure",
	BadArgument:           "BadArgument",
}

func (r Reason) String() string {
	if r >= 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Fatal reports whether the reason ends a solve without a usable step.
func (r Reason) Fatal() bool {
	switch r {
	case RoundoffError, SingularJacobian, EvalFailure, UnknownStrategy, BadArgument:
		return true
	}
	return false
}
