package numdiff

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

var (
	// ErrDimension reports a base point, residual or destination matrix whose size
	// does not agree with the declared N and M.
	ErrDimension = errors.New("numdiff: dimension mismatch")
	// ErrInfeasible reports a base point outside its bounds.
	ErrInfeasible = errors.New("numdiff: x0 violates bound constraints")
)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use central difference in interior points and the second order accuracy
	// forward or backward difference near the boundary.
	Central
)

func (m Method) String() string {
	switch m {
	case Forward:
		return "forward"
	case Central:
		return "central"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps "forward" or "central" (case-insensitive) to a Method.
// The empty string selects Forward.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "forward":
		return Forward, nil
	case "central":
		return Central, nil
	}
	return Forward, fmt.Errorf("numdiff: unknown method %q", s)
}

// Bound holds the lower and upper limit of one independent variable.
// NaN stands for a missing limit.
type Bound [2]float64

// Jacobian approximates the M×N matrix of partial derivatives ∂yⱼ/∂xᵢ of a vector
// function by finite differences.
//
// The absolute step for variable i defaults to
//
//	hᵢ = ε · sign(xᵢ) · max(1, |xᵢ|)
//
// with ε = √eps for Forward and ∛eps for Central, so the perturbation grows with |xᵢ|
// and never collapses to zero. Steps are turned around or shortened so that every
// evaluation stays inside Bounds.
//
// A Jacobian keeps scratch space between calls and must not be shared between goroutines.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
type Jacobian struct {
	N, M int
	// Func evaluates the function at the n-vector x and stores the m-vector result in y.
	Func func(x, y []float64) error
	// Finite difference method to use.
	Method Method
	// Optional lower and upper bounds on independent variables.
	Bounds []Bound
	// Relative step size used to compute absolute step size h = RelStep * sign(x) * abs(x).
	// The automatic step rule applies when both RelStep and AbsStep are zero.
	RelStep float64
	// Absolute step size to use, possibly adjusted to fit into the bounds.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
	work
}

type work struct {
	x       []float64
	lb, ub  []float64
	f0      []float64
	f1, f2  []float64
	absStep []float64
	oneSide []bool
}

// Check validates the configuration against x0 and dst and sizes the scratch space.
func (j *Jacobian) Check(x0 []float64, dst *mat.Dense) error {

	switch {
	case j.N <= 0 || j.M <= 0:
		return errors.New("numdiff: non-positive dimensions")
	case j.Method != Forward && j.Method != Central:
		return errors.New("numdiff: unknown method")
	case j.Func == nil:
		return errors.New("numdiff: function is required")
	case j.N != len(x0):
		return fmt.Errorf("%w: len(x0) = %d, want %d", ErrDimension, len(x0), j.N)
	case j.Bounds != nil && len(j.Bounds) != j.N:
		return fmt.Errorf("%w: %d bounds for %d variables", ErrDimension, len(j.Bounds), j.N)
	}
	if r, c := dst.Dims(); r != j.M || c != j.N {
		return fmt.Errorf("%w: destination is %d×%d, want %d×%d", ErrDimension, r, c, j.M, j.N)
	}

	w := &j.work
	if len(w.x) != j.N {
		w.x = make([]float64, j.N)
		w.lb = make([]float64, j.N)
		w.ub = make([]float64, j.N)
		w.absStep = make([]float64, j.N)
	}
	if len(w.f0) != j.M {
		w.f0 = make([]float64, j.M)
		w.f1 = make([]float64, j.M)
		w.f2 = make([]float64, j.M)
	}
	if want := j.N * int(j.Method); len(w.oneSide) != want {
		w.oneSide = make([]bool, want)
	}

	for i := range w.lb {
		w.lb[i], w.ub[i] = math.Inf(-1), math.Inf(1)
		if j.Bounds == nil {
			continue
		}
		if l := j.Bounds[i][0]; !math.IsNaN(l) {
			w.lb[i] = l
		}
		if u := j.Bounds[i][1]; !math.IsNaN(u) {
			w.ub[i] = u
		}
		if w.lb[i] > w.ub[i] {
			return fmt.Errorf("numdiff: invalid bound range at %d", i)
		}
		if x0[i] < w.lb[i] || x0[i] > w.ub[i] {
			return fmt.Errorf("%w: x0[%d] = %g not in [%g, %g]", ErrInfeasible, i, x0[i], w.lb[i], w.ub[i])
		}
	}
	return nil
}

// Eval writes the approximated Jacobian at x0 into dst (M×N, row j holds ∂yⱼ/∂x).
// f0 may carry the function value at x0 to save one evaluation; pass nil to have it computed.
// x0 is never modified.
func (j *Jacobian) Eval(x0, f0 []float64, dst *mat.Dense) error {

	if err := j.Check(x0, dst); err != nil {
		return err
	}

	w := &j.work
	bnd := false
	for i := range w.lb {
		if bnd = !(math.IsInf(w.lb[i], 0) && math.IsInf(w.ub[i], 0)); bnd {
			break
		}
	}

	j.absoluteStep(x0)
	j.adjustToBounds(x0, bnd)

	copy(w.x, x0)
	if f0 == nil {
		if err := j.Func(w.x, w.f0); err != nil {
			return fmt.Errorf("numdiff: base point: %w", err)
		}
	} else if len(f0) != j.M {
		return fmt.Errorf("%w: len(f0) = %d, want %d", ErrDimension, len(f0), j.M)
	} else {
		copy(w.f0, f0)
	}

	if j.Method == Central {
		return j.approxCentral(dst)
	}
	return j.approxForward(dst)
}

func (j *Jacobian) absoluteStep(x0 []float64) {
	h := j.absStep
	if len(h) != len(x0) {
		panic("bound check error")
	}

	eps := sqrtEps
	if j.Method == Central {
		eps = cubeEps
	}

	abs, rel := j.AbsStep, j.RelStep
	for i, v := range x0 {
		auto := math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		if abs == 0 && rel == 0 {
			h[i] = auto
			continue
		}
		s := abs
		if s == 0 {
			s = math.Copysign(rel, v) * math.Abs(v)
		}
		if (v+s)-v == 0 {
			s = auto
		}
		h[i] = s
	}
}

func (j *Jacobian) adjustToBounds(x0 []float64, bnd bool) {
	h, o := j.absStep, j.oneSide
	if j.Method == Central {
		for i, v := range h {
			h[i] = math.Abs(v)
		}
		for i := range o {
			o[i] = false
		}
	}

	if !bnd {
		return
	}

	lb, ub := j.lb, j.ub
	if len(x0) != len(lb) || len(x0) != len(h) {
		panic("bound check error")
	}

	if j.Method == Forward {
		for i, x := range x0 {
			ld, ud := x-lb[i], ub[i]-x
			h0 := h[i]
			violated := x+h0 < lb[i] || x+h0 > ub[i]
			fitting := math.Abs(h0) < math.Max(ld, ud)
			switch {
			case violated && fitting:
				h[i] = -h0
			case !fitting && ud >= ld:
				h[i] = ud
			case !fitting:
				h[i] = -ld
			}
		}
		return
	}

	if len(x0) != len(o) {
		panic("bound check error")
	}
	for i, x := range x0 {
		ld, ud := x-lb[i], ub[i]-x
		central := ld >= h[i] && ud >= h[i]
		if !central {
			if ud >= ld {
				h[i] = math.Min(h[i], 0.5*ud)
			} else {
				h[i] = -math.Min(h[i], 0.5*ld)
			}
			o[i] = true
		}
		minDist := math.Min(ud, ld)
		if !central && math.Abs(h[i]) <= minDist {
			h[i] = minDist
			o[i] = false
		}
	}
}

func (j *Jacobian) approxForward(dst *mat.Dense) error {
	x, f0, f1 := j.x, j.f0, j.f1
	for i, s := range j.absStep {
		xi := x[i]
		x[i] = xi + s
		s = x[i] - xi // the step actually representable at xi
		if s == 0 {
			// a variable pinned by equal bounds has no admissible perturbation
			x[i] = xi
			zeroColumn(dst, i)
			continue
		}
		err := j.Func(x, f1)
		x[i] = xi
		if err != nil {
			return fmt.Errorf("numdiff: column %d: %w", i, err)
		}
		d := 1.0 / s
		for r := range f0 {
			dst.Set(r, i, (f1[r]-f0[r])*d)
		}
	}
	return nil
}

func (j *Jacobian) approxCentral(dst *mat.Dense) error {
	x, f0, f1, f2, o := j.x, j.f0, j.f1, j.f2, j.oneSide
	if len(o) != len(j.absStep) {
		panic("bound check error")
	}
	for i, s := range j.absStep {
		xi := x[i]
		if (xi+s)-xi == 0 {
			zeroColumn(dst, i)
			continue
		}
		var err error
		if o[i] {
			x[i] = xi + s
			s = x[i] - xi
			if err = j.Func(x, f1); err == nil {
				x[i] = xi + 2*s
				err = j.Func(x, f2)
			}
			x[i] = xi
			if err != nil {
				return fmt.Errorf("numdiff: column %d: %w", i, err)
			}
			d := 1.0 / (2 * s)
			for r := range f0 {
				dst.Set(r, i, (4*f1[r]-3*f0[r]-f2[r])*d)
			}
			continue
		}
		x[i] = xi + s
		s = x[i] - xi
		if err = j.Func(x, f2); err == nil {
			x[i] = xi - s
			err = j.Func(x, f1)
		}
		x[i] = xi
		if err != nil {
			return fmt.Errorf("numdiff: column %d: %w", i, err)
		}
		d := 1.0 / (2 * s)
		for r := range f0 {
			dst.Set(r, i, (f2[r]-f1[r])*d)
		}
	}
	return nil
}

func zeroColumn(dst *mat.Dense, i int) {
	r, _ := dst.Dims()
	for k := 0; k < r; k++ {
		dst.Set(k, i, 0)
	}
}
