// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problems

import "math"

// Ratios of the diffusivity of water vapour to that of CO₂ across the
// stomata and the boundary layer.
const (
	drStomata  = 1.6
	drBoundary = 1.37
)

// Leaf holds the parameters of a C4 leaf (Collatz et al. 1992) whose net assimilation,
// stomatal conductance (Ball-Berry) and intercellular CO₂ must agree.
type Leaf struct {
	Qp          float64 // absorbed photon flux, µmol/m²/s
	Temperature float64 // leaf temperature, °C
	RH          float64 // relative humidity at the leaf surface
	Vmax        float64 // µmol/m²/s
	Alpha       float64 // quantum efficiency, mol/mol
	Kparm       float64 // initial slope of the CO₂ response, mol/m²/s
	Theta       float64 // curvature of the light response
	Beta        float64 // curvature of the CO₂ response
	Rd          float64 // dark respiration, µmol/m²/s
	BB0         float64 // Ball-Berry intercept, mol/m²/s
	BB1         float64 // Ball-Berry slope
	Ca          float64 // ambient CO₂, µmol/mol
	Pressure    float64 // atmospheric pressure, Pa
	UpperT      float64 // °C
	LowerT      float64 // °C
	Gbw         float64 // boundary layer conductance, mol/m²/s
}

// C4Leaf returns a sunlit Miscanthus-like leaf at 25 °C.
func C4Leaf() Leaf {
	return Leaf{
		Qp:          1500,
		Temperature: 25,
		RH:          0.7,
		Vmax:        39,
		Alpha:       0.04,
		Kparm:       0.7,
		Theta:       0.83,
		Beta:        0.93,
		Rd:          0.8,
		BB0:         0.08,
		BB1:         3,
		Ca:          400,
		Pressure:    101325,
		UpperT:      37.5,
		LowerT:      3,
		Gbw:         1.2,
	}
}

// CaPa returns the ambient CO₂ partial pressure in Pa.
func (l *Leaf) CaPa() float64 { return l.Ca * 1e-6 * l.Pressure }

// Assim returns the net assimilation (µmol/m²/s) at intercellular CO₂ ci (Pa)
// and stomatal conductance gs (mmol/m²/s).
func (l *Leaf) Assim(ci, gs float64) float64 {
	const q10 = 2
	dt := (l.Temperature - 25) / 10
	kT := l.Kparm * math.Pow(q10, dt)

	vt := l.Vmax * math.Pow(2, dt) /
		((1 + math.Exp(0.3*(l.LowerT-l.Temperature))) * (1 + math.Exp(0.3*(l.Temperature-l.UpperT))))
	rt := l.Rd * math.Pow(2, dt) / (1 + math.Exp(1.3*(l.Temperature-55)))

	// light and Rubisco co-limitation, smaller root
	b0, b1, b2 := vt*l.Alpha*l.Qp, vt+l.Alpha*l.Qp, l.Theta
	m := (b1 - math.Sqrt(b1*b1-4*b0*b2)) / 2 / b2

	kTIC := kT * ci / l.Pressure * 1e6
	a, b := m*kTIC, m+kTIC
	gross := (b - math.Sqrt(b*b-4*a*l.Beta)) / 2 / l.Beta

	return math.Min(gross-rt, l.conductanceLimited(gs*1e-3))
}

// conductanceLimited is the assimilation that would draw Ci down to zero
// through the boundary layer and stomata in series.
func (l *Leaf) conductanceLimited(gsw float64) float64 {
	return l.Ca / (drBoundary/l.Gbw + drStomata/gsw)
}

// BallBerry returns the stomatal conductance (mmol/m²/s) for net assimilation an (µmol/m²/s).
func (l *Leaf) BallBerry(an float64) float64 {
	if an <= 0 {
		return l.BB0 * 1e3
	}
	cs := l.Ca - an*drBoundary/l.Gbw // µmol/mol at the leaf surface
	gsw := l.BB0 + l.BB1*an*l.RH/cs
	return gsw * 1e3
}

// Ci returns the intercellular CO₂ (Pa) sustaining assimilation an through conductance gs.
func (l *Leaf) Ci(an, gs float64) float64 {
	return l.CaPa() - l.Pressure*an*1e-6*(drBoundary/l.Gbw+drStomata/(gs*1e-3))
}

// Update is one pass of the coupled loop over x = (Ci, Gs).
func (l *Leaf) Update(x, next []float64) error {
	an := l.Assim(x[0], x[1])
	gs := l.BallBerry(an)
	next[0], next[1] = l.Ci(an, gs), gs
	return nil
}

// Residual is the change one pass of the loop makes.
func (l *Leaf) Residual(x, f []float64) error {
	if err := l.Update(x, f); err != nil {
		return err
	}
	f[0] -= x[0]
	f[1] -= x[1]
	return nil
}
