// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	chartWidth  = 6 * vg.Inch
	chartHeight = 4 * vg.Inch
)

// meritFloor keeps log10 finite for an exact root.
const meritFloor = 1e-300

// Chart plots log10 of the merit ½‖F‖² against the iteration, plus every unknown
// on a second plot.
func (r *Recorder) Chart() (merit, guess *plot.Plot, err error) {

	h := r.History()
	if len(h.Entries) == 0 {
		return nil, nil, errors.New("trace: empty history")
	}

	merit = plot.New()
	merit.Title.Text = fmt.Sprintf("%s: %s", h.Strategy, h.Reason)
	merit.X.Label.Text = "iteration"
	merit.Y.Label.Text = "log10 merit"

	pts := make(plotter.XYs, 0, len(h.Entries))
	for _, e := range h.Entries {
		if math.IsNaN(e.Merit) || math.IsInf(e.Merit, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(e.Iter), Y: math.Log10(e.Merit + meritFloor)})
	}
	if err = plotutil.AddLinePoints(merit, "merit", pts); err != nil {
		return nil, nil, err
	}

	guess = plot.New()
	guess.Title.Text = "guess"
	guess.X.Label.Text = "iteration"
	guess.Y.Label.Text = "x"

	var lines []any
	for i := range h.Entries[0].X {
		xs := make(plotter.XYs, len(h.Entries))
		for k, e := range h.Entries {
			xs[k] = plotter.XY{X: float64(e.Iter), Y: e.X[i]}
		}
		lines = append(lines, fmt.Sprintf("x%d", i), xs)
	}
	if err = plotutil.AddLines(guess, lines...); err != nil {
		return nil, nil, err
	}
	return merit, guess, nil
}

// WriteChart writes the merit chart to w in the given image format (png, svg, pdf, ...).
func (r *Recorder) WriteChart(w io.Writer, format string) error {
	merit, _, err := r.Chart()
	if err != nil {
		return err
	}
	wt, err := merit.WriterTo(chartWidth, chartHeight, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveChart saves the merit chart to path and the guess chart next to it with a
// "-x" suffix. The format follows the file extension.
func (r *Recorder) SaveChart(path string) error {
	merit, guess, err := r.Chart()
	if err != nil {
		return err
	}
	if err = merit.Save(chartWidth, chartHeight, path); err != nil {
		return err
	}
	ext := filepath.Ext(path)
	return guess.Save(chartWidth, chartHeight, strings.TrimSuffix(path, ext)+"-x"+ext)
}
