// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trace records the convergence history of a solve and renders it
// as JSON or as a chart.
package trace

import (
	"encoding/json"
	"io"
	"slices"
	"sync"

	"github.com/curioloop/equilibrium/sesolve"
)

// Entry is one guess of the history. Iter 0 is the clamped initial guess.
type Entry struct {
	Iter   int       `json:"iter"`
	X      []float64 `json:"x"`
	F      []float64 `json:"f"`
	Merit  float64   `json:"merit"`
	Lambda float64   `json:"lambda,omitempty"`
	Step   string    `json:"step,omitempty"`
}

// History is the recorded course of one solve.
type History struct {
	Strategy string  `json:"strategy"`
	Entries  []Entry `json:"entries"`
	OK       bool    `json:"ok"`
	Reason   string  `json:"reason,omitempty"`
	NumIter  int     `json:"numIter"`
	NumEval  int     `json:"numEval"`
	NumClamp int     `json:"numClamp"`
	Error    string  `json:"error,omitempty"`
}

// Recorder is a sesolve.Observer keeping the history of the latest solve.
// A new Start discards the previous history.
type Recorder struct {
	mu   sync.Mutex
	hist History
}

var _ sesolve.Observer = (*Recorder)(nil)

func (r *Recorder) Start(strategy string, x0 *sesolve.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hist = History{Strategy: strategy}
	r.hist.Entries = append(r.hist.Entries, entry(0, x0))
}

func (r *Recorder) Iterate(iter int, p *sesolve.Point, step sesolve.Step) {
	e := entry(iter, p)
	e.Lambda = step.Lambda
	e.Step = step.Reason.String()
	r.mu.Lock()
	r.hist.Entries = append(r.hist.Entries, e)
	r.mu.Unlock()
}

func (r *Recorder) Finish(res *sesolve.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := &r.hist
	h.Strategy = res.Strategy
	h.OK = res.OK
	h.Reason = res.Reason.String()
	h.NumIter, h.NumEval, h.NumClamp = res.NumIter, res.NumEval, res.NumClamp
	h.Error = ""
	if res.Err != nil {
		h.Error = res.Err.Error()
	}
}

// History returns a copy of the recorded history.
func (r *Recorder) History() History {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.hist
	h.Entries = slices.Clone(h.Entries)
	return h
}

// Render writes the history as JSON.
func (r *Recorder) Render(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.History())
}

func entry(iter int, p *sesolve.Point) Entry {
	return Entry{
		Iter:  iter,
		X:     slices.Clone(p.X),
		F:     slices.Clone(p.F),
		Merit: p.Merit(),
	}
}
