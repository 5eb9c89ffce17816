// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

// Observer receives the progress of a solve. Points passed to Start and Iterate are
// owned by the solver and only valid for the duration of the call.
// An observer attached to a solver used from several goroutines must be safe for concurrent use.
type Observer interface {
	// Start is called once the initial guess has been clamped and evaluated.
	Start(strategy string, x0 *Point)
	// Iterate is called after every step that produced a new guess.
	Iterate(iter int, p *Point, step Step)
	// Finish is called with the final result.
	Finish(r *Result)
}

type observers []Observer

// Observers fans every notification out to each non-nil observer in order.
func Observers(list ...Observer) Observer {
	var obs observers
	for _, o := range list {
		if o != nil {
			obs = append(obs, o)
		}
	}
	return obs
}

func (obs observers) Start(strategy string, x0 *Point) {
	for _, o := range obs {
		o.Start(strategy, x0)
	}
}

func (obs observers) Iterate(iter int, p *Point, step Step) {
	for _, o := range obs {
		o.Iterate(iter, p, step)
	}
}

func (obs observers) Finish(r *Result) {
	for _, o := range obs {
		o.Finish(r)
	}
}
