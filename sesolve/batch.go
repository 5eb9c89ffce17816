// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Job is one solve of a batch.
type Job struct {
	Name   string
	Solver *Solver
	X0     []float64
}

// SolveBatch runs the jobs on at most limit goroutines (unbounded when limit ≤ 0)
// and returns their results in job order. Non-convergence is reported in the results;
// the error is only set when ctx is cancelled or a job has no solver, in which case
// the results of jobs that did not run are nil.
func SolveBatch(parent context.Context, jobs []Job, limit int) ([]*Result, error) {

	results := make([]*Result, len(jobs))
	g, ctx := errgroup.WithContext(parent)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if job.Solver == nil {
				return fmt.Errorf("%w: job %d (%s) has no solver", ErrBadArgument, i, job.Name)
			}
			results[i] = job.Solver.Solve(job.X0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, parent.Err()
}
