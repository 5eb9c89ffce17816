// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"text/tabwriter"
	"time"

	"github.com/curioloop/equilibrium/config"
	"github.com/curioloop/equilibrium/problems"
	"github.com/curioloop/equilibrium/sesolve"
	"github.com/curioloop/equilibrium/telemetry"
	"github.com/curioloop/equilibrium/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

type options struct {
	configPath  string
	strategy    string
	relTol      float64
	absTol      float64
	maxIter     int
	tracePath   string
	chartPath   string
	asJSON      bool
	concurrency int
	metrics     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "sesolve",
		Short:        "Solve bounded systems of nonlinear equations",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML configuration file")
	root.AddCommand(
		newStrategiesCmd(),
		newProblemsCmd(),
		newSolveCmd(opts),
		newBatchCmd(opts),
	)
	return root
}

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the registered solving strategies",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range sesolve.Strategies() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func newProblemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "problems",
		Short: "List the catalogued problems",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tN\tSTRATEGY\tDESCRIPTION")
			for _, c := range problems.All() {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", c.Name, c.N, c.Strategy, c.Description)
			}
			w.Flush()
		},
	}
}

func newSolveCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve <problem>",
		Short: "Solve one catalogued problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, opts, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.strategy, "strategy", "", "strategy name (default: the problem's own)")
	f.Float64Var(&opts.relTol, "rel-tol", 0, "relative step tolerance")
	f.Float64Var(&opts.absTol, "abs-tol", 0, "absolute residual tolerance")
	f.IntVar(&opts.maxIter, "max-iter", 0, "iteration budget")
	f.StringVar(&opts.tracePath, "trace", "", "write the convergence history as JSON to this file")
	f.StringVar(&opts.chartPath, "chart", "", "plot the convergence history to this image file")
	f.BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newBatchCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Solve the whole catalogue concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.strategy, "strategy", "", "strategy name (default: each problem's own)")
	f.IntVar(&opts.concurrency, "concurrency", 0, "maximum concurrent solves (default from config)")
	f.BoolVar(&opts.metrics, "metrics", false, "print the Prometheus metrics of the batch")
	return cmd
}

// loadConfig reads the configuration file and applies the command line overrides.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	if f.Changed("strategy") {
		cfg.Solver.Strategy = opts.strategy
	}
	if f.Changed("rel-tol") {
		cfg.Solver.RelTolerance = opts.relTol
	}
	if f.Changed("abs-tol") {
		cfg.Solver.AbsTolerance = opts.absTol
	}
	if f.Changed("max-iter") {
		cfg.Solver.MaxIterations = opts.maxIter
	}
	if f.Changed("concurrency") {
		cfg.Batch.Concurrency = opts.concurrency
	}
	return cfg, cfg.Validate()
}

func newSolver(cfg *config.Config, c *problems.Case, logger *slog.Logger, obs sesolve.Observer) (*sesolve.Solver, error) {
	method, err := cfg.Method()
	if err != nil {
		return nil, err
	}
	strategy := cfg.Solver.Strategy
	if strategy == "" {
		strategy = c.Strategy
	}
	p := c.Problem()
	p.Method = method
	return p.New(sesolve.Options{
		Strategy: strategy,
		Stop:     cfg.Termination(),
		Logger:   logger.With(slog.String("problem", c.Name)),
		Observer: obs,
	})
}

func runSolve(cmd *cobra.Command, opts *options, name string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	c, err := problems.Lookup(name)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var rec *trace.Recorder
	var obs sesolve.Observer
	if opts.tracePath != "" || opts.chartPath != "" {
		rec = &trace.Recorder{}
		obs = rec
	}

	s, err := newSolver(&cfg, c, logger, obs)
	if err != nil {
		return err
	}
	r := s.Solve(c.X0)

	if rec != nil {
		if err = writeTrace(rec, opts); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(newReport(c.Name, r))
	} else {
		err = printResult(out, c.Name, r)
	}
	if err != nil {
		return err
	}
	if !r.OK {
		return fmt.Errorf("%s: %s", c.Name, r.Reason)
	}
	return nil
}

func writeTrace(rec *trace.Recorder, opts *options) error {
	if opts.chartPath != "" {
		if err := rec.SaveChart(opts.chartPath); err != nil {
			return fmt.Errorf("chart: %w", err)
		}
	}
	if opts.tracePath == "" {
		return nil
	}
	f, err := createFile(opts.tracePath)
	if err != nil {
		return err
	}
	if err = rec.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("trace: %w", err)
	}
	return f.Close()
}

func runBatch(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := telemetry.New(reg, cfg.Batch.MetricsNamespace)
	if err != nil {
		return err
	}

	cases := problems.All()
	jobs := make([]sesolve.Job, len(cases))
	for i, c := range cases {
		s, err := newSolver(&cfg, c, logger, metrics)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
		jobs[i] = sesolve.Job{Name: c.Name, Solver: s, X0: c.X0}
	}

	start := time.Now()
	results, err := sesolve.SolveBatch(cmd.Context(), jobs, cfg.Batch.Concurrency)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROBLEM\tSTRATEGY\tREASON\tITER\tEVAL\tMERIT\tX")
	converged := 0
	for i, r := range results {
		if r.OK {
			converged++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.3g\t%.8g\n",
			jobs[i].Name, r.Strategy, r.Reason, r.NumIter, r.NumEval, r.Merit, r.X)
	}
	if err = w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d/%d converged in %v\n", converged, len(results), time.Since(start).Round(time.Microsecond))

	if opts.metrics {
		return writeMetrics(out, reg)
	}
	return nil
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err = expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

type report struct {
	Problem  string    `json:"problem"`
	Strategy string    `json:"strategy"`
	OK       bool      `json:"ok"`
	Reason   string    `json:"reason"`
	X        []float64 `json:"x"`
	F        []float64 `json:"f,omitempty"`
	Merit    *float64  `json:"merit,omitempty"`
	NumIter  int       `json:"numIter"`
	NumEval  int       `json:"numEval"`
	NumClamp int       `json:"numClamp"`
	Elapsed  string    `json:"elapsed"`
	Error    string    `json:"error,omitempty"`
}

func newReport(name string, r *sesolve.Result) report {
	rep := report{
		Problem:  name,
		Strategy: r.Strategy,
		OK:       r.OK,
		Reason:   r.Reason.String(),
		X:        r.X,
		F:        r.F,
		NumIter:  r.NumIter,
		NumEval:  r.NumEval,
		NumClamp: r.NumClamp,
		Elapsed:  r.Elapsed.String(),
	}
	if !math.IsNaN(r.Merit) {
		merit := r.Merit
		rep.Merit = &merit
	}
	if r.Err != nil {
		rep.Error = r.Err.Error()
	}
	return rep
}

func printResult(out io.Writer, name string, r *sesolve.Result) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "problem\t%s\n", name)
	fmt.Fprintf(w, "strategy\t%s\n", r.Strategy)
	fmt.Fprintf(w, "reason\t%s\n", r.Reason)
	fmt.Fprintf(w, "x\t%.10g\n", r.X)
	fmt.Fprintf(w, "f\t%.3g\n", r.F)
	fmt.Fprintf(w, "merit\t%.3g\n", r.Merit)
	fmt.Fprintf(w, "iterations\t%d\n", r.NumIter)
	fmt.Fprintf(w, "evaluations\t%d\n", r.NumEval)
	fmt.Fprintf(w, "clamped\t%d\n", r.NumClamp)
	if r.Err != nil {
		fmt.Fprintf(w, "error\t%v\n", r.Err)
	}
	return w.Flush()
}
