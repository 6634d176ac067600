package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/ensemblectl/internal/config"
	"github.com/mattjoyce/ensemblectl/internal/dispatch"
	"github.com/mattjoyce/ensemblectl/internal/lock"
	"github.com/mattjoyce/ensemblectl/internal/log"
	"github.com/mattjoyce/ensemblectl/internal/simargs"
)

// dispatchFlags are shared by run, ensemble and scan.
type dispatchFlags struct {
	overrides []string
	dryRun    bool
	program   string
	wait      bool
}

func (f *dispatchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.overrides, "overrides", nil, "YAML override file, applied before key=value arguments (repeatable)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Render and record the job script without submitting it")
	cmd.Flags().StringVar(&f.program, "program", "", "In-job program (default: the plugin's program)")
	cmd.Flags().BoolVar(&f.wait, "wait", false, "Wait for a concurrent dispatch to finish instead of failing")
}

// mappings returns the override mappings in application order: each
// --overrides file, then the key=value arguments.
func (f *dispatchFlags) mappings(assignments []string) ([]simargs.Overrides, error) {
	out := make([]simargs.Overrides, 0, len(f.overrides)+1)
	for _, path := range f.overrides {
		o, err := simargs.LoadOverridesFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	cli, err := simargs.ParseAssignments(assignments)
	if err != nil {
		return nil, err
	}
	if !cli.Empty() {
		out = append(out, cli)
	}
	return out, nil
}

func (a *app) target(cfg *config.Config, runConfig string, f *dispatchFlags) (dispatch.Target, error) {
	name, err := a.pluginName(cfg)
	if err != nil {
		return dispatch.Target{}, err
	}
	return dispatch.Target{
		Plugin:  name,
		Config:  runConfig,
		Machine: a.machineName(),
		Program: f.program,
		DryRun:  f.dryRun,
	}, nil
}

// withDispatcher holds the dispatch lock for the duration of fn.
func (a *app) withDispatcher(ctx context.Context, f *dispatchFlags, fn func(*config.Config, *dispatch.Dispatcher) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	lockPath := lock.PathFor(cfg.State.Path)
	var held *lock.DispatchLock
	if f.wait {
		held, err = lock.Acquire(ctx, lockPath)
	} else {
		held, err = lock.TryAcquire(lockPath)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := held.Release(); err != nil {
			log.WithComponent("main").Warn("failed to release dispatch lock", "path", lockPath, "error", err)
		}
	}()

	d, closer, err := a.dispatcher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	return fn(cfg, d)
}

func runCmd(a *app) *cobra.Command {
	f := &dispatchFlags{}
	cmd := &cobra.Command{
		Use:   "run <config> [key=value ...]",
		Short: "Submit one single run",
		Example: `  ensemblectl run brent starting_infections=1000 quicktest=true
  ensemblectl run brent --overrides lockdown.yaml --machine archer2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mappings, err := f.mappings(args[1:])
			if err != nil {
				return err
			}
			return a.withDispatcher(cmd.Context(), f, func(cfg *config.Config, d *dispatch.Dispatcher) error {
				target, err := a.target(cfg, args[0], f)
				if err != nil {
					return err
				}
				res, err := d.SingleRun(cmd.Context(), dispatch.SingleRequest{Target: target, Overrides: mappings})
				if err != nil {
					return err
				}
				printResults(a.stdout, []*dispatch.Result{res})
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func ensembleCmd(a *app) *cobra.Command {
	f := &dispatchFlags{}
	var (
		size      int
		parameter string
	)
	cmd := &cobra.Command{
		Use:   "ensemble <config> [key=value ...]",
		Short: "Submit a task array with one parameter bound to the task index",
		Example: `  ensemblectl ensemble brent --size 25 --parameter seed
  ensemblectl ensemble brent --parameter seed quicktest=true`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mappings, err := f.mappings(args[1:])
			if err != nil {
				return err
			}
			return a.withDispatcher(cmd.Context(), f, func(cfg *config.Config, d *dispatch.Dispatcher) error {
				target, err := a.target(cfg, args[0], f)
				if err != nil {
					return err
				}
				res, err := d.EnsembleRun(cmd.Context(), dispatch.EnsembleRequest{
					Target:            target,
					Size:              size,
					EnsembleParameter: parameter,
					Overrides:         mappings,
				})
				if err != nil {
					return err
				}
				printResults(a.stdout, []*dispatch.Result{res})
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&size, "size", 0, "Number of tasks (default: the ensemble preset size)")
	cmd.Flags().StringVar(&parameter, "parameter", "", "Simulation argument bound to the task index")
	return cmd
}

func scanCmd(a *app) *cobra.Command {
	f := &dispatchFlags{}
	var req dispatch.ScanRequest
	cmd := &cobra.Command{
		Use:     "scan <config> [key=value ...]",
		Short:   "Sweep one parameter, submitting an ensemble per value",
		Example: `  ensemblectl scan brent --parameter starting_infections --start 100 --end 500 --step 100 --ensemble-parameter seed`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mappings, err := f.mappings(args[1:])
			if err != nil {
				return err
			}
			return a.withDispatcher(cmd.Context(), f, func(cfg *config.Config, d *dispatch.Dispatcher) error {
				target, err := a.target(cfg, args[0], f)
				if err != nil {
					return err
				}
				req.Target = target
				req.Overrides = mappings
				results, err := d.Scan(cmd.Context(), req)
				if len(results) > 0 {
					printResults(a.stdout, results)
				}
				if err != nil {
					return fmt.Errorf("scan stopped after %d point(s): %w", len(results), err)
				}
				if len(results) == 0 {
					fmt.Fprintln(a.stderr, "Scan range is empty; nothing submitted.")
				}
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&req.Parameter, "parameter", "", "Simulation argument to sweep")
	cmd.Flags().IntVar(&req.Start, "start", 0, "First value (inclusive)")
	cmd.Flags().IntVar(&req.End, "end", 0, "Last value (inclusive)")
	cmd.Flags().IntVar(&req.Step, "step", 1, "Increment between values (must be positive)")
	cmd.Flags().IntVar(&req.Size, "size", 0, "Tasks per ensemble (default: the ensemble preset size)")
	cmd.Flags().StringVar(&req.EnsembleParameter, "ensemble-parameter", "", "Simulation argument bound to the task index")
	_ = cmd.MarkFlagRequired("parameter")
	return cmd
}

func printResults(w io.Writer, results []*dispatch.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"SUBMISSION", "SCAN", "STATUS", "JOB", "WORKSPACE", "ARGUMENTS"})
	for _, r := range results {
		scan := ""
		if r.ScanValue != nil {
			scan = strconv.Itoa(*r.ScanValue)
		}
		t.AppendRow(table.Row{
			shortID(r.Receipt.ID),
			scan,
			string(r.Receipt.Status),
			r.Receipt.BackendJobID,
			r.Workspace.ID,
			r.Descriptor.Arguments(),
		})
	}
	t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
