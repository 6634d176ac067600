package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
	"github.com/mattjoyce/ensemblectl/internal/config"
	"github.com/mattjoyce/ensemblectl/internal/job"
	"github.com/mattjoyce/ensemblectl/internal/log"
	"github.com/mattjoyce/ensemblectl/internal/plugin"
	"github.com/mattjoyce/ensemblectl/internal/simargs"
	"github.com/mattjoyce/ensemblectl/internal/submit"
	"github.com/mattjoyce/ensemblectl/internal/workspace"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/ensemblectl/internal/dispatch EnvironmentResolver,MachineResolver,Stager,Submitter

// EnvironmentResolver loads plugin-scoped defaults.
type EnvironmentResolver interface {
	Environment(name string) (*plugin.Environment, error)
}

// MachineResolver resolves a machine name ("" for the default).
type MachineResolver interface {
	Machine(name string) (string, config.MachineConfig, error)
}

// Stager prepares run inputs for one dispatch.
type Stager interface {
	StageInputs(ctx context.Context, p *plugin.Plugin, config, label string) (workspace.Workspace, error)
}

// Submitter hands a descriptor to a machine.
type Submitter interface {
	Submit(ctx context.Context, req submit.Request) (submit.Receipt, error)
}

// Target names what to run and where.
type Target struct {
	Plugin  string
	Config  string
	Machine string
	// Program replaces the plugin's program when set.
	Program string
	DryRun  bool
}

// SingleRequest is one single run.
type SingleRequest struct {
	Target
	Overrides []simargs.Overrides
}

// EnsembleRequest is one task-array run of Size tasks (preset size when
// zero) with EnsembleParameter bound to the task index.
type EnsembleRequest struct {
	Target
	Size              int
	EnsembleParameter string
	Overrides         []simargs.Overrides
}

// ScanRequest sweeps Parameter over Start..End (inclusive) by Step, one
// ensemble dispatch per point.
type ScanRequest struct {
	Target
	Parameter         string
	Start, End, Step  int
	Size              int
	EnsembleParameter string
	Overrides         []simargs.Overrides
}

// Result describes one completed dispatch.
type Result struct {
	Descriptor *job.Descriptor
	Workspace  workspace.Workspace
	Receipt    submit.Receipt
	// Ignored lists override keys that matched no simulation argument.
	Ignored []string
	// ScanValue is set for scan points.
	ScanValue *int
}

// Dispatcher runs dispatches against its collaborators.
type Dispatcher struct {
	envs      EnvironmentResolver
	machines  MachineResolver
	stager    Stager
	submitter Submitter
	logger    *slog.Logger
}

// New creates a Dispatcher.
func New(envs EnvironmentResolver, machines MachineResolver, stager Stager, submitter Submitter) *Dispatcher {
	return &Dispatcher{
		envs:      envs,
		machines:  machines,
		stager:    stager,
		submitter: submitter,
		logger:    log.WithComponent("dispatch"),
	}
}

// SingleRun dispatches one run with the single preset.
func (d *Dispatcher) SingleRun(ctx context.Context, req SingleRequest) (*Result, error) {
	return d.dispatch(ctx, plan{
		kind:      job.KindSingle,
		target:    req.Target,
		overrides: req.Overrides,
	})
}

// EnsembleRun dispatches one task array with the ensemble preset.
func (d *Dispatcher) EnsembleRun(ctx context.Context, req EnsembleRequest) (*Result, error) {
	return d.dispatch(ctx, plan{
		kind:      job.KindEnsemble,
		target:    req.Target,
		size:      req.Size,
		overrides: withEnsembleParameter(req.Overrides, req.EnsembleParameter),
	})
}

// Scan dispatches one ensemble per scan point, in order. Each point's value
// is layered last so it beats any binding of the same parameter.
func (d *Dispatcher) Scan(ctx context.Context, req ScanRequest) ([]*Result, error) {
	if req.Parameter == "" {
		return nil, &apperrors.ErrInvalidArgument{Name: "parameter", Value: req.Parameter, Message: "scan parameter is required"}
	}
	if req.Step <= 0 {
		return nil, &apperrors.ErrInvalidArgument{Name: "step", Value: req.Step, Message: "scan step must be positive"}
	}

	base := withEnsembleParameter(req.Overrides, req.EnsembleParameter)
	label := req.Parameter + "_scan"
	logger := d.logger.With("parameter", req.Parameter, "start", req.Start, "end", req.End, "step", req.Step)
	logger.Info("scan started")

	var results []*Result
	for v := req.Start; v <= req.End; v += req.Step {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		point := simargs.Mapping(simargs.KV{Key: req.Parameter, Value: simargs.NewInt(v)})
		res, err := d.dispatch(ctx, plan{
			kind:      job.KindEnsemble,
			target:    req.Target,
			size:      req.Size,
			label:     label,
			overrides: append(append([]simargs.Overrides{}, base...), point),
			scan:      &submit.ScanPoint{Parameter: req.Parameter, Value: strconv.Itoa(v)},
		})
		if err != nil {
			logger.Error("scan point failed", "value", v, "error", err)
			return results, fmt.Errorf("scan %s=%d: %w", req.Parameter, v, err)
		}
		value := v
		res.ScanValue = &value
		results = append(results, res)

		if v > math.MaxInt-req.Step {
			break
		}
	}
	logger.Info("scan finished", "dispatches", len(results))
	return results, nil
}

type plan struct {
	kind      job.Kind
	target    Target
	size      int
	label     string
	overrides []simargs.Overrides
	scan      *submit.ScanPoint
}

func (d *Dispatcher) dispatch(ctx context.Context, p plan) (*Result, error) {
	env, err := d.envs.Environment(p.target.Plugin)
	if err != nil {
		return nil, err
	}
	machineName, machine, err := d.machines.Machine(p.target.Machine)
	if err != nil {
		return nil, err
	}
	logger := d.logger.With("plugin", env.Plugin.Name, "config", p.target.Config, "machine", machineName, "kind", p.kind)

	store, err := env.NewStore(simargs.WithBindingToken(machine.BindingToken))
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", env.Plugin.Name, err)
	}
	report := store.Merge(p.overrides...)
	ignored := unknownKeys(report.Ignored)
	if len(ignored) > 0 {
		logger.Warn("ignoring unknown override keys", "keys", ignored)
	}
	args := store.Render()
	logger.Info("simulation prepared", "args", args)

	preset := env.Single
	if p.kind == job.KindEnsemble {
		preset = env.Ensemble
	}
	preset, err = preset.ApplyOverrides(p.overrides...)
	if err != nil {
		return nil, err
	}
	if p.label != "" {
		preset.Label = p.label
	}
	if p.size != 0 {
		preset.Size = p.size
	}

	builder, err := job.NewBuilder(machine.ArrayDirective)
	if err != nil {
		return nil, fmt.Errorf("machine %s: %w", machineName, err)
	}
	program := p.target.Program
	if program == "" {
		program = env.Program
	}
	target := job.Target{
		Plugin:  env.Plugin.Name,
		Config:  p.target.Config,
		Program: program,
		Machine: machineName,
	}
	// Validate before copying anything.
	if _, err := build(builder, p.kind, target, preset, args); err != nil {
		return nil, err
	}

	ws, err := d.stager.StageInputs(ctx, env.Plugin, p.target.Config, preset.Label)
	if err != nil {
		return nil, fmt.Errorf("stage inputs: %w", err)
	}
	target.Workspace = ws.ID
	desc, err := build(builder, p.kind, target, preset, args)
	if err != nil {
		return nil, err
	}
	logger.Debug("job descriptor built", "descriptor", desc.String(), "workspace", ws.ID)

	receipt, err := d.submitter.Submit(ctx, submit.Request{
		Descriptor:  desc,
		Workspace:   ws,
		MachineName: machineName,
		Machine:     machine,
		DryRun:      p.target.DryRun,
		Scan:        p.scan,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("dispatched", "submission_id", receipt.ID, "status", receipt.Status, "label", desc.Label())

	return &Result{
		Descriptor: desc,
		Workspace:  ws,
		Receipt:    receipt,
		Ignored:    ignored,
	}, nil
}

func build(b *job.Builder, kind job.Kind, t job.Target, p job.Preset, args string) (*job.Descriptor, error) {
	if kind == job.KindEnsemble {
		return b.Ensemble(t, p, args)
	}
	return b.Single(t, p, args)
}

// withEnsembleParameter places the binding ahead of every caller mapping, so
// any explicit value for the bound parameter wins regardless of where it
// came from.
func withEnsembleParameter(overrides []simargs.Overrides, param string) []simargs.Overrides {
	if param == "" {
		return append([]simargs.Overrides{}, overrides...)
	}
	out := make([]simargs.Overrides, 0, len(overrides)+1)
	out = append(out, simargs.Overrides{EnsembleParameter: param})
	return append(out, overrides...)
}

// unknownKeys drops resource keys, which are consumed by the preset.
func unknownKeys(ignored []string) []string {
	var out []string
	for _, k := range ignored {
		if !job.IsResourceKey(k) {
			out = append(out, k)
		}
	}
	return out
}
