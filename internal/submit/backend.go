package submit

import (
	"context"
	"fmt"

	"github.com/mattjoyce/ensemblectl/internal/config"
	"github.com/mattjoyce/ensemblectl/internal/job"
	"github.com/mattjoyce/ensemblectl/internal/ledger"
	"github.com/mattjoyce/ensemblectl/internal/workspace"
)

// Job is what a backend receives: a rendered script on disk plus where it
// should run.
type Job struct {
	ID          string
	Descriptor  *job.Descriptor
	Script      []byte
	ScriptPath  string
	Workspace   workspace.Workspace
	// RemoteDir is the workspace's path on Machine.Remote; empty for
	// machines without a remote.
	RemoteDir   string
	MachineName string
	Machine     config.MachineConfig
}

// Outcome is a backend's report. Completed outcomes carry a terminal status;
// otherwise the job was handed to a scheduler under BackendJobID.
type Outcome struct {
	BackendJobID string
	Completed    bool
	Status       ledger.Status
	Output       string
}

// Backend submits rendered jobs.
type Backend interface {
	Name() string
	Submit(ctx context.Context, j Job) (Outcome, error)
}

// DefaultBackends returns the built-in backends keyed by name.
func DefaultBackends() map[string]Backend {
	return map[string]Backend{
		config.BackendLocal:  NewLocalBackend(),
		config.BackendSlurm:  NewSlurmBackend(),
		config.BackendDryRun: DryRunBackend{},
	}
}

// DryRunBackend records the rendered script without running anything.
type DryRunBackend struct{}

func (DryRunBackend) Name() string { return config.BackendDryRun }

func (DryRunBackend) Submit(ctx context.Context, j Job) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Completed: true,
		Status:    ledger.StatusDryRun,
		Output:    fmt.Sprintf("dry run: script written to %s", j.ScriptPath),
	}, nil
}
