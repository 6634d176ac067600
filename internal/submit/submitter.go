package submit

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/ensemblectl/internal/config"
	"github.com/mattjoyce/ensemblectl/internal/job"
	"github.com/mattjoyce/ensemblectl/internal/ledger"
	"github.com/mattjoyce/ensemblectl/internal/log"
	"github.com/mattjoyce/ensemblectl/internal/workspace"
)

// TemplateSource resolves job-script templates by name.
type TemplateSource interface {
	Template(name string) (origin string, body []byte, err error)
}

// Ledger is the subset of the submission ledger the submitter writes.
type Ledger interface {
	Record(ctx context.Context, req ledger.RecordRequest) (string, error)
	MarkSubmitted(ctx context.Context, id, backendJobID string) error
	Complete(ctx context.Context, id string, status ledger.Status, lastError, output *string) error
}

// ScanPoint tags a submission issued by a parameter scan.
type ScanPoint struct {
	Parameter string
	Value     string
}

// Request is one descriptor bound for one machine.
type Request struct {
	Descriptor  *job.Descriptor
	Workspace   workspace.Workspace
	MachineName string
	Machine     config.MachineConfig
	DryRun      bool
	Scan        *ScanPoint
}

// Receipt describes what happened to a submission.
type Receipt struct {
	ID           string
	Backend      string
	ScriptPath   string
	Template     string
	Status       ledger.Status
	BackendJobID string
	Output       string
}

// Submitter is the submission collaborator for dispatch.
type Submitter struct {
	templates TemplateSource
	ledger    Ledger
	backends  map[string]Backend
	now       func() time.Time
	newID     func() string
}

// NewSubmitter creates a submitter. Nil backends selects DefaultBackends.
func NewSubmitter(templates TemplateSource, l Ledger, backends map[string]Backend) *Submitter {
	if backends == nil {
		backends = DefaultBackends()
	}
	return &Submitter{
		templates: templates,
		ledger:    l,
		backends:  backends,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Submit renders, records and submits one descriptor.
func (s *Submitter) Submit(ctx context.Context, req Request) (Receipt, error) {
	if req.Descriptor == nil {
		return Receipt{}, errors.New("descriptor is nil")
	}
	d := req.Descriptor

	backendName := req.Machine.Backend
	if req.DryRun {
		backendName = config.BackendDryRun
	}
	backend, ok := s.backends[backendName]
	if !ok {
		return Receipt{}, fmt.Errorf("machine %q: unknown backend %q", req.MachineName, backendName)
	}

	id := s.newID()
	logger := log.WithSubmission(id).With("plugin", d.Plugin(), "machine", req.MachineName)

	remoteDir, err := RemoteDir(req.Workspace, req.Machine)
	if err != nil {
		return Receipt{}, fmt.Errorf("machine %q: %w", req.MachineName, err)
	}
	inputDir, outputDir := req.Workspace.InputDir(), req.Workspace.OutputDir()
	if remoteDir != "" {
		inputDir, outputDir = path.Join(remoteDir, "input"), path.Join(remoteDir, "output")
	}

	origin, body, err := s.templates.Template(d.Script())
	if err != nil {
		return Receipt{}, err
	}
	script, err := RenderScript(d.Script(), body, ScriptData{
		ID:  id,
		Job: d,
		Machine: MachineData{
			Name:      req.MachineName,
			Partition: req.Machine.Partition,
			Account:   req.Machine.Account,
			Env:       req.Machine.Env,
		},
		InputDir:  inputDir,
		OutputDir: outputDir,
		Submitted: s.now().UTC(),
	})
	if err != nil {
		return Receipt{}, err
	}
	scriptPath := ScriptPath(req.Workspace, id)
	if err := writeScript(scriptPath, script); err != nil {
		return Receipt{}, err
	}

	rec := ledger.RecordRequest{
		ID:          id,
		Kind:        string(d.Kind()),
		Plugin:      d.Plugin(),
		Config:      d.Config(),
		Machine:     req.MachineName,
		Backend:     backend.Name(),
		Label:       d.Label(),
		Script:      d.Script(),
		Program:     d.Program(),
		WallTime:    d.WallTime(),
		Memory:      d.Memory(),
		Cores:       d.Cores(),
		ArraySize:   d.ArraySize(),
		Arguments:   d.Arguments(),
		WorkspaceID: req.Workspace.ID,
		ScriptPath:  scriptPath,
	}
	if req.Scan != nil {
		rec.ScanParameter = &req.Scan.Parameter
		rec.ScanValue = &req.Scan.Value
	}
	if _, err := s.ledger.Record(ctx, rec); err != nil {
		return Receipt{}, err
	}
	logger.Debug("job script rendered", "template", origin, "path", scriptPath)

	receipt := Receipt{
		ID:         id,
		Backend:    backend.Name(),
		ScriptPath: scriptPath,
		Template:   origin,
	}

	out, err := backend.Submit(ctx, Job{
		ID:          id,
		Descriptor:  d,
		Script:      script,
		ScriptPath:  scriptPath,
		Workspace:   req.Workspace,
		RemoteDir:   remoteDir,
		MachineName: req.MachineName,
		Machine:     req.Machine,
	})
	receipt.Output = out.Output
	if err != nil {
		msg := err.Error()
		receipt.Status = ledger.StatusFailed
		// Cancelled submissions are still recorded.
		if cerr := s.ledger.Complete(context.WithoutCancel(ctx), id, ledger.StatusFailed, &msg, &out.Output); cerr != nil {
			logger.Error("failed to record submission failure", "error", cerr)
		}
		logger.Error("submission failed", "error", err)
		return receipt, fmt.Errorf("submit %s: %w", id, err)
	}

	if out.Completed {
		receipt.Status = out.Status
		var lastError *string
		if out.Status == ledger.StatusFailed {
			msg := "job exited with non-zero status"
			lastError = &msg
		}
		if err := s.ledger.Complete(ctx, id, out.Status, lastError, &out.Output); err != nil {
			return receipt, err
		}
		logger.Info("submission completed", "status", out.Status)
		return receipt, nil
	}

	receipt.Status = ledger.StatusSubmitted
	receipt.BackendJobID = out.BackendJobID
	if err := s.ledger.MarkSubmitted(ctx, id, out.BackendJobID); err != nil {
		return receipt, err
	}
	logger.Info("submission accepted", "backend_job_id", out.BackendJobID)
	return receipt, nil
}
