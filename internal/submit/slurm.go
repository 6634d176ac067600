package submit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattjoyce/ensemblectl/internal/config"
	"github.com/mattjoyce/ensemblectl/internal/log"
	"github.com/mattjoyce/ensemblectl/internal/runner"
	"github.com/mattjoyce/ensemblectl/internal/workspace"
)

var (
	submittedRe = regexp.MustCompile(`Submitted batch job (\d+)`)
	parsableRe  = regexp.MustCompile(`^(\d+)(;\S+)?$`)
)

// SlurmBackend submits job scripts with sbatch, locally or through ssh.
type SlurmBackend struct {
	ssh string
	scp string
}

func NewSlurmBackend() *SlurmBackend { return &SlurmBackend{ssh: "ssh", scp: "scp"} }

func (b *SlurmBackend) Name() string { return config.BackendSlurm }

// RemoteDir is where ws lives on m's remote host, or "" when m has no remote.
func RemoteDir(ws workspace.Workspace, m config.MachineConfig) (string, error) {
	if m.Remote == "" {
		return "", nil
	}
	if m.WorkspaceDir == "" {
		return "", fmt.Errorf("remote %q has no workspace_dir", m.Remote)
	}
	return path.Join(m.WorkspaceDir, ws.ID), nil
}

// Submit runs the submit command. Remote machines get the workspace copied to
// RemoteDir and the script on stdin (`ssh <remote> sbatch`); the copy is
// skipped when RemoteDir is the local workspace path.
func (b *SlurmBackend) Submit(ctx context.Context, j Job) (Outcome, error) {
	logger := log.WithSubmission(j.ID).With("backend", b.Name(), "machine", j.MachineName)

	submit := strings.Fields(j.Machine.SubmitCommand)
	if len(submit) == 0 {
		submit = []string{"sbatch"}
	}

	if j.Machine.Remote != "" && filepath.Clean(j.RemoteDir) != filepath.Clean(j.Workspace.Dir) {
		if err := b.stage(ctx, j, logger); err != nil {
			return Outcome{}, fmt.Errorf("stage workspace on %s: %w", j.Machine.Remote, err)
		}
	}

	spec := runner.Spec{Timeout: j.Machine.Timeout}
	if j.Machine.Remote != "" {
		spec.Path = b.ssh
		spec.Args = append([]string{j.Machine.Remote}, submit...)
		spec.Stdin = bytes.NewReader(j.Script)
	} else {
		spec.Path = submit[0]
		spec.Args = append(append([]string{}, submit[1:]...), j.ScriptPath)
		spec.Dir = j.Workspace.Dir
	}

	res, err := runner.Run(ctx, spec, logger)
	if err != nil {
		return Outcome{Output: res.Output}, fmt.Errorf("%s: %w", strings.Join(submit, " "), err)
	}
	if !res.Success() {
		return Outcome{Output: res.Output}, fmt.Errorf("%s failed (exit %d): %s",
			strings.Join(submit, " "), res.ExitCode, strings.TrimSpace(res.Output))
	}

	jobID, err := ParseBatchJobID(res.Output)
	if err != nil {
		return Outcome{Output: res.Output}, err
	}
	logger.Info("job submitted", "batch_job_id", jobID)
	return Outcome{BackendJobID: jobID, Output: res.Output}, nil
}

// stage copies the run workspace to the parent of j.RemoteDir on the remote.
func (b *SlurmBackend) stage(ctx context.Context, j Job, logger *slog.Logger) error {
	parent := path.Dir(j.RemoteDir)
	steps := []runner.Spec{
		{Path: b.ssh, Args: []string{j.Machine.Remote, "mkdir", "-p", shellQuote(parent)}},
		{Path: b.scp, Args: []string{"-rpq", j.Workspace.Dir, j.Machine.Remote + ":" + parent + "/"}},
	}
	for _, spec := range steps {
		spec.Timeout = j.Machine.Timeout
		res, err := runner.Run(ctx, spec, logger)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(spec.Path), err)
		}
		if !res.Success() {
			return fmt.Errorf("%s failed (exit %d): %s",
				filepath.Base(spec.Path), res.ExitCode, strings.TrimSpace(res.Output))
		}
	}
	logger.Info("workspace staged", "remote_dir", j.RemoteDir)
	return nil
}

// shellQuote single-quotes s for the remote login shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ParseBatchJobID extracts the job id from sbatch output, accepting both the
// default "Submitted batch job N" and --parsable "N[;cluster]" forms.
func ParseBatchJobID(output string) (string, error) {
	if m := submittedRe.FindStringSubmatch(output); m != nil {
		return m[1], nil
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if m := parsableRe.FindStringSubmatch(last); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("unable to parse sbatch output: %q", output)
}
