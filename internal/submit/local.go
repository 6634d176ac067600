package submit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattjoyce/ensemblectl/internal/config"
	"github.com/mattjoyce/ensemblectl/internal/ledger"
	"github.com/mattjoyce/ensemblectl/internal/log"
	"github.com/mattjoyce/ensemblectl/internal/runner"
)

// TaskIDEnv carries the task index to locally executed array tasks.
const TaskIDEnv = "ENSEMBLE_TASK_ID"

// SubmissionIDEnv carries the submission id to locally executed jobs.
const SubmissionIDEnv = "ENSEMBLE_SUBMISSION_ID"

// LocalBackend runs jobs on this host, one task at a time.
type LocalBackend struct{}

func NewLocalBackend() *LocalBackend { return &LocalBackend{} }

func (b *LocalBackend) Name() string { return config.BackendLocal }

// Submit runs every task to completion. A task that exits non-zero fails the
// submission but the remaining tasks still run.
func (b *LocalBackend) Submit(ctx context.Context, j Job) (Outcome, error) {
	logger := log.WithSubmission(j.ID).With("backend", b.Name())

	shell := j.Machine.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	tasks := 1
	if j.Descriptor.IsArray() {
		tasks = j.Descriptor.ArraySize()
	}
	if err := os.MkdirAll(j.Workspace.OutputDir(), 0o755); err != nil {
		return Outcome{}, fmt.Errorf("create output directory: %w", err)
	}

	var (
		combined strings.Builder
		failed   int
	)
	for i := 1; i <= tasks; i++ {
		env := machineEnv(j.Machine.Env)
		env = append(env, SubmissionIDEnv+"="+j.ID)
		if j.Descriptor.IsArray() {
			env = append(env, TaskIDEnv+"="+strconv.Itoa(i))
		}

		res, err := runner.Run(ctx, runner.Spec{
			Path:    shell,
			Args:    []string{j.ScriptPath},
			Env:     env,
			Dir:     j.Workspace.Dir,
			Timeout: j.Machine.Timeout,
		}, logger)
		fmt.Fprintf(&combined, "== task %d (exit %d) ==\n%s", i, res.ExitCode, res.Output)
		if werr := os.WriteFile(taskLogPath(j, i), []byte(res.Output), 0o644); werr != nil {
			logger.Warn("failed to write task log", "task", i, "error", werr)
		}
		if err != nil {
			return Outcome{Output: combined.String()}, fmt.Errorf("task %d: %w", i, err)
		}
		if !res.Success() {
			failed++
			logger.Warn("task exited with non-zero status", "task", i, "exit_code", res.ExitCode)
			continue
		}
		logger.Debug("task completed", "task", i, "duration", res.Duration)
	}

	status := ledger.StatusSucceeded
	if failed > 0 {
		status = ledger.StatusFailed
		logger.Warn("local job finished with failures", "failed", failed, "tasks", tasks)
	} else {
		logger.Info("local job finished", "tasks", tasks)
	}
	return Outcome{
		Completed: true,
		Status:    status,
		Output:    combined.String(),
	}, nil
}

func taskLogPath(j Job, task int) string {
	name := "single.log"
	if j.Descriptor.IsArray() {
		name = fmt.Sprintf("task-%d.log", task)
	}
	return filepath.Join(j.Workspace.OutputDir(), name)
}

func machineEnv(m map[string]string) []string {
	out := make([]string, 0, len(m)+2)
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}
