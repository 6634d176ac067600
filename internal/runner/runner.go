// Package runner executes external processes for the submission backends and
// the command bridge.
//
// Termination on timeout or cancellation follows SIGTERM, a grace period, then
// SIGKILL. Combined output is captured up to MaxOutputBytes; anything beyond
// that still reaches the optional tee writers.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const (
	// MaxOutputBytes caps the output kept in Result.Output.
	MaxOutputBytes = 64 * 1024

	// DefaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	DefaultGracePeriod = 5 * time.Second
)

// Spec describes one process invocation.
type Spec struct {
	Path string
	Args []string
	// Env entries are appended to the current environment.
	Env []string
	Dir string
	// Timeout of zero means no limit beyond ctx.
	Timeout     time.Duration
	GracePeriod time.Duration
	Stdin       io.Reader

	// Stdout and Stderr receive a live copy of the process output.
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of a process that ran to exit.
type Result struct {
	ExitCode  int
	Output    string
	Truncated bool
	Duration  time.Duration
}

// Success reports a zero exit status.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Run starts the process and waits for it. A non-zero exit is reported through
// Result.ExitCode, not as an error. Timeouts return context.DeadlineExceeded
// and cancellation returns ctx.Err(), both alongside the partial Result.
func Run(ctx context.Context, spec Spec, logger *slog.Logger) (Result, error) {
	if spec.Path == "" {
		return Result{}, fmt.Errorf("executable is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	grace := spec.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	// Not CommandContext: termination is managed here so SIGTERM comes first.
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = spec.Stdin
	// Orphaned grandchildren may hold the output pipes open after the kill.
	cmd.WaitDelay = grace
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	out := &cappedBuffer{limit: MaxOutputBytes}
	cmd.Stdout = teeTo(out, spec.Stdout)
	cmd.Stderr = teeTo(out, spec.Stderr)

	var timeoutC <-chan time.Time
	if spec.Timeout > 0 {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	logger.Debug("starting process", "path", spec.Path, "args", spec.Args, "timeout", spec.Timeout)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start process: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	result := func() Result {
		return Result{
			ExitCode:  exitCode(cmd),
			Output:    out.String(),
			Truncated: out.Truncated(),
			Duration:  time.Since(start),
		}
	}

	var cause error
	select {
	case err := <-waitErr:
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
			return result(), fmt.Errorf("wait for process: %w", err)
		}
		r := result()
		if !r.Success() {
			logger.Debug("process exited with non-zero status", "exit_code", r.ExitCode)
		}
		return r, nil
	case <-timeoutC:
		cause = context.DeadlineExceeded
		logger.Warn("process timed out, sending SIGTERM", "path", spec.Path, "timeout", spec.Timeout)
	case <-ctx.Done():
		cause = ctx.Err()
		logger.Warn("process cancelled, sending SIGTERM", "path", spec.Path)
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}

	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()

	select {
	case <-waitErr:
		logger.Info("process exited after SIGTERM")
	case <-graceTimer.C:
		logger.Warn("process did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
	return result(), cause
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

func teeTo(buf io.Writer, live io.Writer) io.Writer {
	if live == nil {
		return buf
	}
	return io.MultiWriter(buf, live)
}

// cappedBuffer keeps the first limit bytes and discards the rest while still
// reporting full writes, so the process never sees a short write.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.limit - c.buf.Len()
	if room <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *cappedBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
