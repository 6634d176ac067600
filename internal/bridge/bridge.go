// Package bridge forwards a named command with keyword arguments to the outer
// automation tool, as `<executable> <machine> <command>:k1=v1,k2=v2`.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
	"github.com/mattjoyce/ensemblectl/internal/log"
	"github.com/mattjoyce/ensemblectl/internal/runner"
	"github.com/mattjoyce/ensemblectl/internal/simargs"
)

// Bridge runs delegated commands.
type Bridge struct {
	executable string
	timeout    time.Duration
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithOutput streams the delegated process output to stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(b *Bridge) {
		b.stdout = stdout
		b.stderr = stderr
	}
}

// New creates a Bridge for executable. A zero timeout means no limit.
func New(executable string, timeout time.Duration, opts ...Option) *Bridge {
	b := &Bridge{
		executable: executable,
		timeout:    timeout,
		logger:     log.WithComponent("bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Serialize renders kwargs as k1=v1,k2=v2 in order. Keys or values holding
// ',' or '=' cannot be represented and are rejected.
func Serialize(kwargs []simargs.KV) (string, error) {
	parts := make([]string, 0, len(kwargs))
	for _, kv := range kwargs {
		if kv.Key == "" {
			return "", &apperrors.ErrInvalidArgument{Name: "kwargs", Value: kv.Key, Message: "empty key"}
		}
		if strings.ContainsAny(kv.Key, ",=") {
			return "", &apperrors.ErrInvalidArgument{Name: kv.Key, Value: kv.Key, Message: "keys may not contain ',' or '='"}
		}
		v := kv.Value.Text()
		if strings.ContainsAny(v, ",=") {
			return "", &apperrors.ErrInvalidArgument{Name: kv.Key, Value: v, Message: "values may not contain ',' or '='"}
		}
		parts = append(parts, kv.Key+"="+v)
	}
	return strings.Join(parts, ","), nil
}

// Args returns the argument vector for the delegated invocation.
func Args(command, machine string, kwargs []simargs.KV) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, &apperrors.ErrInvalidArgument{Name: "command", Value: command, Message: "command is required"}
	}
	if strings.TrimSpace(machine) == "" {
		return nil, &apperrors.ErrInvalidArgument{Name: "machine", Value: machine, Message: "machine is required"}
	}
	blob, err := Serialize(kwargs)
	if err != nil {
		return nil, err
	}
	task := command
	if blob != "" {
		task = command + ":" + blob
	}
	return []string{machine, task}, nil
}

// Run delegates command to the outer tool. The delegated exit status is
// logged, not returned; errors cover bad input, spawn failures and timeouts.
func (b *Bridge) Run(ctx context.Context, command, machine string, kwargs []simargs.KV) error {
	args, err := Args(command, machine, kwargs)
	if err != nil {
		return err
	}
	logger := b.logger.With("command", command, "machine", machine)
	logger.Info("bridging command", "executable", b.executable, "args", args)

	res, err := runner.Run(ctx, runner.Spec{
		Path:    b.executable,
		Args:    args,
		Timeout: b.timeout,
		Stdout:  b.stdout,
		Stderr:  b.stderr,
	}, logger)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("bridge %s timed out after %s: %w", command, b.timeout, err)
		}
		return fmt.Errorf("bridge %s: %w", command, err)
	}
	if res.Success() {
		logger.Info("bridged command finished", "duration", res.Duration)
	} else {
		logger.Warn("bridged command exited with non-zero status", "exit_code", res.ExitCode, "duration", res.Duration)
	}
	return nil
}
