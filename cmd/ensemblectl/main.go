package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
	"github.com/mattjoyce/ensemblectl/internal/ledger"
	"github.com/mattjoyce/ensemblectl/internal/lock"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general failure (submission, staging, I/O).
	ExitCodeError = 1
	// ExitCodeInvalidArgument indicates a rejected flag, override or config value.
	ExitCodeInvalidArgument = 2
	// ExitCodeNotFound indicates an unknown plugin, machine, config or submission.
	ExitCodeNotFound = 3
	// ExitCodeLocked indicates another dispatch holds the state directory lock.
	ExitCodeLocked = 4
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitCode(err)
	}
	return ExitCodeSuccess
}

// reportedError carries an exit code for a failure the command already
// printed.
type reportedError struct {
	code int
}

func (e *reportedError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// exitCode maps error types onto exit codes for scripting.
func exitCode(err error) int {
	var reported *reportedError
	if errors.As(err, &reported) {
		return reported.code
	}
	var locked *lock.ErrLocked
	if errors.As(err, &locked) {
		return ExitCodeLocked
	}
	var invalid *apperrors.ErrInvalidArgument
	if errors.As(err, &invalid) {
		return ExitCodeInvalidArgument
	}
	var notFound *apperrors.ErrNotFound
	if errors.As(err, &notFound) || errors.Is(err, ledger.ErrSubmissionNotFound) {
		return ExitCodeNotFound
	}
	return ExitCodeError
}
