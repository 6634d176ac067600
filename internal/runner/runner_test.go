package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ensemblectl/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestRun_CapturesOutputAndExitCode(t *testing.T) {
	script := writeScript(t, `echo "task=$ENSEMBLE_TASK_ID arg=$1"; echo oops >&2; exit 3`)

	var live bytes.Buffer
	res, err := Run(context.Background(), Spec{
		Path:   script,
		Args:   []string{"brent"},
		Env:    []string{"ENSEMBLE_TASK_ID=7"},
		Stdout: &live,
	}, log.Get())
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Success())
	assert.Contains(t, res.Output, "task=7 arg=brent")
	assert.Contains(t, res.Output, "oops")
	assert.Equal(t, "task=7 arg=brent\n", live.String())
}

func TestRun_TimeoutEscalatesToKill(t *testing.T) {
	// ignores SIGTERM so the grace period expires
	script := writeScript(t, "trap '' TERM\nwhile :; do sleep 0.05; done\n")

	start := time.Now()
	_, err := Run(context.Background(), Spec{
		Path:        script,
		Timeout:     100 * time.Millisecond,
		GracePeriod: 100 * time.Millisecond,
	}, log.Get())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_Cancelled(t *testing.T) {
	script := writeScript(t, "exec sleep 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := Run(ctx, Spec{Path: script, GracePeriod: 100 * time.Millisecond}, log.Get())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_StartFailure(t *testing.T) {
	_, err := Run(context.Background(), Spec{Path: filepath.Join(t.TempDir(), "missing")}, nil)
	assert.ErrorContains(t, err, "start process")

	_, err = Run(context.Background(), Spec{}, nil)
	assert.Error(t, err)
}

func TestCappedBuffer(t *testing.T) {
	c := &cappedBuffer{limit: 4}
	n, err := c.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = c.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", c.String())
	assert.True(t, c.Truncated())
	assert.False(t, strings.Contains(c.String(), "e"))
}
