package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
	"github.com/mattjoyce/ensemblectl/internal/ledger"
	"github.com/mattjoyce/ensemblectl/internal/lock"
	"github.com/mattjoyce/ensemblectl/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

const testManifest = `name: FabGPDR
version: 0.3.0
description: Dimension reduction comparison runs
program: python3 compare_dimension_reductions.py
simulation_args:
  measures: []
  starting_infections: 500
  quicktest: false
  seed: 1
presets:
  single:
    memory: 2G
`

// setupHome writes a config dir with one plugin and returns the config path.
func setupHome(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	pluginDir := filepath.Join(root, "plugins", "FabGPDR")
	brent := filepath.Join(pluginDir, "config_files", "brent")
	require.NoError(t, os.MkdirAll(brent, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "plugin.yaml"), []byte(testManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(brent, "settings.yml"), []byte("city: brent\n"), 0o644))

	cfg := `service:
  log_level: error
  log_format: json
state:
  path: ./data/ledger.db
workspace:
  dir: ./data/workspaces
plugins_dir: ./plugins
default_plugin: FabGPDR
default_machine: localhost
machines:
  localhost:
    backend: local
presets:
  ensemble:
    cores: 16
bridge:
  executable: /bin/true
`
	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunDryRunIsRecorded(t *testing.T) {
	cfg := setupHome(t)

	code, out, errOut := runCLI(t, "--config", cfg, "run", "brent", "--dry-run", "starting_infections=1000", "quicktest=true")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	assert.Contains(t, out, string(ledger.StatusDryRun))
	assert.Contains(t, out, "--starting_infections 1000")

	code, out, errOut = runCLI(t, "--config", cfg, "job", "list", "--json")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	var subs []ledger.Submission
	require.NoError(t, json.Unmarshal([]byte(out), &subs))
	require.Len(t, subs, 1)
	assert.Equal(t, "FabGPDR", subs[0].Plugin)
	assert.Equal(t, "brent", subs[0].Config)
	assert.Equal(t, ledger.StatusDryRun, subs[0].Status)

	code, out, errOut = runCLI(t, "--config", cfg, "job", "inspect", subs[0].ID[:8])
	require.Equal(t, ExitCodeSuccess, code, errOut)
	assert.Contains(t, out, subs[0].ID)
}

func TestEnsembleOverridesFileBeatsBinding(t *testing.T) {
	cfg := setupHome(t)
	overrides := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(overrides, []byte("seed: 5\n"), 0o644))

	code, out, errOut := runCLI(t, "--config", cfg, "ensemble", "brent", "--dry-run", "--size", "2",
		"--parameter", "seed", "--overrides", overrides, "quicktest=true")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	assert.Contains(t, out, "--quicktest true --seed 5")
	assert.NotContains(t, out, "ENSEMBLE_TASK_ID")
}

func TestPresetLayersReachDispatch(t *testing.T) {
	cfg := setupHome(t)

	code, out, errOut := runCLI(t, "--config", cfg, "plugin", "show")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	assert.Contains(t, out, "2G", "plugin preset survives the config layer")

	code, _, errOut = runCLI(t, "--config", cfg, "run", "brent", "--dry-run")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	code, _, errOut = runCLI(t, "--config", cfg, "ensemble", "brent", "--dry-run", "--size", "2")
	require.Equal(t, ExitCodeSuccess, code, errOut)

	code, out, errOut = runCLI(t, "--config", cfg, "job", "list", "--json")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	var subs []ledger.Submission
	require.NoError(t, json.Unmarshal([]byte(out), &subs))
	require.Len(t, subs, 2)

	reports := map[string]string{}
	for _, s := range subs {
		code, out, errOut = runCLI(t, "--config", cfg, "job", "inspect", s.ID)
		require.Equal(t, ExitCodeSuccess, code, errOut)
		reports[string(s.Kind)] = out
	}
	assert.Contains(t, reports["single"], "memory=2G cores=1")
	assert.Contains(t, reports["ensemble"], "memory=16G cores=16")
}

func TestScan(t *testing.T) {
	cfg := setupHome(t)

	t.Run("empty range submits nothing", func(t *testing.T) {
		code, out, errOut := runCLI(t, "--config", cfg, "scan", "brent", "--dry-run",
			"--parameter", "starting_infections", "--start", "500", "--end", "100", "--step", "100")
		assert.Equal(t, ExitCodeSuccess, code)
		assert.Empty(t, out)
		assert.Contains(t, errOut, "Scan range is empty")
	})

	t.Run("zero step is rejected", func(t *testing.T) {
		code, _, errOut := runCLI(t, "--config", cfg, "scan", "brent", "--dry-run",
			"--parameter", "starting_infections", "--start", "100", "--end", "500", "--step", "0")
		assert.Equal(t, ExitCodeInvalidArgument, code)
		assert.Contains(t, errOut, "step")
	})

	t.Run("each point is dispatched", func(t *testing.T) {
		code, out, errOut := runCLI(t, "--config", cfg, "scan", "brent", "--dry-run",
			"--parameter", "starting_infections", "--start", "100", "--end", "300", "--step", "100",
			"--ensemble-parameter", "seed", "--size", "2")
		require.Equal(t, ExitCodeSuccess, code, errOut)
		for _, v := range []string{"100", "200", "300"} {
			assert.Contains(t, out, "--starting_infections "+v)
		}
	})
}

func TestUnknownPluginIsNotFound(t *testing.T) {
	cfg := setupHome(t)

	code, _, errOut := runCLI(t, "--config", cfg, "--plugin", "FabNope", "run", "brent", "--dry-run")
	assert.Equal(t, ExitCodeNotFound, code)
	assert.Contains(t, errOut, "FabNope")
}

func TestUnknownSubmissionIsNotFound(t *testing.T) {
	cfg := setupHome(t)

	code, _, _ := runCLI(t, "--config", cfg, "job", "inspect", "deadbeef")
	assert.Equal(t, ExitCodeNotFound, code)
}

func TestPluginCommands(t *testing.T) {
	cfg := setupHome(t)

	code, out, errOut := runCLI(t, "--config", cfg, "plugin", "list")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	assert.Contains(t, out, "FabGPDR")
	assert.Contains(t, out, "brent")

	code, out, errOut = runCLI(t, "--config", cfg, "plugin", "show")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	assert.Contains(t, out, "FabGPDR 0.3.0")
	assert.Contains(t, out, "starting_infections")
	assert.Contains(t, out, "Run configurations: brent")
}

func TestConfigCommands(t *testing.T) {
	cfg := setupHome(t)

	code, out, _ := runCLI(t, "--config", cfg, "config", "check", "--format", "json")
	var result struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	if result.Valid {
		assert.Equal(t, ExitCodeSuccess, code)
	} else {
		assert.Equal(t, ExitCodeError, code)
	}

	code, out, errOut := runCLI(t, "--config", cfg, "config", "show", "default_plugin")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	assert.Contains(t, out, "FabGPDR")

	code, out, errOut = runCLI(t, "--config", cfg, "config", "lock")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	assert.Contains(t, out, "Wrote")
	assert.FileExists(t, filepath.Join(filepath.Dir(cfg), ".checksums"))

	// A locked config refuses to load once edited.
	f, err := os.OpenFile(cfg, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("# edited\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	code, _, errOut = runCLI(t, "--config", cfg, "plugin", "list")
	assert.Equal(t, ExitCodeError, code)
	assert.Contains(t, errOut, "config verification failed")

	code, _, errOut = runCLI(t, "--config", cfg, "config", "lock")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	code, _, errOut = runCLI(t, "--config", cfg, "plugin", "list")
	assert.Equal(t, ExitCodeSuccess, code, errOut)
}

func TestWorkspaceCommands(t *testing.T) {
	cfg := setupHome(t)

	code, out, _ := runCLI(t, "--config", cfg, "workspace", "list")
	require.Equal(t, ExitCodeSuccess, code)
	assert.Contains(t, out, "No workspaces")

	code, _, errOut := runCLI(t, "--config", cfg, "run", "brent", "--dry-run")
	require.Equal(t, ExitCodeSuccess, code, errOut)

	code, out, _ = runCLI(t, "--config", cfg, "workspace", "list")
	require.Equal(t, ExitCodeSuccess, code)
	assert.Contains(t, out, "brent")

	code, out, errOut = runCLI(t, "--config", cfg, "workspace", "prune", "--older-than", "1h")
	require.Equal(t, ExitCodeSuccess, code, errOut)
	assert.Contains(t, out, "Pruned 0 workspace(s)")
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version", "--json")
	require.Equal(t, ExitCodeSuccess, code)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version, info.Version)
	assert.NotEmpty(t, info.Commit)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generic", fmt.Errorf("boom"), ExitCodeError},
		{"invalid argument", fmt.Errorf("wrapped: %w", &apperrors.ErrInvalidArgument{Name: "step", Value: 0}), ExitCodeInvalidArgument},
		{"not found", &apperrors.ErrNotFound{Type: "plugin", Value: "x"}, ExitCodeNotFound},
		{"missing submission", fmt.Errorf("inspect: %w", ledger.ErrSubmissionNotFound), ExitCodeNotFound},
		{"locked", fmt.Errorf("dispatch: %w", &lock.ErrLocked{Path: "/tmp/x.lock"}), ExitCodeLocked},
		{"already reported", &reportedError{code: 7}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestConcurrentDispatchIsLocked(t *testing.T) {
	cfgPath := setupHome(t)
	held, err := lock.TryAcquire(lock.PathFor(filepath.Join(filepath.Dir(cfgPath), "data", "ledger.db")))
	require.NoError(t, err)
	defer held.Release()

	code, _, errOut := runCLI(t, "--config", cfgPath, "run", "brent", "--dry-run")
	assert.Equal(t, ExitCodeLocked, code)
	assert.Contains(t, errOut, "held")
}
