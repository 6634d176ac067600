package doctor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ensemblectl/internal/config"
	"github.com/mattjoyce/ensemblectl/internal/job"
	"github.com/mattjoyce/ensemblectl/internal/plugin"
	"github.com/mattjoyce/ensemblectl/internal/simargs"
	"github.com/mattjoyce/ensemblectl/internal/storage"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.DefaultPlugin = "FabGPDR"
	return cfg
}

func gpdrPlugin(t *testing.T) *plugin.Plugin {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config_files", "brent"), 0o755))
	return &plugin.Plugin{
		Name:           "FabGPDR",
		Path:           root,
		Program:        "python3 compare_dimension_reductions.py",
		Args:           []simargs.Arg{{Name: "seed", Value: simargs.NewInt(1)}},
		ConfigFilesDir: filepath.Join(root, "config_files"),
	}
}

func registryWith(plugins ...*plugin.Plugin) *plugin.Registry {
	r := plugin.NewRegistry()
	for _, p := range plugins {
		_ = r.Add(p)
	}
	return r
}

func newDoctor(cfg *config.Config, reg *plugin.Registry) *Doctor {
	d := New(cfg, reg, plugin.NewPathRegistry())
	d.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	d.checkFS = func(string) error { return nil }
	return d
}

func hasIssue(issues []Issue, field string) bool {
	for _, i := range issues {
		if i.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	r := newDoctor(validConfig(), registryWith(gpdrPlugin(t))).Validate()
	assert.True(t, r.Valid, "errors: %v", r.Errors)
	assert.Empty(t, r.Warnings)
	assert.Equal(t, "Configuration valid.\n", FormatHuman(r))
}

func TestValidate_MachineProblems(t *testing.T) {
	cfg := validConfig()
	cfg.DefaultMachine = "archer2"
	slurm := config.DefaultSlurmMachine()
	slurm.ArrayDirective = "#SBATCH --array={{.First"
	cfg.Machines["cirrus"] = slurm

	d := newDoctor(cfg, registryWith(gpdrPlugin(t)))
	d.lookPath = func(name string) (string, error) {
		if name == "sbatch" {
			return "", errors.New("not found")
		}
		return name, nil
	}
	r := d.Validate()
	assert.False(t, r.Valid)
	assert.True(t, hasIssue(r.Errors, "default_machine"))
	assert.True(t, hasIssue(r.Errors, "machines.cirrus.array_directive"))
	assert.True(t, hasIssue(r.Warnings, "machines.cirrus.submit_command"))
}

func TestValidate_RemoteWorkspaceDir(t *testing.T) {
	cfg := validConfig()
	remote := config.DefaultSlurmMachine()
	remote.Remote = "user@login.archer2.ac.uk"
	cfg.Machines["archer2"] = remote

	r := newDoctor(cfg, registryWith(gpdrPlugin(t))).Validate()
	assert.False(t, r.Valid)
	assert.True(t, hasIssue(r.Errors, "machines.archer2.workspace_dir"))

	remote.WorkspaceDir = "/work/e123/my runs"
	cfg.Machines["archer2"] = remote
	r = newDoctor(cfg, registryWith(gpdrPlugin(t))).Validate()
	assert.True(t, r.Valid, "errors: %v", r.Errors)
	assert.True(t, hasIssue(r.Warnings, "machines.archer2.workspace_dir"))

	remote.WorkspaceDir = "/work/e123/runs"
	cfg.Machines["archer2"] = remote
	d := newDoctor(cfg, registryWith(gpdrPlugin(t)))
	d.lookPath = func(name string) (string, error) {
		if name == "scp" {
			return "", errors.New("not found")
		}
		return name, nil
	}
	r = d.Validate()
	assert.False(t, hasIssue(r.Warnings, "machines.archer2.workspace_dir"))
	assert.True(t, hasIssue(r.Errors, "machines.archer2.remote"))
}

func TestValidate_PresetWarnings(t *testing.T) {
	cfg := validConfig()
	cfg.Presets.Single = job.Preset{WallTime: "fifteen minutes", Memory: "4 gigs"}
	cfg.Presets.Ensemble = job.Preset{Script: "nightly_run"}

	r := newDoctor(cfg, registryWith(gpdrPlugin(t))).Validate()
	assert.True(t, hasIssue(r.Warnings, "presets.single.wall_time"))
	assert.True(t, hasIssue(r.Warnings, "presets.single.memory"))
	assert.True(t, hasIssue(r.Errors, "presets.ensemble.script"))
}

func TestValidate_PluginWarnings(t *testing.T) {
	bare := &plugin.Plugin{Name: "bare", Path: t.TempDir(), ConfigFilesDir: filepath.Join(t.TempDir(), "none")}
	cfg := validConfig()
	cfg.DefaultPlugin = "FabFlee"

	r := newDoctor(cfg, registryWith(gpdrPlugin(t), bare)).Validate()
	assert.True(t, hasIssue(r.Errors, "default_plugin"))
	assert.True(t, hasIssue(r.Warnings, "plugins.bare.simulation_args"))
	assert.True(t, hasIssue(r.Warnings, "plugins.bare.program"))
	assert.True(t, hasIssue(r.Warnings, "plugins.bare.config_files"))

	r = newDoctor(validConfig(), registryWith()).Validate()
	assert.True(t, hasIssue(r.Warnings, "plugins_dir"))
}

func TestValidate_APIAndBridge(t *testing.T) {
	cfg := validConfig()
	cfg.API.Listen = "0.0.0.0:8081"
	cfg.Bridge.Executable = ""

	r := newDoctor(cfg, registryWith(gpdrPlugin(t))).Validate()
	assert.True(t, r.Valid)
	assert.True(t, hasIssue(r.Warnings, "api.api_key"))
	assert.True(t, hasIssue(r.Warnings, "bridge.executable"))

	cfg.API.Listen = "nonsense"
	r = newDoctor(cfg, registryWith(gpdrPlugin(t))).Validate()
	assert.True(t, hasIssue(r.Errors, "api.listen"))
}

func TestValidate_LedgerFilesystem(t *testing.T) {
	d := newDoctor(validConfig(), registryWith(gpdrPlugin(t)))
	d.checkFS = func(path string) error {
		return &storage.ErrNetworkFilesystem{Path: path, FSType: "lustre"}
	}
	r := d.Validate()
	assert.False(t, r.Valid)
	assert.True(t, hasIssue(r.Errors, "state.path"))

	d.checkFS = func(string) error { return errors.New("statfs: permission denied") }
	r = d.Validate()
	assert.True(t, r.Valid)
	assert.True(t, hasIssue(r.Warnings, "state.path"))
}

func TestFormat(t *testing.T) {
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "machines", Field: "default_machine", Message: "missing"}},
		Warnings: []Issue{{Category: "bridge", Message: "no bridge"}},
	}
	out := FormatHuman(r)
	assert.True(t, strings.HasPrefix(out, "Configuration invalid (1 error(s), 1 warning(s))\n"))
	assert.Contains(t, out, "  ERROR [machines] default_machine: missing\n")
	assert.Contains(t, out, "  WARN  [bridge] no bridge\n")

	assert.Contains(t, FormatStyled(r), "default_machine: missing")

	js, err := FormatJSON(r)
	require.NoError(t, err)
	assert.Contains(t, js, `"valid": false`)
}
