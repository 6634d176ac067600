package config

import (
	"time"

	"github.com/mattjoyce/ensemblectl/internal/job"
)

// Config represents the complete ensemblectl configuration.
type Config struct {
	Service        ServiceConfig            `yaml:"service"`
	State          StateConfig              `yaml:"state"`
	Workspace      WorkspaceConfig          `yaml:"workspace"`
	PluginsDir     string                   `yaml:"plugins_dir"`
	DefaultPlugin  string                   `yaml:"default_plugin,omitempty"`
	DefaultMachine string                   `yaml:"default_machine"`
	Machines       map[string]MachineConfig `yaml:"machines"`
	Presets        PresetsConfig            `yaml:"presets,omitempty"`
	Bridge         BridgeConfig             `yaml:"bridge"`
	API            APIConfig                `yaml:"api,omitempty"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines where the submission ledger lives.
type StateConfig struct {
	Path string `yaml:"path"`
}

// WorkspaceConfig defines the run workspace root.
type WorkspaceConfig struct {
	Dir string `yaml:"dir"`
	// Retention is the default age for `workspace prune`.
	Retention time.Duration `yaml:"retention"`
}

// Machine backends.
const (
	BackendLocal  = "local"
	BackendSlurm  = "slurm"
	BackendDryRun = "dryrun"
)

// MachineConfig describes one place jobs can be submitted to.
type MachineConfig struct {
	Backend string `yaml:"backend"`
	// Remote is an ssh destination; when set, slurm submission runs through ssh.
	Remote string `yaml:"remote,omitempty"`
	// WorkspaceDir is the workspace root on Remote. Run workspaces are copied
	// under it before submission unless it names the local workspace root.
	WorkspaceDir  string `yaml:"workspace_dir,omitempty"`
	SubmitCommand string `yaml:"submit_command,omitempty"`
	Shell         string `yaml:"shell,omitempty"`
	Partition     string `yaml:"partition,omitempty"`
	Account       string `yaml:"account,omitempty"`
	// ArrayDirective is the task-array header template ({{.First}}, {{.Last}}).
	ArrayDirective string `yaml:"array_directive,omitempty"`
	// BindingToken is the placeholder the scheduler replaces with the task index.
	BindingToken string            `yaml:"binding_token,omitempty"`
	Timeout      time.Duration     `yaml:"timeout,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
}

// PresetsConfig overrides the built-in resource presets field by field.
type PresetsConfig struct {
	Single   job.Preset `yaml:"single,omitempty"`
	Ensemble job.Preset `yaml:"ensemble,omitempty"`
}

// BridgeConfig defines the outer automation tool the bridge delegates to.
type BridgeConfig struct {
	Executable string        `yaml:"executable"`
	Timeout    time.Duration `yaml:"timeout"`
}

// APIConfig defines the read-only HTTP API.
type APIConfig struct {
	Listen string `yaml:"listen"`
	APIKey string `yaml:"api_key,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "ensemblectl",
			LogLevel:  "info",
			LogFormat: "text",
		},
		State: StateConfig{
			Path: "./data/ledger.db",
		},
		Workspace: WorkspaceConfig{
			Dir:       "./data/workspaces",
			Retention: 14 * 24 * time.Hour,
		},
		PluginsDir:     "./plugins",
		DefaultMachine: "localhost",
		Machines: map[string]MachineConfig{
			"localhost": DefaultLocalMachine(),
		},
		Bridge: BridgeConfig{
			Executable: "fabsim",
			Timeout:    30 * time.Minute,
		},
		API: APIConfig{
			Listen: "127.0.0.1:8081",
		},
	}
}

// DefaultLocalMachine runs jobs on this host.
func DefaultLocalMachine() MachineConfig {
	return MachineConfig{
		Backend:      BackendLocal,
		Shell:        "/bin/sh",
		BindingToken: "$ENSEMBLE_TASK_ID",
		Timeout:      time.Hour,
	}
}

// DefaultSlurmMachine returns the defaults applied to slurm machines.
func DefaultSlurmMachine() MachineConfig {
	return MachineConfig{
		Backend:        BackendSlurm,
		SubmitCommand:  "sbatch",
		ArrayDirective: job.DefaultArrayDirective,
		Timeout:        2 * time.Minute,
	}
}
