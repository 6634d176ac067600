package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the file looked for inside a config directory.
const ConfigFileName = "config.yaml"

// EnvConfigDir overrides config discovery.
const EnvConfigDir = "ENSEMBLECTL_CONFIG_DIR"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file or a directory holding
// config.yaml. If the directory carries a .checksums lock, the file must match
// it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, ConfigFileName)
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but %s not found: %s", ConfigFileName, absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath
	cfg = applyConfigDefaults(cfg)
	resolveRelativePaths(cfg, filepath.Dir(absPath))

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configPath when given, otherwise the discovered config,
// otherwise Defaults().
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath != "" {
		return Load(configPath)
	}
	found, err := DiscoverConfigPath()
	if err != nil {
		return Defaults(), nil
	}
	return Load(found)
}

// DiscoverConfigPath finds the config by checking standard locations.
// Priority order: $ENSEMBLECTL_CONFIG_DIR, ~/.config/ensemblectl,
// /etc/ensemblectl, ./config.yaml
func DiscoverConfigPath() (string, error) {
	candidates := make([]string, 0, 4)
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		candidates = append(candidates, dir)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "ensemblectl"))
	}
	candidates = append(candidates, "/etc/ensemblectl", "./"+ConfigFileName)

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil {
			continue
		}
		if info.IsDir() {
			if _, err := os.Stat(filepath.Join(c, ConfigFileName)); err != nil {
				continue
			}
		}
		return c, nil
	}
	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/ensemblectl, /etc/ensemblectl, ./%s)", EnvConfigDir, ConfigFileName)
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if errors.Is(err, ErrNoChecksums) {
		return nil
	}
	if err != nil {
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: ensemblectl config lock --config %s", basename, dir, dir)
	}
	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: ensemblectl config lock --config %s", path, err, dir)
	}
	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.Workspace.Dir == "" {
		cfg.Workspace.Dir = defaults.Workspace.Dir
	}
	if cfg.Workspace.Retention == 0 {
		cfg.Workspace.Retention = defaults.Workspace.Retention
	}
	if cfg.PluginsDir == "" {
		cfg.PluginsDir = defaults.PluginsDir
	}
	if cfg.Bridge.Executable == "" {
		cfg.Bridge.Executable = defaults.Bridge.Executable
	}
	if cfg.Bridge.Timeout == 0 {
		cfg.Bridge.Timeout = defaults.Bridge.Timeout
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if len(cfg.Machines) == 0 {
		cfg.Machines = defaults.Machines
	}
	for name, m := range cfg.Machines {
		cfg.Machines[name] = mergeMachineDefaults(m)
	}
	if cfg.DefaultMachine == "" {
		if _, ok := cfg.Machines[defaults.DefaultMachine]; ok || len(cfg.Machines) != 1 {
			cfg.DefaultMachine = defaults.DefaultMachine
		} else {
			for name := range cfg.Machines {
				cfg.DefaultMachine = name
			}
		}
	}
	return cfg
}

// mergeMachineDefaults fills unset machine fields from the backend defaults.
func mergeMachineDefaults(m MachineConfig) MachineConfig {
	if m.Backend == "" {
		m.Backend = BackendLocal
	}
	var d MachineConfig
	switch m.Backend {
	case BackendLocal:
		d = DefaultLocalMachine()
	case BackendSlurm:
		d = DefaultSlurmMachine()
	default:
		return m
	}
	if m.SubmitCommand == "" {
		m.SubmitCommand = d.SubmitCommand
	}
	if m.Shell == "" {
		m.Shell = d.Shell
	}
	if m.ArrayDirective == "" {
		m.ArrayDirective = d.ArrayDirective
	}
	if m.BindingToken == "" {
		m.BindingToken = d.BindingToken
	}
	if m.Timeout == 0 {
		m.Timeout = d.Timeout
	}
	return m
}

// resolveRelativePaths anchors relative filesystem paths at the config
// directory so the CLI behaves the same from any working directory.
func resolveRelativePaths(cfg *Config, baseDir string) {
	for _, p := range []*string{&cfg.State.Path, &cfg.Workspace.Dir, &cfg.PluginsDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "text": true}
	validBackends   = map[string]bool{BackendLocal: true, BackendSlurm: true, BackendDryRun: true}
)

// Validate checks the configuration and reports every problem found.
func Validate(cfg *Config) error {
	var result *multierror.Error

	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		result = multierror.Append(result, fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel))
	}
	if !validLogFormats[cfg.Service.LogFormat] {
		result = multierror.Append(result, fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat))
	}
	if cfg.State.Path == "" {
		result = multierror.Append(result, fmt.Errorf("state.path is required"))
	}
	if cfg.Workspace.Dir == "" {
		result = multierror.Append(result, fmt.Errorf("workspace.dir is required"))
	}
	if cfg.PluginsDir == "" {
		result = multierror.Append(result, fmt.Errorf("plugins_dir is required"))
	}

	if cfg.DefaultMachine != "" {
		if _, ok := cfg.Machines[cfg.DefaultMachine]; !ok {
			result = multierror.Append(result, fmt.Errorf("default_machine %q is not defined under machines", cfg.DefaultMachine))
		}
	}
	for _, name := range cfg.MachineNames() {
		m := cfg.Machines[name]
		if !validBackends[m.Backend] {
			result = multierror.Append(result, fmt.Errorf("machines.%s.backend must be one of: local, slurm, dryrun (got %q)", name, m.Backend))
		}
		if m.Timeout < 0 {
			result = multierror.Append(result, fmt.Errorf("machines.%s.timeout must not be negative", name))
		}
		if m.Backend == BackendSlurm && m.SubmitCommand == "" {
			result = multierror.Append(result, fmt.Errorf("machines.%s.submit_command is required for slurm", name))
		}
		if err := unresolvedEnv(fmt.Sprintf("machines.%s.remote", name), m.Remote); err != nil {
			result = multierror.Append(result, err)
		}
		if err := unresolvedEnv(fmt.Sprintf("machines.%s.workspace_dir", name), m.WorkspaceDir); err != nil {
			result = multierror.Append(result, err)
		}
		for _, k := range slices.Sorted(maps.Keys(m.Env)) {
			if err := unresolvedEnv(fmt.Sprintf("machines.%s.env.%s", name, k), m.Env[k]); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}

	counts := []struct {
		field string
		n     int
	}{
		{"presets.single.cores", cfg.Presets.Single.Cores},
		{"presets.ensemble.cores", cfg.Presets.Ensemble.Cores},
		{"presets.ensemble.size", cfg.Presets.Ensemble.Size},
	}
	for _, c := range counts {
		if c.n < 0 {
			result = multierror.Append(result, fmt.Errorf("%s must not be negative", c.field))
		}
	}

	if cfg.Bridge.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("bridge.timeout must not be negative"))
	}
	if err := unresolvedEnv("api.api_key", cfg.API.APIKey); err != nil {
		result = multierror.Append(result, err)
	}

	if result != nil {
		result.ErrorFormat = listErrors
	}
	return result.ErrorOrNil()
}

func unresolvedEnv(field, value string) error {
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

func listErrors(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = "  - " + err.Error()
	}
	return fmt.Sprintf("%d problem(s):\n%s", len(errs), strings.Join(lines, "\n"))
}
