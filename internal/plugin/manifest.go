package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
	"github.com/mattjoyce/ensemblectl/internal/job"
	"github.com/mattjoyce/ensemblectl/internal/simargs"
)

// Default plugin-relative directories.
const (
	DefaultConfigFilesDir = "config_files"
	DefaultTemplatesDir   = "templates"
	DefaultScriptsDir     = "scripts"
)

// Presets lets a plugin adjust the built-in resource presets.
type Presets struct {
	Single   job.Preset `yaml:"single,omitempty"`
	Ensemble job.Preset `yaml:"ensemble,omitempty"`
}

// Manifest defines the structure of a plugin's plugin.yaml file.
type Manifest struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description,omitempty"`
	// Program is the in-job executable the job script runs.
	Program string `yaml:"program,omitempty"`
	// SimulationArgs is kept as a node so the declaration order survives.
	SimulationArgs yaml.Node `yaml:"simulation_args"`
	Presets        Presets   `yaml:"presets,omitempty"`
	ConfigFiles    string    `yaml:"config_files,omitempty"`
	Templates      string    `yaml:"templates,omitempty"`
	Scripts        string    `yaml:"scripts,omitempty"`
}

// Plugin represents a discovered and validated plugin.
type Plugin struct {
	Name        string // Plugin name from manifest
	Path        string // Absolute path to plugin directory
	Version     string
	Description string
	Program     string
	// Args are the recognised simulation parameters and their defaults, in
	// declaration order.
	Args    []simargs.Arg
	Presets Presets

	ConfigFilesDir string
	TemplatesDir   string
	ScriptsDir     string
}

// ArgNames returns the recognised parameter names in order.
func (p *Plugin) ArgNames() []string {
	names := make([]string, len(p.Args))
	for i, a := range p.Args {
		names[i] = a.Name
	}
	return names
}

// Configs lists the run configurations shipped under config_files, sorted.
func (p *Plugin) Configs() ([]string, error) {
	entries, err := os.ReadDir(p.ConfigFilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config_files for %s: %w", p.Name, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}

// ConfigDir returns the input directory for a named run configuration.
func (p *Plugin) ConfigDir(config string) (string, error) {
	if config == "" || strings.ContainsAny(config, `/\`) || config == "." || config == ".." {
		return "", &apperrors.ErrInvalidArgument{Name: "config", Value: config, Message: "must be a plain directory name"}
	}
	dir := filepath.Join(p.ConfigFilesDir, config)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", &apperrors.ErrNotFound{
			Type:    "config",
			Value:   config,
			Message: fmt.Sprintf("no such directory under %s", p.ConfigFilesDir),
		}
	}
	return dir, nil
}

// validateManifest checks required manifest fields.
func validateManifest(m *Manifest) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(m.Name, `/\ `) {
		return fmt.Errorf("name %q must not contain path separators or spaces", m.Name)
	}
	for field, dir := range map[string]string{"config_files": m.ConfigFiles, "templates": m.Templates, "scripts": m.Scripts} {
		if strings.Contains(dir, "..") || filepath.IsAbs(dir) {
			return fmt.Errorf("%s must be a relative path inside the plugin: %s", field, dir)
		}
	}
	if m.SimulationArgs.Kind != 0 && m.SimulationArgs.Kind != yaml.MappingNode {
		return fmt.Errorf("simulation_args must be a mapping")
	}
	return nil
}

func dirOrDefault(pluginPath, dir, def string) string {
	if dir == "" {
		dir = def
	}
	return filepath.Join(pluginPath, dir)
}
