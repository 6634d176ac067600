package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
	"github.com/mattjoyce/ensemblectl/internal/simargs"
)

const manifestFilename = "plugin.yaml"

// Registry holds discovered plugins indexed by name.
type Registry struct {
	plugins map[string]*Plugin
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]*Plugin),
	}
}

// Get retrieves a plugin by name.
func (r *Registry) Get(name string) (*Plugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

// All returns all registered plugins.
func (r *Registry) All() map[string]*Plugin {
	return r.plugins
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Add registers a plugin in the registry.
func (r *Registry) Add(plugin *Plugin) error {
	if _, exists := r.plugins[plugin.Name]; exists {
		return fmt.Errorf("plugin %q already registered", plugin.Name)
	}
	r.plugins[plugin.Name] = plugin
	return nil
}

// Lookup is Get with a typed not-found error.
func (r *Registry) Lookup(name string) (*Plugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, &apperrors.ErrNotFound{Type: "plugin", Value: name}
	}
	return p, nil
}

// Discover scans a single pluginsDir for plugins with plugin.yaml and validates them.
// Returns a registry of valid plugins. Invalid plugins are logged but not fatal.
func Discover(pluginsDir string, logger func(level, msg string, args ...any)) (*Registry, error) {
	return DiscoverMany([]string{pluginsDir}, logger)
}

// DiscoverMany scans the immediate subdirectories of each root for plugin.yaml.
// Roots are processed in input order; duplicate plugin names keep the first discovered plugin.
func DiscoverMany(pluginRoots []string, logger func(level, msg string, args ...any)) (*Registry, error) {
	if logger == nil {
		logger = func(level, msg string, args ...any) {}
	}

	absRoots := make([]string, 0, len(pluginRoots))
	seenRoots := make(map[string]struct{}, len(pluginRoots))
	for _, root := range pluginRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve plugin root %q: %w", root, err)
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("plugin root does not exist: %s", absRoot)
			}
			return nil, fmt.Errorf("failed to stat plugin root %s: %w", absRoot, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("plugin root is not a directory: %s", absRoot)
		}
		if _, ok := seenRoots[absRoot]; ok {
			continue
		}
		seenRoots[absRoot] = struct{}{}
		absRoots = append(absRoots, absRoot)
	}
	if len(absRoots) == 0 {
		return nil, fmt.Errorf("at least one plugin root is required")
	}

	registry := NewRegistry()
	for _, root := range absRoots {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plugin root %s: %w", root, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			pluginPath := filepath.Join(root, e.Name())
			if _, err := os.Stat(filepath.Join(pluginPath, manifestFilename)); err != nil {
				continue
			}

			plugin, err := loadPlugin(pluginPath, root)
			if err != nil {
				logger("warn", "failed to load plugin", "root", root, "path", pluginPath, "error", err.Error())
				continue
			}

			if err := registry.Add(plugin); err != nil {
				existing, _ := registry.Get(plugin.Name)
				logger(
					"warn",
					"duplicate plugin ignored (keeping first discovered)",
					"plugin", plugin.Name,
					"ignored_path", plugin.Path,
					"kept_path", existing.Path,
				)
				continue
			}

			logger("info", "loaded plugin", "plugin", plugin.Name, "path", plugin.Path, "version", plugin.Version, "args", len(plugin.Args))
		}
	}

	return registry, nil
}

// LoadManifest reads and validates a plugin.yaml without trust checks.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := validateManifest(&manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &manifest, nil
}

// loadPlugin reads and validates a single plugin.
func loadPlugin(pluginPath, pluginsDir string) (*Plugin, error) {
	manifest, err := LoadManifest(filepath.Join(pluginPath, manifestFilename))
	if err != nil {
		return nil, err
	}

	var args []simargs.Arg
	if manifest.SimulationArgs.Kind != 0 {
		args, err = simargs.DecodeArgs(&manifest.SimulationArgs)
		if err != nil {
			return nil, fmt.Errorf("invalid simulation_args: %w", err)
		}
	}
	// Duplicate names are caught here rather than at dispatch time.
	if _, err := simargs.NewStore(args); err != nil {
		return nil, fmt.Errorf("invalid simulation_args: %w", err)
	}

	if err := validateTrust(pluginPath, pluginsDir); err != nil {
		return nil, fmt.Errorf("trust validation failed: %w", err)
	}

	return &Plugin{
		Name:           manifest.Name,
		Path:           pluginPath,
		Version:        manifest.Version,
		Description:    manifest.Description,
		Program:        manifest.Program,
		Args:           args,
		Presets:        manifest.Presets,
		ConfigFilesDir: dirOrDefault(pluginPath, manifest.ConfigFiles, DefaultConfigFilesDir),
		TemplatesDir:   dirOrDefault(pluginPath, manifest.Templates, DefaultTemplatesDir),
		ScriptsDir:     dirOrDefault(pluginPath, manifest.Scripts, DefaultScriptsDir),
	}, nil
}

// validateTrust checks the resolved plugin directory stays under its root and
// is not world-writable.
func validateTrust(pluginPath, pluginsDir string) error {
	resolvedPluginPath, err := filepath.EvalSymlinks(pluginPath)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin path symlink: %w", err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(pluginsDir)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin root symlink %s: %w", pluginsDir, err)
	}
	if !strings.HasPrefix(resolvedPluginPath, resolvedRoot+string(os.PathSeparator)) {
		return fmt.Errorf("plugin %s is not under plugin root %s", resolvedPluginPath, resolvedRoot)
	}

	pluginInfo, err := os.Stat(resolvedPluginPath)
	if err != nil {
		return fmt.Errorf("plugin directory not found: %w", err)
	}
	if pluginInfo.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("plugin directory is world-writable: %s", resolvedPluginPath)
	}
	return nil
}
