package plugin

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
)

//go:embed templates/*.tmpl
var builtinTemplates embed.FS

// TemplateExt is appended to script names when looking up templates.
const TemplateExt = ".tmpl"

// PathRegistry makes plugin-local templates and scripts discoverable. Plugins
// are registered once at startup; lookups search registered plugins in
// registration order, then the built-in templates.
type PathRegistry struct {
	mu        sync.RWMutex
	plugins   []string
	templates []string
	scripts   []string
}

// NewPathRegistry creates an empty registry.
func NewPathRegistry() *PathRegistry {
	return &PathRegistry{}
}

// Register adds p's template and script directories. Registering the same
// plugin twice is a no-op.
func (r *PathRegistry) Register(p *Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.plugins, p.Name) {
		return
	}
	r.plugins = append(r.plugins, p.Name)
	r.templates = append(r.templates, p.TemplatesDir)
	r.scripts = append(r.scripts, p.ScriptsDir)
}

// RegisterAll registers every plugin in reg, in name order.
func (r *PathRegistry) RegisterAll(reg *Registry) {
	for _, name := range reg.Names() {
		p, _ := reg.Get(name)
		r.Register(p)
	}
}

// TemplateDirs returns the registered template directories in search order.
func (r *PathRegistry) TemplateDirs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.templates)
}

// ScriptDirs returns the registered script directories in search order.
func (r *PathRegistry) ScriptDirs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.scripts)
}

// Template returns the job-script template called name. The returned origin is
// the file path, or "builtin:<name>" for embedded templates.
func (r *PathRegistry) Template(name string) (origin string, body []byte, err error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", nil, &apperrors.ErrInvalidArgument{Name: "script", Value: name, Message: "must be a plain template name"}
	}
	file := name
	if !strings.HasSuffix(file, TemplateExt) {
		file += TemplateExt
	}

	for _, dir := range r.TemplateDirs() {
		path := filepath.Join(dir, file)
		data, err := os.ReadFile(path)
		if err == nil {
			return path, data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("read template %s: %w", path, err)
		}
	}

	data, err := builtinTemplates.ReadFile("templates/" + file)
	if err == nil {
		return "builtin:" + file, data, nil
	}
	return "", nil, &apperrors.ErrNotFound{Type: "template", Value: name}
}

// BuiltinTemplates lists the embedded template names without extension.
func BuiltinTemplates() []string {
	entries, _ := builtinTemplates.ReadDir("templates")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), TemplateExt))
	}
	return out
}
