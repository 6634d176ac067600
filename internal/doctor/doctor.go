// Package doctor checks an ensemblectl installation: configuration, machines
// and discovered plugins.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/ensemblectl/internal/config"
	"github.com/mattjoyce/ensemblectl/internal/job"
	"github.com/mattjoyce/ensemblectl/internal/plugin"
	"github.com/mattjoyce/ensemblectl/internal/storage"
)

var (
	wallTimeRe = regexp.MustCompile(`^(\d+-)?\d+(:\d{1,2}){0,2}$`)
	memoryRe   = regexp.MustCompile(`^\d+(\.\d+)?[KMGT]B?$`)
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against discovered plugins.
type Doctor struct {
	cfg      *config.Config
	registry *plugin.Registry
	paths    *plugin.PathRegistry
	lookPath func(string) (string, error)
	checkFS  func(string) error
}

// New creates a Doctor. paths resolves job-script templates.
func New(cfg *config.Config, registry *plugin.Registry, paths *plugin.PathRegistry) *Doctor {
	return &Doctor{cfg: cfg, registry: registry, paths: paths, lookPath: exec.LookPath, checkFS: storage.CheckLocalFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateMachines(r)
	d.validatePresets(r, "presets", d.cfg.Presets.Single, d.cfg.Presets.Ensemble)
	d.validatePlugins(r)
	d.validateBridge(r)
	d.validateAPIConfig(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.PluginsDir == "" {
		d.addError(r, "service", "plugins_dir", "plugins_dir is required")
	}
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	} else if err := d.checkFS(d.cfg.State.Path); err != nil {
		var netErr *storage.ErrNetworkFilesystem
		if errors.As(err, &netErr) {
			d.addError(r, "service", "state.path", err.Error())
		} else {
			d.addWarning(r, "service", "state.path", err.Error())
		}
	}
	if d.cfg.Workspace.Dir == "" {
		d.addError(r, "service", "workspace.dir", "workspace.dir is required")
	}
	if d.cfg.Workspace.Retention <= 0 {
		d.addWarning(r, "service", "workspace.retention", "no retention set; `workspace prune` needs --older-than")
	}
}

func (d *Doctor) validateMachines(r *Result) {
	if _, ok := d.cfg.Machines[d.cfg.DefaultMachine]; !ok {
		d.addError(r, "machines", "default_machine",
			fmt.Sprintf("default machine %q is not defined", d.cfg.DefaultMachine))
	}
	for _, name := range d.cfg.MachineNames() {
		m := d.cfg.Machines[name]
		field := "machines." + name

		if _, err := job.NewBuilder(m.ArrayDirective); err != nil {
			d.addError(r, "machines", field+".array_directive", err.Error())
		}

		switch m.Backend {
		case config.BackendLocal:
			shell := m.Shell
			if shell == "" {
				shell = "/bin/sh"
			}
			if _, err := d.lookPath(shell); err != nil {
				d.addError(r, "machines", field+".shell", fmt.Sprintf("shell %q not found", shell))
			}
		case config.BackendSlurm:
			fields := strings.Fields(m.SubmitCommand)
			if m.Remote != "" {
				for _, tool := range []string{"ssh", "scp"} {
					if _, err := d.lookPath(tool); err != nil {
						d.addError(r, "machines", field+".remote", tool+" not found on PATH")
					}
				}
				switch {
				case m.WorkspaceDir == "":
					d.addError(r, "machines", field+".workspace_dir",
						"remote machines need workspace_dir, the workspace root on "+m.Remote)
				case strings.ContainsAny(m.WorkspaceDir, " \t'\"\\"):
					d.addWarning(r, "machines", field+".workspace_dir",
						fmt.Sprintf("%q contains whitespace or quotes; scp may mangle it", m.WorkspaceDir))
				}
			} else if len(fields) > 0 {
				if _, err := d.lookPath(fields[0]); err != nil {
					d.addWarning(r, "machines", field+".submit_command",
						fmt.Sprintf("%q not found on PATH; submissions to %s will fail here", fields[0], name))
				}
			}
			if m.BindingToken == "" && m.ArrayDirective == "" {
				d.addWarning(r, "machines", field,
					"no binding_token or array_directive; using Slurm defaults")
			}
		}
	}
}

func (d *Doctor) validatePresets(r *Result, prefix string, single, ensemble job.Preset) {
	for _, p := range []struct {
		field  string
		preset job.Preset
	}{
		{prefix + ".single", single},
		{prefix + ".ensemble", ensemble},
	} {
		if p.preset.WallTime != "" && !wallTimeRe.MatchString(p.preset.WallTime) {
			d.addWarning(r, "presets", p.field+".wall_time",
				fmt.Sprintf("wall time %q does not look like [D-]H:MM:SS", p.preset.WallTime))
		}
		if p.preset.Memory != "" && !memoryRe.MatchString(strings.ToUpper(p.preset.Memory)) {
			d.addWarning(r, "presets", p.field+".memory",
				fmt.Sprintf("memory %q has no recognised unit suffix", p.preset.Memory))
		}
		if p.preset.Script != "" && d.paths != nil {
			if _, _, err := d.paths.Template(p.preset.Script); err != nil {
				d.addError(r, "presets", p.field+".script", err.Error())
			}
		}
	}
}

func (d *Doctor) validatePlugins(r *Result) {
	names := d.registry.Names()
	if len(names) == 0 {
		d.addWarning(r, "plugins", "plugins_dir",
			fmt.Sprintf("no plugins discovered in %s", d.cfg.PluginsDir))
	}
	if d.cfg.DefaultPlugin != "" {
		if _, ok := d.registry.Get(d.cfg.DefaultPlugin); !ok {
			d.addError(r, "plugins", "default_plugin",
				fmt.Sprintf("default plugin %q was not discovered", d.cfg.DefaultPlugin))
		}
	}

	for _, name := range names {
		p, _ := d.registry.Get(name)
		field := "plugins." + name
		if len(p.Args) == 0 {
			d.addWarning(r, "plugins", field+".simulation_args",
				"no simulation_args declared; every override will be ignored")
		}
		if p.Program == "" {
			d.addWarning(r, "plugins", field+".program",
				"no program declared; job scripts fall back to ./run.sh")
		}
		configs, err := p.Configs()
		if err != nil || len(configs) == 0 {
			d.addWarning(r, "plugins", field+".config_files",
				fmt.Sprintf("no run configurations under %s", p.ConfigFilesDir))
		}
		d.validatePresets(r, field+".presets", p.Presets.Single, p.Presets.Ensemble)
	}
}

func (d *Doctor) validateBridge(r *Result) {
	if d.cfg.Bridge.Executable == "" {
		d.addWarning(r, "bridge", "bridge.executable", "no bridge executable; `bridge` is unavailable")
		return
	}
	if _, err := d.lookPath(d.cfg.Bridge.Executable); err != nil {
		d.addWarning(r, "bridge", "bridge.executable",
			fmt.Sprintf("%q not found on PATH", d.cfg.Bridge.Executable))
	}
}

func (d *Doctor) validateAPIConfig(r *Result) {
	if d.cfg.API.Listen == "" {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address: %v", err))
		return
	}
	loopback := host == "localhost"
	if ip := net.ParseIP(host); ip != nil {
		loopback = ip.IsLoopback()
	}
	if !loopback && d.cfg.API.APIKey == "" {
		d.addWarning(r, "api", "api.api_key", "API listens beyond loopback without an api_key")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	return format(r, plainStyles())
}

// FormatStyled is FormatHuman with terminal colours where supported.
func FormatStyled(r *Result) string {
	return format(r, colourStyles())
}

// styles renders report fragments; the zero value leaves text unstyled.
type styles struct {
	ok, bad, err, warn *lipgloss.Style
}

func plainStyles() styles { return styles{} }

func colourStyles() styles {
	ok := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	bad := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	err := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warn := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	return styles{ok: &ok, bad: &bad, err: &err, warn: &warn}
}

func paint(st *lipgloss.Style, s string) string {
	if st == nil {
		return s
	}
	return st.Render(s)
}

func format(r *Result, st styles) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString(paint(st.ok, "Configuration valid.") + "\n")
		return b.String()
	case r.Valid:
		b.WriteString(paint(st.ok, fmt.Sprintf("Configuration valid (%d warning(s))", len(r.Warnings))) + "\n")
	default:
		b.WriteString(paint(st.bad, fmt.Sprintf("Configuration invalid (%d error(s), %d warning(s))", len(r.Errors), len(r.Warnings))) + "\n")
	}

	for _, e := range r.Errors {
		b.WriteString("  " + paint(st.err, "ERROR") + " " + issueLine(e) + "\n")
	}
	for _, w := range r.Warnings {
		b.WriteString("  " + paint(st.warn, "WARN") + "  " + issueLine(w) + "\n")
	}
	return b.String()
}

func issueLine(i Issue) string {
	if i.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", i.Category, i.Field, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
