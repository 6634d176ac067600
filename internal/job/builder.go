package job

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
)

// DefaultArrayDirective declares a Slurm task array over 1..Size.
const DefaultArrayDirective = "#SBATCH --array={{.First}}-{{.Last}}"

// Target identifies what a descriptor runs and where.
type Target struct {
	Plugin    string
	Config    string
	Program   string
	Machine   string
	Workspace string
}

// Builder assembles descriptors. The array directive is a text/template
// rendered with First and Last task indices.
type Builder struct {
	arrayDirective *template.Template
}

// NewBuilder parses directive (DefaultArrayDirective when empty).
func NewBuilder(directive string) (*Builder, error) {
	if strings.TrimSpace(directive) == "" {
		directive = DefaultArrayDirective
	}
	tmpl, err := template.New("array_directive").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(directive)
	if err != nil {
		return nil, fmt.Errorf("parse array directive: %w", err)
	}
	return &Builder{arrayDirective: tmpl}, nil
}

// Single builds a single-run descriptor.
func (b *Builder) Single(t Target, p Preset, arguments string) (*Descriptor, error) {
	if err := checkPreset(p); err != nil {
		return nil, err
	}
	return newDescriptor(KindSingle, t, p, arguments), nil
}

// Ensemble builds a task-array descriptor of p.Size tasks with its array
// prefix.
func (b *Builder) Ensemble(t Target, p Preset, arguments string) (*Descriptor, error) {
	if err := checkPreset(p); err != nil {
		return nil, err
	}
	if p.Size < 1 {
		return nil, &apperrors.ErrInvalidArgument{
			Name:    "size",
			Value:   p.Size,
			Message: "ensemble size must be at least 1",
		}
	}
	prefix, err := b.ArrayPrefix(p.Size)
	if err != nil {
		return nil, err
	}
	d := newDescriptor(KindEnsemble, t, p, arguments)
	d.arraySize = p.Size
	d.arrayPrefix = prefix
	return d, nil
}

// ArrayPrefix renders the directive for the inclusive range 1..size.
func (b *Builder) ArrayPrefix(size int) (string, error) {
	var buf bytes.Buffer
	data := struct{ First, Last int }{First: 1, Last: size}
	if err := b.arrayDirective.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render array directive: %w", err)
	}
	return buf.String(), nil
}

func newDescriptor(kind Kind, t Target, p Preset, arguments string) *Descriptor {
	return &Descriptor{
		kind:      kind,
		script:    p.Script,
		wallTime:  p.WallTime,
		memory:    p.Memory,
		cores:     p.Cores,
		label:     p.Label,
		arguments: arguments,
		plugin:    t.Plugin,
		config:    t.Config,
		program:   t.Program,
		machine:   t.Machine,
		workspace: t.Workspace,
	}
}

func checkPreset(p Preset) error {
	if strings.TrimSpace(p.Script) == "" {
		return &apperrors.ErrInvalidArgument{Name: KeyScript, Value: p.Script, Message: "script is required"}
	}
	if p.Cores < 1 {
		return &apperrors.ErrInvalidArgument{Name: KeyCores, Value: p.Cores, Message: "must be a positive integer"}
	}
	return nil
}
