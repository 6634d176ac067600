package job

import "fmt"

// Kind distinguishes single runs from task-array ensembles.
type Kind string

const (
	KindSingle   Kind = "single"
	KindEnsemble Kind = "ensemble"
)

// Descriptor is everything a backend needs to submit one dispatch. It is
// built once and never modified.
type Descriptor struct {
	kind        Kind
	script      string
	wallTime    string
	memory      string
	cores       int
	label       string
	arguments   string
	plugin      string
	config      string
	program     string
	machine     string
	workspace   string
	arraySize   int
	arrayPrefix string
}

func (d *Descriptor) Kind() Kind        { return d.kind }
func (d *Descriptor) Script() string    { return d.script }
func (d *Descriptor) WallTime() string  { return d.wallTime }
func (d *Descriptor) Memory() string    { return d.memory }
func (d *Descriptor) Cores() int        { return d.cores }
func (d *Descriptor) Label() string     { return d.label }
func (d *Descriptor) Arguments() string { return d.arguments }
func (d *Descriptor) Plugin() string    { return d.plugin }
func (d *Descriptor) Config() string    { return d.config }
func (d *Descriptor) Program() string   { return d.program }
func (d *Descriptor) Machine() string   { return d.machine }
func (d *Descriptor) Workspace() string { return d.workspace }

// ArraySize is the number of ensemble tasks, 0 for single runs.
func (d *Descriptor) ArraySize() int { return d.arraySize }

// ArrayPrefix is the scheduler directive declaring the task array, empty for
// single runs. It is not part of Arguments.
func (d *Descriptor) ArrayPrefix() string { return d.arrayPrefix }

// IsArray reports whether the descriptor declares a task array.
func (d *Descriptor) IsArray() bool { return d.arraySize > 0 }

func (d *Descriptor) String() string {
	if d.IsArray() {
		return fmt.Sprintf("%s %s/%s label=%s tasks=%d", d.kind, d.plugin, d.config, d.label, d.arraySize)
	}
	return fmt.Sprintf("%s %s/%s label=%s", d.kind, d.plugin, d.config, d.label)
}
