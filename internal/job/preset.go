// Package job turns rendered simulation arguments and resource requests into
// immutable job descriptors for the submission backends.
package job

import (
	"strconv"
	"strings"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
	"github.com/mattjoyce/ensemblectl/internal/simargs"
)

// Preset holds the resource request defaults for one dispatch path.
type Preset struct {
	Script   string `yaml:"script,omitempty" json:"script,omitempty"`
	WallTime string `yaml:"wall_time,omitempty" json:"wall_time,omitempty"`
	Memory   string `yaml:"memory,omitempty" json:"memory,omitempty"`
	Cores    int    `yaml:"cores,omitempty" json:"cores,omitempty"`
	Label    string `yaml:"label,omitempty" json:"label,omitempty"`
	// Size is the task-array size. Only the ensemble path reads it.
	Size int `yaml:"size,omitempty" json:"size,omitempty"`
}

// Override keys that adjust resources instead of (or as well as) simulation
// arguments.
const (
	KeyScript   = "script"
	KeyWallTime = "wall_time"
	KeyMemory   = "memory"
	KeyCores    = "cores"
	KeyLabel    = "label"
)

// IsResourceKey reports whether key adjusts the resource preset.
func IsResourceKey(key string) bool {
	switch key {
	case KeyScript, KeyWallTime, KeyMemory, KeyCores, KeyLabel:
		return true
	}
	return false
}

// DefaultSinglePreset is the short interactive single-run request.
func DefaultSinglePreset() Preset {
	return Preset{
		Script:   "single_run",
		WallTime: "0:15:0",
		Memory:   "4G",
		Cores:    1,
		Label:    "test",
	}
}

// DefaultEnsemblePreset is the production ensemble request.
func DefaultEnsemblePreset() Preset {
	return Preset{
		Script:   "ensemble_run",
		WallTime: "4:00:00",
		Memory:   "16G",
		Cores:    8,
		Label:    "ensemble",
		Size:     10,
	}
}

// Merge returns p with every non-zero field of o applied on top.
func (p Preset) Merge(o Preset) Preset {
	if o.Script != "" {
		p.Script = o.Script
	}
	if o.WallTime != "" {
		p.WallTime = o.WallTime
	}
	if o.Memory != "" {
		p.Memory = o.Memory
	}
	if o.Cores != 0 {
		p.Cores = o.Cores
	}
	if o.Label != "" {
		p.Label = o.Label
	}
	if o.Size != 0 {
		p.Size = o.Size
	}
	return p
}

// ApplyOverrides layers resource keys found in overrides onto p, last mapping
// wins. Wall time and memory are passed through uninterpreted.
func (p Preset) ApplyOverrides(overrides ...simargs.Overrides) (Preset, error) {
	if v, ok := simargs.LookupLast(KeyScript, overrides...); ok {
		p.Script = v.Text()
	}
	if v, ok := simargs.LookupLast(KeyWallTime, overrides...); ok {
		p.WallTime = v.Text()
	}
	if v, ok := simargs.LookupLast(KeyMemory, overrides...); ok {
		p.Memory = v.Text()
	}
	if v, ok := simargs.LookupLast(KeyLabel, overrides...); ok {
		p.Label = v.Text()
	}
	if v, ok := simargs.LookupLast(KeyCores, overrides...); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v.Text()))
		if err != nil || n < 1 {
			return p, &apperrors.ErrInvalidArgument{
				Name:    KeyCores,
				Value:   v.Text(),
				Message: "must be a positive integer",
			}
		}
		p.Cores = n
	}
	return p, nil
}
