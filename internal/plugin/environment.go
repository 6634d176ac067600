package plugin

import (
	"slices"

	"github.com/mattjoyce/ensemblectl/internal/job"
	"github.com/mattjoyce/ensemblectl/internal/simargs"
)

// Environment is everything a dispatch loads from a plugin before merging
// overrides.
type Environment struct {
	Plugin   *Plugin
	Defaults []simargs.Arg
	Program  string
	Single   job.Preset
	Ensemble job.Preset
}

// NewStore seeds a fresh argument store from the plugin defaults.
func (e *Environment) NewStore(opts ...simargs.StoreOption) (*simargs.Store, error) {
	return simargs.NewStore(e.Defaults, opts...)
}

// Resolver resolves plugin environments. Presets layer as built-in, then the
// plugin manifest, then the tool configuration.
type Resolver struct {
	registry *Registry
	single   job.Preset
	ensemble job.Preset
}

// NewResolver creates a resolver over registry. single and ensemble are the
// configuration-level preset overrides (zero fields are ignored).
func NewResolver(registry *Registry, single, ensemble job.Preset) *Resolver {
	return &Resolver{registry: registry, single: single, ensemble: ensemble}
}

// Environment loads the named plugin's defaults.
func (r *Resolver) Environment(name string) (*Environment, error) {
	p, err := r.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &Environment{
		Plugin:   p,
		Defaults: slices.Clone(p.Args),
		Program:  p.Program,
		Single:   job.DefaultSinglePreset().Merge(p.Presets.Single).Merge(r.single),
		Ensemble: job.DefaultEnsemblePreset().Merge(p.Presets.Ensemble).Merge(r.ensemble),
	}, nil
}
