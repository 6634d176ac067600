package workspace

import (
	"context"

	"github.com/mattjoyce/ensemblectl/internal/plugin"
)

// Stager stages a plugin's named run configuration into a fresh workspace.
type Stager struct {
	manager Manager
}

// NewStager wraps m.
func NewStager(m Manager) *Stager {
	return &Stager{manager: m}
}

// StageInputs copies <plugin>/config_files/<config> into a new workspace.
func (s *Stager) StageInputs(ctx context.Context, p *plugin.Plugin, config, label string) (Workspace, error) {
	src, err := p.ConfigDir(config)
	if err != nil {
		return Workspace{}, err
	}
	return s.manager.StageInputs(ctx, StageRequest{
		Label:     label,
		Config:    config,
		SourceDir: src,
	})
}
