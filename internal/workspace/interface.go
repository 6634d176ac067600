package workspace

import (
	"context"
	"path/filepath"
	"time"
)

// Workspace is the run directory created for one dispatch.
//
// The ledger stores workspace IDs; absolute paths stay in the manager so the
// workspace root can move without rewriting submissions.
type Workspace struct {
	ID  string
	Dir string
}

// InputDir holds the staged configuration files.
func (w Workspace) InputDir() string { return filepath.Join(w.Dir, "input") }

// OutputDir receives job output.
func (w Workspace) OutputDir() string { return filepath.Join(w.Dir, "output") }

// StageRequest describes the inputs to stage for one dispatch.
type StageRequest struct {
	Label  string
	Config string
	// SourceDir is copied recursively into the workspace input directory.
	SourceDir string
}

// Info is a listing entry.
type Info struct {
	ID      string
	Dir     string
	ModTime time.Time
}

// CleanupReport summarizes a cleanup run.
type CleanupReport struct {
	DeletedDirs int
}

// Manager governs run workspace lifecycle.
type Manager interface {
	// StageInputs creates a fresh workspace and copies the request's source
	// directory into it, recording a checksum manifest of the copies.
	StageInputs(ctx context.Context, req StageRequest) (Workspace, error)

	// Open resolves an existing workspace by ID.
	Open(ctx context.Context, id string) (Workspace, error)

	// Verify rechecks staged inputs against the checksum manifest.
	Verify(ctx context.Context, id string) error

	// List returns all workspaces, newest first.
	List(ctx context.Context) ([]Info, error)

	// Cleanup removes stale workspaces older than olderThan.
	Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error)
}
