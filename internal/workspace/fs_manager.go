package workspace

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ManifestFileName is the checksum manifest written at the workspace root.
const ManifestFileName = ".checksums"

// Manifest records BLAKE3 digests of the staged inputs, keyed by path
// relative to the input directory.
type Manifest struct {
	Version  int               `yaml:"version"`
	StagedAt string            `yaml:"staged_at"`
	Source   string            `yaml:"source"`
	Hashes   map[string]string `yaml:"hashes"`
}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// fsWorkspaceManager manages per-dispatch workspace directories on local disk.
type fsWorkspaceManager struct {
	baseDir string
	now     func() time.Time
	newID   func() string
}

var _ Manager = (*fsWorkspaceManager)(nil)

// NewFSManager creates a filesystem-backed workspace manager rooted at baseDir.
func NewFSManager(baseDir string) (*fsWorkspaceManager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace base directory is empty")
	}

	return &fsWorkspaceManager{
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
		newID:   func() string { return uuid.NewString()[:8] },
	}, nil
}

// BaseDir returns the workspace root.
func (m *fsWorkspaceManager) BaseDir() string { return m.baseDir }

// StageInputs creates <base>/<label>_<config>_<shortid> and copies the source
// directory into its input/ subdirectory.
func (m *fsWorkspaceManager) StageInputs(ctx context.Context, req StageRequest) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}

	srcInfo, err := os.Stat(req.SourceDir)
	if err != nil {
		return Workspace{}, fmt.Errorf("stat input source: %w", err)
	}
	if !srcInfo.IsDir() {
		return Workspace{}, fmt.Errorf("input source %q is not a directory", req.SourceDir)
	}

	id := workspaceID(req.Label, req.Config, m.newID())
	path, err := m.workspacePath(id)
	if err != nil {
		return Workspace{}, err
	}

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace base directory: %w", err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace %q: %w", id, err)
	}
	ws := Workspace{ID: id, Dir: path}

	if err := os.Mkdir(ws.OutputDir(), 0o755); err != nil {
		_ = os.RemoveAll(path)
		return Workspace{}, fmt.Errorf("create output directory: %w", err)
	}

	hashes, err := m.copyTree(ctx, req.SourceDir, ws.InputDir())
	if err != nil {
		_ = os.RemoveAll(path)
		return Workspace{}, fmt.Errorf("stage inputs for %q: %w", id, err)
	}

	manifest := Manifest{
		Version:  1,
		StagedAt: m.now().UTC().Format(time.RFC3339),
		Source:   req.SourceDir,
		Hashes:   hashes,
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		_ = os.RemoveAll(path)
		return Workspace{}, fmt.Errorf("marshal checksum manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, ManifestFileName), data, 0o644); err != nil {
		_ = os.RemoveAll(path)
		return Workspace{}, fmt.Errorf("write checksum manifest: %w", err)
	}

	return ws, nil
}

// Open returns metadata for an existing workspace directory.
func (m *fsWorkspaceManager) Open(ctx context.Context, id string) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}

	path, err := m.workspacePath(id)
	if err != nil {
		return Workspace{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return Workspace{}, fmt.Errorf("open workspace %q: %w", id, err)
	}
	if !info.IsDir() {
		return Workspace{}, fmt.Errorf("workspace path for %q is not a directory", id)
	}

	return Workspace{ID: id, Dir: path}, nil
}

// Verify recomputes the staged input digests and compares them with the
// manifest. Files added after staging are reported too.
func (m *fsWorkspaceManager) Verify(ctx context.Context, id string) error {
	ws, err := m.Open(ctx, id)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(ws.Dir, ManifestFileName))
	if err != nil {
		return fmt.Errorf("read checksum manifest: %w", err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse checksum manifest: %w", err)
	}

	seen := make(map[string]bool, len(manifest.Hashes))
	err = filepath.WalkDir(ws.InputDir(), func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(ws.InputDir(), path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		want, ok := manifest.Hashes[rel]
		if !ok {
			return fmt.Errorf("input %s is not in the checksum manifest", rel)
		}
		got, err := hashFile(path)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("input %s changed since staging", rel)
		}
		seen[rel] = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("verify workspace %q: %w", id, err)
	}
	for rel := range manifest.Hashes {
		if !seen[rel] {
			return fmt.Errorf("verify workspace %q: input %s is missing", id, rel)
		}
	}
	return nil
}

// List returns all workspaces, newest first.
func (m *fsWorkspaceManager) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace base directory: %w", err)
	}

	out := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		out = append(out, Info{
			ID:      entry.Name(),
			Dir:     filepath.Join(m.baseDir, entry.Name()),
			ModTime: info.ModTime(),
		})
	}
	slices.SortFunc(out, func(a, b Info) int { return b.ModTime.Compare(a.ModTime) })
	return out, nil
}

// Cleanup removes workspace directories older than olderThan based on directory
// modification time.
func (m *fsWorkspaceManager) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}
	if olderThan <= 0 {
		return CleanupReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return CleanupReport{}, nil
	}
	if err != nil {
		return CleanupReport{}, fmt.Errorf("read workspace base directory: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	report := CleanupReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return report, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(m.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

func (m *fsWorkspaceManager) workspacePath(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	return filepath.Join(m.baseDir, id), nil
}

// copyTree copies srcDir into dstDir and returns the BLAKE3 digest of every
// regular file copied. Symlinks are recreated, not followed.
func (m *fsWorkspaceManager) copyTree(ctx context.Context, srcDir, dstDir string) (map[string]string, error) {
	srcInfo, err := os.Stat(srcDir)
	if err != nil {
		return nil, fmt.Errorf("stat source directory: %w", err)
	}
	if err := os.Mkdir(dstDir, srcInfo.Mode().Perm()|0o700); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}

	hashes := make(map[string]string)
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == srcDir {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("resolve relative path: %w", err)
		}
		dstPath := filepath.Join(dstDir, relPath)

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("read entry info for %q: %w", path, err)
		}

		switch {
		case d.IsDir():
			if err := os.Mkdir(dstPath, info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("create directory %q: %w", dstPath, err)
			}
		case info.Mode().IsRegular():
			sum, err := copyFile(path, dstPath, info.Mode().Perm())
			if err != nil {
				return err
			}
			hashes[filepath.ToSlash(relPath)] = sum
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("read symlink %q: %w", path, err)
			}
			if err := os.Symlink(target, dstPath); err != nil {
				return fmt.Errorf("create symlink %q: %w", dstPath, err)
			}
		default:
			return fmt.Errorf("unsupported file type for %q (%s)", path, info.Mode().Type())
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// copyFile copies src to dst and returns the hex BLAKE3 digest of the bytes
// written.
func copyFile(src, dst string, perm fs.FileMode) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", dst, err)
	}

	h := blake3.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		return "", fmt.Errorf("copy %q: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %q: %w", dst, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %q: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func workspaceID(label, config, short string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{label, config} {
		p = strings.Trim(unsafeIDChars.ReplaceAllString(p, "-"), "-.")
		if p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, short)
	return strings.Join(parts, "_")
}

func validateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("workspace id is empty")
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("workspace id %q is invalid", id)
	}
	if strings.Contains(trimmed, "/") || strings.Contains(trimmed, `\`) {
		return fmt.Errorf("workspace id %q must not contain path separators", id)
	}
	if filepath.Clean(trimmed) != trimmed {
		return fmt.Errorf("workspace id %q is invalid", id)
	}
	return nil
}
