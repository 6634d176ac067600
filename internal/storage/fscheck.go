package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Filesystems on which SQLite's POSIX locks cannot be trusted. HPC login
// nodes commonly mount home and project space over these.
var networkFilesystems = []string{
	"afpfs",
	"beegfs",
	"cifs",
	"fuse.sshfs",
	"lustre",
	"nfs",
	"nfs4",
	"smb2",
	"smbfs",
	"webdav",
}

// ErrNetworkFilesystem reports a ledger path on a network filesystem.
type ErrNetworkFilesystem struct {
	Path   string
	FSType string
}

func (e *ErrNetworkFilesystem) Error() string {
	return fmt.Sprintf("ledger path %q is on network filesystem %q; SQLite requires a local filesystem for reliable locking. Point state.path at local disk (for example /tmp or node-local scratch)",
		e.Path, e.FSType)
}

// CheckLocalFilesystem returns *ErrNetworkFilesystem when path, or its
// nearest existing parent, is on a network filesystem.
func CheckLocalFilesystem(path string) error {
	return checkLocalFilesystem(path, filesystemType)
}

func checkLocalFilesystem(path string, detect func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}
	existing, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve ledger path %q: %w", path, err)
	}
	fsType, err := detect(existing)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	if isNetworkFilesystem(fsType) {
		return &ErrNetworkFilesystem{Path: path, FSType: fsType}
	}
	return nil
}

// existingAncestor walks up from path to the first entry that exists, so a
// ledger can be checked before its directory is created.
func existingAncestor(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(dir)
		switch {
		case err == nil:
			return dir, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		dir = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	return slices.Contains(networkFilesystems, strings.ToLower(strings.TrimSpace(fsType)))
}
