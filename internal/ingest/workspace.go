// Package ingest persists and decodes uploaded images inside a per-run workspace.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// RunDirPrefix prefixes every workspace directory created under the base dir.
const RunDirPrefix = "run-"

// Workspace is a directory owned by exactly one pipeline run.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// NewWorkspace creates a uniquely named run directory under baseDir.
// An empty baseDir means os.TempDir()/lensmatch.
func NewWorkspace(baseDir string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = DefaultBaseDir()
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	dir := filepath.Join(baseDir, RunDirPrefix+uuid.New().String())
	if err := os.Mkdir(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// DefaultBaseDir is the work directory used when none is configured.
func DefaultBaseDir() string {
	return filepath.Join(os.TempDir(), "lensmatch")
}

// Dir returns the workspace path.
func (w *Workspace) Dir() string { return w.dir }

// Path joins name onto the workspace directory, rejecting names that escape it.
func (w *Workspace) Path(name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || strings.Contains(clean, "..") || strings.ContainsRune(clean, os.PathSeparator) {
		return "", fmt.Errorf("invalid workspace file name %q", name)
	}
	return filepath.Join(w.dir, clean), nil
}

// Release deletes the workspace and all of its contents. Safe to call more than once.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		if err := os.RemoveAll(w.dir); err != nil {
			w.err = fmt.Errorf("remove run dir: %w", err)
		}
	})
	return w.err
}

// IsRunDir reports whether name looks like a workspace directory created by NewWorkspace.
func IsRunDir(name string) bool {
	if !strings.HasPrefix(name, RunDirPrefix) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(name, RunDirPrefix))
	return err == nil
}
