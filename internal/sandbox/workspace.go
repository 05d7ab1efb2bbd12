package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Workspace is a per-call scratch directory. It is created by NewWorkspace
// and must be released with Cleanup on every exit path.
type Workspace struct {
	ID  string
	Dir string
}

// NewWorkspace creates a uniquely named directory under root. An empty root
// uses the system temp directory.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	id := uuid.NewString()
	dir := filepath.Join(root, "crucible-"+id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	return &Workspace{ID: id, Dir: abs}, nil
}

// Write stores content under name inside the workspace.
func (w *Workspace) Write(name, content string) error {
	if err := validateFileName(name); err != nil {
		return err
	}
	path := filepath.Join(w.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create parent for %s: %w", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Cleanup removes the workspace and everything in it. Safe to call twice.
func (w *Workspace) Cleanup() error {
	if w == nil || w.Dir == "" {
		return nil
	}
	return os.RemoveAll(w.Dir)
}

// validateFileName rejects names that would escape the workspace.
func validateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file name is empty")
	}
	if filepath.IsAbs(name) {
		return fmt.Errorf("file name %q must be relative", name)
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("file name %q escapes the workspace", name)
	}
	return nil
}
