// Package workspace provides caller-owned scratch directories for
// intermediate files such as converter output and compiled schemas.
package workspace

import (
	"fmt"
	"os"
	"sync"
)

// Workspace is a scratch directory removed by Release.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// New creates a workspace under root. An empty root uses the system temp
// directory.
func New(root string) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("workspace: create root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, "dltscope-*")
	if err != nil {
		return nil, fmt.Errorf("workspace: create: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Path returns the workspace directory.
func (w *Workspace) Path() string { return w.dir }

// Release removes the workspace and everything in it. It is safe to call
// more than once.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		if err := os.RemoveAll(w.dir); err != nil {
			w.err = fmt.Errorf("workspace: release %s: %w", w.dir, err)
		}
	})
	return w.err
}
