package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWorkspaceLifecycle(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")
	ws, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !strings.HasPrefix(ws.Path(), root) {
		t.Fatalf("Path %q not under %q", ws.Path(), root)
	}

	f := filepath.Join(ws.Path(), "sub", "out.csv")
	if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(ws.Path()); !os.IsNotExist(err) {
		t.Errorf("workspace still exists after Release: %v", err)
	}
	if err := ws.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestWorkspacesAreDistinct(t *testing.T) {
	root := t.TempDir()
	a, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	b, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()
	if a.Path() == b.Path() {
		t.Fatal("workspaces share a directory")
	}
}
