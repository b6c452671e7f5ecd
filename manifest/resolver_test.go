package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolvePathDependencies(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")

	// base-node is a noderpc project depending on arrays; arrays is a plain
	// header library with a src/ directory.
	writeFile(t, filepath.Join(root, "base-node", "noderpc.toml"), `
[dependencies]
arrays = { path = "../arrays" }
`)
	writeFile(t, filepath.Join(root, "base-node", "library", "BaseNode.h"), "class BaseNode {};\n")
	writeFile(t, filepath.Join(root, "arrays", "src", "Array.h"), "struct UInt8Array;\n")
	writeFile(t, filepath.Join(app, "noderpc.toml"), `
[rpc]
classes = ["Node"]

[dependencies]
base-node = { path = "../base-node", include = ["library"] }
`)

	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	deps, err := NewResolver(m).Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(deps) != 2 {
		t.Fatalf("expected 2 deps, got %d", len(deps))
	}
	if deps[0].Name != "arrays" || deps[1].Name != "base-node" {
		t.Errorf("order = %s, %s; want arrays before base-node", deps[0].Name, deps[1].Name)
	}

	dirs := IncludeDirs(deps)
	want := []string{filepath.Join(root, "arrays", "src"), filepath.Join(root, "base-node", "library")}
	if len(dirs) != 2 || dirs[0] != want[0] || dirs[1] != want[1] {
		t.Errorf("IncludeDirs = %v, want %v", dirs, want)
	}

	lf, err := ReadLock(m.LockFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if d := lf.FindLockedDep("base-node"); d == nil || d.Path != "../base-node" {
		t.Errorf("locked base-node = %+v", d)
	}
	if d := lf.FindLockedDep("arrays"); d == nil || d.Path != filepath.Join(root, "arrays") {
		t.Errorf("locked arrays = %+v", d)
	}
}

func TestResolveMissingPath(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		Dir:          dir,
		Dependencies: map[string]Dependency{"gone": {Path: "../does-not-exist"}},
	}
	if _, err := NewResolver(m).Resolve(); err == nil {
		t.Error("expected error for missing local dependency")
	}
}

func TestResolveNoDependencies(t *testing.T) {
	dir := t.TempDir()
	deps, err := NewResolver(&Manifest{Dir: dir}).Resolve()
	if err != nil || deps != nil {
		t.Errorf("Resolve = %v, %v", deps, err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".noderpc")); !os.IsNotExist(err) {
		t.Error("resolver created .noderpc without dependencies")
	}
}

func TestIncludeDirsDefaultsToRoot(t *testing.T) {
	dir := t.TempDir()
	if got := includeDirs(dir, nil); len(got) != 1 || got[0] != dir {
		t.Errorf("includeDirs = %v, want [%s]", got, dir)
	}
}
