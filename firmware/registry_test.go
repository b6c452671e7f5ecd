package firmware

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeArtifact(t *testing.T, root, board, name string, data []byte) string {
	t.Helper()
	dir := filepath.Join(root, board)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRegistry_MissingRootIsEmpty(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "nope"))
	all, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("List = %v, want empty", all)
	}
}

func TestRegistry_ListSkipsHiddenAndUnknown(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "uno", "node.hex", []byte(":00000001FF\n"))
	writeArtifact(t, root, "uno", ".node.hex.tmp", []byte("partial"))
	writeArtifact(t, root, "uno", "notes.txt", []byte("hi"))
	writeArtifact(t, root, ".ledger", "x.hex", []byte("x"))
	writeArtifact(t, root, "mega2560", "README", []byte("nothing here"))

	all, err := NewRegistry(root).List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("List boards = %v, want only uno", all)
	}
	if arts := all["uno"]; len(arts) != 1 || filepath.Base(arts[0].Path) != "node.hex" {
		t.Errorf("uno artifacts = %+v", arts)
	}

	boards, err := NewRegistry(root).Boards()
	if err != nil || len(boards) != 1 || boards[0] != "uno" {
		t.Errorf("Boards = %v, %v", boards, err)
	}
}

func TestRegistry_NewestFirstFromMetadata(t *testing.T) {
	root := t.TempDir()
	older := writeArtifact(t, root, "uno", "a.hex", []byte("old"))
	newer := writeArtifact(t, root, "uno", "b.hex", []byte("new"))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := WriteMetadata(older, Metadata{Board: "uno", BuiltAt: base}); err != nil {
		t.Fatal(err)
	}
	if err := WriteMetadata(newer, Metadata{Board: "uno", BuiltAt: base.Add(time.Minute), ProtocolDigest: "abc"}); err != nil {
		t.Fatal(err)
	}

	a, err := NewRegistry(root).Resolve("uno")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.Path != newer {
		t.Errorf("Resolve = %s, want %s", a.Path, newer)
	}
	if a.ProtocolDigest != "abc" {
		t.Errorf("ProtocolDigest = %q", a.ProtocolDigest)
	}
	if a.SHA256 == "" {
		t.Error("SHA256 not computed for artifact without recorded hash")
	}
}

func TestRegistry_TieBrokenByPath(t *testing.T) {
	root := t.TempDir()
	b := writeArtifact(t, root, "uno", "b.hex", []byte("b"))
	a := writeArtifact(t, root, "uno", "a.hex", []byte("a"))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, p := range []string{a, b} {
		if err := WriteMetadata(p, Metadata{Board: "uno", BuiltAt: at}); err != nil {
			t.Fatal(err)
		}
	}

	arts, err := NewRegistry(root).Artifacts("uno")
	if err != nil {
		t.Fatalf("Artifacts: %v", err)
	}
	if len(arts) != 2 || arts[0].Path != a || arts[1].Path != b {
		t.Errorf("order = %v", arts)
	}
}

func TestRegistry_ResolveNoFirmware(t *testing.T) {
	root := t.TempDir()
	_, err := NewRegistry(root).Resolve("mega2560")
	var nf *NoFirmwareError
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve = %v, want NoFirmwareError", err)
	}
	if nf.Board != "mega2560" || nf.Root != root {
		t.Errorf("error = %+v", nf)
	}
}

func TestRegistry_WithExtensions(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "uno", "node.hex", []byte("h"))
	writeArtifact(t, root, "uno", "node.elf", []byte("e"))

	arts, err := NewRegistry(root, WithExtensions("elf")).Artifacts("uno")
	if err != nil {
		t.Fatalf("Artifacts: %v", err)
	}
	if len(arts) != 1 || filepath.Ext(arts[0].Path) != ".elf" {
		t.Errorf("artifacts = %+v", arts)
	}
}

func TestRegistry_CorruptMetadataFallsBackToModTime(t *testing.T) {
	root := t.TempDir()
	p := writeArtifact(t, root, "uno", "node.hex", []byte("h"))
	if err := os.WriteFile(MetadataPath(p), []byte{0xff, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := NewRegistry(root).Resolve("uno")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.BuiltAt.IsZero() {
		t.Error("BuiltAt not taken from file")
	}
}

func TestMetadata_RoundTripIsDeterministic(t *testing.T) {
	m := Metadata{
		Board:          "uno",
		Project:        "demo",
		BuiltAt:        time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC),
		ProtocolDigest: "d1",
		FQBN:           "arduino:avr:uno",
		Size:           1024,
	}
	first, err := MarshalMetadata(m)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := MarshalMetadata(m)
	if string(first) != string(second) {
		t.Error("encoding is not deterministic")
	}
	got, err := UnmarshalMetadata(first)
	if err != nil {
		t.Fatal(err)
	}
	if !got.BuiltAt.Equal(m.BuiltAt) || got.FQBN != m.FQBN || got.Size != m.Size {
		t.Errorf("round trip = %+v", got)
	}
}
