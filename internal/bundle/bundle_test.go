package bundle

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// writeTree creates files under dir from a map of relative path -> content.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPackExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	root := filepath.Join(src, "assets")
	files := map[string]string{
		"assets/one.txt":          "one",
		"assets/sub/two.bin":      "\x00\x01\x02",
		"assets/sub/deep/three":   "three three three",
		"assets/empty.dat":        "",
		"assets/sub/.hidden.conf": "hidden",
	}
	writeTree(t, src, files)

	var buf bytes.Buffer
	if err := Pack(root, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dest := t.TempDir()
	if err := Extract(bytes.NewReader(buf.Bytes()), dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for rel, want := range files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		if err != nil {
			t.Errorf("missing extracted file %s: %v", rel, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", rel, got, want)
		}
	}
}

func TestPackEntryNamesAreRootPrefixed(t *testing.T) {
	src := t.TempDir()
	root := filepath.Join(src, "mods")
	writeTree(t, src, map[string]string{
		"mods/a.txt":     "a",
		"mods/sub/b.txt": "b",
	})

	var buf bytes.Buffer
	if err := Pack(root, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var names []string
	err := Walk(bytes.NewReader(buf.Bytes()), func(name string, data []byte) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sort.Strings(names)
	want := []string{"mods/a.txt", "mods/sub/b.txt"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestPackRejectsNonDirectory(t *testing.T) {
	src := t.TempDir()
	file := filepath.Join(src, "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Pack(file, &buf); err == nil {
		t.Error("expected error for non-directory root")
	}
	if err := Pack(filepath.Join(src, "missing"), &buf); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestExtractNeutralizesEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	content := []byte("evil")
	if err := tw.WriteHeader(&tar.Header{
		Name:     "../../escape.txt",
		Mode:     0644,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	tw.Close()

	parent := t.TempDir()
	dest := filepath.Join(parent, "dest")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}

	if err := Extract(bytes.NewReader(buf.Bytes()), dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "escape.txt")); err == nil {
		t.Error("entry escaped the destination directory")
	}
	if _, err := os.Stat(filepath.Join(dest, "escape.txt")); err != nil {
		t.Error("escaping entry was not re-rooted under dest")
	}
}
