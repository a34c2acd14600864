package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/plugrelay/plugrelay/internal/bundle"
)

func TestRunPackProducesExtractableArchive(t *testing.T) {
	dir := t.TempDir()
	folder := filepath.Join(dir, "assets")
	if err := os.MkdirAll(filepath.Join(folder, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(folder, "a.txt"), []byte("alpha"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(folder, "sub", "b.txt"), []byte("beta"), 0644); err != nil {
		t.Fatal(err)
	}

	packOutput = filepath.Join(dir, "out.tar")
	defer func() { packOutput = "" }()

	if err := runPack(packCmd, []string{folder}); err != nil {
		t.Fatalf("runPack: %v", err)
	}

	f, err := os.Open(packOutput)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got := map[string]string{}
	err = bundle.Walk(f, func(name string, data []byte) error {
		got[name] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("walking archive: %v", err)
	}

	want := map[string]string{
		"assets/a.txt":     "alpha",
		"assets/sub/b.txt": "beta",
	}
	if len(got) != len(want) {
		t.Fatalf("archive entries = %v", got)
	}
	for name, content := range want {
		if got[name] != content {
			t.Errorf("entry %s = %q, want %q", name, got[name], content)
		}
	}
}

func TestRunPackRejectsMissingFolder(t *testing.T) {
	packOutput = filepath.Join(t.TempDir(), "out.tar")
	defer func() { packOutput = "" }()

	if err := runPack(packCmd, []string{filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Fatal("expected error for missing folder")
	}
	if _, err := os.Stat(packOutput); !os.IsNotExist(err) {
		t.Errorf("partial archive left behind, stat err = %v", err)
	}
}

func TestServerAddrPrecedence(t *testing.T) {
	if addr, err := serverAddr("10.0.0.5:4500"); err != nil || addr != "10.0.0.5:4500" {
		t.Errorf("flag value: addr = %q, err = %v", addr, err)
	}
	if _, err := serverAddr(""); err == nil {
		t.Error("expected error with no flag and no config")
	}
}
