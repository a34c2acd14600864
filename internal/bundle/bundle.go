// Package bundle packages folder bundles into tar archives and extracts
// them again on the client side. Entries are named relative to the bundle
// root's parent directory, so an archive for root "assets" holds entries
// like "assets/textures/a.png" and extraction under an install root
// recreates the bundle directory itself.
package bundle

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/plugrelay/plugrelay/internal/pathseg"
)

// Pack writes every regular file under root into w as a tar archive,
// depth-first, entry names relative to root's parent directory.
func Pack(root string, w io.Writer) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("packing bundle: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("packing bundle: %s is not a directory", root)
	}

	parent := filepath.Dir(root)
	tw := tar.NewWriter(w)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name, err := pathseg.RelativeTo(parent, path)
		if err != nil {
			return err
		}
		return appendFile(tw, path, name, d)
	})
	if err != nil {
		return fmt.Errorf("packing bundle %s: %w", root, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing bundle %s: %w", root, err)
	}
	return nil
}

// appendFile writes one file's header and contents to the archive.
func appendFile(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	return nil
}

// Extract unpacks a tar stream under dest, creating parent directories as
// needed. Entry names that would escape dest are rejected.
func Extract(r io.Reader, dest string) error {
	return Walk(r, func(name string, data []byte) error {
		path, err := pathseg.SafeJoin(dest, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		return os.WriteFile(path, data, 0644)
	})
}

// Walk reads a tar stream and invokes fn for every regular file entry with
// its name and full contents. Directory entries are skipped.
func Walk(r io.Reader, fn func(name string, data []byte) error) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("reading archive entry %s: %w", hdr.Name, err)
		}
		if err := fn(hdr.Name, data); err != nil {
			return err
		}
	}
}
