package client

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/plugrelay/plugrelay/internal/pathseg"
	"github.com/plugrelay/plugrelay/protocol"
)

// Installer is the capability a caller hands to the update flow. It
// decides whether an offer is taken and performs every file write, both
// the offered files themselves and the entries of expanded bundles.
type Installer interface {
	// ShouldUpdate is asked once per offer, before any download starts.
	ShouldUpdate(offer *protocol.UpdateResponse) bool

	// InstallFile writes one file. path is the absolute install location
	// from the offer (or a bundle entry under it); the installer owns the
	// mapping from that location to a real filesystem path.
	InstallFile(path string, data []byte) error
}

// DirInstaller installs files under a root directory, re-rooting every
// absolute install location beneath it. An empty root installs to the
// literal locations, which is the on-device behavior.
type DirInstaller struct {
	Root string
}

// ShouldUpdate accepts every offer.
func (DirInstaller) ShouldUpdate(*protocol.UpdateResponse) bool { return true }

// InstallFile writes data to the mapped path, creating parent
// directories as needed.
func (d DirInstaller) InstallFile(path string, data []byte) error {
	target := filepath.FromSlash(path)
	if d.Root != "" {
		var err error
		target, err = pathseg.SafeJoin(d.Root, path)
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating install directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return nil
}

// PromptInstaller wraps another installer and asks for confirmation on
// In/Out before an offer is taken. Anything but an explicit yes declines.
type PromptInstaller struct {
	In       io.Reader
	Out      io.Writer
	Delegate Installer
}

// ShouldUpdate prints the offer and reads one line of confirmation.
func (p *PromptInstaller) ShouldUpdate(offer *protocol.UpdateResponse) bool {
	fmt.Fprintf(p.Out, "Update available for %s: version %s (%d files). Install? [y/N] ",
		offer.PluginName, offer.NewPluginVersion, len(offer.RequiredFiles))

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// InstallFile delegates the write.
func (p *PromptInstaller) InstallFile(path string, data []byte) error {
	return p.Delegate.InstallFile(path, data)
}
