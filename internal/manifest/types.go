package manifest

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/plugrelay/plugrelay/protocol"
)

// FileName is the descriptor file expected in every plugin directory.
const FileName = "plugin.toml"

// Manifest is one plugin directory's parsed descriptor.
type Manifest struct {
	Name    string
	Version *semver.Version
	Beta    bool

	// RuntimeVersion is the minimum runtime version the plugin requires
	// (descriptor key skyline_version). Defaults to 0.0.0.
	RuntimeVersion *semver.Version

	Files    []FileEntry
	Folders  []FolderEntry
	Metadata *Metadata
}

// FileEntry declares one file shipped by the plugin.
type FileEntry struct {
	InstallLocation protocol.InstallLocation
	Filename        string
}

// FolderEntry declares one folder bundle: a directory packaged into a
// single archive and extracted under the install root on the client.
type FolderEntry struct {
	InstallRootLocation protocol.InstallLocation
	RootName            string
}

// Metadata holds the optional display metadata block.
type Metadata struct {
	Name        *string
	Images      []string
	Description *string
	Changelog   *string
}

// Error reports a plugin directory whose descriptor is missing, malformed,
// or carries an unparsable version. Scanning skips the directory and
// continues with the rest.
type Error struct {
	Dir string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("plugin manifest in %s: %v", e.Dir, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// rawManifest mirrors the TOML document before semantic conversion.
type rawManifest struct {
	Name           string       `toml:"name"`
	Version        string       `toml:"version"`
	Beta           *bool        `toml:"beta"`
	SkylineVersion *string      `toml:"skyline_version"`
	Files          []rawFile    `toml:"files"`
	Folders        []rawFolder  `toml:"folders"`
	Metadata       *rawMetadata `toml:"metadata"`
}

type rawFile struct {
	InstallLocation rawLocation `toml:"install_location"`
	Filename        string      `toml:"filename"`
}

type rawFolder struct {
	InstallRootLocation rawLocation `toml:"install_root_location"`
	RootName            string      `toml:"root_name"`
}

type rawMetadata struct {
	Name        *string  `toml:"name"`
	Images      []string `toml:"images"`
	Description *string  `toml:"description"`
	Changelog   *string  `toml:"changelog"`
}

// rawLocation is the tagged install-location table. Adding a variant means
// adding a field here and a case in toLocation.
type rawLocation struct {
	AbsolutePath *string `toml:"AbsolutePath"`
}

func (l rawLocation) toLocation() (protocol.InstallLocation, error) {
	if l.AbsolutePath != nil {
		return protocol.AbsolutePath(*l.AbsolutePath), nil
	}
	return protocol.InstallLocation{}, fmt.Errorf("unsupported install location variant")
}
