package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
)

// Load reads, validates, and parses the descriptor in a plugin directory.
// Every failure is returned as a *Error naming the directory so callers
// can skip the plugin and keep scanning.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, &Error{Dir: dir, Err: err}
	}

	m, err := Parse(data)
	if err != nil {
		return nil, &Error{Dir: dir, Err: err}
	}
	return m, nil
}

// Parse validates raw descriptor bytes against the schema and converts
// them into a Manifest.
func Parse(data []byte) (*Manifest, error) {
	result, err := Validate(data)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, fmt.Errorf("schema validation failed: %s", result.Issues[0])
	}

	var raw rawManifest
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing descriptor: %w", err)
	}

	version, err := semver.NewVersion(raw.Version)
	if err != nil {
		return nil, fmt.Errorf("parsing version %q: %w", raw.Version, err)
	}

	runtimeVersion := semver.New(0, 0, 0, "", "")
	if raw.SkylineVersion != nil {
		runtimeVersion, err = semver.NewVersion(*raw.SkylineVersion)
		if err != nil {
			return nil, fmt.Errorf("parsing skyline_version %q: %w", *raw.SkylineVersion, err)
		}
	}

	m := &Manifest{
		Name:           raw.Name,
		Version:        version,
		Beta:           raw.Beta != nil && *raw.Beta,
		RuntimeVersion: runtimeVersion,
	}

	for i, f := range raw.Files {
		loc, err := f.InstallLocation.toLocation()
		if err != nil {
			return nil, fmt.Errorf("files[%d]: %w", i, err)
		}
		m.Files = append(m.Files, FileEntry{InstallLocation: loc, Filename: f.Filename})
	}

	for i, f := range raw.Folders {
		loc, err := f.InstallRootLocation.toLocation()
		if err != nil {
			return nil, fmt.Errorf("folders[%d]: %w", i, err)
		}
		m.Folders = append(m.Folders, FolderEntry{InstallRootLocation: loc, RootName: f.RootName})
	}

	if raw.Metadata != nil {
		m.Metadata = &Metadata{
			Name:        raw.Metadata.Name,
			Images:      raw.Metadata.Images,
			Description: raw.Metadata.Description,
			Changelog:   raw.Metadata.Changelog,
		}
	}

	return m, nil
}

// ResolvePath resolves a descriptor-relative file reference against the
// plugin directory. Absolute references are used as-is.
func ResolvePath(dir, ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(dir, ref)
}
