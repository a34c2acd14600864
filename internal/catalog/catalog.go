package catalog

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/plugrelay/plugrelay/internal/bundle"
	"github.com/plugrelay/plugrelay/internal/manifest"
	"github.com/plugrelay/plugrelay/internal/pathseg"
	"github.com/plugrelay/plugrelay/protocol"
)

// File is one immutable downloadable blob and its install location.
type File struct {
	Location protocol.InstallLocation
	Data     []byte
}

// Entry is one hosted plugin inside a generation: its resolved identity,
// the wire descriptors of its downloadable files (declared files first,
// then packaged bundle archives), and its metadata summary.
type Entry struct {
	Name           string
	Version        *semver.Version
	Beta           bool
	RuntimeVersion *semver.Version
	Files          []protocol.UpdateFile
	Metadata       protocol.PluginMetadata
}

// Generation is an immutable catalog snapshot. Seq identifies it for
// download-index tagging.
type Generation struct {
	Seq     uint64
	Entries []*Entry

	table []*File
}

// TableLen returns the number of blobs in the flat download table.
func (g *Generation) TableLen() int { return len(g.table) }

// Lookup resolves a wire download index against this generation. It
// returns false for indices minted by another generation or positions
// beyond the table bound.
func (g *Generation) Lookup(wire uint64) (*File, bool) {
	tag, pos := DecodeIndex(wire)
	if tag != g.Seq&(tagMask>>posBits) {
		return nil, false
	}
	if pos >= uint64(len(g.table)) {
		return nil, false
	}
	return g.table[pos], true
}

// Resolve selects the current entry for a plugin name: the maximum
// version among entries with that name that pass the beta filter. A
// non-beta query never sees beta entries; a beta query sees both. The
// first entry in catalog order wins a version tie.
func (g *Generation) Resolve(name string, beta bool) (*Entry, bool) {
	var best *Entry
	for _, e := range g.Entries {
		if e.Name != name {
			continue
		}
		if e.Beta && !beta {
			continue
		}
		if best == nil || e.Version.GreaterThan(best.Version) {
			best = e
		}
	}
	return best, best != nil
}

// Build scans every plugin directory under root and assembles a new
// generation tagged with seq. A directory whose manifest fails to load or
// whose files cannot be read is skipped with a warning; one bad plugin
// never blocks the rest. Every blob is read fully into memory — an
// explicit trade-off that keeps transfers lock-free and is acceptable for
// small local-network plugin sets.
func Build(root string, seq uint64, logger *slog.Logger) (*Generation, error) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scanning plugin root %s: %w", root, err)
	}

	g := &Generation{Seq: seq}
	for _, de := range dirents {
		if !de.IsDir() {
			continue
		}
		dir := filepath.Join(root, de.Name())

		m, err := manifest.Load(dir)
		if err != nil {
			logger.Warn("skipping plugin", "dir", dir, "error", err)
			continue
		}
		if err := g.appendEntry(dir, m); err != nil {
			logger.Warn("skipping plugin", "dir", dir, "name", m.Name, "error", err)
			continue
		}
		logger.Info("hosting plugin",
			"name", m.Name, "version", m.Version.String(), "beta", m.Beta)
	}
	return g, nil
}

// appendEntry loads one manifest's blobs and appends the entry and its
// table rows. On error the generation is left unchanged.
func (g *Generation) appendEntry(dir string, m *manifest.Manifest) error {
	var files []*File

	for _, fe := range m.Files {
		data, err := os.ReadFile(manifest.ResolvePath(dir, fe.Filename))
		if err != nil {
			return fmt.Errorf("reading declared file: %w", err)
		}
		files = append(files, &File{Location: fe.InstallLocation, Data: data})
	}

	for _, fo := range m.Folders {
		f, err := packFolder(dir, fo)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	images, changelog, err := loadMetadataBlobs(dir, m.Metadata)
	if err != nil {
		return err
	}

	entry := &Entry{
		Name:           m.Name,
		Version:        m.Version,
		Beta:           m.Beta,
		RuntimeVersion: m.RuntimeVersion,
	}

	// Deterministic index order: declared files and bundle archives make
	// up the offer, metadata images and the changelog follow.
	for _, f := range files {
		entry.Files = append(entry.Files, protocol.UpdateFile{
			Size:            uint64(len(f.Data)),
			DownloadIndex:   EncodeIndex(g.Seq, len(g.table)),
			InstallLocation: f.Location,
		})
		g.table = append(g.table, f)
	}

	entry.Metadata = protocol.PluginMetadata{
		Code:        protocol.CodeOk,
		ImagesIndex: EncodeIndex(g.Seq, len(g.table)),
		ImageCount:  uint64(len(images)),
	}
	if m.Metadata != nil {
		entry.Metadata.Name = m.Metadata.Name
		entry.Metadata.Description = m.Metadata.Description
	}
	for _, img := range images {
		g.table = append(g.table, img)
	}
	entry.Metadata.ChangelogIndex = EncodeIndex(g.Seq, len(g.table))
	if changelog != nil {
		g.table = append(g.table, changelog)
	}

	g.Entries = append(g.Entries, entry)
	return nil
}

// packFolder builds the in-memory archive for one folder bundle. The
// archive never touches the watched tree, so packaging cannot retrigger
// the filesystem watcher.
func packFolder(dir string, fo manifest.FolderEntry) (*File, error) {
	rootPath, ok := fo.InstallRootLocation.Path()
	if !ok {
		return nil, fmt.Errorf("folder %s: unsupported install location %s", fo.RootName, fo.InstallRootLocation)
	}

	var buf bytes.Buffer
	if err := bundle.Pack(manifest.ResolvePath(dir, fo.RootName), &buf); err != nil {
		return nil, err
	}

	return &File{
		Location: protocol.AbsolutePath(pathseg.WithArchiveExt(rootPath)),
		Data:     buf.Bytes(),
	}, nil
}

// loadMetadataBlobs reads the image and changelog blobs declared by the
// metadata block, resolved against the plugin directory.
func loadMetadataBlobs(dir string, md *manifest.Metadata) (images []*File, changelog *File, err error) {
	if md == nil {
		return nil, nil, nil
	}

	for _, ref := range md.Images {
		data, err := os.ReadFile(manifest.ResolvePath(dir, ref))
		if err != nil {
			return nil, nil, fmt.Errorf("reading metadata image: %w", err)
		}
		images = append(images, &File{Data: data})
	}

	if md.Changelog != nil {
		data, err := os.ReadFile(manifest.ResolvePath(dir, *md.Changelog))
		if err != nil {
			return nil, nil, fmt.Errorf("reading changelog: %w", err)
		}
		changelog = &File{Data: data}
	}
	return images, changelog, nil
}
