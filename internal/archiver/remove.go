package archiver

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/mesh-intelligence/specarchive/internal/index"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// ResolveArchivePath turns an archive directory name or path into a path
// below the archive root. Paths outside the root are rejected.
func (e *Engine) ResolveArchivePath(archivePath string) (string, error) {
	root := e.ArchiveRoot()
	path := archivePath
	if !filepath.IsAbs(path) {
		if filepath.Base(path) == path {
			path = filepath.Join(root, path)
		} else {
			abs, err := filepath.Abs(path)
			if err != nil {
				return "", err
			}
			path = abs
		}
	}
	path = filepath.Clean(path)
	if path == root || !within(path, root) {
		return "", types.NewError(types.ErrValidationFailed, "resolve archive", archivePath,
			fmt.Errorf("not inside archive directory %s", root))
	}
	return path, nil
}

// RemoveArchivedSpec deletes an archive from both the index and the
// filesystem. If the directory cannot be deleted after its index entry was
// removed, the entry is rebuilt from the metadata on disk and re-added so
// the index keeps describing what exists.
func (e *Engine) RemoveArchivedSpec(archivePath string) error {
	path, err := e.ResolveArchivePath(archivePath)
	if err != nil {
		return err
	}
	log := e.log.With("archive", path)

	info, statErr := e.fs.Stat(path)
	onDisk := statErr == nil && info.IsDir()
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return types.NewError(types.ErrReadFailure, "remove archive", path, statErr)
	}

	previous, indexed, err := e.index.Lookup(path)
	if err != nil && !errors.Is(err, types.ErrIndexCorrupt) {
		return err
	}
	if !onDisk && !indexed {
		return types.NewError(types.ErrNotFound, "remove archive", path, nil)
	}

	removed, err := e.index.RemoveEntry(path)
	if err != nil {
		return err
	}
	if !onDisk {
		log.Info("removed index entry for missing archive")
		return nil
	}

	if err := e.fs.RemoveAll(path); err != nil {
		cleanupErr := types.NewError(types.ErrCleanupFailed, "remove archive", path, err)
		if removed {
			e.restoreEntry(path, previous, log)
		}
		return cleanupErr
	}
	log.Info("archive removed")
	return nil
}

// restoreEntry re-adds the index entry of an archive whose deletion failed.
func (e *Engine) restoreEntry(path string, previous types.IndexEntry, log *slog.Logger) {
	entry := previous
	if meta, err := index.ReadMetadata(e.fs, path); err == nil {
		entry = meta.Entry()
		entry.ArchivePath = path
	}
	if entry.SpecName == "" {
		log.Warn("archive partially removed and no metadata left to re-index it")
		return
	}
	if err := e.index.AddEntry(entry); err != nil {
		log.Warn("could not restore index entry after failed removal", "error", err)
	}
}

// ArchivedSpecs returns every indexed archive.
func (e *Engine) ArchivedSpecs() ([]types.IndexEntry, error) {
	return e.index.GetAll()
}

// LookupArchive finds an indexed archive by directory name or path.
func (e *Engine) LookupArchive(name string) (types.IndexEntry, bool, error) {
	return e.index.Lookup(name)
}
