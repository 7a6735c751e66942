// Package index maintains the catalog of archived specs and reconciles it
// with the archive directory tree.
package index

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/mesh-intelligence/specarchive/internal/fsutil"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// Manager reads and mutates the archive index through a Store. Each
// mutation is a full read-modify-write; a Manager serializes its own
// callers but not other processes.
type Manager struct {
	store       Store
	fs          afero.Fs
	archiveRoot string
	now         func() time.Time
	log         *slog.Logger

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Manager over store for the archives under
// archiveRoot.
func NewManager(store Store, fsys afero.Fs, archiveRoot string, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		fs:          fsys,
		archiveRoot: filepath.Clean(archiveRoot),
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ArchiveRoot returns the directory holding the archives.
func (m *Manager) ArchiveRoot() string { return m.archiveRoot }

// Close closes the underlying store.
func (m *Manager) Close() error { return m.store.Close() }

// sameArchive reports whether two archive paths name the same archive
// directory. Archive directory names are unique within the root.
func sameArchive(a, b string) bool {
	return filepath.Base(filepath.Clean(a)) == filepath.Base(filepath.Clean(b))
}

// loadForWrite loads the index for a mutation. A corrupt index is rebuilt
// from the archive tree so that writers never fail on corruption.
func (m *Manager) loadForWrite() (types.Index, error) {
	idx, err := m.store.Load()
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, types.ErrIndexCorrupt) {
		return types.Index{}, err
	}
	m.log.Warn("archive index corrupt, rebuilding from archive directories", "error", err)
	rebuilt, _, _, err := m.rebuild(types.NewIndex())
	if err != nil {
		return types.Index{}, err
	}
	return rebuilt, nil
}

func (m *Manager) save(idx types.Index) error {
	idx.Version = types.IndexVersion
	idx.LastUpdated = m.now().UTC()
	if err := m.store.Save(idx); err != nil {
		return fmt.Errorf("saving archive index: %w", err)
	}
	return nil
}

// AddEntry records an archive. An existing entry for the same archive
// directory is replaced.
func (m *Manager) AddEntry(entry types.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.loadForWrite()
	if err != nil {
		return err
	}
	replaced := false
	for i, e := range idx.Archives {
		if sameArchive(e.ArchivePath, entry.ArchivePath) {
			idx.Archives[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		idx.Archives = append(idx.Archives, entry)
	}
	return m.save(idx)
}

// AddMetadata records the archive described by meta.
func (m *Manager) AddMetadata(meta types.ArchiveMetadata) error {
	return m.AddEntry(meta.Entry())
}

// RemoveEntry deletes the entry for archivePath and reports whether one
// existed.
func (m *Manager) RemoveEntry(archivePath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.loadForWrite()
	if err != nil {
		return false, err
	}
	kept := idx.Archives[:0]
	removed := false
	for _, e := range idx.Archives {
		if sameArchive(e.ArchivePath, archivePath) {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return false, nil
	}
	idx.Archives = kept
	if err := m.save(idx); err != nil {
		return false, err
	}
	return true, nil
}

// GetAll returns every entry in index order.
func (m *Manager) GetAll() ([]types.IndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	return idx.Archives, nil
}

// Lookup returns the entry for the archive directory named by path.
func (m *Manager) Lookup(archivePath string) (types.IndexEntry, bool, error) {
	entries, err := m.GetAll()
	if err != nil {
		return types.IndexEntry{}, false, err
	}
	for _, e := range entries {
		if sameArchive(e.ArchivePath, archivePath) {
			return e, true, nil
		}
	}
	return types.IndexEntry{}, false, nil
}

// Search returns the entries whose spec name contains term, ignoring case.
// An empty term matches everything.
func (m *Manager) Search(term string) ([]types.IndexEntry, error) {
	entries, err := m.GetAll()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(term)
	matches := []types.IndexEntry{}
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.SpecName), needle) {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// GetStats summarizes the index. Oldest and newest are chosen by archival
// date.
func (m *Manager) GetStats() (types.IndexStats, error) {
	entries, err := m.GetAll()
	if err != nil {
		return types.IndexStats{}, err
	}
	stats := types.IndexStats{TotalArchives: len(entries)}
	for i := range entries {
		e := entries[i]
		stats.TotalTasks += e.TotalTasks
		if stats.OldestArchive == nil || e.ArchivalDate.Before(stats.OldestArchive.ArchivalDate) {
			stats.OldestArchive = &e
		}
		if stats.NewestArchive == nil || e.ArchivalDate.After(stats.NewestArchive.ArchivalDate) {
			stats.NewestArchive = &e
		}
	}
	return stats, nil
}

// ReadMetadata reads the metadata record of one archive directory.
func ReadMetadata(fsys afero.Fs, archiveDir string) (types.ArchiveMetadata, error) {
	path := filepath.Join(archiveDir, types.MetadataFileName)
	var meta types.ArchiveMetadata
	if err := fsutil.ReadJSON(fsys, path, &meta); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return meta, types.NewError(types.ErrNotFound, "read metadata", path, err)
		}
		return meta, types.NewError(types.ErrReadFailure, "read metadata", path, err)
	}
	if meta.SpecName == "" {
		return meta, types.NewError(types.ErrReadFailure, "read metadata", path, errors.New("missing specName"))
	}
	return meta, nil
}

// ValidateAndRepair reconciles the index with the archive directories.
// Afterwards the index holds exactly one entry per archive directory with
// a readable metadata file: missing entries are rebuilt from metadata,
// entries without a directory or metadata are dropped, and duplicates are
// collapsed. A corrupt index is rebuilt from scratch. IsValid reports
// that no change was needed; directories that cannot be indexed are listed
// in Issues without counting as a repair.
func (m *Manager) ValidateAndRepair() (types.RepairReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := types.RepairReport{Issues: []string{}}
	idx, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, types.ErrIndexCorrupt) {
			return report, err
		}
		report.Issues = append(report.Issues, "index file is corrupt; rebuilding from archive directories")
		idx = types.NewIndex()
		report.Repaired = true
	}

	rebuilt, changes, warnings, err := m.rebuild(idx)
	if err != nil {
		return report, err
	}
	report.Issues = append(report.Issues, changes...)
	report.Issues = append(report.Issues, warnings...)
	if len(changes) > 0 {
		report.Repaired = true
	}
	if report.Repaired {
		if err := m.save(rebuilt); err != nil {
			return report, err
		}
		m.log.Info("archive index repaired", "entries", len(rebuilt.Archives), "issues", len(report.Issues))
	}
	report.IsValid = !report.Repaired
	return report, nil
}

// rebuild derives the index the archive tree implies, keeping existing
// entries where they match a valid archive directory. It returns the
// changes made to idx and warnings about archive directories that cannot
// be indexed.
func (m *Manager) rebuild(idx types.Index) (out types.Index, changes, warnings []string, err error) {
	dirs, err := m.archiveDirs()
	if err != nil {
		return types.Index{}, nil, nil, err
	}

	metadata := make(map[string]types.ArchiveMetadata, len(dirs))
	for _, dir := range dirs {
		meta, err := ReadMetadata(m.fs, dir)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("archive %s has no readable metadata: %v", filepath.Base(dir), err))
			continue
		}
		metadata[filepath.Base(dir)] = meta
	}

	out = types.Index{Version: idx.Version, LastUpdated: idx.LastUpdated, Archives: []types.IndexEntry{}}
	seen := make(map[string]bool, len(idx.Archives))
	for _, e := range idx.Archives {
		name := filepath.Base(filepath.Clean(e.ArchivePath))
		if seen[name] {
			changes = append(changes, fmt.Sprintf("removed duplicate entry for %s", name))
			continue
		}
		if _, ok := metadata[name]; !ok {
			changes = append(changes, fmt.Sprintf("removed entry for %s: archive directory missing or unreadable", name))
			continue
		}
		seen[name] = true
		out.Archives = append(out.Archives, e)
	}

	var missing []string
	for name := range metadata {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	for _, name := range missing {
		meta := metadata[name]
		entry := meta.Entry()
		entry.ArchivePath = filepath.Join(m.archiveRoot, name)
		out.Archives = append(out.Archives, entry)
		changes = append(changes, fmt.Sprintf("added entry for %s from its metadata", name))
	}
	return out, changes, warnings, nil
}

// archiveDirs lists the directories directly under the archive root.
// Hidden entries and plain files are ignored.
func (m *Manager) archiveDirs() ([]string, error) {
	entries, err := afero.ReadDir(m.fs, m.archiveRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, types.NewError(types.ErrReadFailure, "scan archives", m.archiveRoot, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, filepath.Join(m.archiveRoot, e.Name()))
		}
	}
	return dirs, nil
}
