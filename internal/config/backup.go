package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/mesh-intelligence/specarchive/internal/fsutil"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

const (
	backupPrefix     = "archival-config-"
	backupSuffix     = ".json"
	backupTimeFormat = "20060102T150405.000Z"
)

// backupFile is a snapshot of the configuration with metadata that only
// backups carry.
type backupFile struct {
	types.ArchivalConfig
	Version       string    `json:"_version"`
	BackupCreated time.Time `json:"_backupCreated"`
	SourcePath    string    `json:"_sourcePath"`
}

// BackupDir returns the directory backups are written to.
func (m *Manager) BackupDir() string { return m.backupDirectory() }

func (m *Manager) backupDirectory() string {
	if m.backupDir != "" {
		return m.backupDir
	}
	return filepath.Join(filepath.Dir(m.path), "backups")
}

// Backup writes a timestamped snapshot of the current configuration and
// returns its path.
func (m *Manager) Backup() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.load()
	if err != nil {
		return "", err
	}
	return m.writeBackup(cfg)
}

func (m *Manager) backupBeforeWrite(current types.ArchivalConfig) error {
	if !current.BackupEnabled {
		return nil
	}
	path, err := m.writeBackup(current)
	if err != nil {
		return err
	}
	m.log.Debug("config backed up", "path", path)
	return nil
}

func (m *Manager) writeBackup(cfg types.ArchivalConfig) (string, error) {
	created := m.now().UTC()
	dir := m.backupDirectory()
	stamp := created.Format(backupTimeFormat)

	path := filepath.Join(dir, backupPrefix+stamp+backupSuffix)
	for n := 1; ; n++ {
		exists, err := afero.Exists(m.fs, path)
		if err != nil {
			return "", types.NewError(types.ErrConfig, "backup config", path, err)
		}
		if !exists {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s%s-%d%s", backupPrefix, stamp, n, backupSuffix))
	}

	out := backupFile{
		ArchivalConfig: cfg,
		Version:        types.ConfigSchemaVersion,
		BackupCreated:  created,
		SourcePath:     m.path,
	}
	if err := fsutil.WriteJSONAtomic(m.fs, path, out); err != nil {
		return "", types.NewError(types.ErrConfig, "backup config", path, err)
	}
	return path, nil
}

// ListBackups returns backup file paths, newest first.
func (m *Manager) ListBackups() ([]string, error) {
	dir := m.backupDirectory()
	entries, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, types.NewError(types.ErrConfig, "list backups", dir, err)
	}
	backups := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		backups = append(backups, filepath.Join(dir, name))
	}
	sort.Slice(backups, func(i, j int) bool {
		si, ni := backupOrder(backups[i])
		sj, nj := backupOrder(backups[j])
		if si != sj {
			return si > sj
		}
		return ni > nj
	})
	return backups, nil
}

// backupOrder splits a backup file name into its timestamp and collision
// suffix.
func backupOrder(path string) (stamp string, n int) {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), backupPrefix), backupSuffix)
	stamp, suffix, found := strings.Cut(name, "-")
	if found {
		n, _ = strconv.Atoi(suffix)
	}
	return stamp, n
}

// RestoreFromBackup replaces the configuration with the content of a
// backup. Backup metadata is stripped and the content is migrated and
// validated before it is saved.
func (m *Manager) RestoreFromBackup(path string) (types.ArchivalConfig, error) {
	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		kind := types.ErrConfig
		if errors.Is(err, fs.ErrNotExist) {
			kind = types.ErrNotFound
		}
		return types.ArchivalConfig{}, types.NewError(kind, "restore config", path, err)
	}

	stripped, err := stripMetadata(data)
	if err != nil {
		return types.ArchivalConfig{}, types.NewError(types.ErrConfig, "restore config", path, err)
	}
	raw, err := DecodeRaw(stripped)
	if err != nil {
		return types.ArchivalConfig{}, types.NewError(types.ErrConfig, "restore config", path, err)
	}
	restored := Migrate(raw)
	if err := Check(restored); err != nil {
		return types.ArchivalConfig{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current, err := m.load()
	if err != nil {
		return types.ArchivalConfig{}, err
	}
	if err := m.backupBeforeWrite(current); err != nil {
		return types.ArchivalConfig{}, err
	}
	if err := m.save(restored); err != nil {
		return types.ArchivalConfig{}, err
	}
	m.log.Info("config restored", "from", path)
	return restored, nil
}

// stripMetadata removes reserved "_" keys from a configuration document.
func stripMetadata(data []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNotObject
	}
	for k := range fields {
		if strings.HasPrefix(k, "_") {
			delete(fields, k)
		}
	}
	return json.Marshal(fields)
}
