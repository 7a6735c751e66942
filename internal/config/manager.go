// Package config loads, validates, migrates, and persists the archival
// configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/mesh-intelligence/specarchive/internal/fsutil"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// Default locations relative to the project root.
const (
	DefaultConfigFile = ".kiro/settings/archival.json"
	DefaultBackupDir  = ".kiro/settings/backups"
)

// Setting keys accepted by Set.
const (
	KeyEnabled           = "enabled"
	KeyDelayMinutes      = "delayMinutes"
	KeyArchiveLocation   = "archiveLocation"
	KeyNotificationLevel = "notificationLevel"
	KeyBackupEnabled     = "backupEnabled"
)

// Keys lists the setting keys in display order.
var Keys = []string{KeyEnabled, KeyDelayMinutes, KeyArchiveLocation, KeyNotificationLevel, KeyBackupEnabled}

var errNotObject = errors.New("configuration must be a JSON object")

// fileConfig is the on-disk shape: the user-visible fields plus reserved
// metadata stamped on save.
type fileConfig struct {
	types.ArchivalConfig
	Version     string    `json:"_version"`
	LastUpdated time.Time `json:"_lastUpdated"`
}

// Manager owns one configuration file. The loaded configuration is cached
// until the next save; a Manager is safe for concurrent use.
type Manager struct {
	fs        afero.Fs
	path      string
	backupDir string
	now       func() time.Time
	log       *slog.Logger

	mu     sync.Mutex
	cached *types.ArchivalConfig
}

// Option configures a Manager.
type Option func(*Manager)

// WithBackupDir sets the directory backups are written to.
func WithBackupDir(dir string) Option {
	return func(m *Manager) { m.backupDir = dir }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Manager for the configuration file at path.
func NewManager(fsys afero.Fs, path string, opts ...Option) *Manager {
	m := &Manager{
		fs:   fsys,
		path: path,
		now:  time.Now,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the configuration file path.
func (m *Manager) Path() string { return m.path }

// Load returns the configuration. A missing file is the first run: the
// defaults are written and returned. A file that exists but cannot be read
// or parsed is an ErrConfig. Legacy fields are migrated on the way in.
func (m *Manager) Load() (types.ArchivalConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *Manager) load() (types.ArchivalConfig, error) {
	if m.cached != nil {
		return *m.cached, nil
	}

	data, err := afero.ReadFile(m.fs, m.path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := types.DefaultArchivalConfig()
		m.log.Debug("config file missing, writing defaults", "path", m.path)
		if err := m.save(cfg); err != nil {
			return types.ArchivalConfig{}, err
		}
		return cfg, nil
	}
	if err != nil {
		return types.ArchivalConfig{}, types.NewError(types.ErrConfig, "load config", m.path, err)
	}

	raw, err := DecodeRaw(data)
	if err != nil {
		return types.ArchivalConfig{}, types.NewError(types.ErrConfig, "load config", m.path, err)
	}
	if len(raw.Dropped) > 0 {
		m.log.Warn("ignoring config fields with invalid types", "path", m.path, "fields", raw.Dropped)
	}
	cfg := Migrate(raw)
	m.cached = &cfg
	return cfg, nil
}

// Save validates cfg and writes it atomically with the schema version and
// a last-updated timestamp. The cache is replaced on success.
func (m *Manager) Save(cfg types.ArchivalConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(cfg)
}

func (m *Manager) save(cfg types.ArchivalConfig) error {
	if err := Check(cfg); err != nil {
		return err
	}
	out := fileConfig{
		ArchivalConfig: cfg,
		Version:        types.ConfigSchemaVersion,
		LastUpdated:    m.now().UTC(),
	}
	if err := fsutil.WriteJSONAtomic(m.fs, m.path, out); err != nil {
		return types.NewError(types.ErrConfig, "save config", m.path, err)
	}
	m.cached = &cfg
	return nil
}

// Invalidate drops the cached configuration so the next Load rereads the
// file.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

// update applies fn to the current configuration and saves the result,
// taking a backup first when backups are enabled.
func (m *Manager) update(fn func(*types.ArchivalConfig)) (types.ArchivalConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.load()
	if err != nil {
		return types.ArchivalConfig{}, err
	}
	next := current
	fn(&next)
	if err := Check(next); err != nil {
		return types.ArchivalConfig{}, err
	}
	if err := m.backupBeforeWrite(current); err != nil {
		return types.ArchivalConfig{}, err
	}
	if err := m.save(next); err != nil {
		return types.ArchivalConfig{}, err
	}
	return next, nil
}

// SetEnabled turns automatic archival on or off.
func (m *Manager) SetEnabled(v bool) (types.ArchivalConfig, error) {
	return m.update(func(c *types.ArchivalConfig) { c.Enabled = v })
}

// SetDelayMinutes sets the quiet period after the last task edit.
func (m *Manager) SetDelayMinutes(v int) (types.ArchivalConfig, error) {
	return m.update(func(c *types.ArchivalConfig) { c.DelayMinutes = v })
}

// SetArchiveLocation sets the archive directory relative to the project
// root.
func (m *Manager) SetArchiveLocation(v string) (types.ArchivalConfig, error) {
	return m.update(func(c *types.ArchivalConfig) { c.ArchiveLocation = v })
}

// SetNotificationLevel sets how much the engine reports.
func (m *Manager) SetNotificationLevel(v types.NotificationLevel) (types.ArchivalConfig, error) {
	return m.update(func(c *types.ArchivalConfig) { c.NotificationLevel = v })
}

// SetBackupEnabled controls whether overwrites are preceded by a backup.
func (m *Manager) SetBackupEnabled(v bool) (types.ArchivalConfig, error) {
	return m.update(func(c *types.ArchivalConfig) { c.BackupEnabled = v })
}

// Set parses value for the named key and applies it.
func (m *Manager) Set(key, value string) (types.ArchivalConfig, error) {
	switch key {
	case KeyEnabled, KeyBackupEnabled:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return types.ArchivalConfig{}, types.NewError(types.ErrConfig, "set "+key, "", fmt.Errorf("expected true or false, got %q", value))
		}
		if key == KeyEnabled {
			return m.SetEnabled(b)
		}
		return m.SetBackupEnabled(b)
	case KeyDelayMinutes:
		n, err := strconv.Atoi(value)
		if err != nil {
			return types.ArchivalConfig{}, types.NewError(types.ErrConfig, "set "+key, "", fmt.Errorf("expected an integer, got %q", value))
		}
		return m.SetDelayMinutes(n)
	case KeyArchiveLocation:
		return m.SetArchiveLocation(value)
	case KeyNotificationLevel:
		return m.SetNotificationLevel(types.NotificationLevel(value))
	default:
		return types.ArchivalConfig{}, types.NewError(types.ErrConfig, "set config", "", fmt.Errorf("unknown key %q", key))
	}
}

// Reset restores the defaults. An unreadable configuration file is
// overwritten without a backup.
func (m *Manager) Reset() (types.ArchivalConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defaults := types.DefaultArchivalConfig()
	current, err := m.load()
	if err != nil {
		m.log.Warn("replacing unreadable config with defaults", "path", m.path, "error", err)
	} else if err := m.backupBeforeWrite(current); err != nil {
		return types.ArchivalConfig{}, err
	}
	if err := m.save(defaults); err != nil {
		return types.ArchivalConfig{}, err
	}
	return defaults, nil
}
