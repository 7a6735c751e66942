package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/specarchive/internal/config"
	"github.com/mesh-intelligence/specarchive/internal/index"
	"github.com/mesh-intelligence/specarchive/internal/paths"
)

const (
	settingsName = "specarchive"
	settingsType = "yaml"
	envPrefix    = "SPECARCHIVE"

	// Settings keys.
	keySpecsDir     = "specs_dir"
	keyConfigFile   = "config_file"
	keyBackupDir    = "backup_dir"
	keyIndexBackend = "index_backend"
)

// settings are the tool-level options read from .kiro/specarchive.yaml.
// They locate files; archival behavior lives in the archival config.
type settings struct {
	SpecsDir     string `yaml:"specs_dir"`
	ConfigFile   string `yaml:"config_file"`
	BackupDir    string `yaml:"backup_dir"`
	IndexBackend string `yaml:"index_backend"`
}

func defaultSettings() settings {
	return settings{
		SpecsDir:     paths.DefaultSpecsDir,
		ConfigFile:   config.DefaultConfigFile,
		BackupDir:    config.DefaultBackupDir,
		IndexBackend: index.DefaultBackend,
	}
}

// loadSettings reads the settings file under root with SPECARCHIVE_*
// environment overrides. A missing file is not an error.
func loadSettings(root string) (settings, error) {
	def := defaultSettings()
	v := viper.New()
	v.SetDefault(keySpecsDir, def.SpecsDir)
	v.SetDefault(keyConfigFile, def.ConfigFile)
	v.SetDefault(keyBackupDir, def.BackupDir)
	v.SetDefault(keyIndexBackend, def.IndexBackend)
	v.SetConfigName(settingsName)
	v.SetConfigType(settingsType)
	v.AddConfigPath(filepath.Join(root, paths.KiroDirName))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return settings{}, fmt.Errorf("read settings: %w", err)
		}
	}

	return settings{
		SpecsDir:     v.GetString(keySpecsDir),
		ConfigFile:   v.GetString(keyConfigFile),
		BackupDir:    v.GetString(keyBackupDir),
		IndexBackend: v.GetString(keyIndexBackend),
	}, nil
}

// writeSettingsIfMissing creates the settings file with s. An existing
// file is left alone; the return value reports whether a file was written.
func writeSettingsIfMissing(root string, s settings) (bool, error) {
	path := paths.Under(root, paths.SettingsFile)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat settings: %w", err)
	}

	data, err := yaml.Marshal(&s)
	if err != nil {
		return false, fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	header := []byte("# specarchive settings; archival behavior lives in " + s.ConfigFile + "\n")
	return true, os.WriteFile(path, append(header, data...), 0o644)
}
