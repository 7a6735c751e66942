package types

// NotificationLevel controls how much the archival engine reports.
type NotificationLevel string

// Supported notification levels.
const (
	NotifyNone    NotificationLevel = "none"
	NotifyMinimal NotificationLevel = "minimal"
	NotifyVerbose NotificationLevel = "verbose"
)

// NotificationLevels lists the accepted levels in increasing verbosity.
var NotificationLevels = []NotificationLevel{NotifyNone, NotifyMinimal, NotifyVerbose}

// Valid reports whether l is one of the supported levels.
func (l NotificationLevel) Valid() bool {
	for _, known := range NotificationLevels {
		if l == known {
			return true
		}
	}
	return false
}

// Delay bounds in minutes.
const (
	MinDelayMinutes = 0
	MaxDelayMinutes = 1440
)

// ConfigSchemaVersion is stamped into the configuration file on save.
const ConfigSchemaVersion = "1.0.0"

// Default archival settings written on first load.
const (
	DefaultEnabled           = true
	DefaultDelayMinutes      = 10
	DefaultArchiveLocation   = ".kiro/specs/archive"
	DefaultNotificationLevel = NotifyMinimal
	DefaultBackupEnabled     = true
)

// ArchivalConfig holds the user-visible archival settings.
//
// ArchiveLocation is relative to the project root and never contains a
// parent-traversal segment.
type ArchivalConfig struct {
	Enabled           bool              `json:"enabled" yaml:"enabled"`
	DelayMinutes      int               `json:"delayMinutes" yaml:"delayMinutes" validate:"min=0,max=1440"`
	ArchiveLocation   string            `json:"archiveLocation" yaml:"archiveLocation" validate:"required,archivepath"`
	NotificationLevel NotificationLevel `json:"notificationLevel" yaml:"notificationLevel" validate:"oneof=none minimal verbose"`
	BackupEnabled     bool              `json:"backupEnabled" yaml:"backupEnabled"`
}

// DefaultArchivalConfig returns the hard-coded defaults.
func DefaultArchivalConfig() ArchivalConfig {
	return ArchivalConfig{
		Enabled:           DefaultEnabled,
		DelayMinutes:      DefaultDelayMinutes,
		ArchiveLocation:   DefaultArchiveLocation,
		NotificationLevel: DefaultNotificationLevel,
		BackupEnabled:     DefaultBackupEnabled,
	}
}
