package config

import (
	"encoding/json"

	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// RawConfig is a configuration file as found on disk, before migration.
// Every field is optional; a nil field was absent or held a value of the
// wrong JSON type.
type RawConfig struct {
	Enabled           *bool
	DelayMinutes      *int
	ArchiveLocation   *string
	NotificationLevel *string
	BackupEnabled     *bool

	Legacy LegacyFields

	// Dropped names the fields whose values could not be decoded.
	Dropped []string
}

// LegacyFields are settings written by earlier versions of the tool.
type LegacyFields struct {
	AutoArchive *bool   // replaced by enabled
	WaitMinutes *int    // replaced by delayMinutes
	VerboseMode *bool   // replaced by notificationLevel
	ArchivePath *string // replaced by archiveLocation
}

// DecodeRaw parses a configuration document. The document must be a JSON
// object; anything else is an ErrConfig. Individual fields of the wrong
// type are dropped and listed in Dropped. Unknown keys and keys starting
// with "_" are ignored.
func DecodeRaw(data []byte) (RawConfig, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return RawConfig{}, types.NewError(types.ErrConfig, "decode config", "", err)
	}
	if fields == nil {
		return RawConfig{}, types.NewError(types.ErrConfig, "decode config", "", errNotObject)
	}

	var raw RawConfig
	decodeField(fields, "enabled", &raw.Enabled, &raw.Dropped)
	decodeField(fields, "delayMinutes", &raw.DelayMinutes, &raw.Dropped)
	decodeField(fields, "archiveLocation", &raw.ArchiveLocation, &raw.Dropped)
	decodeField(fields, "notificationLevel", &raw.NotificationLevel, &raw.Dropped)
	decodeField(fields, "backupEnabled", &raw.BackupEnabled, &raw.Dropped)
	decodeField(fields, "autoArchive", &raw.Legacy.AutoArchive, &raw.Dropped)
	decodeField(fields, "waitMinutes", &raw.Legacy.WaitMinutes, &raw.Dropped)
	decodeField(fields, "verboseMode", &raw.Legacy.VerboseMode, &raw.Dropped)
	decodeField(fields, "archivePath", &raw.Legacy.ArchivePath, &raw.Dropped)
	return raw, nil
}

// decodeField sets *dst when key is present and decodes as T. JSON null is
// treated as absent.
func decodeField[T any](fields map[string]json.RawMessage, key string, dst **T, dropped *[]string) {
	msg, ok := fields[key]
	if !ok || string(msg) == "null" {
		return
	}
	var v T
	if err := json.Unmarshal(msg, &v); err != nil {
		*dropped = append(*dropped, key)
		return
	}
	*dst = &v
}

// Migrate converts raw into a valid configuration. It starts from the
// defaults, overlays current-schema fields that pass validation, and then
// fills any field still unset from its legacy counterpart, subject to the
// same rules. Invalid values are dropped. The result always passes Check.
func Migrate(raw RawConfig) types.ArchivalConfig {
	cfg := types.DefaultArchivalConfig()

	enabledSet := false
	if raw.Enabled != nil {
		cfg.Enabled = *raw.Enabled
		enabledSet = true
	}
	delaySet := false
	if raw.DelayMinutes != nil && validDelay(*raw.DelayMinutes) {
		cfg.DelayMinutes = *raw.DelayMinutes
		delaySet = true
	}
	locationSet := false
	if raw.ArchiveLocation != nil && ValidArchivePath(*raw.ArchiveLocation) {
		cfg.ArchiveLocation = *raw.ArchiveLocation
		locationSet = true
	}
	levelSet := false
	if raw.NotificationLevel != nil && types.NotificationLevel(*raw.NotificationLevel).Valid() {
		cfg.NotificationLevel = types.NotificationLevel(*raw.NotificationLevel)
		levelSet = true
	}
	if raw.BackupEnabled != nil {
		cfg.BackupEnabled = *raw.BackupEnabled
	}

	legacy := raw.Legacy
	if !enabledSet && legacy.AutoArchive != nil {
		cfg.Enabled = *legacy.AutoArchive
	}
	if !delaySet && legacy.WaitMinutes != nil && validDelay(*legacy.WaitMinutes) {
		cfg.DelayMinutes = *legacy.WaitMinutes
	}
	if !levelSet && legacy.VerboseMode != nil {
		if *legacy.VerboseMode {
			cfg.NotificationLevel = types.NotifyVerbose
		} else {
			cfg.NotificationLevel = types.NotifyMinimal
		}
	}
	if !locationSet && legacy.ArchivePath != nil && ValidArchivePath(*legacy.ArchivePath) {
		cfg.ArchiveLocation = *legacy.ArchivePath
	}
	return cfg
}

func validDelay(m int) bool {
	return m >= types.MinDelayMinutes && m <= types.MaxDelayMinutes
}
