package types

import "time"

// MetadataFileName is the per-archive record written into every archive
// directory. It is excluded from integrity file counts.
const MetadataFileName = ".archive-metadata.json"

// MetadataSchemaVersion is stamped into every ArchiveMetadata record.
const MetadataSchemaVersion = "1.0"

// IndexVersion is the current archive index format.
const IndexVersion = "1.0"

// ArchiveMetadata is the immutable record written alongside each archived
// spec. It is written once at archival time and never mutated after.
type ArchiveMetadata struct {
	ArchiveID      string    `json:"archiveId" yaml:"archiveId"`
	SpecName       string    `json:"specName" yaml:"specName"`
	OriginalPath   string    `json:"originalPath" yaml:"originalPath"`
	ArchivePath    string    `json:"archivePath" yaml:"archivePath"`
	CompletionDate time.Time `json:"completionDate" yaml:"completionDate"`
	ArchivalDate   time.Time `json:"archivalDate" yaml:"archivalDate"`
	TotalTasks     int       `json:"totalTasks" yaml:"totalTasks"`
	CompletedTasks int       `json:"completedTasks" yaml:"completedTasks"`
	FileCount      int       `json:"fileCount" yaml:"fileCount"`
	SchemaVersion  string    `json:"schemaVersion" yaml:"schemaVersion"`
}

// Entry returns the index row summarizing m.
func (m ArchiveMetadata) Entry() IndexEntry {
	return IndexEntry{
		SpecName:       m.SpecName,
		ArchivePath:    m.ArchivePath,
		CompletionDate: m.CompletionDate,
		ArchivalDate:   m.ArchivalDate,
		TotalTasks:     m.TotalTasks,
	}
}

// IndexEntry is one row of the archive index.
type IndexEntry struct {
	SpecName       string    `json:"specName" yaml:"specName"`
	ArchivePath    string    `json:"archivePath" yaml:"archivePath"`
	CompletionDate time.Time `json:"completionDate" yaml:"completionDate"`
	ArchivalDate   time.Time `json:"archivalDate" yaml:"archivalDate"`
	TotalTasks     int       `json:"totalTasks" yaml:"totalTasks"`
}

// Index is the persisted catalog of all archives.
type Index struct {
	Version     string       `json:"version" yaml:"version"`
	LastUpdated time.Time    `json:"lastUpdated" yaml:"lastUpdated"`
	Archives    []IndexEntry `json:"archives" yaml:"archives"`
}

// NewIndex returns an empty index at the current version.
func NewIndex() Index {
	return Index{Version: IndexVersion, Archives: []IndexEntry{}}
}

// IndexStats summarizes the archive index. Oldest and Newest are nil when
// the index is empty.
type IndexStats struct {
	TotalArchives int         `json:"totalArchives" yaml:"totalArchives"`
	OldestArchive *IndexEntry `json:"oldestArchive,omitempty" yaml:"oldestArchive,omitempty"`
	NewestArchive *IndexEntry `json:"newestArchive,omitempty" yaml:"newestArchive,omitempty"`
	TotalTasks    int         `json:"totalTasks" yaml:"totalTasks"`
}

// RepairReport is the outcome of reconciling the index with the archive
// directory tree.
type RepairReport struct {
	IsValid  bool     `json:"isValid" yaml:"isValid"`
	Repaired bool     `json:"repaired" yaml:"repaired"`
	Issues   []string `json:"issues" yaml:"issues"`
}
