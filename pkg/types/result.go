package types

import "time"

// ArchivalState tracks one archival attempt. Completed and failed are
// terminal.
type ArchivalState string

// Archival attempt states.
const (
	StatePending    ArchivalState = "pending"
	StateInProgress ArchivalState = "in_progress"
	StateCompleted  ArchivalState = "completed"
	StateFailed     ArchivalState = "failed"
)

// SafetyCheck is the pre-flight verdict before the filesystem is mutated.
// CanProceed implies Issues is empty. Code names the kind of the first
// failing check.
type SafetyCheck struct {
	IsSafe     bool      `json:"isSafe" yaml:"isSafe"`
	CanProceed bool      `json:"canProceed" yaml:"canProceed"`
	Issues     []string  `json:"issues" yaml:"issues"`
	Code       ErrorCode `json:"code,omitempty" yaml:"code,omitempty"`
}

// ArchivalResult is the outcome of one archival attempt. When Success is
// false, Error is set and the original spec directory is unchanged.
type ArchivalResult struct {
	Success      bool          `json:"success" yaml:"success"`
	State        ArchivalState `json:"state" yaml:"state"`
	SpecName     string        `json:"specName" yaml:"specName"`
	OriginalPath string        `json:"originalPath" yaml:"originalPath"`
	ArchivePath  string        `json:"archivePath,omitempty" yaml:"archivePath,omitempty"`
	Timestamp    time.Time     `json:"timestamp" yaml:"timestamp"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorCode    ErrorCode     `json:"errorCode,omitempty" yaml:"errorCode,omitempty"`
	RolledBack   bool          `json:"rolledBack,omitempty" yaml:"rolledBack,omitempty"`
}

// ArchiveDecision is the verdict of the archival gate for one spec.
type ArchiveDecision struct {
	ShouldArchive bool   `json:"shouldArchive" yaml:"shouldArchive"`
	Reason        string `json:"reason" yaml:"reason"`
}

// SkippedSpec records a spec the batch run decided not to archive.
type SkippedSpec struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

// BatchReport is the per-item outcome of an automatic archival run.
type BatchReport struct {
	Candidates int              `json:"candidates" yaml:"candidates"`
	Results    []ArchivalResult `json:"results" yaml:"results"`
	Skipped    []SkippedSpec    `json:"skipped" yaml:"skipped"`
	Disabled   bool             `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Succeeded counts successful archivals in the report.
func (r BatchReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// Failed counts failed archivals in the report.
func (r BatchReport) Failed() int {
	return len(r.Results) - r.Succeeded()
}
