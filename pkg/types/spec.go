package types

import "time"

// Names of the documents every spec directory must contain.
const (
	RequirementsFile = "requirements.md"
	DesignFile       = "design.md"
	TasksFile        = "tasks.md"
)

// RequiredFiles lists the spec documents in the order they are checked.
var RequiredFiles = []string{RequirementsFile, DesignFile, TasksFile}

// Spec is a unit of tracked work stored as a directory.
type Spec struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// CompletionStatus is the result of scanning a spec's task document.
// It is computed on demand and never stored.
type CompletionStatus struct {
	IsComplete     bool      `json:"isComplete" yaml:"isComplete"`
	TotalTasks     int       `json:"totalTasks" yaml:"totalTasks"`
	CompletedTasks int       `json:"completedTasks" yaml:"completedTasks"`
	LastModified   time.Time `json:"lastModified" yaml:"lastModified"`
}

// Complete reports whether the counts describe a finished task list.
// A task list with no tasks is never complete.
func Complete(total, completed int) bool {
	return total > 0 && completed == total
}

// FormatValidation is the verdict on a task document's formatting.
type FormatValidation struct {
	IsValid bool     `json:"isValid" yaml:"isValid"`
	Issues  []string `json:"issues" yaml:"issues"`
}

// SpecValidation is the verdict on a spec directory's structure.
// Warnings never affect IsValid.
type SpecValidation struct {
	Path     string   `json:"path" yaml:"path"`
	IsValid  bool     `json:"isValid" yaml:"isValid"`
	Issues   []string `json:"issues" yaml:"issues"`
	Warnings []string `json:"warnings" yaml:"warnings"`
}

// ScanReport aggregates validation over every spec under the specs root.
type ScanReport struct {
	TotalSpecs   int                 `json:"totalSpecs" yaml:"totalSpecs"`
	ValidSpecs   []string            `json:"validSpecs" yaml:"validSpecs"`
	InvalidSpecs []string            `json:"invalidSpecs" yaml:"invalidSpecs"`
	IssuesByPath map[string][]string `json:"issuesByPath" yaml:"issuesByPath"`
}
