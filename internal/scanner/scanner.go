// Package scanner enumerates spec directories under a specs root,
// validates their structure, and classifies them by completion.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/mesh-intelligence/specarchive/internal/completion"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// Warning thresholds.
const (
	// MaxTasksBeforeSplit is the task count above which a spec is flagged
	// as a candidate for splitting.
	MaxTasksBeforeSplit = 50

	// MinDocumentLength is the character count below which requirements
	// and design documents are flagged as thin.
	MinDocumentLength = 100
)

// Scanner lists and validates specs below a specs root.
type Scanner struct {
	fs          afero.Fs
	detector    *completion.Detector
	root        string
	archiveRoot string
	log         *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithArchiveRoot excludes the archive directory from listings when it
// lives below the specs root.
func WithArchiveRoot(path string) Option {
	return func(s *Scanner) { s.archiveRoot = filepath.Clean(path) }
}

// WithLogger sets the logger used for skipped specs.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

// New creates a Scanner over the specs root. The archive directory
// defaults to "archive" below the root.
func New(fsys afero.Fs, detector *completion.Detector, root string, opts ...Option) *Scanner {
	s := &Scanner{
		fs:          fsys,
		detector:    detector,
		root:        filepath.Clean(root),
		archiveRoot: filepath.Join(filepath.Clean(root), "archive"),
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the specs root.
func (s *Scanner) Root() string { return s.root }

// ListSpecs returns the paths of every immediate subdirectory of the specs
// root that holds a task document, excluding the archive directory and
// hidden directories. Paths are sorted lexicographically. A missing specs
// root yields an empty list.
func (s *Scanner) ListSpecs() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, types.NewError(types.ErrReadFailure, "list specs", s.root, err)
	}

	specs := []string{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(s.root, entry.Name())
		if path == s.archiveRoot {
			continue
		}
		ok, err := afero.Exists(s.fs, filepath.Join(path, types.TasksFile))
		if err != nil || !ok {
			continue
		}
		specs = append(specs, path)
	}
	sort.Strings(specs)
	return specs, nil
}

// ListCompleted returns the specs whose task lists are complete. A spec
// whose status cannot be read is left out rather than failing the listing.
func (s *Scanner) ListCompleted() ([]string, error) {
	completed, _, err := s.partition()
	return completed, err
}

// ListIncomplete returns the specs that are not complete, including those
// whose status cannot be read.
func (s *Scanner) ListIncomplete() ([]string, error) {
	_, incomplete, err := s.partition()
	return incomplete, err
}

func (s *Scanner) partition() (completed, incomplete []string, err error) {
	specs, err := s.ListSpecs()
	if err != nil {
		return nil, nil, err
	}
	completed, incomplete = []string{}, []string{}
	for _, spec := range specs {
		status, err := s.detector.CheckCompletion(spec)
		if err != nil {
			s.log.Debug("completion check failed", "spec", spec, "error", err)
			incomplete = append(incomplete, spec)
			continue
		}
		if status.IsComplete {
			completed = append(completed, spec)
		} else {
			incomplete = append(incomplete, spec)
		}
	}
	return completed, incomplete, nil
}

// Validate checks a spec directory's structure. Missing, empty, or
// non-regular required files and task-format defects are issues; size and
// layout oddities are warnings. An error is returned only when the spec
// directory itself cannot be inspected.
func (s *Scanner) Validate(specPath string) (types.SpecValidation, error) {
	v := types.SpecValidation{Path: specPath, Issues: []string{}, Warnings: []string{}}

	info, err := s.fs.Stat(specPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			v.Issues = append(v.Issues, "spec directory not found")
			return v, nil
		}
		return v, types.NewError(types.ErrReadFailure, "validate spec", specPath, err)
	}
	if !info.IsDir() {
		v.Issues = append(v.Issues, "spec path is not a directory")
		return v, nil
	}

	contents := make(map[string]string, len(types.RequiredFiles))
	for _, name := range types.RequiredFiles {
		content, issue, err := s.readRequired(filepath.Join(specPath, name))
		if err != nil {
			return v, err
		}
		if issue != "" {
			v.Issues = append(v.Issues, issue)
			continue
		}
		contents[name] = content
	}

	if tasks, ok := contents[types.TasksFile]; ok {
		format := completion.ValidateFormat(tasks)
		for _, issue := range format.Issues {
			v.Issues = append(v.Issues, types.TasksFile+": "+issue)
		}
		counts := completion.ParseTaskCounts(tasks)
		if counts.Total > MaxTasksBeforeSplit {
			v.Warnings = append(v.Warnings, fmt.Sprintf("%s has %d tasks; consider splitting the spec", types.TasksFile, counts.Total))
		}
		if types.Complete(counts.Total, counts.Completed) {
			v.Warnings = append(v.Warnings, "all tasks are complete; spec is ready for archival")
		}
	}

	for _, name := range []string{types.RequirementsFile, types.DesignFile} {
		if content, ok := contents[name]; ok {
			if n := len(strings.TrimSpace(content)); n < MinDocumentLength {
				v.Warnings = append(v.Warnings, fmt.Sprintf("%s is very short (%d characters)", name, n))
			}
		}
	}

	extras, err := s.unexpectedEntries(specPath)
	if err != nil {
		return v, err
	}
	v.Warnings = append(v.Warnings, extras...)

	v.IsValid = len(v.Issues) == 0
	return v, nil
}

// readRequired returns the content of a required file, or an issue
// describing why it is unusable.
func (s *Scanner) readRequired(path string) (content, issue string, err error) {
	name := filepath.Base(path)
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "missing required file: " + name, nil
		}
		return "", "", types.NewError(types.ErrReadFailure, "validate spec", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", name + " is not a regular file", nil
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", "", types.NewError(types.ErrReadFailure, "validate spec", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", name + " is empty", nil
	}
	return string(data), "", nil
}

// unexpectedEntries lists files and directories other than the required
// documents.
func (s *Scanner) unexpectedEntries(specPath string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, specPath)
	if err != nil {
		return nil, types.NewError(types.ErrReadFailure, "validate spec", specPath, err)
	}
	required := make(map[string]bool, len(types.RequiredFiles))
	for _, name := range types.RequiredFiles {
		required[name] = true
	}

	var warnings []string
	for _, entry := range entries {
		if required[entry.Name()] {
			continue
		}
		if entry.IsDir() {
			warnings = append(warnings, "unexpected directory: "+entry.Name())
		} else {
			warnings = append(warnings, "unexpected file: "+entry.Name())
		}
	}
	return warnings, nil
}

// ScanAndValidateAll validates every listed spec. A spec whose validation
// fails outright is recorded as invalid with the failure as its issue.
func (s *Scanner) ScanAndValidateAll() (types.ScanReport, error) {
	specs, err := s.ListSpecs()
	if err != nil {
		return types.ScanReport{}, err
	}

	report := types.ScanReport{
		TotalSpecs:   len(specs),
		ValidSpecs:   []string{},
		InvalidSpecs: []string{},
		IssuesByPath: map[string][]string{},
	}
	for _, spec := range specs {
		v, err := s.Validate(spec)
		if err != nil {
			report.InvalidSpecs = append(report.InvalidSpecs, spec)
			report.IssuesByPath[spec] = []string{"validation error: " + err.Error()}
			continue
		}
		if v.IsValid {
			report.ValidSpecs = append(report.ValidSpecs, spec)
			continue
		}
		report.InvalidSpecs = append(report.InvalidSpecs, spec)
		report.IssuesByPath[spec] = v.Issues
	}
	return report, nil
}

// ReadyForArchival returns the completed specs that also validate cleanly.
func (s *Scanner) ReadyForArchival() ([]string, error) {
	completed, err := s.ListCompleted()
	if err != nil {
		return nil, err
	}
	ready := []string{}
	for _, spec := range completed {
		v, err := s.Validate(spec)
		if err != nil {
			s.log.Debug("validation failed", "spec", spec, "error", err)
			continue
		}
		if v.IsValid {
			ready = append(ready, spec)
		}
	}
	return ready, nil
}
