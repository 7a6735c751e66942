// Package completion parses spec task documents and reports how many of
// their tasks are done.
//
// A task line is an optional indent, a "-" list marker, whitespace, a
// checkbox holding exactly "x" or a single space, whitespace, and free
// text to the end of the line. Lines of any other shape are not tasks.
package completion

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/mesh-intelligence/specarchive/pkg/types"
)

var (
	// taskLine matches a well-formed task; group 1 is the checkbox character.
	taskLine = regexp.MustCompile(`^\s*-\s+\[([x ])\]\s+\S.*$`)

	// checkboxItem matches any list item that starts with a bracketed box;
	// group 1 is the box content.
	checkboxItem = regexp.MustCompile(`^\s*-\s+\[([^\]]*)\]`)

	// otherMarker matches a checkbox behind a list marker other than "-".
	otherMarker = regexp.MustCompile(`^\s*(?:[*+]|\d+[.)])\s+\[[^\]]*\]`)

	// bareCheckbox matches a checkbox with no list marker in front of it.
	bareCheckbox = regexp.MustCompile(`^\s*\[[^\]]?\]\s+\S`)
)

// Counts holds the task tallies of a task document.
type Counts struct {
	Total     int
	Completed int
}

// Detector computes completion status for spec directories.
type Detector struct {
	fs afero.Fs
}

// NewDetector creates a Detector reading through fs.
func NewDetector(fs afero.Fs) *Detector {
	return &Detector{fs: fs}
}

// CheckCompletion reads the task document of the spec at specPath and
// returns its completion status. It fails with types.ErrNotFound when the
// document is absent and types.ErrReadFailure on any other I/O error.
func (d *Detector) CheckCompletion(specPath string) (types.CompletionStatus, error) {
	path := filepath.Join(specPath, types.TasksFile)

	info, err := d.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.CompletionStatus{}, types.NewError(types.ErrNotFound, "check completion", path, err)
		}
		return types.CompletionStatus{}, types.NewError(types.ErrReadFailure, "check completion", path, err)
	}

	data, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return types.CompletionStatus{}, types.NewError(types.ErrReadFailure, "check completion", path, err)
	}

	counts := ParseTaskCounts(string(data))
	return types.CompletionStatus{
		IsComplete:     types.Complete(counts.Total, counts.Completed),
		TotalTasks:     counts.Total,
		CompletedTasks: counts.Completed,
		LastModified:   info.ModTime(),
	}, nil
}

// CompletionPercentage returns the share of completed tasks, rounded to
// the nearest integer, or 0 when the spec has no tasks.
func (d *Detector) CompletionPercentage(specPath string) (int, error) {
	status, err := d.CheckCompletion(specPath)
	if err != nil {
		return 0, err
	}
	return Percentage(status.TotalTasks, status.CompletedTasks), nil
}

// Percentage returns round(completed/total*100), or 0 when total is 0.
func Percentage(total, completed int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// ParseTaskCounts counts well-formed task lines in content. Malformed
// checkbox lines are excluded from both counts.
func ParseTaskCounts(content string) Counts {
	var c Counts
	for _, line := range splitLines(content) {
		m := taskLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		c.Total++
		if m[1] == "x" {
			c.Completed++
		}
	}
	return c
}

// ValidateFormat checks the shape of a task document. Empty content and
// content without any task line are invalid. Checkbox lines that are not
// well-formed tasks are reported as issues, one per line.
func ValidateFormat(content string) types.FormatValidation {
	if strings.TrimSpace(content) == "" {
		return types.FormatValidation{IsValid: false, Issues: []string{"file is empty"}}
	}

	var issues []string
	tasks := 0
	for i, line := range splitLines(content) {
		n := i + 1
		if taskLine.MatchString(line) {
			tasks++
			continue
		}
		if m := checkboxItem.FindStringSubmatch(line); m != nil {
			switch {
			case len(m[1]) != 1:
				issues = append(issues, fmt.Sprintf("line %d: malformed checkbox %q, expected \"[x]\" or \"[ ]\"", n, "["+m[1]+"]"))
			case m[1] != "x" && m[1] != " ":
				issues = append(issues, fmt.Sprintf("line %d: invalid checkbox character %q, expected \"x\" or a space", n, m[1]))
			default:
				issues = append(issues, fmt.Sprintf("line %d: checkbox must be followed by whitespace and a description", n))
			}
			continue
		}
		if otherMarker.MatchString(line) {
			issues = append(issues, fmt.Sprintf("line %d: checkbox uses an unsupported list marker, expected \"-\"", n))
			continue
		}
		if bareCheckbox.MatchString(line) {
			issues = append(issues, fmt.Sprintf("line %d: checkbox is missing the \"-\" list marker", n))
		}
	}

	if tasks == 0 {
		issues = append([]string{"no tasks found"}, issues...)
	}
	return types.FormatValidation{IsValid: len(issues) == 0, Issues: issues}
}

// splitLines splits on newlines and drops carriage returns.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
