package archiver

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/mesh-intelligence/specarchive/internal/fsutil"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// ValidateArchivalSafety runs the pre-flight checks for archiving specPath.
// It reads but never writes, apart from a throwaway probe file in the
// nearest existing ancestor of the archive root. Code names the kind of
// the first failing check.
func (e *Engine) ValidateArchivalSafety(specPath string) types.SafetyCheck {
	specPath = filepath.Clean(specPath)
	check := types.SafetyCheck{Issues: []string{}}
	add := func(code types.ErrorCode, format string, args ...any) {
		if check.Code == types.CodeNone {
			check.Code = code
		}
		check.Issues = append(check.Issues, fmt.Sprintf(format, args...))
	}

	info, err := e.fs.Stat(specPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		add(types.CodeNotFound, "spec directory not found: %s", specPath)
	case err != nil:
		add(types.CodeReadFailure, "cannot read spec directory: %v", err)
	case !info.IsDir():
		add(types.CodeValidationFailed, "spec path is not a directory: %s", specPath)
	}

	for _, name := range types.RequiredFiles {
		info, err := e.fs.Stat(filepath.Join(specPath, name))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			add(types.CodeValidationFailed, "missing required file: %s", name)
		case err != nil:
			add(types.CodeReadFailure, "cannot read %s: %v", name, err)
		case !info.Mode().IsRegular():
			add(types.CodeValidationFailed, "%s is not a regular file", name)
		case info.Size() == 0:
			add(types.CodeValidationFailed, "%s is empty", name)
		}
	}

	root := e.ArchiveRoot()
	if within(specPath, root) {
		add(types.CodeValidationFailed, "spec is inside the archive directory %s", root)
	}

	// Path generation skips occupied destinations and CopyTree refuses an
	// existing one, so only an unreadable archive root is reported here.
	if _, err := e.nextArchivePath(filepath.Base(specPath), false); err != nil {
		add(types.CodeReadFailure, "cannot check archive destination: %v", err)
	}

	if err := fsutil.ProbeWritable(e.fs, root); err != nil {
		add(types.CodePermissionDenied, "archive location is not writable: %v", err)
	}

	tasks, err := e.fs.Stat(filepath.Join(specPath, types.TasksFile))
	if err == nil {
		age := e.now().Sub(tasks.ModTime())
		if age < RecentEditWindow {
			add(types.CodeConcurrentAccess, "%s was modified %s ago; it may still be under edit", types.TasksFile, age.Round(time.Second))
		}
	}

	check.CanProceed = len(check.Issues) == 0
	check.IsSafe = check.CanProceed
	return check
}

// within reports whether path is root or lies below it.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
