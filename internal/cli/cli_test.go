package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/specarchive/internal/config"
	"github.com/mesh-intelligence/specarchive/internal/paths"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

var longText = strings.Repeat("Lorem ipsum dolor sit amet. ", 8)

// run executes the CLI against the project at root.
func run(t *testing.T, root string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--root", root}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeSpec creates a spec under the default specs directory whose files
// were last modified age ago.
func writeSpec(t *testing.T, root, name, tasks string, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(root, paths.DefaultSpecsDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	mtime := time.Now().Add(-age)
	for file, content := range map[string]string{
		types.RequirementsFile: longText,
		types.DesignFile:       longText,
		types.TasksFile:        tasks,
	} {
		path := filepath.Join(dir, file)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
	return dir
}

const (
	doneTasks = "# Tasks\n\n- [x] one\n- [x] two\n"
	openTasks = "# Tasks\n\n- [x] one\n- [ ] two\n"
)

func TestInit(t *testing.T) {
	root := t.TempDir()

	out, _, err := run(t, root, "init", "--backend", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+paths.SettingsFile)
	assert.Contains(t, out, "specarchive initialized")

	assert.DirExists(t, filepath.Join(root, paths.DefaultSpecsDir))
	assert.FileExists(t, filepath.Join(root, config.DefaultConfigFile))

	data, err := os.ReadFile(filepath.Join(root, paths.SettingsFile))
	require.NoError(t, err)
	var s settings
	require.NoError(t, yaml.Unmarshal(data, &s))
	assert.Equal(t, "sqlite", s.IndexBackend)
	assert.Equal(t, paths.DefaultSpecsDir, s.SpecsDir)

	// A second init leaves the settings alone.
	out, _, err = run(t, root, "init")
	require.NoError(t, err)
	assert.NotContains(t, out, "wrote")
	after, err := os.ReadFile(filepath.Join(root, paths.SettingsFile))
	require.NoError(t, err)
	assert.Equal(t, data, after)
}

func TestInitUnknownBackend(t *testing.T) {
	_, _, err := run(t, t.TempDir(), "init", "--backend", "mongo")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestStatus(t *testing.T) {
	root := t.TempDir()
	writeSpec(t, root, "alpha", doneTasks, time.Hour)
	writeSpec(t, root, "beta", openTasks, time.Hour)

	out, _, err := run(t, root, "-o", "json", "status")
	require.NoError(t, err)

	var rows []specStatus
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "alpha", rows[0].Name)
	assert.True(t, rows[0].IsComplete)
	assert.Equal(t, 100, rows[0].Percent)
	assert.Equal(t, "beta", rows[1].Name)
	assert.False(t, rows[1].IsComplete)
	assert.Equal(t, 50, rows[1].Percent)

	out, _, err = run(t, root, "status", "beta")
	require.NoError(t, err)
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "1/2")
	assert.NotContains(t, out, "alpha")
}

func TestStatusUnknownSpec(t *testing.T) {
	root := t.TempDir()
	_, _, err := run(t, root, "status", "ghost")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	writeSpec(t, root, "alpha", doneTasks, time.Hour)
	beta := writeSpec(t, root, "beta", doneTasks, time.Hour)
	require.NoError(t, os.Remove(filepath.Join(beta, types.DesignFile)))

	out, _, err := run(t, root, "validate", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")

	out, _, err = run(t, root, "validate")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
	assert.Contains(t, out, "missing required file: design.md")
}

func TestReady(t *testing.T) {
	root := t.TempDir()
	writeSpec(t, root, "alpha", doneTasks, time.Hour)
	writeSpec(t, root, "beta", openTasks, time.Hour)
	writeSpec(t, root, "gamma", doneTasks, time.Minute)

	out, _, err := run(t, root, "-o", "yaml", "ready")
	require.NoError(t, err)

	var rows []struct {
		Spec          string `yaml:"spec"`
		ShouldArchive bool   `yaml:"shouldArchive"`
		Reason        string `yaml:"reason"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.True(t, rows[0].ShouldArchive)
	assert.Contains(t, rows[1].Reason, "not complete: 1 of 2")
	assert.Contains(t, rows[2].Reason, "archival delay not elapsed")
}

func TestArchive(t *testing.T) {
	root := t.TempDir()
	spec := writeSpec(t, root, "alpha", doneTasks, time.Hour)

	out, _, err := run(t, root, "archive", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "archived")
	assert.Contains(t, out, "alpha")

	assert.NoDirExists(t, spec)

	out, _, err = run(t, root, "-o", "json", "archives", "list")
	require.NoError(t, err)
	var entries []types.IndexEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "alpha", entries[0].SpecName)
	assert.Equal(t, 2, entries[0].TotalTasks)
	assert.Equal(t, filepath.Join(root, types.DefaultArchiveLocation), filepath.Dir(entries[0].ArchivePath))
	assert.True(t, strings.HasSuffix(entries[0].ArchivePath, "_alpha"))
	assert.FileExists(t, filepath.Join(entries[0].ArchivePath, types.MetadataFileName))

	out, _, err = run(t, root, "archives", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "archives:    1")
}

func TestArchiveIncomplete(t *testing.T) {
	root := t.TempDir()
	spec := writeSpec(t, root, "beta", openTasks, time.Hour)

	_, _, err := run(t, root, "archive", "beta")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
	assert.Contains(t, err.Error(), "--force")
	assert.DirExists(t, spec)

	out, _, err := run(t, root, "archive", "--force", "beta")
	require.NoError(t, err)
	assert.Contains(t, out, "archived")
	assert.NoDirExists(t, spec)
}

func TestArchiveUnsafe(t *testing.T) {
	root := t.TempDir()
	spec := writeSpec(t, root, "alpha", doneTasks, 0)

	out, _, err := run(t, root, "archive", "--check", "alpha")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
	assert.Contains(t, out, "unsafe to archive")

	out, _, err = run(t, root, "-o", "json", "archive", "alpha")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))

	var res types.ArchivalResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Success)
	assert.Equal(t, types.CodeConcurrentAccess, res.ErrorCode)
	assert.DirExists(t, spec)
}

func TestAuto(t *testing.T) {
	root := t.TempDir()
	writeSpec(t, root, "alpha", doneTasks, time.Hour)
	writeSpec(t, root, "beta", doneTasks, time.Hour)
	writeSpec(t, root, "gamma", doneTasks, time.Minute)
	writeSpec(t, root, "omega", openTasks, time.Hour)

	out, stderr, err := run(t, root, "-o", "json", "auto")
	require.NoError(t, err)

	var report types.BatchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, 0, report.Failed())
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Reason, "archival delay not elapsed")
	assert.Contains(t, stderr, "2 archived")

	// Disabled archival skips the run entirely.
	_, _, err = run(t, root, "config", "set", config.KeyEnabled, "false")
	require.NoError(t, err)
	writeSpec(t, root, "delta", doneTasks, time.Hour)
	out, _, err = run(t, root, "-o", "json", "auto")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Disabled)
	assert.DirExists(t, filepath.Join(root, paths.DefaultSpecsDir, "delta"))
}

func TestArchivesSearchAndRemove(t *testing.T) {
	root := t.TempDir()
	writeSpec(t, root, "auth-flow", doneTasks, time.Hour)
	writeSpec(t, root, "billing", doneTasks, time.Hour)
	_, _, err := run(t, root, "auto")
	require.NoError(t, err)

	out, _, err := run(t, root, "archives", "search", "AUTH")
	require.NoError(t, err)
	assert.Contains(t, out, "auth-flow")
	assert.NotContains(t, out, "billing")

	_, _, err = run(t, root, "archives", "remove", "billing")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))

	out, _, err = run(t, root, "-o", "json", "archives", "search", "billing")
	require.NoError(t, err)
	var entries []types.IndexEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	billing := entries[0].ArchivePath

	out, _, err = run(t, root, "archives", "remove", "--yes", filepath.Base(billing))
	require.NoError(t, err)
	assert.Contains(t, out, "removed")
	assert.NoDirExists(t, billing)

	_, _, err = run(t, root, "archives", "remove", "--yes", filepath.Base(billing))
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err), "already removed")

	_, _, err = run(t, root, "archives", "remove", "--yes", "../alpha")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestArchivesRepair(t *testing.T) {
	root := t.TempDir()
	writeSpec(t, root, "alpha", doneTasks, time.Hour)
	_, _, err := run(t, root, "auto")
	require.NoError(t, err)

	indexPath := filepath.Join(root, types.DefaultArchiveLocation, ".archive-index.json")
	require.NoError(t, os.WriteFile(indexPath, []byte("{not json"), 0o644))

	_, _, err = run(t, root, "archives", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archives repair")

	out, _, err := run(t, root, "archives", "repair")
	require.NoError(t, err)
	assert.Contains(t, out, "repaired")

	out, _, err = run(t, root, "archives", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")
}

func TestConfigCommands(t *testing.T) {
	root := t.TempDir()

	out, _, err := run(t, root, "-o", "yaml", "config", "set", config.KeyDelayMinutes, "30")
	require.NoError(t, err)
	var view struct {
		Config types.ArchivalConfig `yaml:"config"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, 30, view.Config.DelayMinutes)

	_, _, err = run(t, root, "config", "set", config.KeyDelayMinutes, "5000")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))

	_, _, err = run(t, root, "config", "set", "colour", "blue")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))

	out, _, err = run(t, root, "config", "backups")
	require.NoError(t, err)
	assert.Contains(t, out, "archival-config-")

	out, _, err = run(t, root, "config", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("%d", types.DefaultDelayMinutes))

	// The newest backup holds delayMinutes 30.
	out, _, err = run(t, root, "-o", "json", "config", "restore", "latest")
	require.NoError(t, err)
	var restored configView
	require.NoError(t, json.Unmarshal([]byte(out), &restored))
	assert.Equal(t, 30, restored.Config.DelayMinutes)
}

func TestCustomSpecsDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, paths.KiroDirName), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, paths.SettingsFile), []byte("specs_dir: docs/specs\n"), 0o644))

	dir := filepath.Join(root, "docs", "specs", "alpha")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, types.TasksFile), []byte(doneTasks), 0o644))

	out, _, err := run(t, root, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")
}

func TestUsageErrors(t *testing.T) {
	root := t.TempDir()
	for _, args := range [][]string{
		{"-o", "xml", "status"},
		{"nosuchcommand"},
		{"status", "a", "b"},
		{"archive"},
		{"status", "--bogus"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, _, err := run(t, root, args...)
			require.Error(t, err)
			assert.Equal(t, exitUserError, exitCode(err))
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitSuccess},
		{"validation", types.NewError(types.ErrValidationFailed, "op", "", nil), exitUserError},
		{"not found", types.NewError(types.ErrNotFound, "op", "", nil), exitUserError},
		{"config", fmt.Errorf("wrapped: %w", types.NewError(types.ErrConfig, "op", "", nil)), exitUserError},
		{"usage", usageError{errors.New("bad flag")}, exitUserError},
		{"silent", silentError{exitSysError}, exitSysError},
		{"copy", types.NewError(types.ErrCopyFailed, "op", "", nil), exitSysError},
		{"plain", errors.New("disk on fire"), exitSysError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, exitSysError, report(&buf, errors.New("boom")))
	assert.Equal(t, "Error: boom\n", buf.String())

	buf.Reset()
	assert.Equal(t, exitUserError, report(&buf, silentError{exitUserError}))
	assert.Empty(t, buf.String())
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("specarchive v%s\nmodule: %s\n", Version, modulePath), out)
}
