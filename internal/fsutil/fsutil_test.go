package fsutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string, mode os.FileMode, mtime time.Time) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), mode))
	require.NoError(t, fs.Chtimes(path, mtime, mtime))
}

func TestCopyTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

	writeFile(t, fs, "/src/a.md", "alpha", 0o644, mtime)
	writeFile(t, fs, "/src/run.sh", "#!/bin/sh", 0o755, mtime.Add(time.Hour))
	writeFile(t, fs, "/src/nested/deep/b.md", "beta", 0o600, mtime)

	stats, err := CopyTree(context.Background(), fs, "/src", "/dst/copy")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 3, stats.Directories)

	data, err := afero.ReadFile(fs, "/dst/copy/nested/deep/b.md")
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))

	t.Run("preserves mode", func(t *testing.T) {
		info, err := fs.Stat("/dst/copy/run.sh")
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

		info, err = fs.Stat("/dst/copy/nested/deep/b.md")
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("preserves mtime", func(t *testing.T) {
		info, err := fs.Stat("/dst/copy/a.md")
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(mtime))

		info, err = fs.Stat("/dst/copy/run.sh")
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(mtime.Add(time.Hour)))
	})

	t.Run("source untouched", func(t *testing.T) {
		data, err := afero.ReadFile(fs, "/src/a.md")
		require.NoError(t, err)
		assert.Equal(t, "alpha", string(data))
	})
}

func TestCopyTreeExistingDestination(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.md", "alpha", 0o644, time.Now())
	require.NoError(t, fs.MkdirAll("/dst", 0o755))

	_, err := CopyTree(context.Background(), fs, "/src", "/dst")
	assert.Error(t, err)
}

func TestCopyTreeCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.md", "alpha", 0o644, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CopyTree(ctx, fs, "/src", "/dst")
	assert.ErrorIs(t, err, context.Canceled)
}

// plainFs hides the link support of the filesystem it wraps.
type plainFs struct {
	afero.Fs
}

func writeLinkedTree(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "src")
	writeFile(t, afero.NewOsFs(), filepath.Join(src, "a.md"), "alpha", 0o644, time.Now())
	require.NoError(t, os.Symlink("a.md", filepath.Join(src, "link.md")))
	require.NoError(t, os.Symlink("missing.md", filepath.Join(src, "dangling.md")))
	return src
}

func TestCopyTreeSymlinks(t *testing.T) {
	fs := afero.NewOsFs()
	src := writeLinkedTree(t)
	dst := filepath.Join(t.TempDir(), "dst")

	stats, err := CopyTree(context.Background(), fs, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 2, stats.Links)
	assert.Empty(t, stats.Skipped)

	for name, want := range map[string]string{"link.md": "a.md", "dangling.md": "missing.md"} {
		got, err := os.Readlink(filepath.Join(dst, name))
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	n, err := CountFiles(fs, src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = CountFiles(fs, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCopyTreeReportsUncopyableLinks(t *testing.T) {
	src := writeLinkedTree(t)
	dst := filepath.Join(t.TempDir(), "dst")

	stats, err := CopyTree(context.Background(), plainFs{afero.NewOsFs()}, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Zero(t, stats.Links)
	assert.ElementsMatch(t, []string{filepath.Join(src, "link.md"), filepath.Join(src, "dangling.md")}, stats.Skipped)

	_, err = os.Lstat(filepath.Join(dst, "link.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestCountFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Now()
	writeFile(t, fs, "/root/a.md", "a", 0o644, now)
	writeFile(t, fs, "/root/sub/b.md", "b", 0o644, now)
	writeFile(t, fs, "/root/.meta.json", "{}", 0o644, now)

	n, err := CountFiles(fs, "/root")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = CountFiles(fs, "/root", ".meta.json")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWriteJSONAtomic(t *testing.T) {
	fs := afero.NewMemMapFs()

	type doc struct {
		Name string `json:"name"`
	}
	require.NoError(t, WriteJSONAtomic(fs, "/data/out.json", doc{Name: "first"}))
	require.NoError(t, WriteJSONAtomic(fs, "/data/out.json", doc{Name: "second"}))

	var got doc
	require.NoError(t, ReadJSON(fs, "/data/out.json", &got))
	assert.Equal(t, "second", got.Name)

	entries, err := afero.ReadDir(fs, "/data")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestProbeWritable(t *testing.T) {
	t.Run("existing directory", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/archive", 0o755))

		require.NoError(t, ProbeWritable(fs, "/archive"))

		entries, err := afero.ReadDir(fs, "/archive")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("missing directory probes ancestor without creating it", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/project", 0o755))

		require.NoError(t, ProbeWritable(fs, "/project/specs/archive"))

		exists, err := afero.DirExists(fs, "/project/specs")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("read-only filesystem", func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, base.MkdirAll("/archive", 0o755))

		err := ProbeWritable(afero.NewReadOnlyFs(base), "/archive")
		assert.Error(t, err)
	})
}
