package index

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/specarchive/internal/fsutil"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

const archiveRoot = "/project/.kiro/specs/archive"

var base = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func setupManager(t *testing.T) (*Manager, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := NewJSONStore(fs, archiveRoot)
	require.NoError(t, err)
	m := NewManager(store, fs, archiveRoot, WithClock(func() time.Time { return base }))
	t.Cleanup(func() { m.Close() })
	return m, fs
}

func entry(name string, day, tasks int) types.IndexEntry {
	archived := base.AddDate(0, 0, day)
	return types.IndexEntry{
		SpecName:       name,
		ArchivePath:    filepath.Join(archiveRoot, archived.Format("2006-01-02")+"_"+name),
		CompletionDate: archived.Add(-time.Hour),
		ArchivalDate:   archived,
		TotalTasks:     tasks,
	}
}

// writeArchive creates an archive directory with a metadata file for e.
func writeArchive(t *testing.T, fs afero.Fs, e types.IndexEntry) {
	t.Helper()
	meta := types.ArchiveMetadata{
		ArchiveID:      "id-" + e.SpecName,
		SpecName:       e.SpecName,
		OriginalPath:   "/project/.kiro/specs/" + e.SpecName,
		ArchivePath:    e.ArchivePath,
		CompletionDate: e.CompletionDate,
		ArchivalDate:   e.ArchivalDate,
		TotalTasks:     e.TotalTasks,
		CompletedTasks: e.TotalTasks,
		FileCount:      3,
		SchemaVersion:  types.MetadataSchemaVersion,
	}
	require.NoError(t, fsutil.WriteJSONAtomic(fs, filepath.Join(e.ArchivePath, types.MetadataFileName), meta))
}

func TestAddAndRemoveEntry(t *testing.T) {
	m, fs := setupManager(t)

	foo := entry("foo", 0, 3)
	bar := entry("bar", 1, 5)
	require.NoError(t, m.AddEntry(foo))
	require.NoError(t, m.AddEntry(bar))

	all, err := m.GetAll()
	require.NoError(t, err)
	assert.Equal(t, []types.IndexEntry{foo, bar}, all)

	exists, err := afero.Exists(fs, filepath.Join(archiveRoot, JSONFileName))
	require.NoError(t, err)
	assert.True(t, exists)

	removed, err := m.RemoveEntry(foo.ArchivePath)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = m.RemoveEntry(foo.ArchivePath)
	require.NoError(t, err)
	assert.False(t, removed)

	all, err = m.GetAll()
	require.NoError(t, err)
	assert.Equal(t, []types.IndexEntry{bar}, all)
}

func TestAddEntryReplacesSameArchive(t *testing.T) {
	m, _ := setupManager(t)

	first := entry("foo", 0, 3)
	second := first
	second.TotalTasks = 9
	require.NoError(t, m.AddEntry(first))
	require.NoError(t, m.AddEntry(second))

	all, err := m.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 9, all[0].TotalTasks)
}

func TestGetAllEmpty(t *testing.T) {
	m, _ := setupManager(t)

	all, err := m.GetAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSearch(t *testing.T) {
	m, _ := setupManager(t)
	for _, e := range []types.IndexEntry{
		entry("user-auth", 0, 1),
		entry("Auth-Tokens", 1, 1),
		entry("billing", 2, 1),
	} {
		require.NoError(t, m.AddEntry(e))
	}

	tests := []struct {
		term string
		want []string
	}{
		{"auth", []string{"user-auth", "Auth-Tokens"}},
		{"AUTH", []string{"user-auth", "Auth-Tokens"}},
		{"bill", []string{"billing"}},
		{"zzz", nil},
		{"", []string{"user-auth", "Auth-Tokens", "billing"}},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got, err := m.Search(tt.term)
			require.NoError(t, err)
			var names []string
			for _, e := range got {
				names = append(names, e.SpecName)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestGetStats(t *testing.T) {
	m, _ := setupManager(t)

	stats, err := m.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalArchives)
	assert.Nil(t, stats.OldestArchive)
	assert.Nil(t, stats.NewestArchive)

	require.NoError(t, m.AddEntry(entry("middle", 5, 4)))
	require.NoError(t, m.AddEntry(entry("oldest", 1, 2)))
	require.NoError(t, m.AddEntry(entry("newest", 9, 6)))

	stats, err = m.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalArchives)
	assert.Equal(t, 12, stats.TotalTasks)
	require.NotNil(t, stats.OldestArchive)
	require.NotNil(t, stats.NewestArchive)
	assert.Equal(t, "oldest", stats.OldestArchive.SpecName)
	assert.Equal(t, "newest", stats.NewestArchive.SpecName)
}

func TestLookup(t *testing.T) {
	m, _ := setupManager(t)
	foo := entry("foo", 0, 1)
	require.NoError(t, m.AddEntry(foo))

	got, ok, err := m.Lookup(filepath.Base(foo.ArchivePath))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, foo, got)

	_, ok, err = m.Lookup("nothing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateAndRepair(t *testing.T) {
	m, fs := setupManager(t)

	indexed := entry("indexed", 0, 1)
	unindexed := entry("unindexed", 1, 2)
	gone := entry("gone", 2, 3)
	noMeta := entry("no-meta", 3, 4)

	writeArchive(t, fs, indexed)
	writeArchive(t, fs, unindexed)
	require.NoError(t, fs.MkdirAll(noMeta.ArchivePath, 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(archiveRoot, "stray.txt"), []byte("x"), 0o644))

	require.NoError(t, m.AddEntry(indexed))
	require.NoError(t, m.AddEntry(gone))
	require.NoError(t, m.AddEntry(noMeta))

	report, err := m.ValidateAndRepair()
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	assert.True(t, report.Repaired)
	assert.NotEmpty(t, report.Issues)

	all, err := m.GetAll()
	require.NoError(t, err)
	var names []string
	for _, e := range all {
		names = append(names, e.SpecName)
	}
	assert.Equal(t, []string{"indexed", "unindexed"}, names)

	t.Run("second pass is clean", func(t *testing.T) {
		report, err := m.ValidateAndRepair()
		require.NoError(t, err)
		assert.True(t, report.IsValid)
		assert.False(t, report.Repaired)
		require.Len(t, report.Issues, 1)
		assert.Contains(t, report.Issues[0], "no-meta")
	})
}

func TestValidateAndRepairCorruptIndex(t *testing.T) {
	m, fs := setupManager(t)

	foo := entry("foo", 0, 1)
	writeArchive(t, fs, foo)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(archiveRoot, JSONFileName), []byte("{not json"), 0o644))

	_, err := m.GetAll()
	assert.ErrorIs(t, err, types.ErrIndexCorrupt)

	report, err := m.ValidateAndRepair()
	require.NoError(t, err)
	assert.True(t, report.Repaired)
	assert.Contains(t, report.Issues[0], "corrupt")

	all, err := m.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "foo", all[0].SpecName)
}

func TestAddEntryRebuildsCorruptIndex(t *testing.T) {
	m, fs := setupManager(t)

	old := entry("old", 0, 1)
	writeArchive(t, fs, old)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(archiveRoot, JSONFileName), []byte("]["), 0o644))

	fresh := entry("fresh", 1, 2)
	require.NoError(t, m.AddEntry(fresh))

	all, err := m.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestValidateAndRepairMissingRoot(t *testing.T) {
	m, _ := setupManager(t)

	report, err := m.ValidateAndRepair()
	require.NoError(t, err)
	assert.True(t, report.IsValid)
}

// After repair the index holds one entry per archive directory with
// readable metadata, whatever state it started in.
func TestRepairConverges(t *testing.T) {
	if testing.Short() {
		t.Skip("seeded property run")
	}
	rng := rand.New(rand.NewSource(11))
	for iter := 0; iter < 50; iter++ {
		m, fs := setupManager(t)
		withMeta := 0
		for i := 0; i < 8; i++ {
			e := entry(fmt.Sprintf("spec-%d", i), i, i+1)
			switch rng.Intn(4) {
			case 0:
				writeArchive(t, fs, e)
				withMeta++
			case 1:
				writeArchive(t, fs, e)
				withMeta++
				require.NoError(t, m.AddEntry(e))
			case 2:
				require.NoError(t, m.AddEntry(e))
			case 3:
				require.NoError(t, fs.MkdirAll(e.ArchivePath, 0o755))
			}
		}

		_, err := m.ValidateAndRepair()
		require.NoError(t, err)
		all, err := m.GetAll()
		require.NoError(t, err)
		assert.Len(t, all, withMeta, "iteration %d", iter)
	}
}

func TestOpen(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := Open("", fs, archiveRoot)
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, store)

	store, err = Open(BackendSQLite, fs, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open("postgres", fs, archiveRoot)
	assert.ErrorIs(t, err, types.ErrUnknownBackend)

	assert.Equal(t, []string{BackendJSON, BackendSQLite}, Backends())
}
