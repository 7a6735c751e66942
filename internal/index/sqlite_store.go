package index

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// SQLiteFileName is the database kept in the archive root.
const SQLiteFileName = ".archive-index.db"

// Schema DDL. Timestamps are stored as RFC 3339 text.
const (
	createArchives = `CREATE TABLE IF NOT EXISTS archives (
    archive_dir TEXT PRIMARY KEY,
    spec_name TEXT NOT NULL,
    archive_path TEXT NOT NULL,
    completion_date TEXT NOT NULL,
    archival_date TEXT NOT NULL,
    total_tasks INTEGER NOT NULL,
    position INTEGER NOT NULL
);`

	createIndexMeta = `CREATE TABLE IF NOT EXISTS index_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

	idxArchivesSpecName = `CREATE INDEX IF NOT EXISTS idx_archives_spec_name ON archives(spec_name);`
)

var schemaDDL = []string{createArchives, createIndexMeta, idxArchivesSpecName}

// SQLiteStore keeps the index in a SQLite database through the pure-Go
// modernc.org/sqlite driver. The database lives on the OS filesystem; the
// afero.Fs passed to NewSQLiteStore is not used. The database is opened on
// first use and only created by Save.
type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore returns a SQLiteStore for archiveRoot.
func NewSQLiteStore(_ afero.Fs, archiveRoot string) (Store, error) {
	return &SQLiteStore{path: filepath.Join(archiveRoot, SQLiteFileName)}, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// open connects to the database and applies the schema. The caller holds
// s.mu.
func (s *SQLiteStore) open() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, err
	}
	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, err
		}
	}
	s.db = db
	return db, nil
}

// Load reads every archive row in insertion order. A missing database is
// an empty index.
func (s *SQLiteStore) Load() (types.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
			return types.NewIndex(), nil
		}
	}
	db, err := s.open()
	if err != nil {
		return types.Index{}, types.NewError(types.ErrIndexCorrupt, "load index", s.path, err)
	}

	idx := types.NewIndex()
	if err := s.loadMeta(db, &idx); err != nil {
		return types.Index{}, types.NewError(types.ErrIndexCorrupt, "load index", s.path, err)
	}

	rows, err := db.Query(`SELECT spec_name, archive_path, completion_date, archival_date, total_tasks
		FROM archives ORDER BY position`)
	if err != nil {
		return types.Index{}, types.NewError(types.ErrIndexCorrupt, "load index", s.path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e types.IndexEntry
		var completion, archival string
		if err := rows.Scan(&e.SpecName, &e.ArchivePath, &completion, &archival, &e.TotalTasks); err != nil {
			return types.Index{}, types.NewError(types.ErrIndexCorrupt, "load index", s.path, err)
		}
		if e.CompletionDate, err = parseTime(completion); err != nil {
			return types.Index{}, types.NewError(types.ErrIndexCorrupt, "load index", s.path, err)
		}
		if e.ArchivalDate, err = parseTime(archival); err != nil {
			return types.Index{}, types.NewError(types.ErrIndexCorrupt, "load index", s.path, err)
		}
		idx.Archives = append(idx.Archives, e)
	}
	if err := rows.Err(); err != nil {
		return types.Index{}, types.NewError(types.ErrIndexCorrupt, "load index", s.path, err)
	}
	return idx, nil
}

func (s *SQLiteStore) loadMeta(db *sql.DB, idx *types.Index) error {
	rows, err := db.Query(`SELECT key, value FROM index_meta`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		switch key {
		case "version":
			idx.Version = value
		case "last_updated":
			t, err := parseTime(value)
			if err != nil {
				return err
			}
			idx.LastUpdated = t
		}
	}
	return rows.Err()
}

// Save replaces the stored index in one transaction.
func (s *SQLiteStore) Save(idx types.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", s.path, err)
	}
	db, err := s.open()
	if err != nil {
		return types.NewError(types.ErrIndexCorrupt, "save index", s.path, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM archives`); err != nil {
		return fmt.Errorf("clearing archives: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO archives
		(archive_dir, spec_name, archive_path, completion_date, archival_date, total_tasks, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range idx.Archives {
		if _, err := stmt.Exec(
			filepath.Base(e.ArchivePath), e.SpecName, e.ArchivePath,
			formatTime(e.CompletionDate), formatTime(e.ArchivalDate), e.TotalTasks, i,
		); err != nil {
			return fmt.Errorf("inserting %s: %w", e.ArchivePath, err)
		}
	}

	version := idx.Version
	if version == "" {
		version = types.IndexVersion
	}
	for key, value := range map[string]string{
		"version":      version,
		"last_updated": formatTime(idx.LastUpdated),
	} {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO index_meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("writing %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
