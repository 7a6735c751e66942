package index

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/mesh-intelligence/specarchive/internal/fsutil"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// JSONFileName is the index file kept in the archive root.
const JSONFileName = ".archive-index.json"

// JSONStore keeps the index in a single JSON document, rewritten
// atomically on every save.
type JSONStore struct {
	fs   afero.Fs
	path string
}

// NewJSONStore returns a JSONStore for archiveRoot. Nothing is created
// until the first Save.
func NewJSONStore(fsys afero.Fs, archiveRoot string) (Store, error) {
	return &JSONStore{fs: fsys, path: filepath.Join(archiveRoot, JSONFileName)}, nil
}

// Path returns the index file path.
func (s *JSONStore) Path() string { return s.path }

// Load reads the index file. A missing file is an empty index.
func (s *JSONStore) Load() (types.Index, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.NewIndex(), nil
		}
		return types.Index{}, types.NewError(types.ErrReadFailure, "load index", s.path, err)
	}

	var idx types.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return types.Index{}, types.NewError(types.ErrIndexCorrupt, "load index", s.path, err)
	}
	if idx.Archives == nil {
		idx.Archives = []types.IndexEntry{}
	}
	if idx.Version == "" {
		idx.Version = types.IndexVersion
	}
	return idx, nil
}

// Save writes the index atomically.
func (s *JSONStore) Save(idx types.Index) error {
	if idx.Archives == nil {
		idx.Archives = []types.IndexEntry{}
	}
	return fsutil.WriteJSONAtomic(s.fs, s.path, idx)
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }
