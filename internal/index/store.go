package index

import (
	"fmt"
	"sort"

	"github.com/spf13/afero"

	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// Store persists the archive index. Load on a store that has never been
// saved returns an empty index; an unparseable store returns
// types.ErrIndexCorrupt.
type Store interface {
	Load() (types.Index, error)
	Save(idx types.Index) error
	Close() error
}

// Factory opens a Store for an archive root.
type Factory func(fs afero.Fs, archiveRoot string) (Store, error)

// Backend names.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// DefaultBackend is used when no backend is configured.
const DefaultBackend = BackendJSON

var backends = map[string]Factory{
	BackendJSON:   NewJSONStore,
	BackendSQLite: NewSQLiteStore,
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open returns the named backend for archiveRoot. An empty name selects
// DefaultBackend.
func Open(name string, fs afero.Fs, archiveRoot string) (Store, error) {
	if name == "" {
		name = DefaultBackend
	}
	factory, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", types.ErrUnknownBackend, name, Backends())
	}
	return factory(fs, archiveRoot)
}
